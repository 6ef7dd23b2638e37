package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/maauso/mindset-media-api/internal/bootstrap"
	"github.com/maauso/mindset-media-api/internal/compilation"
	"github.com/maauso/mindset-media-api/internal/format"
	"github.com/maauso/mindset-media-api/internal/storage"
)

// compileOptions holds the compile flags. Flags override the manifest.
type compileOptions struct {
	manifest    string
	videos      []string
	audio       string
	format      string
	effect      bool
	intensity   float64
	videoVolume float64
	musicVolume float64
	output      string
}

func (o *compileOptions) bind(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVarP(&o.manifest, "manifest", "m", "", "TOML manifest describing the compilation")
	flags.StringArrayVar(&o.videos, "video", nil, "Clip URL, repeat in playback order")
	flags.StringVar(&o.audio, "audio", "", "Background music URL")
	flags.StringVar(&o.format, "format", string(format.ModeVertical), "Output format: vertical, horizontal, auto or keep_original")
	flags.BoolVar(&o.effect, "effect", false, "Apply the moody color grade")
	flags.Float64Var(&o.intensity, "intensity", compilation.DefaultEffectIntensity, "Moody effect intensity (0-1)")
	flags.Float64Var(&o.videoVolume, "video-volume", compilation.DefaultVideoVolume, "Volume of the clips' own audio (0-1)")
	flags.Float64Var(&o.musicVolume, "music-volume", compilation.DefaultMusicVolume, "Volume of the background music (0-1)")
	flags.StringVarP(&o.output, "output", "o", "", "Output file (default: a new file in TEMP_DIR)")
}

// request builds the compilation request from the manifest and the flags
// that were set explicitly, and validates it.
func (o *compileOptions) request(cmd *cobra.Command) (compilation.Request, error) {
	req := compilation.NewRequest()

	if o.manifest != "" {
		m, err := loadManifest(o.manifest)
		if err != nil {
			return compilation.Request{}, err
		}
		if err := m.apply(&req); err != nil {
			return compilation.Request{}, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("video") {
		req.VideoURLs = o.videos
	}
	if flags.Changed("audio") {
		req.AudioURL = o.audio
	}
	if flags.Changed("format") {
		mode, err := format.ParseMode(o.format)
		if err != nil {
			return compilation.Request{}, err
		}
		req.FormatMode = mode
	}
	if flags.Changed("effect") {
		req.ApplyEffect = o.effect
	}
	if flags.Changed("intensity") {
		req.EffectIntensity = o.intensity
	}
	if flags.Changed("video-volume") {
		req.VideoVolume = o.videoVolume
	}
	if flags.Changed("music-volume") {
		req.MusicVolume = o.musicVolume
	}
	if flags.Changed("output") {
		req.OutputPath = o.output
	}

	if err := req.Validate(); err != nil {
		return compilation.Request{}, err
	}
	return req, nil
}

func newCompileCommand(ctx *commandContext) *cobra.Command {
	opts := &compileOptions{}

	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Download clips and compile them into one H.264/AAC video",
		Example: `  mediactl compile --video https://cdn.example.com/a.mp4 --video https://cdn.example.com/b.mp4 --format auto
  mediactl compile --manifest reel.toml --output reel.mp4`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := opts.request(cmd)
			if err != nil {
				return err
			}

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger := ctx.logger(cmd.ErrOrStderr())

			store, err := storage.NewLocalStorage(cfg.TempDir)
			if err != nil {
				return fmt.Errorf("create local storage: %w", err)
			}
			pipeline, err := bootstrap.NewPipeline(cfg, store, logger)
			if err != nil {
				return err
			}

			progress := func(compilation.Stage, int) {}
			if isTerminal(cmd.ErrOrStderr()) {
				progress = func(stage compilation.Stage, percent int) {
					fmt.Fprintf(cmd.ErrOrStderr(), "%-10s %3d%%\n", stage, percent)
				}
			}

			out, err := pipeline.Run(cmd.Context(), req, progress)
			if err != nil {
				return err
			}

			if ctx.wantTable(cmd.OutOrStdout()) {
				return printCompilation(cmd.OutOrStdout(), out)
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}

	opts.bind(cmd)
	return cmd
}

func printCompilation(w io.Writer, out *compilation.Output) error {
	headers := []string{"#", "Source", "Size", "Format", "Duration", "Audio", "Resized", "Loaded via"}
	rows := make([][]string, 0, len(out.Clips))
	for _, c := range out.Clips {
		rows = append(rows, []string{
			strconv.Itoa(c.Index),
			c.URL,
			formatSize(c.Width, c.Height),
			string(c.Category),
			formatSeconds(c.Duration),
			yesNo(c.HasAudio),
			yesNo(c.Resized),
			string(c.Strategy),
		})
	}
	aligns := []columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignRight}
	if _, err := fmt.Fprintln(w, renderTable(headers, rows, aligns)); err != nil {
		return err
	}

	size := "unknown size"
	if info, err := os.Stat(out.Path); err == nil {
		size = humanize.Bytes(uint64(info.Size()))
	}
	_, err := fmt.Fprintf(w, "%s  %s  %s  %s  background music: %s\n",
		out.Path,
		formatSize(out.Width, out.Height),
		formatSeconds(out.Duration),
		size,
		yesNo(out.MixedBackground),
	)
	return err
}
