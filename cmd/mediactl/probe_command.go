package main

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/maauso/mindset-media-api/internal/compilation"
	"github.com/maauso/mindset-media-api/internal/format"
	"github.com/maauso/mindset-media-api/internal/media"
)

// probeClip is the analysis of one local file.
type probeClip struct {
	Index       int                  `json:"index"`
	Path        string               `json:"path"`
	Width       int                  `json:"width"`
	Height      int                  `json:"height"`
	Duration    float64              `json:"duration"`
	FrameRate   string               `json:"frame_rate"`
	HasAudio    bool                 `json:"has_audio"`
	Strategy    compilation.Strategy `json:"strategy"`
	Category    format.Category      `json:"category"`
	Description string               `json:"description"`
	SocialReady bool                 `json:"social_ready"`
	NeedsResize bool                 `json:"needs_resize"`
}

// probeReport is printed by the probe command.
type probeReport struct {
	Clips  []probeClip `json:"clips"`
	Target struct {
		Mode         format.Mode     `json:"mode"`
		Width        int             `json:"width"`
		Height       int             `json:"height"`
		Category     format.Category `json:"category"`
		ResizeNeeded bool            `json:"resize_needed"`
	} `json:"target"`
}

func newProbeCommand(ctx *commandContext) *cobra.Command {
	var modeFlag string

	cmd := &cobra.Command{
		Use:   "probe FILE...",
		Short: "Analyze local clips and show the format they would be compiled to",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := format.ParseMode(modeFlag)
			if err != nil {
				return err
			}

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger := ctx.logger(cmd.ErrOrStderr())

			processor := media.NewFFmpegProcessor(cfg.FFmpegPath, cfg.FFprobePath)
			if err := processor.CheckBinaries(); err != nil {
				return err
			}
			loader := compilation.NewLoader(processor, compilation.WithLoaderLogger(logger))

			clips, err := loader.LoadAll(cmd.Context(), args)
			if err != nil {
				return err
			}
			defer func() {
				for _, c := range clips {
					if err := c.Close(); err != nil {
						logger.Warn("failed to close clip", slog.Any("error", err))
					}
				}
			}()

			report, err := buildProbeReport(clips, mode)
			if err != nil {
				return err
			}

			if ctx.wantTable(cmd.OutOrStdout()) {
				return printProbe(cmd.OutOrStdout(), report)
			}
			return writeJSON(cmd.OutOrStdout(), report)
		},
	}

	cmd.Flags().StringVar(&modeFlag, "format", string(format.ModeAuto), "Format mode to reconcile with: vertical, horizontal, auto or keep_original")
	return cmd
}

// buildProbeReport analyzes the clips and reconciles them under mode.
func buildProbeReport(clips []*compilation.Clip, mode format.Mode) (*probeReport, error) {
	infos := make([]format.Info, 0, len(clips))
	for _, c := range clips {
		info, err := c.Info()
		if err != nil {
			return nil, fmt.Errorf("analyze %s: %w", c.Path, err)
		}
		infos = append(infos, info)
	}

	target, err := format.Reconcile(infos, mode)
	if err != nil {
		return nil, err
	}

	report := &probeReport{Clips: make([]probeClip, 0, len(clips))}
	for i, c := range clips {
		report.Clips = append(report.Clips, probeClip{
			Index:       c.Index,
			Path:        c.Path,
			Width:       c.Width,
			Height:      c.Height,
			Duration:    c.Duration,
			FrameRate:   c.FrameRate,
			HasAudio:    c.HasAudio,
			Strategy:    c.Strategy,
			Category:    infos[i].Category,
			Description: infos[i].Description,
			SocialReady: infos[i].SocialReady,
			NeedsResize: target.NeedsResize(c.Width, c.Height),
		})
	}
	report.Target.Mode = target.Mode
	report.Target.Width = target.Width
	report.Target.Height = target.Height
	report.Target.Category = target.Category
	report.Target.ResizeNeeded = target.ResizeNeeded
	return report, nil
}

func printProbe(w io.Writer, report *probeReport) error {
	headers := []string{"#", "File", "Size", "Format", "Duration", "FPS", "Audio", "Loaded via", "Resize"}
	rows := make([][]string, 0, len(report.Clips))
	for _, c := range report.Clips {
		rows = append(rows, []string{
			strconv.Itoa(c.Index),
			c.Path,
			formatSize(c.Width, c.Height),
			c.Description,
			formatSeconds(c.Duration),
			c.FrameRate,
			yesNo(c.HasAudio),
			string(c.Strategy),
			yesNo(c.NeedsResize),
		})
	}
	aligns := []columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignRight, alignRight}
	if _, err := fmt.Fprintln(w, renderTable(headers, rows, aligns)); err != nil {
		return err
	}

	t := report.Target
	_, err := fmt.Fprintf(w, "target (%s): %s %s, resize %s\n",
		t.Mode, t.Category, formatSize(t.Width, t.Height), yesNo(t.ResizeNeeded))
	return err
}
