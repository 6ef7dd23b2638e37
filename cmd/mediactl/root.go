package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/maauso/mindset-media-api/internal/config"
)

// commandContext carries the settings shared by all subcommands.
type commandContext struct {
	verbose    bool
	jsonOutput bool

	cfg *config.Config
}

// ensureConfig loads the environment configuration once.
func (c *commandContext) ensureConfig() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	c.cfg = cfg
	return cfg, nil
}

// logger writes text logs to w: warnings only, or everything with --verbose.
func (c *commandContext) logger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if c.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "mediactl",
		Short:         "Compile and inspect short video clips",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&ctx.verbose, "verbose", "v", false, "Log pipeline progress and debug details to stderr")
	rootCmd.PersistentFlags().BoolVar(&ctx.jsonOutput, "json", false, "Print JSON even when stdout is a terminal")

	rootCmd.AddCommand(newCompileCommand(ctx))
	rootCmd.AddCommand(newProbeCommand(ctx))

	return rootCmd
}
