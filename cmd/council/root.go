package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/polyglot-council/pkg/council"
)

var rootCmd = &cobra.Command{
	Use:   "council",
	Short: "Council consensus engine",
	Long: `Council sends a question to a panel of reasoning models, has them review
one another, and synthesizes a weighted answer with a consensus score.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "config.yaml", "config file")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
}

// newLogger installs a JSON logger writing to w as the default.
func newLogger(cmd *cobra.Command, w io.Writer) (*slog.Logger, error) {
	levelName, _ := cmd.Flags().GetString("log-level")
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(levelName))); err != nil {
		return nil, fmt.Errorf("invalid log level %q", levelName)
	}

	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger, nil
}

// newApp builds the council from the --config file. Logs go to stderr so
// stdout stays parseable for one-shot commands.
func newApp(cmd *cobra.Command, extra ...council.Option) (*council.App, *slog.Logger, error) {
	logger, err := newLogger(cmd, os.Stderr)
	if err != nil {
		return nil, nil, err
	}
	path, _ := cmd.Flags().GetString("config")

	opts := append([]council.Option{
		council.WithFileConfig(path),
		council.WithLogger(logger),
	}, extra...)
	app, err := council.New(opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create council: %w", err)
	}
	return app, logger, nil
}
