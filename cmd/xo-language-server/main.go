package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/xojs/xo-language-server/internal/ls"
)

var (
	logLevel   string
	debounceMS int
)

func main() {
	cmd := &cobra.Command{
		Use:           "xo-language-server",
		Short:         "Language server for the XO linter",
		Version:       ls.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			level, err := parseLogLevel(logLevel)
			if err != nil {
				return err
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: level,
			})))

			server := ls.New()
			server.SetDebounce(time.Duration(debounceMS) * time.Millisecond)
			return server.RunStdio()
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	cmd.Flags().IntVar(&debounceMS, "debounce", 0, "initial lint debounce window in milliseconds (0-350)")

	if err := cmd.Execute(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func parseLogLevel(name string) (slog.Level, error) {
	switch name {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", name)
}
