// Package cli holds the dossier command tree.
package cli

import (
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	LogLevel  string
	LogFormat string // "json" | "text"
}

// ValidLogFormats defines the allowed log formats.
var ValidLogFormats = []string{"json", "text"} //nolint:gochecknoglobals // canonical enum list

// NewRootCommand creates the root command for the dossier CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "dossier",
		Short: "Dossier - intelligence report store",
		Long: `Stores intelligence reports and their attachments across a remote
document store, a remote blob store and a device-local overflow store,
and serves a live, filterable activity feed.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if !slices.Contains(ValidLogFormats, opts.LogFormat) {
				return fmt.Errorf("invalid log format %q: must be one of %v", opts.LogFormat, ValidLogFormats)
			}
			setupLogging(cmd.ErrOrStderr(), opts)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", envOr("DOSSIER_LOG_LEVEL", "info"), "log level (trace|debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", envOr("DOSSIER_LOG_FORMAT", "json"), "log format (json|text)")

	cmd.AddCommand(NewServeCommand())
	cmd.AddCommand(NewTokenCommand())
	cmd.AddCommand(NewSweepCommand())

	return cmd
}

// setupLogging configures the global zerolog logger. An unknown level
// falls back to info.
func setupLogging(w io.Writer, opts *RootOptions) {
	level, err := zerolog.ParseLevel(opts.LogLevel)
	if err != nil || opts.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if opts.LogFormat == "text" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: w}).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(w).With().Timestamp().Logger()
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
