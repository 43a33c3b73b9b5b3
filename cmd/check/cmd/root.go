package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/conda-channel-resource/internal/api/resource"
	"github.com/oshokin/conda-channel-resource/internal/logger"
	"github.com/oshokin/conda-channel-resource/internal/service/discover"
	"github.com/oshokin/conda-channel-resource/internal/version"
)

var (
	// configPath stores the path to an optional settings YAML file.
	configPath string
	// logLevel overrides source.log_level.
	logLevel string

	// rootCmd represents the check script of the resource.
	rootCmd = &cobra.Command{
		Use:   "check",
		Short: "List new versions of a conda package.",
		Long: `Reads a check request from stdin and prints the versions of source.pkg_name
found in the channel, oldest first, starting at the version from the request.

Versions listed in source.matched are skipped, and source.regex keeps only the
versions it matches from the first character. Logs are written to stderr.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			req, err := resource.DecodeCheck(cmd.InOrStdin())
			if err != nil {
				return err
			}

			logger.ApplyLevel(ctx, logLevel, req.Source.LogLevel)

			options := &discover.Options{
				ConfigPath: configPath,
				Source:     req.Source,
			}

			// The first check of a pipeline has no version.
			if req.Version != nil {
				options.Baseline = req.Version.Version
			}

			versions, err := discover.Run(ctx, options)
			if err != nil {
				return err
			}

			return resource.Encode(cmd.OutOrStdout(), resource.CheckResponse(versions))
		},
	}
)

// Execute runs the check CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		logger.Errorf(context.Background(), "check failed: %v", err)
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to an optional settings file")
	rootCmd.Flags().StringVarP(&logLevel, "log-level", "l", "", "log level: debug, info, warn or error")
}
