package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/conda-channel-resource/internal/api/resource"
	"github.com/oshokin/conda-channel-resource/internal/logger"
	"github.com/oshokin/conda-channel-resource/internal/service/materialize"
	"github.com/oshokin/conda-channel-resource/internal/version"
)

var (
	// configPath stores the path to an optional settings YAML file.
	configPath string
	// logLevel overrides source.log_level.
	logLevel string

	// rootCmd represents the in script of the resource.
	rootCmd = &cobra.Command{
		Use:   "in <destination>",
		Short: "Fetch one version of a conda package as a local channel.",
		Long: `Reads an in request from stdin, downloads every artifact of the requested
version into the destination directory, indexes it as a conda channel and
writes version-spec.txt holding "<pkg_name>=<version>".

The response lists the fetched files under the "files" metadata key.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			req, err := resource.DecodeIn(cmd.InOrStdin())
			if err != nil {
				return err
			}

			logger.ApplyLevel(ctx, logLevel, req.Source.LogLevel)

			result, err := materialize.Run(ctx, &materialize.Options{
				ConfigPath: configPath,
				Source:     req.Source,
				Version:    req.Version.Version,
				Dest:       args[0],
			})
			if err != nil {
				return err
			}

			return resource.Encode(cmd.OutOrStdout(), resource.NewResponse(result.Version, result.Files))
		},
	}
)

// Execute runs the in CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		logger.Errorf(context.Background(), "in failed: %v", err)
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to an optional settings file")
	rootCmd.Flags().StringVarP(&logLevel, "log-level", "l", "", "log level: debug, info, warn or error")
}
