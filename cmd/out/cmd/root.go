package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/conda-channel-resource/internal/api/resource"
	"github.com/oshokin/conda-channel-resource/internal/logger"
	"github.com/oshokin/conda-channel-resource/internal/service/publish"
	"github.com/oshokin/conda-channel-resource/internal/version"
)

var (
	// configPath stores the path to an optional settings YAML file.
	configPath string
	// logLevel overrides source.log_level.
	logLevel string

	// rootCmd represents the out script of the resource.
	rootCmd = &cobra.Command{
		Use:   "out <build-root>",
		Short: "Publish a locally built conda package version.",
		Long: `Reads an out request from stdin and uploads the single version of
source.pkg_name found in <build-root>/<params.from> to the channel.

When the channel already has artifacts for that version nothing is uploaded
and the "files" metadata is empty, so repeated puts are safe.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			req, err := resource.DecodeOut(cmd.InOrStdin())
			if err != nil {
				return err
			}

			logger.ApplyLevel(ctx, logLevel, req.Source.LogLevel)

			result, err := publish.Run(ctx, &publish.Options{
				ConfigPath: configPath,
				Source:     req.Source,
				BaseDir:    args[0],
				From:       req.Params.From,
			})
			if err != nil {
				return err
			}

			return resource.Encode(cmd.OutOrStdout(), resource.NewResponse(result.Version, result.Files))
		},
	}
)

// Execute runs the out CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		logger.Errorf(context.Background(), "out failed: %v", err)
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to an optional settings file")
	rootCmd.Flags().StringVarP(&logLevel, "log-level", "l", "", "log level: debug, info, warn or error")
}
