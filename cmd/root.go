// Package cmd is the mockyard command line.
package cmd

import (
	"context"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"mockyard/config"
	"mockyard/logging"
)

type rootOptions struct {
	configPath string
	logLevel   string
	cfg        config.Config
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd().ExecuteContext(context.Background()); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "mockyard",
		Short:         "Build and run SOAP mock services from WSDL uploads",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(opts.configPath)
			if err != nil {
				return err
			}
			if opts.logLevel != "" {
				cfg.Log.Level = opts.logLevel
			}
			if err := logging.Configure(cfg.Log.Level, cfg.Log.Format); err != nil {
				return err
			}
			opts.cfg = cfg
			cmd.SetContext(log.Logger.WithContext(cmd.Context()))
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", os.Getenv("MOCKYARD_CONFIG"), "Path to a YAML config file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override the configured log level")

	cmd.AddCommand(serveCmd(opts))
	cmd.AddCommand(controlCmds(opts)...)
	cmd.AddCommand(statusCmd(opts))
	cmd.AddCommand(runtimeCmd(opts))
	return cmd
}
