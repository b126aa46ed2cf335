package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	app "github.com/okian/callscore/internal/app"
	"github.com/okian/callscore/internal/config"
	"github.com/okian/callscore/pkg/logger"
	"github.com/okian/callscore/pkg/metrics"
)

// cli carries what every subcommand needs after the root pre-run.
type cli struct {
	cfg *config.Config
	log logger.Logger
}

func (rt *cli) service() *app.Service {
	return app.New(
		app.WithConfig(rt.cfg),
		app.WithLogger(rt.log.Named("service")),
	)
}

func newRootCmd() *cobra.Command {
	rt := &cli{}
	var configPath string

	root := &cobra.Command{
		Use:           "callscore",
		Short:         "Score analyst recommendations against the market",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configPath != "" {
				if err := os.Setenv("CALLSCORE_CONFIG", configPath); err != nil {
					return err
				}
			}
			cfg, err := config.Load(cmd.Context())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := logger.Init(logger.WithFormat(cfg.LogFormat), logger.WithOutput(cmd.ErrOrStderr())); err != nil {
				return fmt.Errorf("init logging: %w", err)
			}
			if err := logger.SetLevelString(cfg.LogLevel); err != nil {
				logger.Get().Warn(cmd.Context(), "invalid log_level; falling back to info",
					logger.String("log_level", cfg.LogLevel), logger.Error(err))
				_ = logger.SetLevelString("info")
			}
			metrics.SetEnabled(cfg.Metrics.Enabled)
			rt.cfg = cfg
			rt.log = logger.Get()
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (overrides CALLSCORE_CONFIG)")

	root.AddCommand(serveCmd(rt))
	root.AddCommand(evaluateCmd(rt))
	root.AddCommand(consensusCmd(rt))
	root.AddCommand(analystsCmd(rt))
	return root
}
