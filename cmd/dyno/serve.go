package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/relabs-tech/dyno_computer/internal/app"
	"github.com/relabs-tech/dyno_computer/internal/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Read the roller sensor and serve the dashboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()
		if mock, _ := cmd.Flags().GetBool("mock"); mock {
			cfg.MockRoller = true
		}

		logrus.Info("starting dyno computer")
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return app.RunDyno(ctx, cfg)
	},
}

func init() {
	serveCmd.Flags().Bool("mock", false, "use the simulated roller instead of a serial port")
}
