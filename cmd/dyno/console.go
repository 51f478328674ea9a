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

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Print readings published over MQTT",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if local, _ := cmd.Flags().GetBool("local"); local {
			logrus.Info("starting dyno console (local reader)")
			pipe := app.NewPipeline(cfg.Settings())
			return app.RunLocalConsole(ctx, pipe, app.RollerSource(cfg), os.Stdout, cfg.PollInterval())
		}

		logrus.Info("starting dyno console (MQTT subscriber)")
		client, err := app.ConnectMQTT(cfg.MQTTBroker, "", "console")
		if err != nil {
			return err
		}
		defer client.Disconnect(250)

		return app.RunConsoleMQTT(ctx, client, cfg.TopicMetrics, os.Stdout)
	},
}

func init() {
	consoleCmd.Flags().Bool("local", false, "read the roller in-process instead of subscribing over MQTT")
}
