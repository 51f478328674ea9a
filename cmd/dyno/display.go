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

var displayCmd = &cobra.Command{
	Use:   "display",
	Short: "Show readings published over MQTT on the SSD1306 panel",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()
		logrus.Info("starting dyno display (MQTT subscriber)")

		panel, release, err := app.OpenPanel(cfg.DisplayI2CBus, cfg.DisplayI2CAddr)
		if err != nil {
			return err
		}
		defer release()

		client, err := app.ConnectMQTT(cfg.MQTTBroker, "", "display")
		if err != nil {
			return err
		}
		defer client.Disconnect(250)

		src, err := app.MQTTReadings(client, cfg.TopicMetrics, cfg.Settings().StopTimeout)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return app.RunDisplay(ctx, panel, src, cfg.PollInterval())
	},
}
