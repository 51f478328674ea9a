// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/relabs-tech/dyno_computer/internal/config"
)

// RunDyno reads the roller sensor and serves the readings over HTTP, and
// optionally MQTT and the OLED panel, until ctx is cancelled.
//
// A reader failure is logged and leaves everything else running; the
// readings fall to zero once they go stale.
func RunDyno(ctx context.Context, cfg *config.Config) error {
	pipe := NewPipeline(cfg.Settings())
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := pipe.RunReader(ctx, RollerSource(cfg), cfg.SerialReconnect, cfg.ReconnectMaxInterval()); err != nil {
			logrus.Errorf("reader: stopped: %v", err)
		}
		return nil
	})

	if cfg.MQTTEnabled {
		client, err := ConnectMQTT(cfg.MQTTBroker, cfg.MQTTClientID, "producer")
		if err != nil {
			return err
		}
		defer client.Disconnect(250)

		g.Go(func() error {
			return RunMQTTPublisher(ctx, client, pipe, cfg.TopicMetrics, cfg.PollInterval())
		})
	}

	if cfg.DisplayEnabled {
		panel, release, err := OpenPanel(cfg.DisplayI2CBus, cfg.DisplayI2CAddr)
		if err != nil {
			return fmt.Errorf("display: %w", err)
		}
		defer release()

		g.Go(func() error {
			return RunDisplay(ctx, panel, PollerReadings(pipe), cfg.PollInterval())
		})
	}

	web := NewWebServer(pipe, cfg.WebDir, cfg.PollInterval())
	g.Go(func() error {
		return ServeWeb(ctx, fmt.Sprintf(":%d", cfg.WebServerPort), web)
	})

	return g.Wait()
}
