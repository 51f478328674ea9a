package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ConnectMQTT connects to broker. An empty clientID gets a generated
// "dyno-<role>-<uuid>" identifier so several tools can share a broker.
func ConnectMQTT(broker, clientID, role string) (mqtt.Client, error) {
	if clientID == "" {
		clientID = fmt.Sprintf("dyno-%s-%s", role, uuid.NewString()[:8])
	}

	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(5 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", broker, token.Error())
	}
	logrus.Infof("%s: connected to MQTT broker at %s as %s", role, broker, clientID)
	return client, nil
}

// RunMQTTPublisher polls src every interval and publishes the reading as
// retained JSON on topic until ctx is cancelled. Publish failures are logged
// and the loop keeps going.
func RunMQTTPublisher(ctx context.Context, client mqtt.Client, src Poller, topic string, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		payload, err := json.Marshal(src.Poll())
		if err != nil {
			logrus.Errorf("mqtt: json marshal error: %v", err)
			continue
		}

		token := client.Publish(topic, 0, true, payload)
		if !token.WaitTimeout(interval) {
			logrus.Warnf("mqtt: publish to %s timed out", topic)
			continue
		}
		if token.Error() != nil {
			logrus.Errorf("mqtt: publish error (%s): %v", topic, token.Error())
		}
	}
}
