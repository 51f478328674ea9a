package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/relabs-tech/dyno_computer/internal/dyno"
)

// FormatSnapshot renders a reading as one console line.
func FormatSnapshot(s dyno.Snapshot) string {
	return fmt.Sprintf("[DYNO]  RPM=%7.1f  SPEED=%6.2f km/h  TORQUE=%5.2f Nm  POWER=%6.1f W",
		s.RPM, s.Speed, s.Torque, s.Power)
}

// RunConsoleMQTT prints every reading published on topic to out until ctx is
// cancelled.
func RunConsoleMQTT(ctx context.Context, client mqtt.Client, topic string, out io.Writer) error {
	token := client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var s dyno.Snapshot
		if err := json.Unmarshal(msg.Payload(), &s); err != nil {
			logrus.Warnf("console: payload unmarshal error: %v", err)
			return
		}
		fmt.Fprintln(out, FormatSnapshot(s))
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	logrus.Infof("console: subscribed to %s", topic)

	<-ctx.Done()

	logrus.Info("console: shutting down")
	if t := client.Unsubscribe(topic); t.Wait() && t.Error() != nil {
		return t.Error()
	}
	return nil
}
