package app

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/dyno_computer/internal/dyno"
)

// Panel is the part of an OLED driver the readout needs.
type Panel interface {
	Bounds() image.Rectangle
	Draw(r image.Rectangle, src image.Image, sp image.Point) error
}

// addrBus pins every transaction to one address so the driver can talk to a
// panel strapped away from its default 0x3C.
type addrBus struct {
	i2c.Bus
	addr uint16
}

func (b *addrBus) Tx(_ uint16, w, r []byte) error {
	return b.Bus.Tx(b.addr, w, r)
}

// OpenPanel initializes periph and the SSD1306 on busName at addr. The
// returned func releases the bus.
func OpenPanel(busName string, addr uint16) (Panel, func() error, error) {
	if _, err := host.Init(); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize periph: %w", err)
	}

	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open I2C bus: %w", err)
	}

	dev, err := ssd1306.NewI2C(&addrBus{Bus: bus, addr: addr}, &ssd1306.DefaultOpts)
	if err != nil {
		bus.Close()
		return nil, nil, fmt.Errorf("failed to initialize display: %w", err)
	}
	logrus.Infof("display: initialized at 0x%02X", addr)

	if err := dev.Draw(dev.Bounds(), renderSplash(), image.Point{}); err != nil {
		logrus.Warnf("display: error showing splash: %v", err)
	}
	return dev, bus.Close, nil
}

// ReadingSource yields the reading to show and whether one is available.
type ReadingSource func() (dyno.Snapshot, bool)

// PollerReadings shows readings taken straight from an in-process pipeline.
func PollerReadings(p Poller) ReadingSource {
	return func() (dyno.Snapshot, bool) { return p.Poll(), true }
}

// MQTTReadings subscribes to topic and shows the last received reading.
// Readings older than maxAge count as missing.
func MQTTReadings(client mqtt.Client, topic string, maxAge time.Duration) (ReadingSource, error) {
	var (
		mu   sync.RWMutex
		last dyno.Snapshot
		at   time.Time
	)

	token := client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var s dyno.Snapshot
		if err := json.Unmarshal(msg.Payload(), &s); err != nil {
			logrus.Warnf("display: payload unmarshal error: %v", err)
			return
		}
		mu.Lock()
		last = s
		at = time.Now()
		mu.Unlock()
	})
	token.Wait()
	if token.Error() != nil {
		return nil, token.Error()
	}
	logrus.Infof("display: subscribed to %s", topic)

	return func() (dyno.Snapshot, bool) {
		mu.RLock()
		defer mu.RUnlock()
		if at.IsZero() || time.Since(at) > maxAge {
			return dyno.Snapshot{}, false
		}
		return last, true
	}, nil
}

// RunDisplay redraws panel with the current reading every interval until ctx
// is cancelled.
func RunDisplay(ctx context.Context, panel Panel, src ReadingSource, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logrus.Info("display: starting update loop")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		snap, ok := src()
		if err := panel.Draw(panel.Bounds(), renderMetrics(snap, ok), image.Point{}); err != nil {
			logrus.Errorf("display: error updating display: %v", err)
		}
	}
}

func newCanvas() (*image1bit.VerticalLSB, *font.Drawer) {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, 128, 64))
	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	return img, drawer
}

func renderMetrics(s dyno.Snapshot, haveData bool) *image1bit.VerticalLSB {
	img, drawer := newCanvas()

	if !haveData {
		drawer.Dot = fixed.P(0, 26)
		drawer.DrawString("Roller Dyno")
		drawer.Dot = fixed.P(0, 39)
		drawer.DrawString("Waiting...")
		return img
	}

	lines := []string{
		fmt.Sprintf("RPM %8.1f", s.RPM),
		fmt.Sprintf("km/h %7.2f", s.Speed),
		fmt.Sprintf("Nm %9.2f", s.Torque),
		fmt.Sprintf("W %10.1f", s.Power),
	}
	for i, l := range lines {
		drawer.Dot = fixed.P(0, 13*(i+1))
		drawer.DrawString(l)
	}
	return img
}

func renderSplash() *image1bit.VerticalLSB {
	img, drawer := newCanvas()

	drawer.Dot = fixed.P(15, 26)
	drawer.DrawString("Roller Dyno")

	drawer.Dot = fixed.P(10, 43)
	drawer.DrawString("Spin it up")

	return img
}
