package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/relabs-tech/dyno_computer/internal/config"
	"github.com/relabs-tech/dyno_computer/internal/dyno"
	"github.com/relabs-tech/dyno_computer/internal/sensors"
)

// mockInterval matches the ~20 Hz line rate of the roller firmware.
const mockInterval = 50 * time.Millisecond

var errSourceClosed = errors.New("roller sensor stream ended")

// SourceOpener opens the byte stream the reader consumes and names it.
type SourceOpener func() (io.ReadCloser, string, error)

// RollerSource returns the opener selected by cfg: the mock roller, a fixed
// serial port, or an auto-detected one.
func RollerSource(cfg *config.Config) SourceOpener {
	return func() (io.ReadCloser, string, error) {
		if cfg.MockRoller {
			return sensors.NewMockRoller(mockInterval), "mock", nil
		}

		port := cfg.SerialPort
		if port == "" {
			found, candidates, err := sensors.FindRollerPort(cfg.PortKeywords, cfg.PortVIDs)
			if err != nil {
				if errors.Is(err, dyno.ErrNoSource) {
					logrus.Errorf("reader: roller port not found. Available ports:")
					for _, c := range candidates {
						logrus.Errorf("  - %s", c)
					}
				}
				return nil, "", err
			}
			port = found
		}

		logrus.Infof("reader: opening serial port %s@%d", port, cfg.SerialBaud)
		src, err := sensors.OpenRoller(port, cfg.SerialBaud)
		if err != nil {
			return nil, "", err
		}
		return src, port, nil
	}
}

// RunReader feeds the pipeline from open until ctx is done. Without
// reconnect, a failure to open or read ends the reader for good and the
// dashboard falls back to zeros once the data goes stale. With reconnect,
// the open is retried with exponential backoff capped at maxInterval.
func (p *Pipeline) RunReader(ctx context.Context, open SourceOpener, reconnect bool, maxInterval time.Duration) error {
	if !reconnect {
		err := p.readOnce(ctx, open)
		if err != nil && !errors.Is(err, errSourceClosed) {
			p.setReaderErr(err)
			return err
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = maxInterval
	b.MaxElapsedTime = 0

	op := func() error {
		err := p.readOnce(ctx, open)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if err == nil {
			return errSourceClosed
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		p.setReaderErr(err)
		logrus.Warnf("reader: %v, retrying in %s", err, next.Round(time.Millisecond))
	}

	err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// readOnce opens the source and runs the reader over it. It returns nil when
// ctx was cancelled and errSourceClosed when the stream hit EOF.
func (p *Pipeline) readOnce(ctx context.Context, open SourceOpener) error {
	src, name, err := open()
	if err != nil {
		return fmt.Errorf("open roller source: %w", err)
	}
	defer src.Close()

	p.setPort(name)
	p.setReaderErr(nil)
	logrus.WithField("port", name).Info("reader: streaming roller samples")

	// Unblock a pending read on shutdown.
	stop := context.AfterFunc(ctx, func() { src.Close() })
	defer stop()

	if err := p.Reader.Run(ctx, src); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return nil
	}
	return errSourceClosed
}
