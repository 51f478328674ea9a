// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"errors"
	"fmt"
	"io"

	serial "github.com/jacobsa/go-serial/serial"
)

// readTimeoutMs is the inter-character timeout on the roller port. It keeps
// reads short so the reader loop notices shutdown.
const readTimeoutMs = 100

// OpenRoller opens the roller sensor serial port (8N1) with a short read
// timeout. Reads that time out return (0, nil).
func OpenRoller(portName string, baud int) (io.ReadCloser, error) {
	opts := serial.OpenOptions{
		PortName:              portName,
		BaudRate:              uint(baud),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       0,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: readTimeoutMs,
	}

	port, err := serial.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open roller port %s: %w", portName, err)
	}
	return &timeoutPort{port: port}, nil
}

// timeoutPort maps the empty read a timed-out tty returns (0, io.EOF) to
// (0, nil), so callers can tell a quiet line from a closed one.
type timeoutPort struct {
	port io.ReadWriteCloser
}

func (p *timeoutPort) Read(b []byte) (int, error) {
	n, err := p.port.Read(b)
	if n == 0 && errors.Is(err, io.EOF) {
		return 0, nil
	}
	return n, err
}

func (p *timeoutPort) Close() error {
	return p.port.Close()
}
