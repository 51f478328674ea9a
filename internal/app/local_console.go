// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

// RunLocalConsole runs the reader in-process and prints a reading to out
// every interval, for bench checks without a broker.
func RunLocalConsole(ctx context.Context, pipe *Pipeline, open SourceOpener, out io.Writer, interval time.Duration) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	readerDone := make(chan error, 1)
	go func() { readerDone <- pipe.RunReader(ctx, open, false, 0) }()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return <-readerDone
		case err := <-readerDone:
			if err != nil {
				return err
			}
			logrus.Info("console: roller stream ended")
			return nil
		case <-ticker.C:
			fmt.Fprintln(out, FormatSnapshot(pipe.Poll()))
		}
	}
}
