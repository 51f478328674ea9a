// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"sync"
	"time"

	"github.com/relabs-tech/dyno_computer/internal/dyno"
)

// Poller is anything that yields the current dashboard reading.
type Poller interface {
	Poll() dyno.Snapshot
}

// Pipeline wires one Reader and one Publisher around a SharedState and keeps
// track of the transport the reader is attached to.
type Pipeline struct {
	State     *dyno.SharedState
	Reader    *dyno.Reader
	Publisher *dyno.Publisher

	now func() time.Time

	mu        sync.RWMutex
	port      string
	readerErr string
}

// NewPipeline builds the reader/publisher pair for settings.
func NewPipeline(settings dyno.Settings) *Pipeline {
	state := dyno.NewSharedState()
	return &Pipeline{
		State:     state,
		Reader:    dyno.NewReader(settings, state),
		Publisher: dyno.NewPublisher(settings, state),
		now:       time.Now,
	}
}

// Poll implements Poller.
func (p *Pipeline) Poll() dyno.Snapshot {
	return p.Publisher.Poll()
}

// Status is the diagnostic view served at /api/status.
type Status struct {
	Port         string           `json:"port"`
	HaveSample   bool             `json:"have_sample"`
	SampleAgeSec float64          `json:"sample_age_s"`
	Lines        dyno.ReaderStats `json:"lines"`
	ReaderError  string           `json:"reader_error,omitempty"`
	Latest       dyno.Snapshot    `json:"latest"`
}

// Status reports the reader state. It does not touch the publisher's filter
// state.
func (p *Pipeline) Status() Status {
	p.mu.RLock()
	st := Status{Port: p.port, ReaderError: p.readerErr}
	p.mu.RUnlock()

	st.Lines = p.Reader.Stats()
	if m, ok := p.State.Load(); ok {
		st.HaveSample = true
		st.SampleAgeSec = p.now().Sub(m.At).Seconds()
		st.Latest = dyno.Snapshot{RPM: m.RPM, Speed: m.SpeedKmh, Torque: m.TorqueNm, Power: m.PowerW}
	}
	return st
}

func (p *Pipeline) setPort(port string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.port = port
}

func (p *Pipeline) setReaderErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		p.readerErr = ""
		return
	}
	p.readerErr = err.Error()
}
