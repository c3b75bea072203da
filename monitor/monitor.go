// Package monitor takes samples from a sensor and hands each reading to the configured outputs.
package monitor

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"go.uber.org/atomic"
	"go.uber.org/multierr"

	"github.com/envlog/envlog/components/sensor"
	"github.com/envlog/envlog/data"
	"github.com/envlog/envlog/jobmanager"
	"github.com/envlog/envlog/logging"
)

// A Publisher forwards readings to another system.
type Publisher interface {
	Publish(ctx context.Context, r sensor.Reading) error
	Close() error
}

// Outputs are the destinations of every reading. Nil fields are skipped.
type Outputs struct {
	CSV       *data.CSVLog
	Publisher Publisher
	// Console receives one human readable line per reading.
	Console io.Writer
	// Color highlights console lines.
	Color bool
}

// Stats counts the samples of a Monitor.
type Stats struct {
	Samples  int64
	Failures int64
}

// Monitor ties a sensor to its outputs.
type Monitor struct {
	sensor  sensor.Sensor
	outputs Outputs
	logger  logging.Logger

	valid   *color.Color
	noGas   *color.Color
	samples atomic.Int64
	failed  atomic.Int64
}

// New returns a Monitor reading from s.
func New(s sensor.Sensor, outputs Outputs, logger logging.Logger) *Monitor {
	m := &Monitor{
		sensor:  s,
		outputs: outputs,
		logger:  logger.Sublogger("monitor"),
		valid:   color.New(color.FgGreen),
		noGas:   color.New(color.FgYellow),
	}
	if !outputs.Color {
		m.valid.DisableColor()
		m.noGas.DisableColor()
	}
	return m
}

// Sample takes one reading and writes it to every output. Only a failed read is returned; output
// failures are logged and the remaining outputs still get the reading.
func (m *Monitor) Sample(ctx context.Context) error {
	r, err := m.sensor.Readings(ctx)
	if err != nil {
		m.failed.Inc()
		m.logger.Errorw("reading failed", "error", err, "failures", m.failed.Load())
		return err
	}
	m.samples.Inc()
	m.logger.Debugw("sample taken", r.Fields()...)

	if m.outputs.CSV != nil {
		//nolint:errcheck
		m.outputs.CSV.Write(r)
	}
	if m.outputs.Publisher != nil {
		if err := m.outputs.Publisher.Publish(ctx, r); err != nil {
			m.logger.Warnw("publish failed", "error", err)
		}
	}
	if m.outputs.Console != nil {
		c := m.valid
		if !r.GasValid {
			c = m.noGas
		}
		//nolint:errcheck
		c.Fprintln(m.outputs.Console, FormatLine(r))
	}
	return nil
}

// Run samples right away and then every interval until ctx is done. With a positive samples it
// returns once that many samples were attempted. A done ctx is a clean stop.
func (m *Monitor) Run(ctx context.Context, interval time.Duration, samples int) (err error) {
	jm, err := jobmanager.New(m.logger)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, jm.Shutdown())
		stats := m.Stats()
		m.logger.Infow("sampling stopped", "samples", stats.Samples, "failures", stats.Failures)
	}()

	if err := jm.Every("sample", interval, samples, func() {
		//nolint:errcheck
		m.Sample(ctx)
	}); err != nil {
		return err
	}
	if err := jm.Wait(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// Stats returns the number of successful and failed samples so far.
func (m *Monitor) Stats() Stats {
	return Stats{Samples: m.samples.Load(), Failures: m.failed.Load()}
}

// FormatLine renders a reading for the console:
//
//	T: 21.50 degC, P: 1013.25 hPa, H 40.00 %rH , G: 51234 ohms
func FormatLine(r sensor.Reading) string {
	line := fmt.Sprintf("T: %.2f degC, P: %.2f hPa, H %.2f %%rH ", r.Temperature, r.Pressure, r.Humidity)
	if r.GasValid {
		line += fmt.Sprintf(", G: %.0f ohms", r.GasResistance)
	}
	return line
}
