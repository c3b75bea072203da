// Package fake implements a fake Sensor.
package fake

import (
	"context"
	"math"
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/envlog/envlog/components/sensor"
)

// Sensor is a fake Sensor device that returns a slowly drifting indoor climate. It needs no bus,
// so envlog can run on machines without a BME680.
type Sensor struct {
	mu    sync.Mutex
	count int
	clock clock.Clock
}

// NewSensor returns a fake sensor stamping readings with the wall clock.
func NewSensor() *Sensor {
	return NewSensorWithClock(clock.New())
}

// NewSensorWithClock returns a fake sensor stamping readings with clk.
func NewSensorWithClock(clk clock.Clock) *Sensor {
	return &Sensor{clock: clk}
}

// Readings returns the next reading in the sequence.
func (s *Sensor) Readings(ctx context.Context) (sensor.Reading, error) {
	if err := ctx.Err(); err != nil {
		return sensor.Reading{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	phase := float64(s.count) / 10
	s.count++
	return sensor.Reading{
		Time:          s.clock.Now(),
		Temperature:   21 + math.Sin(phase),
		Pressure:      1013.25 + math.Cos(phase),
		Humidity:      45 + 5*math.Sin(phase/2),
		GasResistance: 50000 + 1000*math.Cos(phase),
		GasValid:      s.count > 1,
	}, nil
}

// Close does nothing.
func (s *Sensor) Close() error {
	return nil
}
