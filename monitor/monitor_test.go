package monitor

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/envlog/envlog/components/sensor"
	"github.com/envlog/envlog/data"
	"github.com/envlog/envlog/logging"
	"github.com/envlog/envlog/testutils/inject"
)

var indoor = sensor.Reading{
	Time:          time.Date(2026, 3, 2, 9, 26, 57, 0, time.Local),
	Temperature:   21.5,
	Pressure:      1013.25,
	Humidity:      40,
	GasResistance: 51234,
	GasValid:      true,
}

type recordingPublisher struct {
	mu       sync.Mutex
	readings []sensor.Reading
	err      error
}

func (p *recordingPublisher) Publish(ctx context.Context, r sensor.Reading) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readings = append(p.readings, r)
	return p.err
}

func (p *recordingPublisher) Close() error {
	return nil
}

func constantSensor(r sensor.Reading) *inject.Sensor {
	return &inject.Sensor{
		ReadingsFunc: func(ctx context.Context) (sensor.Reading, error) {
			return r, nil
		},
	}
}

func TestFormatLine(t *testing.T) {
	test.That(t, FormatLine(indoor), test.ShouldEqual, "T: 21.50 degC, P: 1013.25 hPa, H 40.00 %rH , G: 51234 ohms")

	noGas := indoor
	noGas.GasValid = false
	test.That(t, FormatLine(noGas), test.ShouldEqual, "T: 21.50 degC, P: 1013.25 hPa, H 40.00 %rH ")
}

func TestSample(t *testing.T) {
	logger := logging.NewTestLogger(t)
	path := filepath.Join(t.TempDir(), "log.csv")
	csvLog := data.NewCSVLog(path, 0, logger)
	defer csvLog.Close()
	pub := &recordingPublisher{}
	var console bytes.Buffer

	m := New(constantSensor(indoor), Outputs{CSV: csvLog, Publisher: pub, Console: &console}, logger)
	test.That(t, m.Sample(context.Background()), test.ShouldBeNil)

	test.That(t, console.String(), test.ShouldEqual, FormatLine(indoor)+"\n")
	test.That(t, pub.readings, test.ShouldResemble, []sensor.Reading{indoor})
	contents, err := os.ReadFile(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(contents), test.ShouldEqual,
		data.CSVHeader+"\n"+data.FormatRow(indoor.Time, indoor)+"\n")
	test.That(t, m.Stats(), test.ShouldResemble, Stats{Samples: 1})
}

func TestSampleWithoutOutputs(t *testing.T) {
	m := New(constantSensor(indoor), Outputs{}, logging.NewTestLogger(t))
	test.That(t, m.Sample(context.Background()), test.ShouldBeNil)
	test.That(t, m.Stats().Samples, test.ShouldEqual, int64(1))
}

func TestSampleReadFailure(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	pub := &recordingPublisher{}
	var console bytes.Buffer
	s := &inject.Sensor{
		ReadingsFunc: func(ctx context.Context) (sensor.Reading, error) {
			return sensor.Reading{}, errors.New("no new data")
		},
	}

	m := New(s, Outputs{Publisher: pub, Console: &console}, logger)
	err := m.Sample(context.Background())
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldEqual, "no new data")
	test.That(t, console.Len(), test.ShouldEqual, 0)
	test.That(t, pub.readings, test.ShouldBeEmpty)
	test.That(t, m.Stats(), test.ShouldResemble, Stats{Failures: 1})
	test.That(t, logs.FilterMessage("reading failed").Len(), test.ShouldEqual, 1)
}

func TestSamplePublishFailureKeepsConsole(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	pub := &recordingPublisher{err: errors.New("broker gone")}
	var console bytes.Buffer

	m := New(constantSensor(indoor), Outputs{Publisher: pub, Console: &console}, logger)
	test.That(t, m.Sample(context.Background()), test.ShouldBeNil)
	test.That(t, console.String(), test.ShouldContainSubstring, "G: 51234 ohms")
	test.That(t, logs.FilterMessage("publish failed").Len(), test.ShouldEqual, 1)
}

func TestRunLimited(t *testing.T) {
	var console bytes.Buffer
	m := New(constantSensor(indoor), Outputs{Console: &console}, logging.NewTestLogger(t))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	test.That(t, m.Run(ctx, 10*time.Millisecond, 3), test.ShouldBeNil)

	lines := strings.Split(strings.TrimSuffix(console.String(), "\n"), "\n")
	test.That(t, lines, test.ShouldHaveLength, 3)
	test.That(t, m.Stats().Samples, test.ShouldEqual, int64(3))
}

func TestRunStopsWithContext(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	m := New(constantSensor(indoor), Outputs{}, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	test.That(t, m.Run(ctx, time.Hour, 0), test.ShouldBeNil)
	test.That(t, m.Stats().Samples, test.ShouldEqual, int64(1))
	test.That(t, logs.FilterMessage("sampling stopped").Len(), test.ShouldEqual, 1)
}
