// Package data contains the on-disk log of sensor readings.
package data

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/envlog/envlog/components/sensor"
	"github.com/envlog/envlog/logging"
)

// CSVHeader is the first line of every log file.
const CSVHeader = "Date, Time, Temperature [°C], Pressure [hPa], Humidity [%rH], AirQuality [Ohms]"

// Lumberjack also rotates on size. A day of readings is far below this.
const maxSizeMB = 1 << 16

// CSVLog appends readings to a comma separated file. When the local date of a reading differs
// from the one before, the file is rotated and a fresh file with a header is started.
type CSVLog struct {
	mu       sync.Mutex
	path     string
	file     *lumberjack.Logger
	day      string
	header   bool
	disabled bool
	logger   logging.Logger
}

// NewCSVLog returns a log writing to path, keeping at most maxBackups rotated files. Zero keeps
// all of them. An empty path returns a log that discards every reading.
func NewCSVLog(path string, maxBackups int, logger logging.Logger) *CSVLog {
	l := &CSVLog{path: path, logger: logger, disabled: path == ""}
	if l.disabled {
		return l
	}
	l.file = &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		LocalTime:  true,
	}
	return l
}

// Path returns the file readings are written to.
func (l *CSVLog) Path() string {
	return l.path
}

// Write appends one row for r. The first failure disables the log and is returned; later calls
// do nothing.
func (l *CSVLog) Write(r sensor.Reading) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.disabled {
		return nil
	}

	stamp := r.Time
	if stamp.IsZero() {
		stamp = time.Now()
	}
	stamp = stamp.Local()
	day := stamp.Format(time.DateOnly)

	switch {
	case l.day == "":
		info, err := os.Stat(l.path)
		l.header = err != nil || info.Size() == 0
	case l.day != day:
		if err := l.file.Rotate(); err != nil {
			return l.fail(errors.Wrapf(err, "failed to rotate %s", l.path))
		}
		l.logger.Infow("started a new csv file", "path", l.path, "day", day)
		l.header = true
	}
	l.day = day

	var sb strings.Builder
	if l.header {
		sb.WriteString(CSVHeader)
		sb.WriteByte('\n')
	}
	sb.WriteString(FormatRow(stamp, r))
	sb.WriteByte('\n')
	if _, err := l.file.Write([]byte(sb.String())); err != nil {
		return l.fail(errors.Wrapf(err, "failed to write %s", l.path))
	}
	l.header = false
	return nil
}

func (l *CSVLog) fail(err error) error {
	l.disabled = true
	l.logger.Errorw("csv logging disabled", "path", l.path, "error", err)
	return err
}

// FormatRow renders a reading the way it is stored, without the line break:
//
//	2026-03-02, 09:26:57, 21.5000, 1013.250000, 40.0000, 51234.00
//
// The gas resistance column is left out when the gas value is not valid.
func FormatRow(stamp time.Time, r sensor.Reading) string {
	fields := []string{
		stamp.Format(time.DateOnly),
		stamp.Format(time.TimeOnly),
		strconv.FormatFloat(r.Temperature, 'f', 4, 64),
		strconv.FormatFloat(r.Pressure, 'f', 6, 64),
		strconv.FormatFloat(r.Humidity, 'f', 4, 64),
	}
	if r.GasValid {
		fields = append(fields, strconv.FormatFloat(r.GasResistance, 'f', 2, 64))
	}
	return strings.Join(fields, ", ")
}

// Close closes the current file.
func (l *CSVLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}
