// Package config holds the runtime settings of envlog and loads them from HCL files.
package config

import (
	"strings"
	"time"

	units "github.com/docker/go-units"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"github.com/envlog/envlog/components/board/buses"
	"github.com/envlog/envlog/components/sensor/bme680"
	"github.com/envlog/envlog/publisher"
)

// Defaults that are not owned by another package.
const (
	DefaultDevice   = "/dev/i2c-1"
	DefaultInterval = 10
	DefaultCSVFile  = "log.csv"
	DefaultMQTTPort = 1883
	DefaultLogSize  = "10MB"
)

// BusDriverFake selects a simulated sensor that needs no bus.
const BusDriverFake = "fake"

// Config describes every setting of a run. Integer and string fields are written to directly by
// the command line evaluator.
type Config struct {
	Device    string
	BusDriver string
	I2CAddr   int

	// IntervalSeconds is the time between two samples.
	IntervalSeconds int
	// Samples is the number of samples to take before exiting. Zero runs until stopped.
	Samples int
	// Verbose raises the log level to debug at 1 and traces all bus traffic at 2.
	Verbose int

	// CSVFile is the full name of the readings log, empty when disabled.
	CSVFile    string
	CSVBase    string
	CSVExt     string
	CSVBackups int

	// LogFile, if set, receives a copy of the daemon's own log.
	LogFile string
	// LogMaxSize is the size at which LogFile is rotated, e.g. "10MB".
	LogMaxSize string

	// MQTTAddress enables publishing when set.
	MQTTAddress string
	MQTTPort    int
	MQTTTopic   string
	MQTTQoS     int

	HeaterTemperature  int
	HeaterDuration     int
	AmbientTemperature float32
	TemperatureOffset  float64
}

// Default returns the settings used when nothing else is given.
func Default() *Config {
	sensorDefaults := bme680.DefaultConfig()
	return &Config{
		Device:             DefaultDevice,
		BusDriver:          buses.DriverPeriph,
		I2CAddr:            bme680.DefaultI2CAddr,
		IntervalSeconds:    DefaultInterval,
		CSVFile:            DefaultCSVFile,
		CSVBase:            "log",
		CSVExt:             "csv",
		LogMaxSize:         DefaultLogSize,
		MQTTPort:           DefaultMQTTPort,
		MQTTTopic:          publisher.DefaultTopic,
		HeaterTemperature:  sensorDefaults.HeaterTemperature,
		HeaterDuration:     sensorDefaults.HeaterDuration,
		AmbientTemperature: sensorDefaults.AmbientTemperature,
	}
}

// SetCSVFile sets the readings log. A name without an extension keeps the current extension,
// so "data" becomes "data.csv". An empty name disables the log.
func (c *Config) SetCSVFile(name string) {
	if name == "" {
		c.CSVFile, c.CSVBase = "", ""
		return
	}
	dot := strings.LastIndexByte(name, '.')
	if dot < 0 {
		c.CSVBase = name
		c.CSVFile = name + "." + c.CSVExt
		return
	}
	c.CSVBase = name[:dot]
	c.CSVExt = name[dot+1:]
	c.CSVFile = name
}

// Interval returns the time between two samples.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// LogMaxSizeMB returns LogMaxSize in megabytes, at least one.
func (c *Config) LogMaxSizeMB() (int, error) {
	size, err := units.FromHumanSize(c.LogMaxSize)
	if err != nil {
		return 0, errors.Wrap(err, "invalid log size")
	}
	if size < units.MB {
		return 1, nil
	}
	return int(size / units.MB), nil
}

// MQTTEnabled reports whether readings are published.
func (c *Config) MQTTEnabled() bool {
	return c.MQTTAddress != ""
}

// Validate ensures all parts of the config are valid. An interval below one second is raised to
// one second.
func (c *Config) Validate() error {
	if c.IntervalSeconds < 1 {
		c.IntervalSeconds = 1
	}

	var errs error
	if c.Samples < 0 {
		errs = multierr.Append(errs, goutils.NewConfigValidationError("single", errors.Errorf("negative sample count %d", c.Samples)))
	}
	switch c.BusDriver {
	case BusDriverFake:
	case buses.DriverPeriph, buses.DriverD2R2:
		if c.Device == "" {
			errs = multierr.Append(errs, goutils.NewConfigValidationFieldRequiredError("i2c", "device"))
		}
		if c.I2CAddr < 0x03 || c.I2CAddr > 0x77 {
			errs = multierr.Append(errs, goutils.NewConfigValidationError("i2c", errors.Errorf("address %#x out of range", c.I2CAddr)))
		}
	default:
		errs = multierr.Append(errs, goutils.NewConfigValidationError("i2c", errors.Errorf("unknown bus driver %q", c.BusDriver)))
	}
	if c.CSVBackups < 0 {
		errs = multierr.Append(errs, goutils.NewConfigValidationError("csv", errors.Errorf("negative backup count %d", c.CSVBackups)))
	}
	if c.LogFile != "" {
		if _, err := c.LogMaxSizeMB(); err != nil {
			errs = multierr.Append(errs, goutils.NewConfigValidationError("log", err))
		}
	}
	if c.MQTTEnabled() {
		if c.MQTTQoS < 0 || c.MQTTQoS > 2 {
			errs = multierr.Append(errs, goutils.NewConfigValidationError("mqtt", errors.Errorf("invalid qos %d", c.MQTTQoS)))
		} else {
			pub := c.Publisher()
			if err := pub.Validate(); err != nil {
				errs = multierr.Append(errs, goutils.NewConfigValidationError("mqtt", err))
			}
		}
	}
	sensorCfg := c.BME680()
	if err := sensorCfg.Validate(); err != nil {
		errs = multierr.Append(errs, goutils.NewConfigValidationError("sensor", err))
	}
	return errs
}

// BME680 returns the sensor settings.
func (c *Config) BME680() bme680.Config {
	cfg := bme680.DefaultConfig()
	cfg.Address = byte(c.I2CAddr)
	cfg.HeaterTemperature = c.HeaterTemperature
	cfg.HeaterDuration = c.HeaterDuration
	cfg.AmbientTemperature = c.AmbientTemperature
	cfg.TemperatureOffset = c.TemperatureOffset
	return cfg
}

// Publisher returns the broker settings.
func (c *Config) Publisher() publisher.Config {
	return publisher.Config{
		Address: c.MQTTAddress,
		Port:    c.MQTTPort,
		Topic:   c.MQTTTopic,
		QoS:     byte(c.MQTTQoS),
	}
}
