package config

import (
	"os"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/pkg/errors"
	"github.com/zclconf/go-cty/cty"
)

// fileConfig is the layout of an HCL settings file. Every attribute is optional; only the ones
// present replace the current settings.
//
//	device      = "/dev/i2c-1"
//	i2c_address = 118
//	interval    = 30
//	csv_file    = "garage.csv"
//
//	mqtt {
//	  address = env.MQTT_BROKER
//	  topic   = "garage/measurement/bme680"
//	}
//
//	heater {
//	  temperature = 300
//	  duration    = 100
//	}
type fileConfig struct {
	Device             *string  `hcl:"device,optional"`
	BusDriver          *string  `hcl:"bus_driver,optional"`
	I2CAddr            *int     `hcl:"i2c_address,optional"`
	Interval           *int     `hcl:"interval,optional"`
	Samples            *int     `hcl:"samples,optional"`
	Verbose            *int     `hcl:"verbose,optional"`
	CSVFile            *string  `hcl:"csv_file,optional"`
	CSVBackups         *int     `hcl:"csv_backups,optional"`
	LogFile            *string  `hcl:"log_file,optional"`
	LogMaxSize         *string  `hcl:"log_max_size,optional"`
	AmbientTemperature *float32 `hcl:"ambient_temperature,optional"`
	TemperatureOffset  *float64 `hcl:"temperature_offset,optional"`

	MQTT   *mqttBlock   `hcl:"mqtt,block"`
	Heater *heaterBlock `hcl:"heater,block"`
}

type mqttBlock struct {
	Address *string `hcl:"address,optional"`
	Port    *int    `hcl:"port,optional"`
	Topic   *string `hcl:"topic,optional"`
	QoS     *int    `hcl:"qos,optional"`
}

type heaterBlock struct {
	Temperature *int `hcl:"temperature,optional"`
	Duration    *int `hcl:"duration,optional"`
}

// LoadFile reads the HCL file at path and applies the attributes it sets to cfg. Expressions can
// read the process environment through the env object, e.g. env.HOME.
func LoadFile(path string, cfg *Config) error {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return errors.Errorf("failed to parse HCL file %s: %s", path, diags.Error())
	}

	var fc fileConfig
	diags = gohcl.DecodeBody(file.Body, evalContext(), &fc)
	if diags.HasErrors() {
		return errors.Errorf("failed to decode HCL file %s: %s", path, diags.Error())
	}
	fc.apply(cfg)
	return nil
}

func evalContext() *hcl.EvalContext {
	env := map[string]cty.Value{}
	for _, e := range os.Environ() {
		if name, value, ok := strings.Cut(e, "="); ok && name != "" {
			env[name] = cty.StringVal(value)
		}
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{"env": cty.ObjectVal(env)},
	}
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func (fc *fileConfig) apply(cfg *Config) {
	set(&cfg.Device, fc.Device)
	set(&cfg.BusDriver, fc.BusDriver)
	set(&cfg.I2CAddr, fc.I2CAddr)
	set(&cfg.IntervalSeconds, fc.Interval)
	set(&cfg.Samples, fc.Samples)
	set(&cfg.Verbose, fc.Verbose)
	set(&cfg.CSVBackups, fc.CSVBackups)
	set(&cfg.LogFile, fc.LogFile)
	set(&cfg.LogMaxSize, fc.LogMaxSize)
	set(&cfg.AmbientTemperature, fc.AmbientTemperature)
	set(&cfg.TemperatureOffset, fc.TemperatureOffset)
	if fc.CSVFile != nil {
		cfg.SetCSVFile(*fc.CSVFile)
	}
	if fc.MQTT != nil {
		set(&cfg.MQTTAddress, fc.MQTT.Address)
		set(&cfg.MQTTPort, fc.MQTT.Port)
		set(&cfg.MQTTTopic, fc.MQTT.Topic)
		set(&cfg.MQTTQoS, fc.MQTT.QoS)
	}
	if fc.Heater != nil {
		set(&cfg.HeaterTemperature, fc.Heater.Temperature)
		set(&cfg.HeaterDuration, fc.Heater.Duration)
	}
}
