// Package publisher sends readings to an MQTT broker.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/envlog/envlog/components/sensor"
	"github.com/envlog/envlog/logging"
)

// DefaultTopic is the topic readings are published to unless configured otherwise.
const DefaultTopic = "location/measurement/bme680"

const (
	defaultTimeout = 10 * time.Second
	keepAlive      = 60 * time.Second
)

// newClient is swapped out in tests.
var newClient = mqtt.NewClient

// Config describes the broker connection.
type Config struct {
	Address string
	Port    int
	Topic   string
	QoS     byte
	// Timeout bounds connecting and each publish. Zero means ten seconds.
	Timeout time.Duration
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate() error {
	if cfg.Address == "" {
		return errors.New("mqtt broker address is required")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return errors.Errorf("invalid mqtt port %d", cfg.Port)
	}
	if cfg.Topic == "" {
		return errors.New("mqtt topic is required")
	}
	if cfg.QoS > 2 {
		return errors.Errorf("invalid mqtt qos %d, expected 0, 1 or 2", cfg.QoS)
	}
	return nil
}

// Broker returns the broker url.
func (cfg *Config) Broker() string {
	return fmt.Sprintf("tcp://%s:%d", cfg.Address, cfg.Port)
}

func (cfg *Config) timeout() time.Duration {
	if cfg.Timeout <= 0 {
		return defaultTimeout
	}
	return cfg.Timeout
}

// MQTT publishes one JSON document per reading.
type MQTT struct {
	client mqtt.Client
	cfg    Config
	logger logging.Logger
}

// NewMQTT connects to the broker described by cfg.
func NewMQTT(ctx context.Context, cfg Config, logger logging.Logger) (*MQTT, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	routeLibraryLogs(logger)

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker()).
		SetClientID("envlog-" + uuid.NewString()).
		SetConnectTimeout(cfg.timeout()).
		SetKeepAlive(keepAlive).
		SetAutoReconnect(true).
		SetCleanSession(true)
	client := newClient(opts)

	if err := await(ctx, client.Connect(), cfg.timeout()); err != nil {
		return nil, errors.Wrapf(err, "connecting to mqtt broker %s failed", cfg.Broker())
	}
	logger.Infow("connected to mqtt broker", "broker", cfg.Broker(), "topic", cfg.Topic)
	return &MQTT{client: client, cfg: cfg, logger: logger}, nil
}

// Publish sends r to the configured topic.
func (m *MQTT) Publish(ctx context.Context, r sensor.Reading) error {
	body, err := Payload(r)
	if err != nil {
		return err
	}
	if err := await(ctx, m.client.Publish(m.cfg.Topic, m.cfg.QoS, false, body), m.cfg.timeout()); err != nil {
		return errors.Wrapf(err, "publishing to %s failed", m.cfg.Topic)
	}
	m.logger.Debugw("published", "topic", m.cfg.Topic, "bytes", len(body))
	return nil
}

// Close disconnects from the broker, giving in-flight messages a moment to finish.
func (m *MQTT) Close() error {
	m.client.Disconnect(250)
	return nil
}

// await waits for token to complete, for the timeout to pass or for ctx to be done.
func await(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return errors.Errorf("no response within %s", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

type payload struct {
	Temperature     json.Number
	Humidity        json.Number
	Pressure        json.Number
	Quality         json.Number
	TemperatureUnit string
	HumidityUnit    string
	PressureUnit    string
	QualityUnit     string
}

func number(v float64, prec int) json.Number {
	return json.Number(strconv.FormatFloat(v, 'f', prec, 64))
}

// Payload returns the JSON document published for r.
func Payload(r sensor.Reading) ([]byte, error) {
	return json.Marshal(payload{
		Temperature:     number(r.Temperature, 4),
		Humidity:        number(r.Humidity, 4),
		Pressure:        number(r.Pressure, 2),
		Quality:         number(r.GasResistance, 1),
		TemperatureUnit: "°C",
		HumidityUnit:    "%rh",
		PressureUnit:    "hPa",
		QualityUnit:     "Ohm",
	})
}

// routeLibraryLogs sends the client library's own diagnostics to logger.
func routeLibraryLogs(logger logging.Logger) {
	lib := logger.Sublogger("paho")
	mqtt.ERROR = logging.NewPrinter(lib, logging.ERROR)
	mqtt.CRITICAL = logging.NewPrinter(lib, logging.ERROR)
	mqtt.WARN = logging.NewPrinter(lib, logging.WARN)
}
