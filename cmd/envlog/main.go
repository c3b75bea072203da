// Package main is the envlog daemon. It samples a BME680 at a fixed interval and writes every
// reading to a daily csv file, the console and optionally an MQTT broker.
package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"go.uber.org/multierr"

	"github.com/envlog/envlog/argeval"
	"github.com/envlog/envlog/components/board/buses"
	"github.com/envlog/envlog/components/sensor"
	"github.com/envlog/envlog/components/sensor/bme680"
	"github.com/envlog/envlog/components/sensor/fake"
	"github.com/envlog/envlog/config"
	"github.com/envlog/envlog/data"
	"github.com/envlog/envlog/logging"
	"github.com/envlog/envlog/monitor"
	"github.com/envlog/envlog/publisher"
)

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

const intro = `envlog samples a BME680 and logs temperature, pressure, humidity and gas resistance.

usage: envlog [options]`

var logger = logging.NewLogger("envlog")

// Swapped out in tests.
var (
	openBus      = buses.Open
	newPublisher = func(ctx context.Context, cfg publisher.Config, logger logging.Logger) (monitor.Publisher, error) {
		pub, err := publisher.NewMQTT(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return pub, nil
	}
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := mainWithArgs(ctx, os.Args[1:], os.Stdout, logger)
	stop()
	os.Exit(code)
}

func mainWithArgs(ctx context.Context, args []string, out io.Writer, logger logging.Logger) int {
	cfg := config.Default()
	parser, err := newParser(cfg, logger)
	if err != nil {
		logger.Errorw("invalid option table", "error", err)
		return exitFailure
	}

	status, _ := parser.Parse(args, out)
	switch status {
	case argeval.StatusHelp:
		return exitOK
	case argeval.StatusFailure:
		return exitUsage
	case argeval.StatusContinue:
	}

	if err := cfg.Validate(); err != nil {
		logger.Errorw("invalid configuration", "error", err)
		return exitUsage
	}
	if err := run(ctx, cfg, out, logger); err != nil {
		logger.Error(err)
		return exitFailure
	}
	return exitOK
}

// newParser registers the command line options of envlog, writing straight into cfg.
func newParser(cfg *config.Config, logger logging.Logger) (*argeval.Parser, error) {
	opts := []argeval.Option{
		{Short: "h", Long: "help", Help: "shows this screen"},
		{
			Short: "c", Long: "config", Arity: 1,
			Help: "reads settings from an HCL file, options after it override the file",
			Target: argeval.Func(func(values []string) int {
				if err := config.LoadFile(values[0], cfg); err != nil {
					logger.Errorw("failed to load config file", "path", values[0], "error", err)
					return 1
				}
				return 0
			}),
		},
		{Short: "d", Long: "device", Arity: 1, Target: argeval.String(&cfg.Device), Help: "i2c bus of the sensor (default: {})"},
		{Short: "b", Long: "bus-driver", Arity: 1, Target: argeval.String(&cfg.BusDriver), Help: "i2c driver: periph, d2r2 or fake (default: {})"},
		{Short: "x", Long: "i2c-address", Arity: 1, Target: argeval.Int(&cfg.I2CAddr), Help: "i2c address of the sensor, 0x prefix allowed (default: {})"},
		{Short: "i", Long: "interval", Arity: 1, Target: argeval.Int(&cfg.IntervalSeconds), Help: "seconds between two samples (default: {})"},
		{Short: "s", Long: "single", Occurrences: &cfg.Samples, Help: "take one sample and exit, repeat for more samples"},
		{
			Short: "o", Long: "csvFile", Arity: 1,
			Help: "csv file for the readings, a new file is started every day (default: " + cfg.CSVFile + ")",
			Target: argeval.Func(func(values []string) int {
				cfg.SetCSVFile(values[0])
				return 0
			}),
		},
		{Long: "csv-backups", Arity: 1, Target: argeval.Int(&cfg.CSVBackups), Help: "number of previous csv files to keep, 0 keeps all (default: {})"},
		{Short: "a", Long: "address", Arity: 1, Target: argeval.String(&cfg.MQTTAddress), Help: "mqtt broker, publishing is enabled when set"},
		{Short: "p", Long: "port", Arity: 1, Target: argeval.Int(&cfg.MQTTPort), Help: "mqtt broker port (default: {})"},
		{Short: "t", Long: "topic", Arity: 1, Target: argeval.String(&cfg.MQTTTopic), Help: "mqtt topic (default: {})"},
		{Short: "q", Long: "qos", Arity: 1, Target: argeval.Int(&cfg.MQTTQoS), Help: "mqtt quality of service (default: {})"},
		{Long: "heater-temp", Arity: 1, Target: argeval.Int(&cfg.HeaterTemperature), Help: "gas heater target in degC (default: {})"},
		{Long: "heater-duration", Arity: 1, Target: argeval.Int(&cfg.HeaterDuration), Help: "gas heater duration in ms (default: {})"},
		{Long: "ambient-temp", Arity: 1, Target: argeval.Float(&cfg.AmbientTemperature), Help: "ambient temperature used for the heater in degC (default: {})"},
		{Long: "temp-offset", Arity: 1, Target: argeval.Double(&cfg.TemperatureOffset), Help: "added to every temperature in degC (default: {})"},
		{Short: "l", Long: "log-file", Arity: 1, Target: argeval.String(&cfg.LogFile), Help: "also write the daemon log to this file"},
		{Long: "log-max-size", Arity: 1, Target: argeval.String(&cfg.LogMaxSize), Help: "rotate the daemon log at this size (default: {})"},
		{Short: "v", Long: "verbose", Occurrences: &cfg.Verbose, Help: "debug output, twice traces the i2c bus"},
	}

	p := argeval.New()
	p.SetIntroText(intro)
	p.AbortOnCallbackFailure()
	if err := p.RegisterOptions(opts, &opts[0]); err != nil {
		return nil, err
	}
	return p, nil
}

func run(ctx context.Context, cfg *config.Config, out io.Writer, logger logging.Logger) (err error) {
	if cfg.Verbose > 0 {
		logger.SetLevel(logging.DEBUG)
	}
	if cfg.LogFile != "" {
		maxSize, sizeErr := cfg.LogMaxSizeMB()
		if sizeErr != nil {
			return sizeErr
		}
		fileAppender := logging.NewFileAppender(logging.FileConfig{
			Filename:   cfg.LogFile,
			MaxSizeMB:  maxSize,
			MaxBackups: 3,
			MaxAgeDays: 28,
		})
		logger.AddAppender(fileAppender)
		defer multierr.AppendInvoke(&err, multierr.Close(fileAppender))
	}

	s, closeSensor, err := openSensor(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer multierr.AppendInvoke(&err, multierr.Invoke(closeSensor))

	csvLog := data.NewCSVLog(cfg.CSVFile, cfg.CSVBackups, logger.Sublogger("csv"))
	defer multierr.AppendInvoke(&err, multierr.Close(csvLog))

	outputs := monitor.Outputs{
		CSV:     csvLog,
		Console: out,
		Color:   out == os.Stdout && !color.NoColor,
	}
	if cfg.MQTTEnabled() {
		pub, pubErr := newPublisher(ctx, cfg.Publisher(), logger.Sublogger("mqtt"))
		if pubErr != nil {
			logger.Warnw("mqtt publishing disabled", "error", pubErr)
		} else {
			outputs.Publisher = pub
			defer multierr.AppendInvoke(&err, multierr.Close(pub))
		}
	}

	logger.Infow("sampling",
		"interval", cfg.Interval(),
		"samples", cfg.Samples,
		"csv_file", cfg.CSVFile,
		"mqtt", cfg.MQTTEnabled())
	return monitor.New(s, outputs, logger).Run(ctx, cfg.Interval(), cfg.Samples)
}

// openSensor returns the configured sensor and a function releasing it together with its bus.
func openSensor(ctx context.Context, cfg *config.Config, logger logging.Logger) (sensor.Sensor, func() error, error) {
	if cfg.BusDriver == config.BusDriverFake {
		logger.Info("using a simulated sensor")
		s := fake.NewSensor()
		return s, s.Close, nil
	}

	bus, err := openBus(cfg.BusDriver, cfg.Device)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Verbose > 1 {
		bus = buses.NewTracedI2C(bus, logger.Sublogger("i2c"))
	}
	dev, err := bme680.New(ctx, bus, cfg.BME680(), logger.Sublogger("bme680"))
	if err != nil {
		return nil, nil, multierr.Combine(err, bus.Close())
	}
	logger.Infof("Measurement Periode will be %dms", dev.ProfileDuration().Milliseconds())
	return dev, func() error {
		return multierr.Combine(dev.Close(), bus.Close())
	}, nil
}
