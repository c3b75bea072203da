// Package bme680 implements a Bosch BME680 sensor for temperature, pressure, humidity and gas
// resistance. The sensor is driven in forced mode: every reading triggers one measurement cycle
// with gas heater profile 0.
package bme680

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"github.com/envlog/envlog/components/board/buses"
	"github.com/envlog/envlog/components/sensor"
	"github.com/envlog/envlog/logging"
)

const (
	// DefaultI2CAddr is the address with SDO pulled to ground.
	DefaultI2CAddr = 0x76
	chipID         = 0x61

	// Addresses of bme680 registers.
	regResHeatVal   = 0x00
	regResHeatRange = 0x02
	regRangeSwErr   = 0x04
	regFieldData    = 0x1D
	regResHeat0     = 0x5A
	regGasWait0     = 0x64
	regCtrlGas0     = 0x70
	regCtrlGas1     = 0x71
	regCtrlHum      = 0x72
	regCtrlMeas     = 0x74
	regConfig       = 0x75
	regCoeff1       = 0x89
	regChipID       = 0xD0
	regSoftReset    = 0xE0
	regCoeff2       = 0xE1

	coeff1Len    = 25
	coeff2Len    = 16
	fieldDataLen = 15

	softResetCmd = 0xB6

	newDataMask    = 0x80
	gasValidMask   = 0x20
	heatStableMask = 0x10
	gasRangeMask   = 0x0F
	heatOffMask    = 0x08
	runGasMask     = 0x10
	nbConvMask     = 0x0F
	osrsHMask      = 0x07
	filterMask     = 0x1C
	modeMask       = 0x03

	modeSleep  = 0b00
	modeForced = 0b01

	maxHeaterTemperature = 400
	pollAttempts         = 10
	pollInterval         = 10 * time.Millisecond
	resetDelay           = 10 * time.Millisecond
)

// wait blocks for d or until ctx is done and reports whether the full duration elapsed.
var wait = goutils.SelectContextOrWait

// Oversampling selects how many samples are averaged per measurement.
type Oversampling byte

// Oversampling settings as encoded in the osrs register fields.
const (
	OversamplingSkipped Oversampling = iota
	Oversampling1x
	Oversampling2x
	Oversampling4x
	Oversampling8x
	Oversampling16x
)

var filterCodes = map[int]byte{0: 0, 1: 1, 3: 2, 7: 3, 15: 4, 31: 5, 63: 6, 127: 7}

// Config describes the measurement settings of a Device.
type Config struct {
	Address                 byte
	TemperatureOversampling Oversampling
	PressureOversampling    Oversampling
	HumidityOversampling    Oversampling
	// FilterSize is the IIR filter coefficient, one of 0, 1, 3, 7, 15, 31, 63 or 127.
	FilterSize int
	GasEnabled bool
	// HeaterTemperature is the gas heater target in degrees Celsius. Values above 400 are capped.
	HeaterTemperature int
	// HeaterDuration is the time the heater is held at its target, in milliseconds.
	HeaterDuration int
	// AmbientTemperature is the assumed temperature around the sensor while heating.
	AmbientTemperature float32
	// TemperatureOffset is added to every temperature and also shifts the humidity and pressure
	// compensation, in degrees Celsius.
	TemperatureOffset float64
}

// DefaultConfig returns the settings envlog measures with unless told otherwise.
func DefaultConfig() Config {
	return Config{
		Address:                 DefaultI2CAddr,
		TemperatureOversampling: Oversampling8x,
		PressureOversampling:    Oversampling4x,
		HumidityOversampling:    Oversampling2x,
		FilterSize:              3,
		GasEnabled:              true,
		HeaterTemperature:       320,
		HeaterDuration:          150,
		AmbientTemperature:      25,
	}
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate() error {
	var errs error
	for _, setting := range []struct {
		name string
		code Oversampling
	}{
		{"temperature", cfg.TemperatureOversampling},
		{"pressure", cfg.PressureOversampling},
		{"humidity", cfg.HumidityOversampling},
	} {
		if setting.code > Oversampling16x {
			errs = multierr.Append(errs, errors.Errorf("invalid %s oversampling code %d", setting.name, setting.code))
		}
	}
	if _, ok := filterCodes[cfg.FilterSize]; !ok {
		errs = multierr.Append(errs, errors.Errorf("invalid filter size %d", cfg.FilterSize))
	}
	if cfg.GasEnabled {
		if cfg.HeaterTemperature < 0 {
			errs = multierr.Append(errs, errors.Errorf("invalid heater temperature %d", cfg.HeaterTemperature))
		}
		if cfg.HeaterDuration <= 0 {
			errs = multierr.Append(errs, errors.Errorf("invalid heater duration %dms", cfg.HeaterDuration))
		}
	}
	return errs
}

// Device is a bme680 attached to an i2c bus.
type Device struct {
	mu     sync.Mutex
	bus    buses.I2C
	cfg    Config
	calib  calibration
	logger logging.Logger
}

// New resets the sensor found at cfg.Address on bus, loads its calibration and applies cfg.
func New(ctx context.Context, bus buses.I2C, cfg Config, logger logging.Logger) (*Device, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "bme680 init")
	}
	d := &Device{bus: bus, cfg: cfg, logger: logger}

	if err := d.reset(ctx); err != nil {
		return nil, errors.Wrap(err, "bme680 init: soft reset failed")
	}
	if err := d.checkChipID(ctx); err != nil {
		return nil, errors.Wrap(err, "bme680 init")
	}
	if err := d.readCalibration(ctx); err != nil {
		return nil, errors.Wrap(err, "bme680 init: failed to read calibration data")
	}
	if err := d.configure(ctx); err != nil {
		return nil, errors.Wrap(err, "bme680 init: failed to apply settings")
	}
	logger.Debugw("bme680 ready", "address", cfg.Address, "profile_duration", d.ProfileDuration())
	return d, nil
}

// withHandle runs fn with a freshly opened handle and closes it afterwards.
func (d *Device) withHandle(fn func(handle buses.I2CHandle) error) (err error) {
	handle, err := d.bus.OpenHandle(d.cfg.Address)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, handle.Close())
	}()
	return fn(handle)
}

func (d *Device) reset(ctx context.Context) error {
	err := d.withHandle(func(handle buses.I2CHandle) error {
		return handle.WriteByteData(ctx, regSoftReset, softResetCmd)
	})
	if err != nil {
		return err
	}
	if !wait(ctx, resetDelay) {
		return ctx.Err()
	}
	return nil
}

func (d *Device) checkChipID(ctx context.Context) error {
	return d.withHandle(func(handle buses.I2CHandle) error {
		id, err := handle.ReadByteData(ctx, regChipID)
		if err != nil {
			return err
		}
		if id != chipID {
			return errors.Errorf("unexpected chip id %#02x at address %#02x, expected %#02x", id, d.cfg.Address, chipID)
		}
		return nil
	})
}

func (d *Device) readCalibration(ctx context.Context) error {
	return d.withHandle(func(handle buses.I2CHandle) error {
		coeff1, err := handle.ReadBlockData(ctx, regCoeff1, coeff1Len)
		if err != nil {
			return err
		}
		coeff2, err := handle.ReadBlockData(ctx, regCoeff2, coeff2Len)
		if err != nil {
			return err
		}
		heatRange, err := handle.ReadByteData(ctx, regResHeatRange)
		if err != nil {
			return err
		}
		heatVal, err := handle.ReadByteData(ctx, regResHeatVal)
		if err != nil {
			return err
		}
		swErr, err := handle.ReadByteData(ctx, regRangeSwErr)
		if err != nil {
			return err
		}
		d.calib = parseCalibration(append(coeff1, coeff2...), heatRange, heatVal, swErr)
		return nil
	})
}

func (d *Device) configure(ctx context.Context) error {
	return d.withHandle(func(handle buses.I2CHandle) error {
		ctrlMeas := &buses.I2CRegister{Handle: handle, Register: regCtrlMeas}
		if err := ctrlMeas.UpdateBits(ctx, modeMask, modeSleep); err != nil {
			return err
		}

		if d.cfg.GasEnabled {
			resHeat := d.calib.heaterResistance(d.cfg.HeaterTemperature, float64(d.cfg.AmbientTemperature))
			if err := handle.WriteByteData(ctx, regResHeat0, resHeat); err != nil {
				return err
			}
			if err := handle.WriteByteData(ctx, regGasWait0, heaterDuration(d.cfg.HeaterDuration)); err != nil {
				return err
			}
			d.logger.Debugw("heater profile 0", "res_heat", resHeat, "target_celsius", d.cfg.HeaterTemperature)
		}
		heater := &buses.I2CRegister{Handle: handle, Register: regCtrlGas0}
		heatOff := byte(heatOffMask)
		if d.cfg.GasEnabled {
			heatOff = 0
		}
		if err := heater.UpdateBits(ctx, heatOffMask, heatOff); err != nil {
			return err
		}
		gas := &buses.I2CRegister{Handle: handle, Register: regCtrlGas1}
		runGas := byte(0)
		if d.cfg.GasEnabled {
			runGas = runGasMask
		}
		if err := gas.UpdateBits(ctx, runGasMask|nbConvMask, runGas); err != nil {
			return err
		}

		filter := &buses.I2CRegister{Handle: handle, Register: regConfig}
		if err := filter.UpdateBits(ctx, filterMask, filterCodes[d.cfg.FilterSize]<<2); err != nil {
			return err
		}
		hum := &buses.I2CRegister{Handle: handle, Register: regCtrlHum}
		if err := hum.UpdateBits(ctx, osrsHMask, byte(d.cfg.HumidityOversampling)); err != nil {
			return err
		}
		meas := byte(d.cfg.TemperatureOversampling)<<5 | byte(d.cfg.PressureOversampling)<<2 | modeSleep
		return handle.WriteByteData(ctx, regCtrlMeas, meas)
	})
}

// ProfileDuration returns how long one forced measurement takes with the configured oversampling
// and heater settings.
func (d *Device) ProfileDuration() time.Duration {
	return profileDuration(d.cfg)
}

// Readings triggers a forced measurement, waits for it to finish and returns the compensated
// values.
func (d *Device) Readings(ctx context.Context) (sensor.Reading, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	err := d.withHandle(func(handle buses.I2CHandle) error {
		ctrlMeas := &buses.I2CRegister{Handle: handle, Register: regCtrlMeas}
		return ctrlMeas.UpdateBits(ctx, modeMask, modeForced)
	})
	if err != nil {
		return sensor.Reading{}, errors.Wrap(err, "failed to trigger a bme680 measurement")
	}
	if !wait(ctx, d.ProfileDuration()) {
		return sensor.Reading{}, ctx.Err()
	}

	var field []byte
	for attempt := 0; ; attempt++ {
		err := d.withHandle(func(handle buses.I2CHandle) error {
			var err error
			field, err = handle.ReadBlockData(ctx, regFieldData, fieldDataLen)
			return err
		})
		if err != nil {
			return sensor.Reading{}, errors.Wrap(err, "failed to read bme680 field data")
		}
		if field[0]&newDataMask != 0 {
			break
		}
		if attempt+1 == pollAttempts {
			return sensor.Reading{}, errors.New("bme680 did not report new data")
		}
		if !wait(ctx, pollInterval) {
			return sensor.Reading{}, ctx.Err()
		}
	}

	reading := d.compensate(parseFieldData(field))
	reading.Time = time.Now()
	return reading, nil
}

// Close puts the sensor to sleep. The bus stays open.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.withHandle(func(handle buses.I2CHandle) error {
		ctrlMeas := &buses.I2CRegister{Handle: handle, Register: regCtrlMeas}
		return ctrlMeas.UpdateBits(context.Background(), modeMask, modeSleep)
	})
}

func (d *Device) compensate(raw fieldData) sensor.Reading {
	temperature, tFine := d.calib.temperature(raw.temperature, d.cfg.TemperatureOffset)
	reading := sensor.Reading{
		Temperature: temperature,
		Pressure:    d.calib.pressure(raw.pressure, tFine) / 100,
		Humidity:    d.calib.humidity(raw.humidity, tFine),
		GasValid:    d.cfg.GasEnabled && raw.status&gasValidMask != 0 && raw.status&heatStableMask != 0,
	}
	if reading.GasValid {
		reading.GasResistance = d.calib.gasResistance(raw.gas, raw.gasRange)
	}
	return reading
}
