package bme680

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/envlog/envlog/components/board/buses"
	"github.com/envlog/envlog/logging"
	"github.com/envlog/envlog/testutils/inject"
)

// fakeChip is a register file that behaves enough like a bme680 for the driver: a soft reset is
// counted, forced mode completes a measurement immediately and returns the chip to sleep.
type fakeChip struct {
	mu           sync.Mutex
	regs         [256]byte
	resets       int
	measurements int
	// notReady is the number of field data reads that report no new data after a trigger.
	notReady int
	pending  int
}

func newFakeChip() *fakeChip {
	c := &fakeChip{}
	c.regs[regChipID] = chipID

	var coeff [coeff1Len + coeff2Len]byte
	put16 := func(msb, lsb, v int) {
		coeff[msb] = byte(uint16(int16(v)) >> 8)
		coeff[lsb] = byte(uint16(int16(v)))
	}
	put16(34, 33, 26164)
	put16(2, 1, 26275)
	coeff[3] = 3
	put16(6, 5, 36013)
	put16(8, 7, -10294)
	coeff[9] = 88
	put16(12, 11, 7102)
	put16(14, 13, -86)
	coeff[16] = 30
	coeff[15] = 63
	put16(20, 19, -3051)
	put16(22, 21, -2373)
	coeff[23] = 30
	// h1 = 807 = 0x327, h2 = 1023 = 0x3ff
	coeff[27] = 0x32
	coeff[26] = 0xf7
	coeff[25] = 0x3f
	coeff[28] = 0
	coeff[29] = 45
	coeff[30] = 20
	coeff[31] = 120
	coeff[32] = byte(0x100 - 100)
	coeff[37] = byte(0x100 - 37)
	put16(36, 35, -11049)
	coeff[38] = 18
	copy(c.regs[regCoeff1:], coeff[:coeff1Len])
	copy(c.regs[regCoeff2:], coeff[coeff1Len:])

	c.regs[regResHeatRange] = 1 << 4
	c.regs[regResHeatVal] = 46
	c.regs[regRangeSwErr] = 0

	c.setRaw(512000, 400000, 25000, 600, 5, true)
	return c
}

func (c *fakeChip) setRaw(temperature, pressure uint32, humidity, gas uint16, gasRange byte, stable bool) {
	field := c.regs[regFieldData : regFieldData+fieldDataLen]
	field[2], field[3], field[4] = byte(pressure>>12), byte(pressure>>4), byte(pressure<<4)
	field[5], field[6], field[7] = byte(temperature>>12), byte(temperature>>4), byte(temperature<<4)
	field[8], field[9] = byte(humidity>>8), byte(humidity)
	field[13] = byte(gas >> 2)
	field[14] = byte(gas<<6) | gasRange
	if stable {
		field[14] |= gasValidMask | heatStableMask
	}
}

func (c *fakeChip) bus() *inject.I2C {
	return &inject.I2C{OpenHandleFunc: func(addr byte) (buses.I2CHandle, error) {
		if addr != DefaultI2CAddr {
			return nil, errors.Errorf("nothing at %#x", addr)
		}
		return &inject.I2CHandle{
			ReadByteDataFunc: func(ctx context.Context, register byte) (byte, error) {
				c.mu.Lock()
				defer c.mu.Unlock()
				return c.regs[register], nil
			},
			WriteByteDataFunc: func(ctx context.Context, register, data byte) error {
				c.mu.Lock()
				defer c.mu.Unlock()
				switch {
				case register == regSoftReset && data == softResetCmd:
					c.resets++
				case register == regCtrlMeas && data&modeMask == modeForced:
					c.measurements++
					c.pending = c.notReady
					c.regs[regFieldData] |= newDataMask
					c.regs[register] = data &^ modeMask
				default:
					c.regs[register] = data
				}
				return nil
			},
			ReadBlockDataFunc: func(ctx context.Context, register byte, numBytes uint8) ([]byte, error) {
				c.mu.Lock()
				defer c.mu.Unlock()
				out := make([]byte, numBytes)
				copy(out, c.regs[register:int(register)+int(numBytes)])
				if register == regFieldData && c.pending > 0 {
					c.pending--
					out[0] &^= newDataMask
				}
				return out, nil
			},
			CloseFunc: func() error { return nil },
		}, nil
	}}
}

// noWait replaces the package wait for the duration of a test and records requested waits.
func noWait(t *testing.T) *[]time.Duration {
	t.Helper()
	waited := []time.Duration{}
	prev := wait
	wait = func(ctx context.Context, d time.Duration) bool {
		waited = append(waited, d)
		return ctx.Err() == nil
	}
	t.Cleanup(func() { wait = prev })
	return &waited
}

func TestNewConfiguresSensor(t *testing.T) {
	noWait(t)
	chip := newFakeChip()
	logger := logging.NewTestLogger(t)

	dev, err := New(context.Background(), chip.bus(), DefaultConfig(), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, chip.resets, test.ShouldEqual, 1)
	test.That(t, chip.regs[regCtrlHum]&osrsHMask, test.ShouldEqual, byte(Oversampling2x))
	test.That(t, chip.regs[regCtrlMeas], test.ShouldEqual, byte(Oversampling8x)<<5|byte(Oversampling4x)<<2)
	test.That(t, chip.regs[regConfig]&filterMask, test.ShouldEqual, byte(2<<2))
	test.That(t, chip.regs[regCtrlGas1], test.ShouldEqual, byte(runGasMask))
	test.That(t, chip.regs[regCtrlGas0]&heatOffMask, test.ShouldEqual, byte(0))
	test.That(t, chip.regs[regResHeat0], test.ShouldEqual, byte(113))
	test.That(t, chip.regs[regGasWait0], test.ShouldEqual, byte(0x65))
	test.That(t, dev.ProfileDuration(), test.ShouldEqual, 183*time.Millisecond)
}

func TestNewWithoutGas(t *testing.T) {
	noWait(t)
	chip := newFakeChip()
	cfg := DefaultConfig()
	cfg.GasEnabled = false

	dev, err := New(context.Background(), chip.bus(), cfg, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, chip.regs[regCtrlGas1], test.ShouldEqual, byte(0))
	test.That(t, chip.regs[regCtrlGas0]&heatOffMask, test.ShouldEqual, byte(heatOffMask))
	test.That(t, chip.regs[regResHeat0], test.ShouldEqual, byte(0))
	test.That(t, dev.ProfileDuration(), test.ShouldEqual, 33*time.Millisecond)

	reading, err := dev.Readings(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, reading.GasValid, test.ShouldBeFalse)
	test.That(t, reading.GasResistance, test.ShouldEqual, 0.0)
}

func TestNewFailures(t *testing.T) {
	noWait(t)
	logger := logging.NewTestLogger(t)

	chip := newFakeChip()
	chip.regs[regChipID] = 0x60
	_, err := New(context.Background(), chip.bus(), DefaultConfig(), logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "unexpected chip id 0x60")

	cfg := DefaultConfig()
	cfg.Address = 0x77
	_, err = New(context.Background(), newFakeChip().bus(), cfg, logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "soft reset failed")

	cfg = DefaultConfig()
	cfg.FilterSize = 4
	_, err = New(context.Background(), newFakeChip().bus(), cfg, logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "invalid filter size 4")
}

func TestReadings(t *testing.T) {
	waited := noWait(t)
	chip := newFakeChip()
	dev, err := New(context.Background(), chip.bus(), DefaultConfig(), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	reading, err := dev.Readings(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, chip.measurements, test.ShouldEqual, 1)
	test.That(t, (*waited)[len(*waited)-1], test.ShouldEqual, 183*time.Millisecond)

	test.That(t, reading.Temperature, test.ShouldAlmostEqual, 29.25221356973052, 1e-9)
	test.That(t, reading.Pressure, test.ShouldAlmostEqual, 935.1736173462392, 1e-6)
	test.That(t, reading.Humidity, test.ShouldAlmostEqual, 67.60107379745287, 1e-9)
	test.That(t, reading.GasValid, test.ShouldBeTrue)
	test.That(t, reading.GasResistance, test.ShouldAlmostEqual, 232818.17325378655, 1e-3)
	test.That(t, reading.Time.IsZero(), test.ShouldBeFalse)

	test.That(t, dev.Close(), test.ShouldBeNil)
	test.That(t, chip.regs[regCtrlMeas]&modeMask, test.ShouldEqual, byte(modeSleep))
}

func TestReadingsUnstableHeater(t *testing.T) {
	noWait(t)
	chip := newFakeChip()
	chip.setRaw(512000, 400000, 25000, 600, 5, false)
	dev, err := New(context.Background(), chip.bus(), DefaultConfig(), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	reading, err := dev.Readings(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, reading.GasValid, test.ShouldBeFalse)
	test.That(t, reading.GasResistance, test.ShouldEqual, 0.0)
	test.That(t, reading.Temperature, test.ShouldAlmostEqual, 29.25221356973052, 1e-9)
}

func TestReadingsPollsForNewData(t *testing.T) {
	waited := noWait(t)
	chip := newFakeChip()
	chip.notReady = 2
	dev, err := New(context.Background(), chip.bus(), DefaultConfig(), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	before := len(*waited)
	_, err = dev.Readings(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, (*waited)[before:], test.ShouldResemble, []time.Duration{183 * time.Millisecond, pollInterval, pollInterval})

	chip.notReady = pollAttempts
	_, err = dev.Readings(context.Background())
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "did not report new data")
}

func TestReadingsCanceled(t *testing.T) {
	noWait(t)
	chip := newFakeChip()
	dev, err := New(context.Background(), chip.bus(), DefaultConfig(), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = dev.Readings(ctx)
	test.That(t, err, test.ShouldEqual, context.Canceled)
}

func TestTemperatureOffset(t *testing.T) {
	noWait(t)
	cfg := DefaultConfig()
	cfg.TemperatureOffset = -1.5
	dev, err := New(context.Background(), newFakeChip().bus(), cfg, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	reading, err := dev.Readings(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, reading.Temperature, test.ShouldAlmostEqual, 27.75221356973052, 1e-9)
	test.That(t, reading.Humidity, test.ShouldAlmostEqual, 67.35322387408546, 1e-9)
}

func TestHeaterSettings(t *testing.T) {
	chip := newFakeChip()
	coeff := append([]byte{}, chip.regs[regCoeff1:regCoeff1+coeff1Len]...)
	coeff = append(coeff, chip.regs[regCoeff2:regCoeff2+coeff2Len]...)
	c := parseCalibration(coeff, 1<<4, 46, 0)
	test.That(t, c.t1, test.ShouldEqual, 26164.0)
	test.That(t, c.p1, test.ShouldEqual, 36013.0)
	test.That(t, c.p2, test.ShouldEqual, -10294.0)
	test.That(t, c.h1, test.ShouldEqual, 807.0)
	test.That(t, c.h2, test.ShouldEqual, 1023.0)
	test.That(t, c.h7, test.ShouldEqual, -100.0)
	test.That(t, c.gh1, test.ShouldEqual, -37.0)
	test.That(t, c.heaterResistance(320, 25), test.ShouldEqual, byte(113))
	test.That(t, c.heaterResistance(400, 25), test.ShouldEqual, byte(133))
	test.That(t, c.heaterResistance(500, 25), test.ShouldEqual, byte(133))

	test.That(t, parseCalibration(coeff, 0, 0, 0xf0).rangeSwitchingErr, test.ShouldEqual, -1.0)

	for _, tc := range []struct {
		ms   int
		want byte
	}{
		{0, 0},
		{63, 63},
		{100, 25 + 64},
		{150, 37 + 64},
		{1000, 62 + 2*64},
		{0xfc0, 0xff},
	} {
		test.That(t, heaterDuration(tc.ms), test.ShouldEqual, tc.want)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	test.That(t, cfg.Validate(), test.ShouldBeNil)

	cfg.HumidityOversampling = 6
	cfg.HeaterDuration = 0
	err := cfg.Validate()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "invalid humidity oversampling code 6")
	test.That(t, err.Error(), test.ShouldContainSubstring, "invalid heater duration 0ms")

	cfg.GasEnabled = false
	cfg.HumidityOversampling = OversamplingSkipped
	test.That(t, cfg.Validate(), test.ShouldBeNil)
}
