package buses

import (
	"sync"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// Driver names accepted by Open.
const (
	DriverPeriph = "periph"
	DriverD2R2   = "d2r2"
)

// Open opens the I2C bus called name with the given driver. An empty driver selects periph. For
// periph, name may be a device path, a bus number or empty for the first bus found. For d2r2, it
// must be a device path like /dev/i2c-1 or a bus number.
func Open(driver, name string) (I2C, error) {
	switch driver {
	case "", DriverPeriph:
		if _, err := host.Init(); err != nil {
			return nil, errors.Wrap(err, "failed to initialize periph host drivers")
		}
		bus, err := i2creg.Open(name)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to open i2c bus %q", name)
		}
		return NewPeriphI2C(bus), nil
	case DriverD2R2:
		return openD2R2(name)
	default:
		return nil, errors.Errorf("unknown i2c bus driver %q, expected %q or %q", driver, DriverPeriph, DriverD2R2)
	}
}

// addressLocks tracks which addresses of a bus have an open handle.
type addressLocks struct {
	mu   sync.Mutex
	open map[byte]bool
}

func (l *addressLocks) acquire(addr byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.open == nil {
		l.open = map[byte]bool{}
	}
	if l.open[addr] {
		return errors.Errorf("i2c address %#02x already has an open handle", addr)
	}
	l.open[addr] = true
	return nil
}

func (l *addressLocks) release(addr byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.open, addr)
}
