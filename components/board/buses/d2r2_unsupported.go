//go:build !linux

package buses

import (
	"github.com/pkg/errors"
)

func openD2R2(name string) (I2C, error) {
	return nil, errors.Errorf("the %s i2c driver is only supported on linux", DriverD2R2)
}
