//go:build linux

package buses

import (
	"context"
	"strings"

	"github.com/d2r2/go-i2c"
	d2r2log "github.com/d2r2/go-logger"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

func init() {
	// go-i2c logs every transfer at debug level by default. Bus tracing is done by NewTracedI2C.
	//nolint:errcheck
	d2r2log.ChangePackageLogLevel("i2c", d2r2log.InfoLevel)
}

type d2r2Bus struct {
	number int
	locks  addressLocks
}

func openD2R2(name string) (I2C, error) {
	number, err := cast.ToIntE(strings.TrimPrefix(name, "/dev/i2c-"))
	if err != nil {
		return nil, errors.Errorf("cannot derive an i2c bus number from %q", name)
	}
	return &d2r2Bus{number: number}, nil
}

func (bus *d2r2Bus) OpenHandle(addr byte) (I2CHandle, error) {
	if err := bus.locks.acquire(addr); err != nil {
		return nil, err
	}
	handle, err := i2c.NewI2C(addr, bus.number)
	if err != nil {
		bus.locks.release(addr)
		return nil, errors.Wrapf(err, "failed to open i2c address %#02x on bus %d", addr, bus.number)
	}
	return &localI2c{internal: handle, release: func() { bus.locks.release(addr) }}, nil
}

func (bus *d2r2Bus) Close() error {
	return nil
}

// We want to use the i2c.I2C struct, but we also want to have it conform to the I2CHandle
// interface, and we cannot define new functions on non-local types. So, we create a local struct
// that contains the non-local one, upon which we can define extra functions.
type localI2c struct {
	internal *i2c.I2C
	release  func()
}

func (h *localI2c) Write(ctx context.Context, tx []byte) error {
	bytesWritten, err := h.internal.WriteBytes(tx)
	if err != nil {
		return err
	}
	if bytesWritten != len(tx) {
		return errors.Errorf("not all bytes were written to i2c address %#02x on bus %d: had %d, wrote %d",
			h.internal.GetAddr(), h.internal.GetBus(), len(tx), bytesWritten)
	}
	return nil
}

func (h *localI2c) Read(ctx context.Context, count int) ([]byte, error) {
	buffer := make([]byte, count)
	bytesRead, err := h.internal.ReadBytes(buffer)
	if err != nil {
		return nil, err
	}
	if bytesRead != count {
		return nil, errors.Errorf("not enough bytes were read from i2c address %#02x on bus %d: needed %d, got %d",
			h.internal.GetAddr(), h.internal.GetBus(), count, bytesRead)
	}
	return buffer, nil
}

func (h *localI2c) ReadByteData(ctx context.Context, register byte) (byte, error) {
	return h.internal.ReadRegU8(register)
}

func (h *localI2c) WriteByteData(ctx context.Context, register, data byte) error {
	return h.internal.WriteRegU8(register, data)
}

func (h *localI2c) ReadBlockData(ctx context.Context, register byte, numBytes uint8) ([]byte, error) {
	results, _, err := h.internal.ReadRegBytes(register, int(numBytes))
	if err != nil {
		return nil, err
	}
	if len(results) != int(numBytes) {
		return nil, errors.Errorf("not enough bytes were read from i2c register %#02x, address %#02x on bus %d: needed %d, got %d",
			register, h.internal.GetAddr(), h.internal.GetBus(), numBytes, len(results))
	}
	return results, nil
}

// The library has no "write many bytes to a register" call, but on devices that use registers
// this is equivalent to writing the register address followed by the bytes.
func (h *localI2c) WriteBlockData(ctx context.Context, register byte, data []byte) error {
	return h.Write(ctx, append([]byte{register}, data...))
}

func (h *localI2c) Close() error {
	if h.release != nil {
		h.release()
		h.release = nil
	}
	return h.internal.Close()
}
