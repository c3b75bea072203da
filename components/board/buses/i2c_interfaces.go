// Package buses offers the I2C buses sensors are attached to.
package buses

import (
	"context"
)

// I2C represents a shareable I2C bus.
type I2C interface {
	// OpenHandle returns a handle interface that MUST be closed when done.
	// you cannot have 2 open for the same addr
	OpenHandle(addr byte) (I2CHandle, error)
	// Close releases the bus. Handles must be closed first.
	Close() error
}

// I2CHandle is similar to an io handle. It MUST be closed to release the address.
type I2CHandle interface {
	Write(ctx context.Context, tx []byte) error
	Read(ctx context.Context, count int) ([]byte, error)

	ReadByteData(ctx context.Context, register byte) (byte, error)
	WriteByteData(ctx context.Context, register, data byte) error

	ReadBlockData(ctx context.Context, register byte, numBytes uint8) ([]byte, error)
	WriteBlockData(ctx context.Context, register byte, data []byte) error

	// Close closes the handle and releases the address.
	Close() error
}

// An I2CRegister is a lightweight wrapper around a handle for a particular register.
type I2CRegister struct {
	Handle   I2CHandle
	Register byte
}

// ReadByteData reads a byte from the I2C channel register.
func (reg *I2CRegister) ReadByteData(ctx context.Context) (byte, error) {
	return reg.Handle.ReadByteData(ctx, reg.Register)
}

// WriteByteData writes a byte to the I2C channel register.
func (reg *I2CRegister) WriteByteData(ctx context.Context, data byte) error {
	return reg.Handle.WriteByteData(ctx, reg.Register, data)
}

// UpdateBits replaces the bits selected by mask with the matching bits of value, leaving the
// rest of the register untouched.
func (reg *I2CRegister) UpdateBits(ctx context.Context, mask, value byte) error {
	current, err := reg.ReadByteData(ctx)
	if err != nil {
		return err
	}
	return reg.WriteByteData(ctx, current&^mask|value&mask)
}
