package buses

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/i2c"
)

type periphBus struct {
	bus   i2c.Bus
	locks addressLocks
}

// NewPeriphI2C wraps a periph bus. Closing the returned I2C closes bus if it is an io.Closer.
func NewPeriphI2C(bus i2c.Bus) I2C {
	return &periphBus{bus: bus}
}

func (pb *periphBus) OpenHandle(addr byte) (I2CHandle, error) {
	if err := pb.locks.acquire(addr); err != nil {
		return nil, err
	}
	return &periphHandle{
		dev:     &i2c.Dev{Bus: pb.bus, Addr: uint16(addr)},
		release: func() { pb.locks.release(addr) },
	}, nil
}

func (pb *periphBus) Close() error {
	if closer, ok := pb.bus.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

type periphHandle struct {
	dev     *i2c.Dev
	release func()
}

func (h *periphHandle) tx(w, r []byte) error {
	if err := h.dev.Tx(w, r); err != nil {
		return errors.Wrapf(err, "i2c transfer with %#02x failed", h.dev.Addr)
	}
	return nil
}

func (h *periphHandle) Write(ctx context.Context, tx []byte) error {
	return h.tx(tx, nil)
}

func (h *periphHandle) Read(ctx context.Context, count int) ([]byte, error) {
	buffer := make([]byte, count)
	if err := h.tx(nil, buffer); err != nil {
		return nil, err
	}
	return buffer, nil
}

func (h *periphHandle) ReadByteData(ctx context.Context, register byte) (byte, error) {
	var buffer [1]byte
	if err := h.tx([]byte{register}, buffer[:]); err != nil {
		return 0, err
	}
	return buffer[0], nil
}

func (h *periphHandle) WriteByteData(ctx context.Context, register, data byte) error {
	return h.tx([]byte{register, data}, nil)
}

func (h *periphHandle) ReadBlockData(ctx context.Context, register byte, numBytes uint8) ([]byte, error) {
	buffer := make([]byte, numBytes)
	if err := h.tx([]byte{register}, buffer); err != nil {
		return nil, err
	}
	return buffer, nil
}

func (h *periphHandle) WriteBlockData(ctx context.Context, register byte, data []byte) error {
	return h.tx(append([]byte{register}, data...), nil)
}

func (h *periphHandle) Close() error {
	if h.release != nil {
		h.release()
		h.release = nil
	}
	return nil
}
