package buses

import (
	"context"
	"fmt"

	"github.com/envlog/envlog/logging"
)

type tracedBus struct {
	I2C
	logger logging.Logger
}

// NewTracedI2C wraps bus so every transfer is logged at debug level, writes as
// "W 0x74 -> 25" and reads as "R 0xd0 <- 61".
func NewTracedI2C(bus I2C, logger logging.Logger) I2C {
	return &tracedBus{I2C: bus, logger: logger}
}

func (tb *tracedBus) OpenHandle(addr byte) (I2CHandle, error) {
	handle, err := tb.I2C.OpenHandle(addr)
	if err != nil {
		return nil, err
	}
	return &tracedHandle{I2CHandle: handle, logger: tb.logger}, nil
}

type tracedHandle struct {
	I2CHandle
	logger logging.Logger
}

func (th *tracedHandle) written(register string, data []byte, err error) {
	if err != nil {
		th.logger.Debugf("W %s -> % x failed: %v", register, data, err)
		return
	}
	th.logger.Debugf("W %s -> % x", register, data)
}

func (th *tracedHandle) read(register string, data []byte, err error) {
	if err != nil {
		th.logger.Debugf("R %s failed: %v", register, err)
		return
	}
	th.logger.Debugf("R %s <- % x", register, data)
}

func regName(register byte) string {
	return fmt.Sprintf("0x%02x", register)
}

func (th *tracedHandle) Write(ctx context.Context, tx []byte) error {
	err := th.I2CHandle.Write(ctx, tx)
	th.written("-", tx, err)
	return err
}

func (th *tracedHandle) Read(ctx context.Context, count int) ([]byte, error) {
	data, err := th.I2CHandle.Read(ctx, count)
	th.read("-", data, err)
	return data, err
}

func (th *tracedHandle) ReadByteData(ctx context.Context, register byte) (byte, error) {
	data, err := th.I2CHandle.ReadByteData(ctx, register)
	th.read(regName(register), []byte{data}, err)
	return data, err
}

func (th *tracedHandle) WriteByteData(ctx context.Context, register, data byte) error {
	err := th.I2CHandle.WriteByteData(ctx, register, data)
	th.written(regName(register), []byte{data}, err)
	return err
}

func (th *tracedHandle) ReadBlockData(ctx context.Context, register byte, numBytes uint8) ([]byte, error) {
	data, err := th.I2CHandle.ReadBlockData(ctx, register, numBytes)
	th.read(regName(register), data, err)
	return data, err
}

func (th *tracedHandle) WriteBlockData(ctx context.Context, register byte, data []byte) error {
	err := th.I2CHandle.WriteBlockData(ctx, register, data)
	th.written(regName(register), data, err)
	return err
}
