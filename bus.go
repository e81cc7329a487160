package biosignals

import (
	"context"
	"errors"
	"fmt"
)

// ErrBus marks a transport level failure (short or oversized response, controller error).
// It is fatal for the transaction in flight and is never retried by the core.
var ErrBus = errors.New("spi bus error")

// ErrBusBusy is returned when a device could not be selected because another
// transaction kept the bus until the caller gave up.
var ErrBusBusy = fmt.Errorf("spi bus is busy (another device is selected)")

// ErrDeviceNotFound reports a failed connectivity check.
var ErrDeviceNotFound = errors.New("device not found")

// Level is the electrical level of a select line.
type Level bool

const (
	Low  Level = false
	High Level = true
)

func (l Level) String() string {
	if l {
		return "high"
	}
	return "low"
}

// LineID names a select line the way the line driver knows it (e.g. "GPIO24", "GP1", "18").
type LineID string

// Transport exchanges bytes over the shared bus. Every written byte produces
// a received byte so len(rx) must equal len(tx).
type Transport interface {
	Exchange(ctx context.Context, tx []byte) ([]byte, error)
}

// LineDriver sets the level of a single select line.
type LineDriver interface {
	SetLine(ctx context.Context, id LineID, level Level) error
}

// CheckExchange verifies the full duplex contract of a transport response.
func CheckExchange(tx, rx []byte) error {
	if len(rx) != len(tx) {
		return fmt.Errorf("%w: sent %d bytes, received %d", ErrBus, len(tx), len(rx))
	}
	return nil
}
