package spi

import (
	"context"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/mklimuk/biosignals"
)

var _ biosignals.LineDriver = &GPIOLines{}

// GPIOLines drives select lines with host GPIO pins.
type GPIOLines struct {
	mx   sync.Mutex
	pins map[biosignals.LineID]gpio.PinOut
}

// NewGPIOLines looks up every named pin ("GPIO24", "24", ...) in the periph
// registry.
func NewGPIOLines(ids ...biosignals.LineID) (*GPIOLines, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("could not init host: %w", err)
	}
	pins := make(map[biosignals.LineID]gpio.PinOut, len(ids))
	for _, id := range ids {
		pin := gpioreg.ByName(string(id))
		if pin == nil {
			return nil, fmt.Errorf("could not find gpio pin %s", id)
		}
		pins[id] = pin
	}
	return NewPinLines(pins), nil
}

// NewPinLines uses already resolved pins.
func NewPinLines(pins map[biosignals.LineID]gpio.PinOut) *GPIOLines {
	return &GPIOLines{pins: pins}
}

func (l *GPIOLines) SetLine(ctx context.Context, id biosignals.LineID, level biosignals.Level) error {
	l.mx.Lock()
	defer l.mx.Unlock()
	pin, ok := l.pins[id]
	if !ok {
		return fmt.Errorf("unknown select line %s", id)
	}
	out := gpio.Low
	if level == biosignals.High {
		out = gpio.High
	}
	if err := pin.Out(out); err != nil {
		return fmt.Errorf("could not drive %s %s: %w", id, level, err)
	}
	return nil
}
