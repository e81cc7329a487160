package adapter

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/mklimuk/biosignals"
)

var _ biosignals.LineDriver = &MCP2221Lines{}

// MCP2221Lines drives select lines on the adapter pins named "GP0".."GP3".
type MCP2221Lines struct {
	adapter *MCP2221
	id      []int
}

// NewMCP2221Lines uses the adapter with the given enumeration id, or the
// only connected one when id is omitted.
func NewMCP2221Lines(a *MCP2221, id ...int) *MCP2221Lines {
	return &MCP2221Lines{adapter: a, id: id}
}

// ParsePin returns the pin number of a "GPn" (or "n") line id.
func ParsePin(id biosignals.LineID) (int, error) {
	s := strings.TrimPrefix(strings.ToUpper(string(id)), "GP")
	pin, err := strconv.Atoi(s)
	if err != nil || pin < 0 || pin >= PinCount {
		return 0, fmt.Errorf("invalid MCP2221 pin %q", id)
	}
	return pin, nil
}

// Configure switches the pins of the given lines to GPIO outputs for the
// current power cycle.
func (l *MCP2221Lines) Configure(ctx context.Context, ids ...biosignals.LineID) error {
	params, err := l.adapter.GetGPIOParameters(ctx, l.id...)
	if err != nil {
		return err
	}
	for _, id := range ids {
		pin, err := ParsePin(id)
		if err != nil {
			return err
		}
		params.SetOutput(pin)
	}
	return l.adapter.SetRuntimeGPIOParameters(ctx, params, l.id...)
}

func (l *MCP2221Lines) SetLine(ctx context.Context, id biosignals.LineID, level biosignals.Level) error {
	pin, err := ParsePin(id)
	if err != nil {
		return err
	}
	var val byte
	if level == biosignals.High {
		val = 1
	}
	if err := l.adapter.SetGPIO(ctx, pin, val, l.id...); err != nil {
		return fmt.Errorf("could not drive %s %s: %w", id, level, err)
	}
	return nil
}
