package gobotio

import (
	"context"
	"fmt"

	"gobot.io/x/gobot/v2/drivers/gpio"

	"github.com/mklimuk/biosignals"
)

var _ biosignals.LineDriver = &Lines{}

// Lines drives select lines through an adaptor's digital outputs. Line ids
// are the adaptor's pin names, e.g. header pin "18" for BCM GPIO24 on a
// Raspberry Pi.
type Lines struct {
	writer gpio.DigitalWriter
}

func NewLines(w gpio.DigitalWriter) *Lines {
	return &Lines{writer: w}
}

func (l *Lines) SetLine(ctx context.Context, id biosignals.LineID, level biosignals.Level) error {
	var val byte
	if level == biosignals.High {
		val = 1
	}
	if err := l.writer.DigitalWrite(string(id), val); err != nil {
		return fmt.Errorf("could not drive pin %s %s: %w", id, level, err)
	}
	return nil
}
