// Package bustest provides an in-memory SPI bus with select lines for tests.
//
// Devices are attached to select lines and answer every exchange made while
// their line is the only one driven low. The bus records every line change and
// exchange so tests can assert on transaction boundaries.
package bustest

import (
	"context"
	"fmt"
	"sync"

	"github.com/mklimuk/biosignals"
)

// Responder answers one full duplex exchange. The returned slice must have the
// same length as tx.
type Responder interface {
	Respond(tx []byte) []byte
}

// ResponderFunc adapts a function to Responder.
type ResponderFunc func(tx []byte) []byte

func (f ResponderFunc) Respond(tx []byte) []byte {
	return f(tx)
}

type EventKind int

const (
	EventLine EventKind = iota
	EventExchange
)

type Event struct {
	Kind  EventKind
	Line  biosignals.LineID
	Level biosignals.Level
	TX    []byte
	RX    []byte
}

// Bus is a mock transport and line driver sharing one view of the wires.
type Bus struct {
	mx         sync.Mutex
	devices    map[biosignals.LineID]Responder
	levels     map[biosignals.LineID]biosignals.Level
	events     []Event
	violations []string

	// ExchangeErr, when set, is returned by every exchange.
	ExchangeErr error
	// LineErr, when set, is returned by every SetLine call.
	LineErr error
	// Truncate drops that many bytes from every response.
	Truncate int
}

func NewBus() *Bus {
	return &Bus{
		devices: make(map[biosignals.LineID]Responder),
		levels:  make(map[biosignals.LineID]biosignals.Level),
	}
}

// Attach connects a device to a select line. The line starts high.
func (b *Bus) Attach(id biosignals.LineID, r Responder) {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.devices[id] = r
	b.levels[id] = biosignals.High
}

func (b *Bus) SetLine(ctx context.Context, id biosignals.LineID, level biosignals.Level) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	if b.LineErr != nil {
		return b.LineErr
	}
	b.levels[id] = level
	b.events = append(b.events, Event{Kind: EventLine, Line: id, Level: level})
	if level == biosignals.Low {
		if low := b.lowLines(); len(low) > 1 {
			b.violations = append(b.violations, fmt.Sprintf("lines %v asserted together", low))
		}
	}
	return nil
}

func (b *Bus) Exchange(ctx context.Context, tx []byte) ([]byte, error) {
	b.mx.Lock()
	defer b.mx.Unlock()
	if b.ExchangeErr != nil {
		return nil, b.ExchangeErr
	}
	rx := make([]byte, len(tx))
	low := b.lowLines()
	switch len(low) {
	case 0:
		b.violations = append(b.violations, "exchange without a selected device")
	case 1:
		if dev, ok := b.devices[low[0]]; ok {
			copy(rx, dev.Respond(append([]byte(nil), tx...)))
		}
	default:
		b.violations = append(b.violations, fmt.Sprintf("exchange with lines %v asserted together", low))
	}
	var line biosignals.LineID
	if len(low) == 1 {
		line = low[0]
	}
	b.events = append(b.events, Event{Kind: EventExchange, Line: line, TX: append([]byte(nil), tx...), RX: rx})
	if b.Truncate > 0 && b.Truncate <= len(rx) {
		rx = rx[:len(rx)-b.Truncate]
	}
	return rx, nil
}

func (b *Bus) lowLines() []biosignals.LineID {
	var low []biosignals.LineID
	for id, lvl := range b.levels {
		if lvl == biosignals.Low {
			low = append(low, id)
		}
	}
	return low
}

// Level returns the current level of a line; unknown lines read high.
func (b *Bus) Level(id biosignals.LineID) biosignals.Level {
	b.mx.Lock()
	defer b.mx.Unlock()
	lvl, ok := b.levels[id]
	if !ok {
		return biosignals.High
	}
	return lvl
}

func (b *Bus) Events() []Event {
	b.mx.Lock()
	defer b.mx.Unlock()
	return append([]Event(nil), b.events...)
}

// Exchanges returns the transmitted buffers addressed to a line.
func (b *Bus) Exchanges(id biosignals.LineID) [][]byte {
	b.mx.Lock()
	defer b.mx.Unlock()
	var res [][]byte
	for _, e := range b.events {
		if e.Kind == EventExchange && e.Line == id {
			res = append(res, e.TX)
		}
	}
	return res
}

// Violations lists every moment two lines were low together or an exchange
// happened with no device selected.
func (b *Bus) Violations() []string {
	b.mx.Lock()
	defer b.mx.Unlock()
	return append([]string(nil), b.violations...)
}

func (b *Bus) Reset() {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.events = nil
	b.violations = nil
}
