// Package spi connects the acquisition core to Linux spidev and GPIO lines
// through periph.io.
package spi

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/mklimuk/biosignals"
)

var _ biosignals.Transport = &GenericBus{}

// DefaultSpeed is the clock the sensor boards were characterised with.
const DefaultSpeed = 32 * physic.KiloHertz

type Opts struct {
	Speed physic.Frequency
	Mode  spi.Mode
	// NoCS leaves the controller's own chip enable alone; devices are
	// addressed by the select lines only.
	NoCS bool
}

type Opt func(*Opts)

func WithSpeed(f physic.Frequency) Opt {
	return func(o *Opts) {
		o.Speed = f
	}
}

func WithMode(m spi.Mode) Opt {
	return func(o *Opts) {
		o.Mode = m
	}
}

func WithNoCS(noCS bool) Opt {
	return func(o *Opts) {
		o.NoCS = noCS
	}
}

type txer interface {
	Tx(w, r []byte) error
}

// GenericBus is a full duplex spidev port.
type GenericBus struct {
	mx   sync.Mutex
	port spi.PortCloser
	conn txer
}

// NewGenericBus opens a spidev port by name ("" for the first one, or e.g.
// "/dev/spidev0.0", "SPI0.0").
func NewGenericBus(dev string, opts ...Opt) (*GenericBus, error) {
	config := Opts{Speed: DefaultSpeed, Mode: spi.Mode0}
	for _, opt := range opts {
		opt(&config)
	}
	state, err := host.Init()
	if err != nil {
		return nil, fmt.Errorf("could not init host: %w", err)
	}
	for _, driver := range state.Loaded {
		slog.Debug("periph driver loaded", "driver", driver.String())
	}
	port, err := spireg.Open(dev)
	if err != nil {
		return nil, fmt.Errorf("could not open spi port %q: %w", dev, err)
	}
	mode := config.Mode
	if config.NoCS {
		mode |= spi.NoCS
	}
	conn, err := port.Connect(config.Speed, mode, 8)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("could not connect to spi port %q: %w", dev, err)
	}
	slog.Debug("spi port open", "port", port.String(), "speed", config.Speed, "mode", mode)
	return &GenericBus{port: port, conn: conn}, nil
}

func (b *GenericBus) Exchange(ctx context.Context, tx []byte) ([]byte, error) {
	b.mx.Lock()
	defer b.mx.Unlock()
	rx := make([]byte, len(tx))
	if err := b.conn.Tx(tx, rx); err != nil {
		return nil, fmt.Errorf("%w: could not exchange %d bytes: %w", biosignals.ErrBus, len(tx), err)
	}
	return rx, nil
}

func (b *GenericBus) Close() error {
	if b.port == nil {
		return nil
	}
	return b.port.Close()
}
