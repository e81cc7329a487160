// Package gobotio runs the acquisition core on boards supported by Gobot
// (Raspberry Pi, NanoPi), using the board's SPI device and GPIO header pins.
//
// Example usage:
//
//	adaptor := raspi.NewAdaptor()
//	bus := gobotio.NewBus(adaptor, spi.WithBusNumber(0), spi.WithChipNumber(0))
//	if err := bus.Start(); err != nil { log.Fatal(err) }
//	lines := gobotio.NewLines(adaptor)
//	s, err := session.New(ctx, bus, lines, session.WithLines("18", "16"))
package gobotio

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"gobot.io/x/gobot/v2/drivers/spi"

	"github.com/mklimuk/biosignals"
)

var _ biosignals.Transport = &Bus{}

// DefaultSpeed in Hz.
const DefaultSpeed = 32_000

// Finalizer releases the adaptor, see gobot.Adaptor.
type Finalizer interface {
	Finalize() error
}

// connector hands the Gobot driver its SPI connection and keeps it, since
// spi.Driver does not expose the connection it opened.
type connector struct {
	spi.Connector
	conn spi.Connection
}

func (c *connector) GetSpiConnection(busNum, chipNum, mode, bits int, maxSpeed int64) (spi.Connection, error) {
	conn, err := c.Connector.GetSpiConnection(busNum, chipNum, mode, bits, maxSpeed)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	return conn, nil
}

// Bus is a Gobot SPI driver exposed as a full duplex transport.
type Bus struct {
	driver    *spi.Driver
	connector *connector
	finalizer Finalizer
	mx        sync.Mutex
}

// NewBus creates the SPI driver in mode 0. Bus, chip and speed are given as
// Gobot SPI options.
func NewBus(adaptor spi.Connector, opts ...func(spi.Config)) *Bus {
	c := &connector{Connector: adaptor}
	d := spi.NewDriver(c, "biosignals", opts...)
	d.SetMode(0)
	if d.GetSpeedOrDefault(0) == 0 {
		d.SetSpeed(DefaultSpeed)
	}
	return &Bus{driver: d, connector: c}
}

// FinalizeOnClose makes Close finalize the adaptor once the driver halts.
func (b *Bus) FinalizeOnClose(f Finalizer) {
	b.finalizer = f
}

func (b *Bus) Start() error { return b.driver.Start() }

func (b *Bus) Close() error {
	err := b.driver.Halt()
	if b.finalizer != nil {
		err = multierr.Append(err, b.finalizer.Finalize())
	}
	return err
}

// Exchange clocks tx out and returns the bytes clocked in. Gobot's
// ReadCommandData is a plain full duplex transfer of equally sized buffers.
func (b *Bus) Exchange(ctx context.Context, tx []byte) ([]byte, error) {
	b.mx.Lock()
	defer b.mx.Unlock()
	conn := b.connector.conn
	if conn == nil {
		return nil, fmt.Errorf("%w: spi driver not started", biosignals.ErrBus)
	}
	rx := make([]byte, len(tx))
	if len(tx) == 0 {
		return rx, nil
	}
	if err := conn.ReadCommandData(tx, rx); err != nil {
		return nil, fmt.Errorf("%w: %w", biosignals.ErrBus, err)
	}
	return rx, nil
}
