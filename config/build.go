package config

import (
	"context"
	"fmt"
	"io"
	"strings"

	gobotspi "gobot.io/x/gobot/v2/drivers/spi"
	"gobot.io/x/gobot/v2/platforms/friendlyelec/nanopi"
	"gobot.io/x/gobot/v2/platforms/raspi"
	"periph.io/x/conn/v3/physic"

	"github.com/mklimuk/biosignals"
	"github.com/mklimuk/biosignals/acquire"
	"github.com/mklimuk/biosignals/adapter"
	"github.com/mklimuk/biosignals/device/ads1241"
	"github.com/mklimuk/biosignals/device/ads1293"
	"github.com/mklimuk/biosignals/device/bmi160"
	"github.com/mklimuk/biosignals/gobotio"
	"github.com/mklimuk/biosignals/power"
	"github.com/mklimuk/biosignals/session"
	"github.com/mklimuk/biosignals/spi"
)

type gobotAdaptor interface {
	gobotspi.Connector
	DigitalWrite(pin string, val byte) error
	Connect() error
	Finalize() error
}

// Open connects to the bus and the select lines described by the
// configuration and opens a session with every configured line deselected.
func (s Session) Open(ctx context.Context, opts ...session.Opt) (*session.Session, error) {
	var transport biosignals.Transport
	var lines biosignals.LineDriver
	switch s.Platform {
	case PlatformPeriph:
		bus, err := spi.NewGenericBus(s.SPI.Port,
			spi.WithSpeed(physic.Frequency(s.SPI.Speed)*physic.Hertz),
			spi.WithNoCS(s.SPI.NoCS),
		)
		if err != nil {
			return nil, err
		}
		transport = bus
		if s.Lines == LinesGPIO {
			gpioLines, err := spi.NewGPIOLines(s.LineIDs()...)
			if err != nil {
				_ = bus.Close()
				return nil, err
			}
			lines = gpioLines
		}
	case PlatformRaspi, PlatformNanoPi:
		var a gobotAdaptor
		if s.Platform == PlatformRaspi {
			a = raspi.NewAdaptor()
		} else {
			a = nanopi.NewNeoAdaptor()
		}
		bus, err := openGobotBus(a, s.SPI)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.Platform, err)
		}
		transport = bus
		if s.Lines == LinesGPIO {
			lines = gobotio.NewLines(a)
		}
	}
	if s.Lines == LinesMCP2221 {
		mcp := adapter.NewMCP2221Lines(adapter.NewMCP2221(), s.Adapter)
		if err := mcp.Configure(ctx, s.LineIDs()...); err != nil {
			if c, ok := transport.(io.Closer); ok {
				_ = c.Close()
			}
			return nil, fmt.Errorf("could not configure adapter pins: %w", err)
		}
		lines = mcp
	}
	opts = append(opts, session.WithLines(s.LineIDs()...))
	return session.New(ctx, transport, lines, opts...)
}

// openGobotBus connects the adaptor and starts its SPI driver. The bus owns
// the adaptor from then on and finalizes it when closed, whichever line
// driver the session uses.
func openGobotBus(a gobotAdaptor, cfg SPI) (*gobotio.Bus, error) {
	if err := a.Connect(); err != nil {
		return nil, fmt.Errorf("could not connect adaptor: %w", err)
	}
	bus := gobotio.NewBus(a,
		gobotspi.WithBusNumber(cfg.Bus),
		gobotspi.WithChipNumber(cfg.Chip),
		gobotspi.WithSpeed(cfg.Speed),
	)
	if err := bus.Start(); err != nil {
		_ = a.Finalize()
		return nil, fmt.Errorf("could not start spi driver: %w", err)
	}
	bus.FinalizeOnClose(a)
	return bus, nil
}

func (d Device) policy() power.Policy {
	p := power.DefaultPolicy
	if d.Poll.Timeout > 0 {
		p.Timeout = d.Poll.Timeout
	}
	if d.Poll.Interval > 0 {
		p.Interval = d.Poll.Interval
	}
	p.Unbounded = d.Poll.Legacy
	return p
}

// Driver is what every device driver offers on top of acquire.Source.
type Driver interface {
	acquire.Source
	Device() session.Device
}

// Source builds the driver of one device on a session.
func (d Device) Source(s *session.Session) (Driver, error) {
	switch d.Type {
	case DeviceADS1293:
		opts := []ads1293.Opt{ads1293.WithName(d.Name)}
		switch strings.ToLower(d.Mode) {
		case "", "ch1ch2":
		case "ch1":
			opts = append(opts, ads1293.WithReadMode(ads1293.ReadCH1))
		default:
			return nil, fmt.Errorf("%w: ads1293 mode %q", ErrInvalid, d.Mode)
		}
		switch strings.ToLower(d.Profile) {
		case "", "3-lead":
		case "1-lead":
			opts = append(opts, ads1293.WithProfile(ads1293.OneLead))
		default:
			return nil, fmt.Errorf("%w: ads1293 profile %q", ErrInvalid, d.Profile)
		}
		if d.Interval > 0 {
			opts = append(opts, ads1293.WithInterval(d.Interval))
		}
		return ads1293.New(s, d.Line, opts...), nil
	case DeviceBMI160:
		opts := []bmi160.Opt{bmi160.WithName(d.Name), bmi160.WithPollPolicy(d.policy())}
		switch strings.ToLower(d.Mode) {
		case "", "motion6":
		case "accel3":
			opts = append(opts, bmi160.WithPacket(bmi160.Accel3))
		default:
			return nil, fmt.Errorf("%w: bmi160 mode %q", ErrInvalid, d.Mode)
		}
		if d.Unsigned {
			opts = append(opts, bmi160.WithUnsignedAxes())
		}
		if d.Interval > 0 {
			opts = append(opts, bmi160.WithInterval(d.Interval))
		}
		return bmi160.New(s, d.Line, opts...), nil
	case DeviceADS1241:
		opts := []ads1241.Opt{ads1241.WithName(d.Name)}
		if len(d.Inputs) > 0 {
			var inputs []ads1241.Input
			for _, in := range d.Inputs {
				switch strings.ToLower(in) {
				case "ain0":
					inputs = append(inputs, ads1241.AIN0)
				case "ain1":
					inputs = append(inputs, ads1241.AIN1)
				default:
					return nil, fmt.Errorf("%w: ads1241 input %q", ErrInvalid, in)
				}
			}
			opts = append(opts, ads1241.WithInputs(inputs...))
		}
		if d.Interval > 0 {
			opts = append(opts, ads1241.WithInterval(d.Interval))
		}
		return ads1241.New(s, d.Line, opts...), nil
	}
	return nil, fmt.Errorf("%w: unknown device type %q", ErrInvalid, d.Type)
}

// Stream builds the source streamed by the acquisition loop: the named
// device, or the first two devices interleaved when configured.
func (s Session) Stream(sess *session.Session, name string) (acquire.Source, error) {
	if s.Interleave > 0 && name == "" {
		fast, err := s.Devices[0].Source(sess)
		if err != nil {
			return nil, err
		}
		slow, err := s.Devices[1].Source(sess)
		if err != nil {
			return nil, err
		}
		return acquire.Interleave(fast, slow, s.Interleave), nil
	}
	d, err := s.Device(name)
	if err != nil {
		return nil, err
	}
	return d.Source(sess)
}
