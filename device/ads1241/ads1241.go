// Package ads1241 drives the TI ADS1241 24-bit delta-sigma ADC used for the
// strain-gauge (grip force) channel.
//
// Unlike the register devices on the bus the ADS1241 is driven with command
// opcodes: WREG to program the setup and multiplexer registers and RDATA to
// fetch the last conversion.
package ads1241

import (
	"context"
	"fmt"
	"time"

	"github.com/mklimuk/biosignals"
	"github.com/mklimuk/biosignals/decode"
	"github.com/mklimuk/biosignals/session"
)

// --- commands (datasheet Table 14) ---
const (
	cmdRDATA     = 0x01
	cmdWREGSetup = 0x50 // WREG starting at SETUP
	cmdWREGMux   = 0x51 // WREG starting at MUX

	setupGain1 = 0x00
)

// Input is a multiplexer setting: positive input in the high nibble, negative
// input in the low nibble.
type Input byte

const (
	// AIN0 measures AIN0 against AINCOM.
	AIN0 Input = 0x07
	// AIN1 measures AIN1 against AINCOM.
	AIN1 Input = 0x17
)

func (i Input) field() string {
	return fmt.Sprintf("ain%d_raw", byte(i)>>4)
}

type Opts struct {
	Name        string
	Inputs      []Input
	Interval    time.Duration
	SetupDelay  time.Duration
	SelectDelay time.Duration
}

type Opt func(*Opts)

func WithName(name string) Opt {
	return func(o *Opts) {
		o.Name = name
	}
}

// WithInputs sets the inputs converted by every Read, in order.
func WithInputs(inputs ...Input) Opt {
	return func(o *Opts) {
		o.Inputs = inputs
	}
}

func WithInterval(d time.Duration) Opt {
	return func(o *Opts) {
		o.Interval = d
	}
}

// WithSetupDelay sets how long the device stays selected after setup programming.
func WithSetupDelay(d time.Duration) Opt {
	return func(o *Opts) {
		o.SetupDelay = d
	}
}

// WithSelectDelay sets how long the device stays selected after an input
// change so the digital filter settles on the new channel.
func WithSelectDelay(d time.Duration) Opt {
	return func(o *Opts) {
		o.SelectDelay = d
	}
}

type ADS1241 struct {
	config  Opts
	session *session.Session
	device  session.Device
}

func New(s *session.Session, line biosignals.LineID, opts ...Opt) *ADS1241 {
	config := Opts{
		Name:        "ads1241",
		Inputs:      []Input{AIN0},
		Interval:    50 * time.Millisecond,
		SetupDelay:  100 * time.Millisecond,
		SelectDelay: 60 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&config)
	}
	return &ADS1241{
		config:  config,
		session: s,
		device:  session.Device{Name: config.Name, Line: line},
	}
}

func (a *ADS1241) Name() string {
	return a.config.Name
}

func (a *ADS1241) Device() session.Device {
	return a.device
}

func (a *ADS1241) Interval() time.Duration {
	return a.config.Interval
}

// Check always reports the device present: the ADS1241 has no identity
// register to compare against.
func (a *ADS1241) Check(ctx context.Context) (bool, error) {
	return true, nil
}

// Init programs the setup register with unity gain.
func (a *ADS1241) Init(ctx context.Context) error {
	return a.Programme(ctx)
}

// Programme writes the setup register and keeps the device selected for the
// setup delay.
func (a *ADS1241) Programme(ctx context.Context) error {
	err := a.command(ctx, []byte{cmdWREGSetup, 0x00, setupGain1}, a.config.SetupDelay)
	if err != nil {
		return fmt.Errorf("could not program %s setup: %w", a.config.Name, err)
	}
	return nil
}

// SelectInput switches the multiplexer and waits for the conversion on the
// new input, still selected.
func (a *ADS1241) SelectInput(ctx context.Context, in Input) error {
	err := a.command(ctx, []byte{cmdWREGMux, 0x00, byte(in), 0x00}, a.config.SelectDelay)
	if err != nil {
		return fmt.Errorf("could not select %s input %#02x: %w", a.config.Name, byte(in), err)
	}
	return nil
}

func (a *ADS1241) command(ctx context.Context, tx []byte, hold time.Duration) error {
	return a.session.Select(ctx, a.device, func(t biosignals.Transport) error {
		if _, err := t.Exchange(ctx, tx); err != nil {
			return err
		}
		return a.session.Sleep(ctx, hold)
	})
}

// Fetch reads the last conversion result.
func (a *ADS1241) Fetch(ctx context.Context) (int64, error) {
	var data []byte
	err := a.session.Select(ctx, a.device, func(t biosignals.Transport) error {
		if _, err := t.Exchange(ctx, []byte{cmdRDATA}); err != nil {
			return err
		}
		rx, err := t.Exchange(ctx, make([]byte, decode.ADC24.Width))
		if err != nil {
			return err
		}
		data = rx
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("could not fetch %s data: %w", a.config.Name, err)
	}
	return decode.ADC24.Word(data)
}

// Read converts every configured input in turn.
func (a *ADS1241) Read(ctx context.Context) (biosignals.Sample, error) {
	sample := biosignals.Sample{Device: a.config.Name}
	for _, in := range a.config.Inputs {
		if err := a.SelectInput(ctx, in); err != nil {
			return biosignals.Sample{}, err
		}
		raw, err := a.Fetch(ctx)
		if err != nil {
			return biosignals.Sample{}, err
		}
		sample.Fields = append(sample.Fields, biosignals.Field{Name: in.field(), Value: float64(raw)})
	}
	return sample, nil
}
