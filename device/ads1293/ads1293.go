// Package ads1293 drives the TI ADS1293 ECG analog front-end.
//
// The device speaks the plain register protocol with no trailing write
// clocks. Conversion results for channels 1 and 2 are streamed from register
// 0x50 as 24-bit big-endian unsigned codes.
//
// Example usage:
//
//	ecg := ads1293.New(s, "GPIO24", ads1293.WithReadMode(ads1293.ReadCH1))
//	ok, err := ecg.Check(ctx)
//	err = ecg.Init(ctx)
//	sample, err := ecg.Read(ctx)
package ads1293

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mklimuk/biosignals"
	"github.com/mklimuk/biosignals/decode"
	"github.com/mklimuk/biosignals/power"
	"github.com/mklimuk/biosignals/register"
	"github.com/mklimuk/biosignals/session"
)

// --- register map ---
const (
	regConfig   register.Address = 0x00
	regFlexCH1  register.Address = 0x01
	regCMDet    register.Address = 0x0A
	regRLDCN    register.Address = 0x0C
	regOscCN    register.Address = 0x12
	regAFEShdn  register.Address = 0x13
	regAFEFault register.Address = 0x14
	regR2Rate   register.Address = 0x21
	regR3RateC1 register.Address = 0x22
	regR3RateC2 register.Address = 0x23
	regR1Rate   register.Address = 0x25
	regDRDYBSrc register.Address = 0x27
	regChCnfg   register.Address = 0x2F
	regRevID    register.Address = 0x40
	regDataCH1  register.Address = 0x50

	configStop  = 0x00
	configStart = 0x01

	revID = 0x01
)

// Subsystem is the name of the ECG front-end in the power machine.
const Subsystem = "ecg"

// ErrNotStarted is returned by Read before Init completed.
var ErrNotStarted = errors.New("ads1293: conversion not started")

// ECG is the code to voltage transform of the ECG channels.
var ECG = decode.Transform{CodeMax: 0xF30000, VRef: 2.4, Gain: 3.5}

// Profile selects the front-end routing programmed by Init.
type Profile int

const (
	ThreeLead Profile = iota
	OneLead
)

func (p Profile) String() string {
	if p == OneLead {
		return "1-lead"
	}
	return "3-lead"
}

// ReadMode selects how many channels one Read returns.
type ReadMode int

const (
	ReadCH1CH2 ReadMode = iota
	ReadCH1
)

func (m ReadMode) channels() int {
	if m == ReadCH1 {
		return 1
	}
	return 2
}

// threeLead routes IN2/IN1 to CH1 and IN3/IN1 to CH2, uses the internal
// oscillator, right-leg drive on IN4 and a 200 Hz output data rate.
var threeLead = []register.Value{
	{Addr: regConfig, Value: configStop},
	{Addr: regFlexCH1, Value: 0x11},
	{Addr: regCMDet, Value: 0x03},
	{Addr: regRLDCN, Value: 0x04},
	{Addr: regOscCN, Value: 0x04},
	{Addr: regAFEShdn, Value: 0x1B},
	{Addr: regAFEFault, Value: 0x36},
	{Addr: regR2Rate, Value: 0x10},
	{Addr: regR3RateC1, Value: 0x10},
	{Addr: regR3RateC2, Value: 0x10},
	{Addr: regR1Rate, Value: 0x00},
	// data ready follows CH1 ECG
	{Addr: regDRDYBSrc, Value: 0x08},
	// CH1 and CH2 ECG in the loop read-back
	{Addr: regChCnfg, Value: 0x30},
}

// The single lead board uses the same routing; channel 2 simply carries no signal.
var oneLead = threeLead

// Table returns the programming sequence of a profile, without the final
// start conversion write.
func Table(p Profile) []register.Value {
	src := threeLead
	if p == OneLead {
		src = oneLead
	}
	return append([]register.Value(nil), src...)
}

type Opts struct {
	Name      string
	Profile   Profile
	ReadMode  ReadMode
	Interval  time.Duration
	Settle    time.Duration
	Transform decode.Transform
}

type Opt func(*Opts)

func WithName(name string) Opt {
	return func(o *Opts) {
		o.Name = name
	}
}

func WithProfile(p Profile) Opt {
	return func(o *Opts) {
		o.Profile = p
	}
}

func WithReadMode(m ReadMode) Opt {
	return func(o *Opts) {
		o.ReadMode = m
	}
}

// WithInterval sets the pause between two samples when streaming.
func WithInterval(d time.Duration) Opt {
	return func(o *Opts) {
		o.Interval = d
	}
}

// WithSettle sets the wait after the start conversion command.
func WithSettle(d time.Duration) Opt {
	return func(o *Opts) {
		o.Settle = d
	}
}

func WithTransform(t decode.Transform) Opt {
	return func(o *Opts) {
		o.Transform = t
	}
}

// ADS1293 is one ECG front-end on a session.
type ADS1293 struct {
	config  Opts
	session *session.Session
	device  session.Device
	power   *power.Machine
}

func New(s *session.Session, line biosignals.LineID, opts ...Opt) *ADS1293 {
	config := Opts{
		Name:      "ads1293",
		Profile:   ThreeLead,
		ReadMode:  ReadCH1CH2,
		Interval:  5 * time.Millisecond,
		Settle:    power.DefaultSettle,
		Transform: ECG,
	}
	for _, opt := range opts {
		opt(&config)
	}
	dev := session.Device{Name: config.Name, Line: line}
	return &ADS1293{
		config:  config,
		session: s,
		device:  dev,
		power:   power.NewMachine(s, dev, power.DefaultPolicy),
	}
}

func (e *ADS1293) Name() string {
	return e.config.Name
}

func (e *ADS1293) Device() session.Device {
	return e.device
}

func (e *ADS1293) Interval() time.Duration {
	return e.config.Interval
}

// State returns the power state of the ECG front-end.
func (e *ADS1293) State() power.State {
	return e.power.State(Subsystem)
}

// Check stops conversion and compares the revision register with the
// expected value. A mismatch is reported as false with no error.
func (e *ADS1293) Check(ctx context.Context) (bool, error) {
	if err := register.WriteByte(ctx, e.session, e.device, regConfig, configStop); err != nil {
		return false, err
	}
	e.power.Reset()
	rev, err := register.ReadByte(ctx, e.session, e.device, regRevID)
	if err != nil {
		return false, err
	}
	if rev != revID {
		return false, nil
	}
	return true, nil
}

// Init programs the front-end for the configured profile and starts conversion.
func (e *ADS1293) Init(ctx context.Context) error {
	if err := register.WriteAll(ctx, e.session, e.device, Table(e.config.Profile)); err != nil {
		return fmt.Errorf("could not program %s profile: %w", e.config.Profile, err)
	}
	return e.power.Run(ctx, power.Step{
		Subsystem: Subsystem,
		Command:   regConfig,
		Value:     configStart,
		Settle:    e.config.Settle,
	})
}

// Frame reads the raw conversion data of the configured channels.
func (e *ADS1293) Frame(ctx context.Context) ([]byte, error) {
	return register.ReadBurst(ctx, e.session, e.device, regDataCH1, e.config.ReadMode.channels()*decode.ADC24.Width)
}

// Read returns one decoded sample. Codes outside the transform range are
// converted anyway and reported as sample warnings.
func (e *ADS1293) Read(ctx context.Context) (biosignals.Sample, error) {
	if e.State() != power.Ready {
		return biosignals.Sample{}, ErrNotStarted
	}
	frame, err := e.Frame(ctx)
	if err != nil {
		return biosignals.Sample{}, err
	}
	return e.Decode(frame)
}

// Decode turns a CH1 or CH1+CH2 frame into a sample.
func (e *ADS1293) Decode(frame []byte) (biosignals.Sample, error) {
	codes, err := decode.ADC24.Words(frame)
	if err != nil {
		return biosignals.Sample{}, err
	}
	sample := biosignals.Sample{Device: e.config.Name}
	for i, raw := range codes {
		ch := fmt.Sprintf("ch%d", i+1)
		sample.Fields = append(sample.Fields,
			biosignals.Field{Name: ch + "_raw", Value: float64(raw)},
			biosignals.Field{Name: ch + "_ecg_volts", Value: e.config.Transform.Volts(raw)},
		)
		if w := e.config.Transform.Check(ch, raw); w != nil {
			sample.Warnings = append(sample.Warnings, w)
		}
	}
	return sample, nil
}
