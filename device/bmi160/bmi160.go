// Package bmi160 drives the Bosch BMI160 inertial measurement unit over SPI.
//
// The device needs two extra clocked bytes after every register write and a
// dummy read after reset to latch into SPI mode. Accelerometer and gyroscope
// are powered up one after the other and each reports completion in the
// PMU_STATUS register.
package bmi160

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

// --- register map (datasheet section 2.11) ---
const (
	regChipID    register.Address = 0x00
	regPMUStatus register.Address = 0x03
	regGyroXL    register.Address = 0x0C
	regAccelXL   register.Address = 0x12
	regAccelConf register.Address = 0x40
	regAccelRng  register.Address = 0x41
	regGyroConf  register.Address = 0x42
	regGyroRng   register.Address = 0x43
	regCmd       register.Address = 0x7E
	regSPIMode   register.Address = 0x7F

	chipID = 0xD1

	cmdSoftReset = 0xB6
	cmdAccNormal = 0x11
	cmdGyrNormal = 0x15

	pmuNormal = 0x01
)

var (
	AccPMUStatus = register.Bitfield{Reg: regPMUStatus, Pos: 4, Width: 2}
	GyrPMUStatus = register.Bitfield{Reg: regPMUStatus, Pos: 2, Width: 2}

	GyroRange  = register.Bitfield{Reg: regGyroRng, Pos: 0, Width: 3}
	GyroRate   = register.Bitfield{Reg: regGyroConf, Pos: 0, Width: 4}
	AccelRange = register.Bitfield{Reg: regAccelRng, Pos: 0, Width: 4}
	AccelRate  = register.Bitfield{Reg: regAccelConf, Pos: 0, Width: 4}
)

const (
	GyroRange1000 = 0x01
	AccelRange16G = 0x0C
	Rate100Hz     = 0x08
)

// ErrNotStarted is returned by Read before the sensors were powered up.
var ErrNotStarted = errors.New("bmi160: sensors not powered up")

// Subsystem names in the power machine.
const (
	Accelerometer = "acc"
	Gyroscope     = "gyr"
)

// Protocol of the BMI160 register interface.
var Protocol = session.Protocol{TrailingWriteClocks: 2}

// Packet selects what one Read returns.
type Packet int

const (
	// Motion6 is gyro X,Y,Z followed by accel X,Y,Z.
	Motion6 Packet = iota
	// Accel3 is accel X,Y,Z only.
	Accel3
)

var motion6Fields = []string{"gyro_x_raw", "gyro_y_raw", "gyro_z_raw", "accel_x_raw", "accel_y_raw", "accel_z_raw"}

func (p Packet) start() register.Address {
	if p == Accel3 {
		return regAccelXL
	}
	return regGyroXL
}

// subsystems lists the sensors that must be powered for the packet.
func (p Packet) subsystems() []string {
	if p == Accel3 {
		return []string{Accelerometer}
	}
	return []string{Accelerometer, Gyroscope}
}

func (p Packet) fields() []string {
	if p == Accel3 {
		return motion6Fields[3:]
	}
	return motion6Fields
}

type Opts struct {
	Name       string
	Packet     Packet
	Layout     decode.Layout
	Interval   time.Duration
	ResetDelay time.Duration
	Settle     time.Duration
	Poll       power.Policy
	Settings   []power.Setting
}

type Opt func(*Opts)

func WithName(name string) Opt {
	return func(o *Opts) {
		o.Name = name
	}
}

func WithPacket(p Packet) Opt {
	return func(o *Opts) {
		o.Packet = p
	}
}

// WithUnsignedAxes reads axis words as plain unsigned values instead of two's
// complement. Negative readings then show up as values above 0x7FFF.
func WithUnsignedAxes() Opt {
	return func(o *Opts) {
		o.Layout = decode.IMU16Unsigned
	}
}

func WithInterval(d time.Duration) Opt {
	return func(o *Opts) {
		o.Interval = d
	}
}

// WithResetDelay sets the wait after the soft reset command.
func WithResetDelay(d time.Duration) Opt {
	return func(o *Opts) {
		o.ResetDelay = d
	}
}

// WithSettle sets the wait between a power mode command and the first status poll.
func WithSettle(d time.Duration) Opt {
	return func(o *Opts) {
		o.Settle = d
	}
}

func WithPollPolicy(p power.Policy) Opt {
	return func(o *Opts) {
		o.Poll = p
	}
}

// WithSettings replaces the range and rate configuration written after power-up.
func WithSettings(s ...power.Setting) Opt {
	return func(o *Opts) {
		o.Settings = s
	}
}

// DefaultSettings configure ±1000 °/s, ±16 g and 100 Hz for both sensors.
func DefaultSettings() []power.Setting {
	return []power.Setting{
		{Name: "gyro range", Field: GyroRange, Value: GyroRange1000},
		{Name: "gyro rate", Field: GyroRate, Value: Rate100Hz},
		{Name: "accel range", Field: AccelRange, Value: AccelRange16G},
		{Name: "accel rate", Field: AccelRate, Value: Rate100Hz},
	}
}

// BMI160 is one IMU on a session.
type BMI160 struct {
	config  Opts
	session *session.Session
	device  session.Device
	power   *power.Machine
}

func New(s *session.Session, line biosignals.LineID, opts ...Opt) *BMI160 {
	config := Opts{
		Name:       "bmi160",
		Packet:     Motion6,
		Layout:     decode.IMU16,
		Interval:   100 * time.Millisecond,
		ResetDelay: 100 * time.Millisecond,
		Settle:     power.DefaultSettle,
		Poll:       power.DefaultPolicy,
		Settings:   DefaultSettings(),
	}
	for _, opt := range opts {
		opt(&config)
	}
	dev := session.Device{Name: config.Name, Line: line, Protocol: Protocol}
	return &BMI160{
		config:  config,
		session: s,
		device:  dev,
		power:   power.NewMachine(s, dev, config.Poll),
	}
}

func (m *BMI160) Name() string {
	return m.config.Name
}

func (m *BMI160) Device() session.Device {
	return m.device
}

func (m *BMI160) Interval() time.Duration {
	return m.config.Interval
}

// State returns the power state of a subsystem (Accelerometer or Gyroscope).
func (m *BMI160) State(subsystem string) power.State {
	return m.power.State(subsystem)
}

// Check forces SPI mode with a dummy read and compares the chip id with the
// expected value. A mismatch is reported as false with no error.
func (m *BMI160) Check(ctx context.Context) (bool, error) {
	if _, err := register.ReadByte(ctx, m.session, m.device, regSPIMode); err != nil {
		return false, err
	}
	if err := m.session.Sleep(ctx, time.Millisecond); err != nil {
		return false, err
	}
	id, err := register.ReadByte(ctx, m.session, m.device, regChipID)
	if err != nil {
		return false, err
	}
	return id == chipID, nil
}

// Init resets the device, powers up the accelerometer and the gyroscope in
// normal mode and writes the range and rate configuration.
func (m *BMI160) Init(ctx context.Context) error {
	if err := register.WriteByte(ctx, m.session, m.device, regCmd, cmdSoftReset); err != nil {
		return fmt.Errorf("could not reset %s: %w", m.config.Name, err)
	}
	m.power.Reset()
	if err := m.session.Sleep(ctx, m.config.ResetDelay); err != nil {
		return err
	}
	// the device comes out of reset in I2C mode
	if _, err := register.ReadByte(ctx, m.session, m.device, regSPIMode); err != nil {
		return err
	}
	err := m.power.Run(ctx,
		power.Step{Subsystem: Accelerometer, Command: regCmd, Value: cmdAccNormal, Settle: m.config.Settle, Status: AccPMUStatus, Ready: pmuNormal},
		power.Step{Subsystem: Gyroscope, Command: regCmd, Value: cmdGyrNormal, Settle: m.config.Settle, Status: GyrPMUStatus, Ready: pmuNormal},
	)
	if err != nil {
		return err
	}
	return m.power.Configure(ctx, m.config.Settings...)
}

// Frame reads the raw packet.
func (m *BMI160) Frame(ctx context.Context) ([]byte, error) {
	n := len(m.config.Packet.fields()) * m.config.Layout.Width
	return register.ReadBurst(ctx, m.session, m.device, m.config.Packet.start(), n)
}

// Read returns one decoded packet. It fails with ErrNotStarted until the
// sensors in the packet are powered up.
func (m *BMI160) Read(ctx context.Context) (biosignals.Sample, error) {
	if !m.power.Ready(m.config.Packet.subsystems()...) {
		return biosignals.Sample{}, ErrNotStarted
	}
	frame, err := m.Frame(ctx)
	if err != nil {
		return biosignals.Sample{}, err
	}
	return m.Decode(frame)
}

func (m *BMI160) Decode(frame []byte) (biosignals.Sample, error) {
	words, err := m.config.Layout.Words(frame)
	if err != nil {
		return biosignals.Sample{}, err
	}
	names := m.config.Packet.fields()
	if len(words) != len(names) {
		return biosignals.Sample{}, fmt.Errorf("%w: %d axes for a %d axis packet", decode.ErrFrameLength, len(words), len(names))
	}
	sample := biosignals.Sample{Device: m.config.Name, Fields: make([]biosignals.Field, len(words))}
	for i, w := range words {
		sample.Fields[i] = biosignals.Field{Name: names[i], Value: float64(w)}
	}
	return sample, nil
}
