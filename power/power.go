// Package power drives device power-up sequences: issue a mode command, let
// the device settle, then poll a status bit-field until it reports ready.
package power

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mklimuk/biosignals/register"
	"github.com/mklimuk/biosignals/session"
)

var ErrInitTimeout = errors.New("subsystem did not report ready in time")

type State int

const (
	Unpowered State = iota
	PoweringUp
	Ready
	Faulted
)

func (s State) String() string {
	switch s {
	case Unpowered:
		return "unpowered"
	case PoweringUp:
		return "powering-up"
	case Ready:
		return "ready"
	case Faulted:
		return "faulted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// DefaultSettle is the wait between a mode command and the first status poll.
const DefaultSettle = 100 * time.Millisecond

// Step powers one subsystem.
type Step struct {
	Subsystem string
	Command   register.Address
	Value     byte
	Settle    time.Duration
	// Status is polled until it equals Ready. A zero-width Status skips polling.
	Status register.Bitfield
	Ready  byte
}

// Policy bounds the status poll.
type Policy struct {
	Timeout  time.Duration
	Interval time.Duration
	// Unbounded polls until the status is ready or the context ends, ignoring
	// Timeout.
	Unbounded bool
}

var DefaultPolicy = Policy{Timeout: time.Second, Interval: time.Millisecond}

// Setting is a configuration bit-field write applied after power-up.
type Setting struct {
	Name  string
	Field register.Bitfield
	Value byte
}

// Machine tracks the power state of every subsystem of one device.
type Machine struct {
	session *session.Session
	device  session.Device
	policy  Policy

	mx     sync.RWMutex
	states map[string]State
}

func NewMachine(s *session.Session, dev session.Device, policy Policy) *Machine {
	if policy.Interval <= 0 {
		policy.Interval = DefaultPolicy.Interval
	}
	if policy.Timeout <= 0 && !policy.Unbounded {
		policy.Timeout = DefaultPolicy.Timeout
	}
	return &Machine{
		session: s,
		device:  dev,
		policy:  policy,
		states:  make(map[string]State),
	}
}

// State returns the power state of a subsystem; unknown subsystems are Unpowered.
func (m *Machine) State(subsystem string) State {
	m.mx.RLock()
	defer m.mx.RUnlock()
	return m.states[subsystem]
}

// Ready reports whether every listed subsystem is Ready.
func (m *Machine) Ready(subsystems ...string) bool {
	m.mx.RLock()
	defer m.mx.RUnlock()
	for _, sub := range subsystems {
		if m.states[sub] != Ready {
			return false
		}
	}
	return true
}

func (m *Machine) set(subsystem string, st State) {
	m.mx.Lock()
	prev := m.states[subsystem]
	m.states[subsystem] = st
	m.mx.Unlock()
	if prev != st {
		slog.Debug("power state", "device", m.device.Name, "subsystem", subsystem, "from", prev, "to", st)
	}
}

// Reset marks every subsystem Unpowered, e.g. after a soft reset command.
func (m *Machine) Reset() {
	m.mx.Lock()
	for sub := range m.states {
		m.states[sub] = Unpowered
	}
	m.mx.Unlock()
}

// Run executes the steps in order and stops at the first failure.
func (m *Machine) Run(ctx context.Context, steps ...Step) error {
	for _, step := range steps {
		if err := m.run(ctx, step); err != nil {
			return err
		}
	}
	return nil
}

func (m *Machine) run(ctx context.Context, step Step) error {
	m.set(step.Subsystem, PoweringUp)
	err := register.WriteByte(ctx, m.session, m.device, step.Command, step.Value)
	if err != nil {
		m.set(step.Subsystem, Faulted)
		return fmt.Errorf("could not power up %s: %w", step.Subsystem, err)
	}
	settle := step.Settle
	if settle == 0 {
		settle = DefaultSettle
	}
	if err := m.session.Sleep(ctx, settle); err != nil {
		m.set(step.Subsystem, Faulted)
		return err
	}
	if step.Status.Width == 0 {
		m.set(step.Subsystem, Ready)
		return nil
	}
	if err := m.poll(ctx, step); err != nil {
		m.set(step.Subsystem, Faulted)
		return err
	}
	m.set(step.Subsystem, Ready)
	return nil
}

func (m *Machine) poll(ctx context.Context, step Step) error {
	clk := m.session.Clock()
	deadline := clk.Now().Add(m.policy.Timeout)
	attempts := 0
	var last byte
	for {
		attempts++
		v, err := register.ReadBitfield(ctx, m.session, m.device, step.Status)
		if err != nil {
			return fmt.Errorf("could not poll %s status: %w", step.Subsystem, err)
		}
		if v == step.Ready {
			slog.Debug("subsystem ready", "device", m.device.Name, "subsystem", step.Subsystem, "polls", attempts)
			return nil
		}
		last = v
		if !m.policy.Unbounded && !clk.Now().Before(deadline) {
			return fmt.Errorf("%w: %s %s status %s is %#x after %d polls, want %#x",
				ErrInitTimeout, m.device.Name, step.Subsystem, step.Status, last, attempts, step.Ready)
		}
		if err := m.session.Sleep(ctx, m.policy.Interval); err != nil {
			return err
		}
	}
}

// Configure applies configuration bit-field writes in order.
func (m *Machine) Configure(ctx context.Context, settings ...Setting) error {
	for _, s := range settings {
		if err := register.WriteBitfield(ctx, m.session, m.device, s.Field, s.Value); err != nil {
			return fmt.Errorf("could not configure %s: %w", s.Name, err)
		}
	}
	return nil
}
