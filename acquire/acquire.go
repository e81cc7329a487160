// Package acquire runs the device check, initialization and streaming cycle
// of one sample source on a session.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/mklimuk/biosignals"
	"github.com/mklimuk/biosignals/power"
	"github.com/mklimuk/biosignals/session"
)

// Source is a device driver able to take part in the acquisition cycle.
type Source interface {
	Name() string
	// Check reports whether the expected device answers on the bus.
	Check(ctx context.Context) (bool, error)
	Init(ctx context.Context) error
	Read(ctx context.Context) (biosignals.Sample, error)
	// Interval is the pause between two reads while streaming.
	Interval() time.Duration
}

// Sink receives every decoded sample in order.
type Sink interface {
	Write(ctx context.Context, sample biosignals.Sample) error
}

type SinkFunc func(ctx context.Context, sample biosignals.Sample) error

func (f SinkFunc) Write(ctx context.Context, sample biosignals.Sample) error {
	return f(ctx, sample)
}

type State int

const (
	Idle State = iota
	DeviceCheck
	Initializing
	Streaming
	Faulted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case DeviceCheck:
		return "device-check"
	case Initializing:
		return "initializing"
	case Streaming:
		return "streaming"
	case Faulted:
		return "faulted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

const DefaultBackoff = 100 * time.Millisecond

type Opts struct {
	// Backoff is the wait between two failed device checks.
	Backoff time.Duration
	// Limit stops streaming after that many samples; 0 streams until the
	// context ends.
	Limit int
	// OnState is called on every state change.
	OnState func(State)
}

type Opt func(*Opts)

func WithBackoff(d time.Duration) Opt {
	return func(o *Opts) {
		o.Backoff = d
	}
}

func WithLimit(n int) Opt {
	return func(o *Opts) {
		o.Limit = n
	}
}

func WithStateHook(f func(State)) Opt {
	return func(o *Opts) {
		o.OnState = f
	}
}

// Loop owns the session for the duration of Run and releases it when Run returns.
type Loop struct {
	config  Opts
	session *session.Session
	source  Source
	sink    Sink

	mx      sync.Mutex
	state   State
	samples int
}

func NewLoop(s *session.Session, source Source, sink Sink, opts ...Opt) *Loop {
	config := Opts{Backoff: DefaultBackoff}
	for _, opt := range opts {
		opt(&config)
	}
	return &Loop{
		config:  config,
		session: s,
		source:  source,
		sink:    sink,
	}
}

func (l *Loop) State() State {
	l.mx.Lock()
	defer l.mx.Unlock()
	return l.state
}

// Samples returns the number of samples delivered to the sink.
func (l *Loop) Samples() int {
	l.mx.Lock()
	defer l.mx.Unlock()
	return l.samples
}

func (l *Loop) setState(st State) {
	l.mx.Lock()
	prev := l.state
	l.state = st
	l.mx.Unlock()
	if prev == st {
		return
	}
	slog.Debug("acquisition state", "source", l.source.Name(), "from", prev, "to", st)
	if l.config.OnState != nil {
		l.config.OnState(st)
	}
}

// Run checks for the device until it answers, initializes it and streams
// samples to the sink. It returns when the context ends, the sample limit is
// reached or a fatal error occurs; bus and init timeout errors are fatal.
// Every select line is deasserted and the session closed before Run returns.
func (l *Loop) Run(ctx context.Context) (err error) {
	defer func() {
		if err != nil {
			l.setState(Faulted)
		} else {
			l.setState(Idle)
		}
		if closeErr := l.session.Close(context.WithoutCancel(ctx)); closeErr != nil {
			err = multierr.Append(err, fmt.Errorf("could not release session: %w", closeErr))
		}
	}()
	if err := l.check(ctx); err != nil {
		return err
	}
	l.setState(Initializing)
	if err := l.source.Init(ctx); err != nil {
		if errors.Is(err, power.ErrInitTimeout) {
			slog.Error("device did not power up", "source", l.source.Name(), "error", err)
		}
		return fmt.Errorf("could not initialize %s: %w", l.source.Name(), err)
	}
	slog.Info("device initialized", "source", l.source.Name())
	l.setState(Streaming)
	return l.stream(ctx)
}

func (l *Loop) check(ctx context.Context) error {
	l.setState(DeviceCheck)
	attempt := 0
	for {
		attempt++
		ok, err := l.source.Check(ctx)
		switch {
		case err != nil && (errors.Is(err, biosignals.ErrBus) || ctx.Err() != nil):
			return fmt.Errorf("could not check %s: %w", l.source.Name(), err)
		case err != nil:
			slog.Warn("device check failed", "source", l.source.Name(), "attempt", attempt, "error", err)
		case ok:
			slog.Info("device found", "source", l.source.Name(), "attempts", attempt)
			return nil
		default:
			slog.Debug("device check", "source", l.source.Name(), "attempt", attempt, "error", biosignals.ErrDeviceNotFound)
		}
		if err := l.session.Sleep(ctx, l.config.Backoff); err != nil {
			return err
		}
	}
}

func (l *Loop) stream(ctx context.Context) error {
	clk := l.session.Clock()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		sample, err := l.source.Read(ctx)
		if err != nil {
			return fmt.Errorf("could not read %s: %w", l.source.Name(), err)
		}
		if sample.Time.IsZero() {
			sample.Time = clk.Now()
		}
		if sample.Device == "" {
			sample.Device = l.source.Name()
		}
		for _, w := range sample.Warnings {
			slog.Warn("sample warning", "source", sample.Device, "warning", w)
		}
		if err := l.sink.Write(ctx, sample); err != nil {
			return fmt.Errorf("could not deliver %s sample: %w", sample.Device, err)
		}
		l.mx.Lock()
		l.samples++
		done := l.config.Limit > 0 && l.samples >= l.config.Limit
		l.mx.Unlock()
		if done {
			return nil
		}
		if err := l.session.Sleep(ctx, l.source.Interval()); err != nil {
			return err
		}
	}
}
