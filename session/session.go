// Package session owns the shared SPI bus and its select lines.
//
// A Session is created once by the caller and passed to every register
// operation. It admits one selected device at a time: a transaction on one
// device never interleaves with a transaction on another.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"

	"github.com/mklimuk/biosignals"
	"github.com/mklimuk/biosignals/snsctx"
)

var ErrClosed = errors.New("session closed")

// Protocol carries per-device register protocol details.
type Protocol struct {
	// TrailingWriteClocks is the number of don't-care bytes clocked out after a
	// register write while the device is still selected. Some devices need the
	// extra clocks to complete the internal write.
	TrailingWriteClocks int
}

// Device identifies one physical sensor on the bus.
type Device struct {
	Name     string
	Line     biosignals.LineID
	Protocol Protocol
}

func (d Device) String() string {
	return fmt.Sprintf("%s@%s", d.Name, d.Line)
}

type Opts struct {
	Clock clock.Clock
	// Lines are driven high (deselected) when the session opens and when it closes.
	Lines []biosignals.LineID
}

type Opt func(*Opts)

func WithClock(c clock.Clock) Opt {
	return func(o *Opts) {
		o.Clock = c
	}
}

func WithLines(ids ...biosignals.LineID) Opt {
	return func(o *Opts) {
		o.Lines = append(o.Lines, ids...)
	}
}

type Session struct {
	transport biosignals.Transport
	lines     biosignals.LineDriver
	clock     clock.Clock

	// slot holds a token while a device is selected
	slot chan struct{}

	mx       sync.Mutex
	known    map[biosignals.LineID]struct{}
	selected biosignals.LineID
	closed   bool
}

// New opens a session and deselects every known line so no device listens
// before its first transaction.
func New(ctx context.Context, transport biosignals.Transport, lines biosignals.LineDriver, opts ...Opt) (*Session, error) {
	config := Opts{Clock: clock.New()}
	for _, opt := range opts {
		opt(&config)
	}
	s := &Session{
		transport: transport,
		lines:     lines,
		clock:     config.Clock,
		slot:      make(chan struct{}, 1),
		known:     make(map[biosignals.LineID]struct{}),
	}
	for _, id := range config.Lines {
		if err := s.lines.SetLine(ctx, id, biosignals.High); err != nil {
			return nil, fmt.Errorf("could not deselect line %s: %w", id, err)
		}
		s.known[id] = struct{}{}
	}
	return s, nil
}

func (s *Session) Clock() clock.Clock {
	return s.clock
}

// Selected returns the line currently asserted, if any.
func (s *Session) Selected() (biosignals.LineID, bool) {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.selected, s.selected != ""
}

// Select asserts the device's line, runs body and deasserts the line on every
// exit path. Callers queue while another device is selected; a caller whose
// context ends while queued gets ErrBusBusy. body must not call Select.
func (s *Session) Select(ctx context.Context, dev Device, body func(biosignals.Transport) error) (err error) {
	if dev.Line == "" {
		return fmt.Errorf("device %q has no select line", dev.Name)
	}
	select {
	case s.slot <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("%w: could not select %s: %w", biosignals.ErrBusBusy, dev, ctx.Err())
	}
	defer func() { <-s.slot }()

	s.mx.Lock()
	if s.closed {
		s.mx.Unlock()
		return ErrClosed
	}
	s.known[dev.Line] = struct{}{}
	s.mx.Unlock()

	if err := s.lines.SetLine(ctx, dev.Line, biosignals.Low); err != nil {
		// the line may be half driven, make sure it ends up idle
		_ = s.lines.SetLine(context.WithoutCancel(ctx), dev.Line, biosignals.High)
		return fmt.Errorf("could not select %s: %w", dev, err)
	}
	s.setSelected(dev.Line)
	defer func() {
		releaseErr := s.lines.SetLine(context.WithoutCancel(ctx), dev.Line, biosignals.High)
		s.setSelected("")
		if releaseErr != nil {
			err = multierr.Append(err, fmt.Errorf("could not deselect %s: %w", dev, releaseErr))
		}
	}()
	return body(&selectedTransport{ctxDevice: dev.Name, transport: s.transport})
}

func (s *Session) setSelected(id biosignals.LineID) {
	s.mx.Lock()
	s.selected = id
	s.mx.Unlock()
}

// Sleep blocks for d on the session clock or until the context ends.
func (s *Session) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := s.clock.Timer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close deselects every line the session has touched and closes the transport
// and the line driver when they hold resources. It waits for a selected
// device to be released; if ctx ends first nothing is closed and ErrBusBusy
// is returned.
func (s *Session) Close(ctx context.Context) error {
	select {
	case s.slot <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("%w: could not close session: %w", biosignals.ErrBusBusy, ctx.Err())
	}
	defer func() { <-s.slot }()
	s.mx.Lock()
	if s.closed {
		s.mx.Unlock()
		return nil
	}
	s.closed = true
	known := make([]biosignals.LineID, 0, len(s.known))
	for id := range s.known {
		known = append(known, id)
	}
	s.mx.Unlock()

	var err error
	for _, id := range known {
		if lineErr := s.lines.SetLine(ctx, id, biosignals.High); lineErr != nil {
			err = multierr.Append(err, fmt.Errorf("could not deselect line %s: %w", id, lineErr))
		}
	}
	if c, ok := s.transport.(io.Closer); ok {
		err = multierr.Append(err, c.Close())
	}
	if c, ok := s.lines.(io.Closer); ok && !sameValue(s.lines, s.transport) {
		err = multierr.Append(err, c.Close())
	}
	slog.Debug("session closed", "lines", len(known), "error", err)
	return err
}

func sameValue(a, b any) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta == nil || ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}

type selectedTransport struct {
	ctxDevice string
	transport biosignals.Transport
}

func (t *selectedTransport) Exchange(ctx context.Context, tx []byte) ([]byte, error) {
	ctx = snsctx.WithDevice(ctx, t.ctxDevice)
	snsctx.Dump(ctx, "tx", tx)
	rx, err := t.transport.Exchange(ctx, tx)
	if err != nil {
		if errors.Is(err, biosignals.ErrBus) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", biosignals.ErrBus, err)
	}
	if err := biosignals.CheckExchange(tx, rx); err != nil {
		return nil, err
	}
	snsctx.Dump(ctx, "rx", rx)
	return rx, nil
}
