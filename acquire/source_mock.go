package acquire

import (
	"context"
	"sync"
	"time"

	"github.com/mklimuk/biosignals"
)

type (
	CheckBehaviorFunc func(ctx context.Context, attempt int) (bool, error)
	InitBehaviorFunc  func(ctx context.Context) error
	ReadBehaviorFunc  func(ctx context.Context, n int) (biosignals.Sample, error)
)

// MockSource is a Source whose answers come from behavior functions so the
// acquisition cycle can run without hardware. Nil behaviors succeed: the
// device is found on the first check, init does nothing and reads return an
// empty sample.
//
// Example usage:
//
//	src := NewMockSource("ecg", 5*time.Millisecond)
//	src.OnRead = func(ctx context.Context, n int) (biosignals.Sample, error) {
//		return biosignals.Sample{Fields: []biosignals.Field{{Name: "ch1_raw", Value: float64(n)}}}, nil
//	}
type MockSource struct {
	name     string
	interval time.Duration

	OnCheck CheckBehaviorFunc
	OnInit  InitBehaviorFunc
	OnRead  ReadBehaviorFunc

	mx     sync.Mutex
	checks int
	inits  int
	reads  int
}

func NewMockSource(name string, interval time.Duration) *MockSource {
	return &MockSource{name: name, interval: interval}
}

func (m *MockSource) Name() string {
	return m.name
}

func (m *MockSource) Interval() time.Duration {
	return m.interval
}

func (m *MockSource) Check(ctx context.Context) (bool, error) {
	m.mx.Lock()
	m.checks++
	n := m.checks
	m.mx.Unlock()
	if m.OnCheck == nil {
		return true, nil
	}
	return m.OnCheck(ctx, n)
}

func (m *MockSource) Init(ctx context.Context) error {
	m.mx.Lock()
	m.inits++
	m.mx.Unlock()
	if m.OnInit == nil {
		return nil
	}
	return m.OnInit(ctx)
}

func (m *MockSource) Read(ctx context.Context) (biosignals.Sample, error) {
	m.mx.Lock()
	n := m.reads
	m.reads++
	m.mx.Unlock()
	if m.OnRead == nil {
		return biosignals.Sample{}, nil
	}
	return m.OnRead(ctx, n)
}

// Calls returns how many times Check, Init and Read were called.
func (m *MockSource) Calls() (checks, inits, reads int) {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.checks, m.inits, m.reads
}
