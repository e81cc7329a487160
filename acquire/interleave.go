package acquire

import (
	"context"
	"fmt"
	"time"

	"github.com/mklimuk/biosignals"
)

// Interleaved reads a slow source once every Ratio reads of a fast source
// and merges its fields into that sample. Both sources share one session so
// their transactions never overlap.
type Interleaved struct {
	fast  Source
	slow  Source
	ratio int
	count int
}

// Interleave combines two sources; ratio below 1 is treated as 1.
func Interleave(fast, slow Source, ratio int) *Interleaved {
	if ratio < 1 {
		ratio = 1
	}
	return &Interleaved{fast: fast, slow: slow, ratio: ratio}
}

func (i *Interleaved) Name() string {
	return i.fast.Name() + "+" + i.slow.Name()
}

func (i *Interleaved) Interval() time.Duration {
	return i.fast.Interval()
}

// Check succeeds only when both devices answer.
func (i *Interleaved) Check(ctx context.Context) (bool, error) {
	for _, src := range []Source{i.fast, i.slow} {
		ok, err := src.Check(ctx)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func (i *Interleaved) Init(ctx context.Context) error {
	for _, src := range []Source{i.fast, i.slow} {
		if err := src.Init(ctx); err != nil {
			return fmt.Errorf("could not initialize %s: %w", src.Name(), err)
		}
	}
	i.count = 0
	return nil
}

// Read reads the fast source; on every Ratio-th call it reads the slow source
// first and appends its fields after the fast ones.
func (i *Interleaved) Read(ctx context.Context) (biosignals.Sample, error) {
	var slow *biosignals.Sample
	if i.count%i.ratio == 0 {
		s, err := i.slow.Read(ctx)
		if err != nil {
			return biosignals.Sample{}, err
		}
		slow = &s
	}
	i.count++
	sample, err := i.fast.Read(ctx)
	if err != nil {
		return biosignals.Sample{}, err
	}
	sample.Device = i.Name()
	if slow != nil {
		sample.Fields = append(sample.Fields, slow.Fields...)
		sample.Warnings = append(sample.Warnings, slow.Warnings...)
	}
	return sample, nil
}
