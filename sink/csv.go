// Package sink provides destinations for decoded samples.
package sink

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/mklimuk/biosignals"
)

// FormatTime renders a timestamp as hours:minutes:seconds:microseconds.
func FormatTime(t time.Time) string {
	return fmt.Sprintf("%s:%06d", t.Format("15:04:05"), t.Nanosecond()/int(time.Microsecond))
}

// CSV writes one row per sample: the timestamp followed by the field values.
// The columns are fixed by the first sample; later samples are matched by
// field name and missing fields are left empty.
type CSV struct {
	mx      sync.Mutex
	w       *csv.Writer
	header  bool
	columns []string
}

type CSVOpt func(*CSV)

// WithHeader writes a header row before the first sample.
func WithHeader() CSVOpt {
	return func(c *CSV) {
		c.header = true
	}
}

// WithColumns fixes the field columns instead of taking them from the first sample.
func WithColumns(names ...string) CSVOpt {
	return func(c *CSV) {
		c.columns = names
	}
}

func NewCSV(w io.Writer, opts ...CSVOpt) *CSV {
	c := &CSV{w: csv.NewWriter(w)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *CSV) Write(ctx context.Context, sample biosignals.Sample) error {
	c.mx.Lock()
	defer c.mx.Unlock()
	if c.columns == nil {
		c.columns = sample.Names()
	}
	if c.header {
		if err := c.w.Write(append([]string{"timestamp"}, c.columns...)); err != nil {
			return fmt.Errorf("could not write csv header: %w", err)
		}
		c.header = false
	}
	row := make([]string, 0, len(c.columns)+1)
	row = append(row, FormatTime(sample.Time))
	for _, name := range c.columns {
		v, ok := sample.Get(name)
		if !ok {
			row = append(row, "")
			continue
		}
		row = append(row, strconv.FormatFloat(v, 'f', -1, 64))
	}
	if err := c.w.Write(row); err != nil {
		return fmt.Errorf("could not write csv row: %w", err)
	}
	c.w.Flush()
	return c.w.Error()
}
