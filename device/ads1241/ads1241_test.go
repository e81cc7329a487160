package ads1241

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/biosignals"
	"github.com/mklimuk/biosignals/bustest"
	"github.com/mklimuk/biosignals/session"
)

const line biosignals.LineID = "GPIO23"

// adc answers RDATA with the code of the currently selected input.
type adc struct {
	mux     byte
	codes   map[byte][]byte
	pending bool
}

func (d *adc) Respond(tx []byte) []byte {
	rx := make([]byte, len(tx))
	switch {
	case d.pending:
		copy(rx, d.codes[d.mux])
		d.pending = false
	case len(tx) == 1 && tx[0] == cmdRDATA:
		d.pending = true
	case len(tx) == 4 && tx[0] == cmdWREGMux:
		d.mux = tx[2]
	}
	return rx
}

func setup(t *testing.T, opts ...Opt) (*bustest.Bus, *adc, *ADS1241) {
	t.Helper()
	bus := bustest.NewBus()
	dev := &adc{codes: map[byte][]byte{
		0x07: {0x12, 0x34, 0x56},
		0x17: {0x00, 0x00, 0x2A},
	}}
	bus.Attach(line, dev)
	s, err := session.New(context.Background(), bus, bus, session.WithLines(line))
	require.NoError(t, err)
	bus.Reset()
	opts = append([]Opt{WithSetupDelay(time.Millisecond), WithSelectDelay(time.Millisecond)}, opts...)
	return bus, dev, New(s, line, opts...)
}

func TestProgramme(t *testing.T) {
	bus, _, a := setup(t)
	require.NoError(t, a.Init(context.Background()))
	assert.Equal(t, [][]byte{{0x50, 0x00, 0x00}}, bus.Exchanges(line))
	assert.Equal(t, biosignals.High, bus.Level(line))
}

func TestSelectInput_HoldsSelection(t *testing.T) {
	bus, _, a := setup(t, WithSelectDelay(20*time.Millisecond))
	start := time.Now()
	require.NoError(t, a.SelectInput(context.Background(), AIN1))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	events := bus.Events()
	require.Len(t, events, 3)
	assert.Equal(t, biosignals.Low, events[0].Level)
	assert.Equal(t, []byte{0x51, 0x00, 0x17, 0x00}, events[1].TX)
	assert.Equal(t, biosignals.High, events[2].Level)
}

func TestFetch(t *testing.T) {
	bus, _, a := setup(t)
	require.NoError(t, a.SelectInput(context.Background(), AIN0))
	bus.Reset()
	raw, err := a.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0x123456), raw)
	assert.Equal(t, [][]byte{{0x01}, {0x00, 0x00, 0x00}}, bus.Exchanges(line))
	lows := 0
	for _, e := range bus.Events() {
		if e.Kind == bustest.EventLine && e.Level == biosignals.Low {
			lows++
		}
	}
	assert.Equal(t, 1, lows, "RDATA and data bytes share one selection")
}

func TestRead(t *testing.T) {
	_, _, a := setup(t)
	sample, err := a.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"ain0_raw"}, sample.Names())
	v, _ := sample.Get("ain0_raw")
	assert.Equal(t, float64(0x123456), v)
	assert.Equal(t, "ads1241", sample.Device)
}

func TestRead_TwoInputs(t *testing.T) {
	_, _, a := setup(t, WithInputs(AIN0, AIN1))
	sample, err := a.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"ain0_raw", "ain1_raw"}, sample.Names())
	v, _ := sample.Get("ain1_raw")
	assert.Equal(t, 42.0, v)
}

func TestCheck(t *testing.T) {
	bus, _, a := setup(t)
	ok, err := a.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, bus.Events())
}

func TestFetch_ShortResponse(t *testing.T) {
	bus, _, a := setup(t)
	bus.Truncate = 1
	_, err := a.Fetch(context.Background())
	assert.ErrorIs(t, err, biosignals.ErrBus)
	assert.Equal(t, biosignals.High, bus.Level(line))
}
