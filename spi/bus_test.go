package spi

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"

	"github.com/mklimuk/biosignals"
)

type loopback struct {
	err  error
	sent [][]byte
}

func (l *loopback) Tx(w, r []byte) error {
	if l.err != nil {
		return l.err
	}
	l.sent = append(l.sent, append([]byte(nil), w...))
	for i := range w {
		r[i] = ^w[i]
	}
	return nil
}

func TestGenericBus_Exchange(t *testing.T) {
	conn := &loopback{}
	b := &GenericBus{conn: conn}
	rx, err := b.Exchange(context.Background(), []byte{0xC0, 0x00})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x3F, 0xFF}, rx)
	assert.Equal(t, [][]byte{{0xC0, 0x00}}, conn.sent)
	assert.NoError(t, b.Close())
}

func TestGenericBus_Error(t *testing.T) {
	b := &GenericBus{conn: &loopback{err: errors.New("ioctl failed")}}
	_, err := b.Exchange(context.Background(), []byte{0x01})
	assert.ErrorIs(t, err, biosignals.ErrBus)
}

func TestGPIOLines(t *testing.T) {
	cs1 := &gpiotest.Pin{N: "GPIO24", Num: 24}
	cs2 := &gpiotest.Pin{N: "GPIO23", Num: 23}
	l := NewPinLines(map[biosignals.LineID]gpio.PinOut{"GPIO24": cs1, "GPIO23": cs2})
	ctx := context.Background()
	require.NoError(t, l.SetLine(ctx, "GPIO24", biosignals.High))
	require.NoError(t, l.SetLine(ctx, "GPIO23", biosignals.Low))
	assert.Equal(t, gpio.High, cs1.Read())
	assert.Equal(t, gpio.Low, cs2.Read())
	assert.Error(t, l.SetLine(ctx, "GPIO25", biosignals.Low))
}
