package gobotio

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gobot.io/x/gobot/v2/drivers/spi"

	"github.com/mklimuk/biosignals"
)

// MockConnection records full duplex transfers. Operations the bus never
// uses are left to the embedded interface.
type MockConnection struct {
	spi.Connection
	mock.Mock
}

func (m *MockConnection) ReadCommandData(command []byte, data []byte) error {
	args := m.Called(command, len(data))
	if resp, ok := args.Get(0).([]byte); ok {
		copy(data, resp)
	}
	return args.Error(1)
}

func (m *MockConnection) Close() error {
	return nil
}

// fakeAdaptor is a Gobot SPI connector handing out one connection.
type fakeAdaptor struct {
	spi.Connector
	conn      *MockConnection
	err       error
	opened    []int
	finalized int
}

func (a *fakeAdaptor) GetSpiConnection(busNum, chipNum, mode, bits int, maxSpeed int64) (spi.Connection, error) {
	if a.err != nil {
		return nil, a.err
	}
	a.opened = []int{busNum, chipNum, mode, bits, int(maxSpeed)}
	return a.conn, nil
}

func (a *fakeAdaptor) SpiDefaultBusNumber() int  { return 0 }
func (a *fakeAdaptor) SpiDefaultChipNumber() int { return 0 }
func (a *fakeAdaptor) SpiDefaultMode() int       { return 0 }
func (a *fakeAdaptor) SpiDefaultBitCount() int   { return 8 }
func (a *fakeAdaptor) SpiDefaultMaxSpeed() int64 { return 500_000 }

func (a *fakeAdaptor) Finalize() error {
	a.finalized++
	return nil
}

func startedBus(t *testing.T, opts ...func(spi.Config)) (*fakeAdaptor, *Bus) {
	a := &fakeAdaptor{conn: &MockConnection{}}
	b := NewBus(a, opts...)
	require.NoError(t, b.Start())
	return a, b
}

func TestBus_Start(t *testing.T) {
	a, _ := startedBus(t, spi.WithBusNumber(1), spi.WithChipNumber(1))
	assert.Equal(t, []int{1, 1, 0, 8, DefaultSpeed}, a.opened)
}

func TestBus_ExchangeIsFullDuplex(t *testing.T) {
	a, b := startedBus(t)
	a.conn.On("ReadCommandData", []byte{0xD0, 0, 0, 0, 0, 0, 0}, 7).
		Return([]byte{0xFF, 0x00, 0x10, 0x00, 0x00, 0x08, 0x00}, nil)
	rx, err := b.Exchange(context.Background(), []byte{0xD0, 0, 0, 0, 0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0x00, 0x10, 0x00, 0x00, 0x08, 0x00}, rx)
	a.conn.AssertExpectations(t)
}

func TestBus_ExchangeWriteWithTrailingClocks(t *testing.T) {
	a, b := startedBus(t)
	a.conn.On("ReadCommandData", []byte{0x7E, 0x11, 0x00, 0x00}, 4).Return(nil, nil)
	rx, err := b.Exchange(context.Background(), []byte{0x7E, 0x11, 0x00, 0x00})
	require.NoError(t, err)
	assert.Len(t, rx, 4)
	a.conn.AssertExpectations(t)
}

func TestBus_ExchangeError(t *testing.T) {
	a, b := startedBus(t)
	a.conn.On("ReadCommandData", mock.Anything, mock.Anything).Return(nil, errors.New("spidev closed"))
	_, err := b.Exchange(context.Background(), []byte{0x01})
	assert.ErrorIs(t, err, biosignals.ErrBus)
}

func TestBus_NotStarted(t *testing.T) {
	b := NewBus(&fakeAdaptor{conn: &MockConnection{}})
	_, err := b.Exchange(context.Background(), []byte{0x80, 0x00})
	assert.ErrorIs(t, err, biosignals.ErrBus)
}

func TestBus_StartError(t *testing.T) {
	b := NewBus(&fakeAdaptor{err: errors.New("no spidev")})
	assert.Error(t, b.Start())
}

func TestBus_CloseFinalizesAdaptor(t *testing.T) {
	a, b := startedBus(t)
	b.FinalizeOnClose(a)
	require.NoError(t, b.Close())
	assert.Equal(t, 1, a.finalized)
}

type pinRecorder struct {
	pins map[string]byte
	err  error
}

func (p *pinRecorder) DigitalWrite(pin string, val byte) error {
	if p.err != nil {
		return p.err
	}
	p.pins[pin] = val
	return nil
}

func TestLines(t *testing.T) {
	rec := &pinRecorder{pins: map[string]byte{}}
	l := NewLines(rec)
	require.NoError(t, l.SetLine(context.Background(), "18", biosignals.Low))
	require.NoError(t, l.SetLine(context.Background(), "16", biosignals.High))
	assert.Equal(t, map[string]byte{"18": 0, "16": 1}, rec.pins)

	rec.err = errors.New("pin busy")
	assert.Error(t, l.SetLine(context.Background(), "18", biosignals.High))
}
