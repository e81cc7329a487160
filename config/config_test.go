package config

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gobotspi "gobot.io/x/gobot/v2/drivers/spi"

	"github.com/mklimuk/biosignals"
	"github.com/mklimuk/biosignals/acquire"
	"github.com/mklimuk/biosignals/bustest"
	"github.com/mklimuk/biosignals/device/ads1293"
	"github.com/mklimuk/biosignals/device/bmi160"
	"github.com/mklimuk/biosignals/session"
)

func TestDefault(t *testing.T) {
	s := Default()
	require.NoError(t, s.Validate())
	assert.Equal(t, []biosignals.LineID{"GPIO24", "GPIO23"}, s.LineIDs())
}

func TestDecode_Empty(t *testing.T) {
	s, err := Decode(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), s)
}

const motion = `
platform: raspi
spi:
  bus: 0
  chip: 1
  speed: 1000000
lines: mcp2221
adapter: 1
devices:
  - name: imu
    type: bmi160
    line: GP2
    interval: 20ms
    poll:
      timeout: 500ms
      interval: 2ms
  - name: ecg
    type: ads1293
    line: GP3
    mode: ch1
interleave: 4
output: motion.csv
`

func TestDecode(t *testing.T) {
	s, err := Decode(strings.NewReader(motion))
	require.NoError(t, err)
	assert.Equal(t, PlatformRaspi, s.Platform)
	assert.Equal(t, SPI{Bus: 0, Chip: 1, Speed: 1_000_000, NoCS: true}, s.SPI, "unset keys keep defaults")
	assert.Equal(t, LinesMCP2221, s.Lines)
	assert.Equal(t, 1, s.Adapter)
	require.Len(t, s.Devices, 2)
	imu := s.Devices[0]
	assert.Equal(t, 20*time.Millisecond, imu.Interval)
	assert.Equal(t, Poll{Timeout: 500 * time.Millisecond, Interval: 2 * time.Millisecond}, imu.Poll)
	assert.Equal(t, "ch1", s.Devices[1].Mode)
	assert.Equal(t, 4, s.Interleave)
	assert.Equal(t, "motion.csv", s.Output)
}

func TestDecode_UnknownField(t *testing.T) {
	_, err := Decode(strings.NewReader("platfrom: raspi\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *Session)
	}{
		{"platform", func(s *Session) { s.Platform = "arduino" }},
		{"lines", func(s *Session) { s.Lines = "ftdi" }},
		{"speed", func(s *Session) { s.SPI.Speed = 0 }},
		{"no devices", func(s *Session) { s.Devices = nil }},
		{"duplicate", func(s *Session) { s.Devices[1].Name = "ecg" }},
		{"no name", func(s *Session) { s.Devices[0].Name = "" }},
		{"no line", func(s *Session) { s.Devices[0].Line = "" }},
		{"type", func(s *Session) { s.Devices[0].Type = "max30102" }},
		{"interleave", func(s *Session) {
			s.Devices = s.Devices[:1]
			s.Interleave = 8
		}},
		{"negative interleave", func(s *Session) { s.Interleave = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Default()
			tt.mutate(&s)
			assert.ErrorIs(t, s.Validate(), ErrInvalid)
		})
	}
}

func TestLineIDs_Shared(t *testing.T) {
	s := Default()
	s.Devices = append(s.Devices, Device{Name: "imu", Type: DeviceBMI160, Line: "GPIO24"})
	assert.Equal(t, []biosignals.LineID{"GPIO24", "GPIO23"}, s.LineIDs())
}

func TestDevice(t *testing.T) {
	s := Default()
	d, err := s.Device("")
	require.NoError(t, err)
	assert.Equal(t, "ecg", d.Name)
	d, err = s.Device("grip")
	require.NoError(t, err)
	assert.Equal(t, DeviceADS1241, d.Type)
	_, err = s.Device("imu")
	assert.Error(t, err)
}

func TestMarshal_RoundTrip(t *testing.T) {
	s, err := Decode(strings.NewReader(motion))
	require.NoError(t, err)
	b, err := s.Marshal()
	require.NoError(t, err)
	back, err := Decode(strings.NewReader(string(b)))
	require.NoError(t, err)
	assert.Equal(t, s, back)
}

func testSession(t *testing.T) *session.Session {
	bus := bustest.NewBus()
	s, err := session.New(context.Background(), bus, bus)
	require.NoError(t, err)
	return s
}

func TestSource(t *testing.T) {
	sess := testSession(t)

	src, err := Device{Name: "ecg", Type: DeviceADS1293, Line: "GPIO24", Interval: 10 * time.Millisecond}.Source(sess)
	require.NoError(t, err)
	assert.IsType(t, &ads1293.ADS1293{}, src)
	assert.Equal(t, "ecg", src.Name())
	assert.Equal(t, 10*time.Millisecond, src.Interval())
	assert.Equal(t, biosignals.LineID("GPIO24"), src.Device().Line)

	src, err = Device{Name: "imu", Type: DeviceBMI160, Line: "GPIO24", Mode: "accel3", Unsigned: true}.Source(sess)
	require.NoError(t, err)
	assert.IsType(t, &bmi160.BMI160{}, src)
	assert.Equal(t, 2, src.Device().Protocol.TrailingWriteClocks)

	_, err = Device{Name: "imu", Type: DeviceBMI160, Line: "GPIO24", Mode: "motion9"}.Source(sess)
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = Device{Name: "ecg", Type: DeviceADS1293, Line: "GPIO24", Profile: "5-lead"}.Source(sess)
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = Device{Name: "grip", Type: DeviceADS1241, Line: "GPIO23", Inputs: []string{"ain7"}}.Source(sess)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestPolicy(t *testing.T) {
	p := Device{Poll: Poll{Timeout: time.Second * 3, Legacy: true}}.policy()
	assert.Equal(t, 3*time.Second, p.Timeout)
	assert.Equal(t, time.Millisecond, p.Interval)
	assert.True(t, p.Unbounded)
}

func TestStream(t *testing.T) {
	sess := testSession(t)
	cfg := Default()

	src, err := cfg.Stream(sess, "grip")
	require.NoError(t, err)
	assert.Equal(t, "grip", src.Name())

	cfg.Interleave = 8
	src, err = cfg.Stream(sess, "")
	require.NoError(t, err)
	assert.IsType(t, &acquire.Interleaved{}, src)
	assert.Equal(t, "ecg+grip", src.Name())

	_, err = cfg.Stream(sess, "imu")
	assert.Error(t, err)
}

type fakeConnection struct {
	gobotspi.Connection
}

func (c *fakeConnection) ReadCommandData(command []byte, data []byte) error {
	copy(data, command)
	return nil
}

func (c *fakeConnection) Close() error { return nil }

// fakeBoard stands in for a raspi or nanopi adaptor.
type fakeBoard struct {
	gobotspi.Connector
	connectErr error
	connected  int
	finalized  int
}

func (b *fakeBoard) GetSpiConnection(busNum, chipNum, mode, bits int, maxSpeed int64) (gobotspi.Connection, error) {
	return &fakeConnection{}, nil
}

func (b *fakeBoard) SpiDefaultBusNumber() int  { return 0 }
func (b *fakeBoard) SpiDefaultChipNumber() int { return 0 }
func (b *fakeBoard) SpiDefaultMode() int       { return 0 }
func (b *fakeBoard) SpiDefaultBitCount() int   { return 8 }
func (b *fakeBoard) SpiDefaultMaxSpeed() int64 { return 500_000 }

func (b *fakeBoard) DigitalWrite(pin string, val byte) error { return nil }

func (b *fakeBoard) Connect() error {
	b.connected++
	return b.connectErr
}

func (b *fakeBoard) Finalize() error {
	b.finalized++
	return nil
}

func TestOpenGobotBus_FinalizedWithForeignLines(t *testing.T) {
	board := &fakeBoard{}
	bus, err := openGobotBus(board, Default().SPI)
	require.NoError(t, err)
	assert.Equal(t, 1, board.connected)

	// select lines from another backend, as with lines: mcp2221
	lines := bustest.NewBus()
	sess, err := session.New(context.Background(), bus, lines, session.WithLines("GP2"))
	require.NoError(t, err)
	require.NoError(t, sess.Close(context.Background()))
	assert.Equal(t, 1, board.finalized)
}

func TestOpenGobotBus_ConnectError(t *testing.T) {
	board := &fakeBoard{connectErr: errors.New("no gpiochip")}
	_, err := openGobotBus(board, Default().SPI)
	assert.Error(t, err)
	assert.Zero(t, board.finalized)
}
