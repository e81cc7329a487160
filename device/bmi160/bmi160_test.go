package bmi160

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/biosignals"
	"github.com/mklimuk/biosignals/bustest"
	"github.com/mklimuk/biosignals/power"
	"github.com/mklimuk/biosignals/session"
)

const line biosignals.LineID = "GPIO24"

// emulate answers power mode commands the way the device does: the PMU
// status of a sensor switches to normal once its command is written.
func emulate(regs *bustest.Registers) {
	regs.OnWrite = func(r *bustest.Registers, addr, value byte) {
		if addr != 0x7E {
			return
		}
		switch value {
		case 0xB6:
			r.Map[0x03] = 0x00
			r.Map[0x40] = 0x28
			r.Map[0x41] = 0x03
			r.Map[0x42] = 0x28
			r.Map[0x43] = 0x00
		case 0x11:
			r.Map[0x03] = AccPMUStatus.Insert(r.Map[0x03], 1)
		case 0x15:
			r.Map[0x03] = GyrPMUStatus.Insert(r.Map[0x03], 1)
		}
	}
}

func setup(t *testing.T, opts ...Opt) (*bustest.Bus, *bustest.Registers, *BMI160) {
	t.Helper()
	bus := bustest.NewBus()
	regs := bustest.NewRegisters()
	regs.Set(0x00, 0xD1)
	bus.Attach(line, regs)
	s, err := session.New(context.Background(), bus, bus, session.WithLines(line))
	require.NoError(t, err)
	bus.Reset()
	opts = append([]Opt{WithResetDelay(time.Millisecond), WithSettle(time.Millisecond)}, opts...)
	return bus, regs, New(s, line, opts...)
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name string
		id   byte
		want bool
	}{
		{name: "bmi160", id: 0xD1, want: true},
		{name: "no device", id: 0x00, want: false},
		{name: "floating bus", id: 0xFF, want: false},
		{name: "bmi150", id: 0xD0, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus, regs, imu := setup(t)
			regs.Set(0x00, tt.id)
			ok, err := imu.Check(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
			assert.Equal(t, [][]byte{{0xFF, 0x00}, {0x80, 0x00}}, bus.Exchanges(line))
		})
	}
}

func TestInit(t *testing.T) {
	bus, regs, imu := setup(t)
	emulate(regs)
	require.NoError(t, imu.Init(context.Background()))
	assert.Equal(t, power.Ready, imu.State(Accelerometer))
	assert.Equal(t, power.Ready, imu.State(Gyroscope))

	writes := regs.Writes()
	require.Len(t, writes, 7)
	assert.Equal(t, []bustest.Write{{Addr: 0x7E, Value: 0xB6}, {Addr: 0x7E, Value: 0x11}, {Addr: 0x7E, Value: 0x15}}, writes[:3])
	assert.Equal(t, byte(0x01), regs.Get(0x43)&0x07)
	assert.Equal(t, byte(0x28), regs.Get(0x42), "upper bits of GYR_CONF are kept")
	assert.Equal(t, byte(0x0C), regs.Get(0x41))
	assert.Equal(t, byte(0x28), regs.Get(0x40))

	// every write carries the two trailing clocks
	for _, tx := range bus.Exchanges(line) {
		if tx[0]&0x80 == 0 {
			assert.Len(t, tx, 4)
		}
	}
	assert.Empty(t, bus.Violations())
}

func TestInit_DummyReadAfterReset(t *testing.T) {
	bus, regs, imu := setup(t)
	emulate(regs)
	require.NoError(t, imu.Init(context.Background()))
	ex := bus.Exchanges(line)
	require.GreaterOrEqual(t, len(ex), 3)
	assert.Equal(t, []byte{0x7E, 0xB6, 0x00, 0x00}, ex[0])
	assert.Equal(t, []byte{0xFF, 0x00}, ex[1])
	assert.Equal(t, []byte{0x7E, 0x11, 0x00, 0x00}, ex[2])
}

func TestInit_GyroNeverReady(t *testing.T) {
	_, regs, imu := setup(t, WithPollPolicy(power.Policy{Timeout: 10 * time.Millisecond, Interval: time.Millisecond}))
	emulate(regs)
	base := regs.OnWrite
	regs.OnWrite = func(r *bustest.Registers, addr, value byte) {
		if addr == 0x7E && value == 0x15 {
			return
		}
		base(r, addr, value)
	}
	err := imu.Init(context.Background())
	assert.ErrorIs(t, err, power.ErrInitTimeout)
	assert.Equal(t, power.Ready, imu.State(Accelerometer))
	assert.Equal(t, power.Faulted, imu.State(Gyroscope))
	assert.Len(t, regs.Writes(), 3, "no configuration after a failed power-up")
}

// started powers the sensors up and clears the recorded traffic.
func started(t *testing.T, opts ...Opt) (*bustest.Bus, *bustest.Registers, *BMI160) {
	t.Helper()
	bus, regs, imu := setup(t, opts...)
	emulate(regs)
	require.NoError(t, imu.Init(context.Background()))
	bus.Reset()
	return bus, regs, imu
}

func TestRead_NotStarted(t *testing.T) {
	bus, _, imu := setup(t)
	_, err := imu.Read(context.Background())
	assert.ErrorIs(t, err, ErrNotStarted)
	assert.Empty(t, bus.Exchanges(line), "no burst before power-up")
}

func TestRead_GyroFaulted(t *testing.T) {
	_, regs, imu := setup(t, WithPollPolicy(power.Policy{Timeout: 5 * time.Millisecond, Interval: time.Millisecond}))
	emulate(regs)
	base := regs.OnWrite
	regs.OnWrite = func(r *bustest.Registers, addr, value byte) {
		if addr == 0x7E && value == 0x15 {
			return
		}
		base(r, addr, value)
	}
	require.Error(t, imu.Init(context.Background()))
	_, err := imu.Read(context.Background())
	assert.ErrorIs(t, err, ErrNotStarted, "motion packet needs the gyroscope")
}

func TestRead_Motion6(t *testing.T) {
	bus, regs, imu := started(t)
	frame := []byte{0x10, 0x00, 0x20, 0x00, 0x30, 0x00, 0x40, 0x00, 0x50, 0x00, 0x60, 0x00}
	for i, b := range frame {
		regs.Set(0x0C+byte(i), b)
	}
	sample, err := imu.Read(context.Background())
	require.NoError(t, err)
	ex := bus.Exchanges(line)
	require.Len(t, ex, 1)
	assert.Equal(t, byte(0x8C), ex[0][0])
	assert.Len(t, ex[0], 13)
	assert.Equal(t, []string{"gyro_x_raw", "gyro_y_raw", "gyro_z_raw", "accel_x_raw", "accel_y_raw", "accel_z_raw"}, sample.Names())
	var values []float64
	for _, f := range sample.Fields {
		values = append(values, f.Value)
	}
	assert.Equal(t, []float64{16, 32, 48, 64, 80, 96}, values)
}

func TestRead_Accel3(t *testing.T) {
	bus, regs, imu := started(t, WithPacket(Accel3))
	for i, b := range []byte{0x40, 0x00, 0x50, 0x00, 0x60, 0x00} {
		regs.Set(0x12+byte(i), b)
	}
	sample, err := imu.Read(context.Background())
	require.NoError(t, err)
	ex := bus.Exchanges(line)
	require.Len(t, ex, 1)
	assert.Equal(t, byte(0x92), ex[0][0])
	assert.Len(t, ex[0], 7)
	assert.Equal(t, []string{"accel_x_raw", "accel_y_raw", "accel_z_raw"}, sample.Names())
	z, _ := sample.Get("accel_z_raw")
	assert.Equal(t, 96.0, z)
}

func TestDecode_Signedness(t *testing.T) {
	frame := []byte{0xFF, 0xFF, 0x00, 0x80, 0xFF, 0x7F}
	_, _, signed := setup(t, WithPacket(Accel3))
	s, err := signed.Decode(frame)
	require.NoError(t, err)
	x, _ := s.Get("accel_x_raw")
	y, _ := s.Get("accel_y_raw")
	z, _ := s.Get("accel_z_raw")
	assert.Equal(t, []float64{-1, -32768, 32767}, []float64{x, y, z})

	_, _, legacy := setup(t, WithPacket(Accel3), WithUnsignedAxes())
	s, err = legacy.Decode(frame)
	require.NoError(t, err)
	x, _ = s.Get("accel_x_raw")
	y, _ = s.Get("accel_y_raw")
	assert.Equal(t, 65535.0, x)
	assert.Equal(t, 32768.0, y)
}

func TestDecode_WrongPacketSize(t *testing.T) {
	_, _, imu := setup(t)
	_, err := imu.Decode(make([]byte, 6))
	assert.Error(t, err)
}
