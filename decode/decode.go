// Package decode turns raw sample frames into integer codes and physical values.
//
// Every device uses the same routine: a Layout says how many bytes make one
// word, in which order they arrive and whether the word is two's complement.
package decode

import (
	"errors"
	"fmt"
)

var ErrFrameLength = errors.New("frame length does not match layout")

type ByteOrder int

const (
	BigEndian ByteOrder = iota
	LittleEndian
)

func (o ByteOrder) String() string {
	if o == LittleEndian {
		return "little-endian"
	}
	return "big-endian"
}

// Layout describes one word of a frame.
type Layout struct {
	Width  int // bytes per word, 1..4
	Order  ByteOrder
	Signed bool
}

var (
	// ADC24 is an unsigned 24-bit code sent most significant byte first.
	ADC24 = Layout{Width: 3, Order: BigEndian}
	// IMU16 is a two's complement 16-bit word sent least significant byte first.
	IMU16 = Layout{Width: 2, Order: LittleEndian, Signed: true}
	// IMU16Unsigned keeps the plain unsigned combination of the two bytes.
	IMU16Unsigned = Layout{Width: 2, Order: LittleEndian}
)

func (l Layout) validate() error {
	if l.Width < 1 || l.Width > 4 {
		return fmt.Errorf("invalid word width %d", l.Width)
	}
	return nil
}

// Word assembles exactly one word.
func (l Layout) Word(b []byte) (int64, error) {
	if err := l.validate(); err != nil {
		return 0, err
	}
	if len(b) != l.Width {
		return 0, fmt.Errorf("%w: got %d bytes for a %d byte word", ErrFrameLength, len(b), l.Width)
	}
	var u uint64
	for i := 0; i < l.Width; i++ {
		idx := i
		if l.Order == LittleEndian {
			idx = l.Width - 1 - i
		}
		u = u<<8 | uint64(b[idx])
	}
	if l.Signed {
		bits := uint(l.Width * 8)
		if u&(1<<(bits-1)) != 0 {
			return int64(u) - int64(1)<<bits, nil
		}
	}
	return int64(u), nil
}

// Words splits a frame into consecutive words.
func (l Layout) Words(frame []byte) ([]int64, error) {
	if err := l.validate(); err != nil {
		return nil, err
	}
	if len(frame) == 0 || len(frame)%l.Width != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of %d", ErrFrameLength, len(frame), l.Width)
	}
	res := make([]int64, 0, len(frame)/l.Width)
	for off := 0; off < len(frame); off += l.Width {
		w, err := l.Word(frame[off : off+l.Width])
		if err != nil {
			return nil, err
		}
		res = append(res, w)
	}
	return res, nil
}
