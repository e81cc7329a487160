// Package register implements single byte, burst and bit-field access to
// 8-bit device registers over a session.
//
// A read is one selection exchanging the command byte (address with the read
// bit set) followed by one don't-care byte per requested register. A write is
// one selection exchanging the address and the value, followed by the
// device's trailing clocks.
package register

import (
	"context"
	"errors"
	"fmt"

	"github.com/mklimuk/biosignals"
	"github.com/mklimuk/biosignals/session"
)

// ReadBit marks a command byte as a read. It is never part of an Address.
const ReadBit = 0x80

// Width of every register handled here.
const Width = 8

var (
	ErrInvalidAddress  = errors.New("invalid register address")
	ErrInvalidBitfield = errors.New("invalid bit-field")
)

// Address is a 7-bit register address.
type Address byte

func (a Address) Validate() error {
	if a > 0x7F {
		return fmt.Errorf("%w: %#x exceeds 7 bits", ErrInvalidAddress, byte(a))
	}
	return nil
}

// ReadCommand returns the command byte that starts a read of a.
func (a Address) ReadCommand() byte {
	return byte(a) | ReadBit
}

// Bitfield describes Width bits starting at bit Pos of register Reg.
type Bitfield struct {
	Reg   Address
	Pos   uint8
	Width uint8
}

func (f Bitfield) Validate() error {
	if f.Width == 0 || int(f.Pos)+int(f.Width) > Width {
		return fmt.Errorf("%w: pos %d width %d", ErrInvalidBitfield, f.Pos, f.Width)
	}
	return f.Reg.Validate()
}

// Mask returns the field mask in register position.
func (f Bitfield) Mask() byte {
	return byte((1<<f.Width)-1) << f.Pos
}

// Extract returns the field value held in a register byte.
func (f Bitfield) Extract(b byte) byte {
	return (b >> f.Pos) & byte((1<<f.Width)-1)
}

// Insert returns b with the field replaced by v. Bits of v that do not fit
// the field are dropped.
func (f Bitfield) Insert(b, v byte) byte {
	mask := f.Mask()
	return b&^mask | (v<<f.Pos)&mask
}

func (f Bitfield) String() string {
	return fmt.Sprintf("%#02x[%d:%d]", byte(f.Reg), f.Pos+f.Width-1, f.Pos)
}

// ReadByte reads one register.
func ReadByte(ctx context.Context, s *session.Session, dev session.Device, addr Address) (byte, error) {
	buf, err := ReadBurst(ctx, s, dev, addr, 1)
	if err != nil {
		return 0, err
	}
	return buf[0], nil
}

// ReadBurst reads n consecutive bytes starting at addr under one selection.
func ReadBurst(ctx context.Context, s *session.Session, dev session.Device, addr Address, n int) ([]byte, error) {
	if err := addr.Validate(); err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, fmt.Errorf("invalid burst length %d", n)
	}
	tx := make([]byte, n+1)
	tx[0] = addr.ReadCommand()
	var res []byte
	err := s.Select(ctx, dev, func(t biosignals.Transport) error {
		rx, err := t.Exchange(ctx, tx)
		if err != nil {
			return err
		}
		res = rx[1:]
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("could not read %d bytes from %s register %#02x: %w", n, dev.Name, byte(addr), err)
	}
	return res, nil
}

// WriteByte writes one register.
func WriteByte(ctx context.Context, s *session.Session, dev session.Device, addr Address, value byte) error {
	if err := addr.Validate(); err != nil {
		return err
	}
	tx := make([]byte, 2+dev.Protocol.TrailingWriteClocks)
	tx[0] = byte(addr)
	tx[1] = value
	err := s.Select(ctx, dev, func(t biosignals.Transport) error {
		_, err := t.Exchange(ctx, tx)
		return err
	})
	if err != nil {
		return fmt.Errorf("could not write %#02x to %s register %#02x: %w", value, dev.Name, byte(addr), err)
	}
	return nil
}

// ReadBitfield reads the register holding f and extracts the field.
func ReadBitfield(ctx context.Context, s *session.Session, dev session.Device, f Bitfield) (byte, error) {
	if err := f.Validate(); err != nil {
		return 0, err
	}
	b, err := ReadByte(ctx, s, dev, f.Reg)
	if err != nil {
		return 0, err
	}
	return f.Extract(b), nil
}

// WriteBitfield replaces field f with v and leaves the other bits of the
// register as read. The read and the write are separate transactions; the
// update is only safe because the session is the single owner of the bus.
func WriteBitfield(ctx context.Context, s *session.Session, dev session.Device, f Bitfield, v byte) error {
	if err := f.Validate(); err != nil {
		return err
	}
	b, err := ReadByte(ctx, s, dev, f.Reg)
	if err != nil {
		return err
	}
	return WriteByte(ctx, s, dev, f.Reg, f.Insert(b, v))
}

// Value is a register write used in programming tables.
type Value struct {
	Addr  Address
	Value byte
}

// WriteAll writes a programming table in order, stopping at the first error.
func WriteAll(ctx context.Context, s *session.Session, dev session.Device, values []Value) error {
	for _, v := range values {
		if err := WriteByte(ctx, s, dev, v.Addr, v.Value); err != nil {
			return err
		}
	}
	return nil
}
