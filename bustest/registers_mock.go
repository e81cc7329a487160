package bustest

import "sync"

const readBit = 0x80

// Write is a register write seen by a Registers device.
type Write struct {
	Addr  byte
	Value byte
}

// Registers emulates a device speaking the plain register protocol: a command
// byte with the read bit set streams registers from that address on, otherwise
// the second byte is written to the addressed register. Reads and writes
// auto-increment the address.
type Registers struct {
	mx     sync.Mutex
	Map    [128]byte
	writes []Write

	// OnWrite runs after a register is stored, with the lock held. It may
	// modify Map to emulate device side effects.
	OnWrite func(r *Registers, addr, value byte)
	// OnRead runs before a register is returned, with the lock held.
	OnRead func(r *Registers, addr byte)
}

func NewRegisters() *Registers {
	return &Registers{}
}

func (r *Registers) Respond(tx []byte) []byte {
	r.mx.Lock()
	defer r.mx.Unlock()
	rx := make([]byte, len(tx))
	if len(tx) == 0 {
		return rx
	}
	addr := tx[0] &^ readBit
	if tx[0]&readBit != 0 {
		for i := 1; i < len(tx); i++ {
			a := (addr + byte(i-1)) & 0x7F
			if r.OnRead != nil {
				r.OnRead(r, a)
			}
			rx[i] = r.Map[a]
		}
		return rx
	}
	if len(tx) < 2 {
		return rx
	}
	r.Map[addr] = tx[1]
	r.writes = append(r.writes, Write{Addr: addr, Value: tx[1]})
	if r.OnWrite != nil {
		r.OnWrite(r, addr, tx[1])
	}
	return rx
}

func (r *Registers) Set(addr, value byte) {
	r.mx.Lock()
	defer r.mx.Unlock()
	r.Map[addr] = value
}

func (r *Registers) Get(addr byte) byte {
	r.mx.Lock()
	defer r.mx.Unlock()
	return r.Map[addr]
}

// Writes returns all register writes in order.
func (r *Registers) Writes() []Write {
	r.mx.Lock()
	defer r.mx.Unlock()
	return append([]Write(nil), r.writes...)
}
