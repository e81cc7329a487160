package decode

import "fmt"

// Transform maps an unsigned ADC code linearly onto a voltage centred on
// CodeMax/2.
type Transform struct {
	CodeMax float64
	VRef    float64
	Gain    float64
}

// Volts returns ((raw/CodeMax) - 0.5) * 2 * VRef / Gain. Codes outside
// [0, CodeMax] still convert; use Check to flag them.
func (t Transform) Volts(raw int64) float64 {
	v := float64(raw) / t.CodeMax
	v -= 0.5
	v = v * t.VRef * 2
	return v / t.Gain
}

// Check returns a RangeWarning for codes the transform was not made for.
func (t Transform) Check(channel string, raw int64) error {
	if raw < 0 || float64(raw) > t.CodeMax {
		return &RangeWarning{Channel: channel, Raw: raw, Max: int64(t.CodeMax)}
	}
	return nil
}

// RangeWarning is advisory: the sample is still produced.
type RangeWarning struct {
	Channel string
	Raw     int64
	Max     int64
}

func (w *RangeWarning) Error() string {
	return fmt.Sprintf("%s code %#x outside [0, %#x]", w.Channel, w.Raw, w.Max)
}
