package biosignals

import "time"

// Field is one named channel value of a decoded sample.
type Field struct {
	Name  string
	Value float64
}

// Sample is a decoded, timestamped reading of one device. Fields keep the
// order in which the decoder produced them.
type Sample struct {
	Device   string
	Time     time.Time
	Fields   []Field
	Warnings []error
}

// Get returns the value of the named field.
func (s Sample) Get(name string) (float64, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return 0, false
}

// Names lists field names in order.
func (s Sample) Names() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}
