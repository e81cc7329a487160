// Package config loads the acquisition session description from YAML and
// builds the transport, the select lines and the device drivers from it.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mklimuk/biosignals"
)

const (
	PlatformPeriph = "periph"
	PlatformRaspi  = "raspi"
	PlatformNanoPi = "nanopi"

	LinesGPIO    = "gpio"
	LinesMCP2221 = "mcp2221"

	DeviceADS1293 = "ads1293"
	DeviceBMI160  = "bmi160"
	DeviceADS1241 = "ads1241"
)

var ErrInvalid = errors.New("invalid configuration")

// SPI describes the bus. Port is used by periph, Bus and Chip by Gobot.
type SPI struct {
	Port  string `yaml:"port"`
	Bus   int    `yaml:"bus"`
	Chip  int    `yaml:"chip"`
	Speed int64  `yaml:"speed"`
	NoCS  bool   `yaml:"no_cs"`
}

// Poll bounds power-up status polling.
type Poll struct {
	Timeout  time.Duration `yaml:"timeout"`
	Interval time.Duration `yaml:"interval"`
	// Legacy polls without a timeout until the device reports ready.
	Legacy bool `yaml:"legacy"`
}

type Device struct {
	Name string            `yaml:"name"`
	Type string            `yaml:"type"`
	Line biosignals.LineID `yaml:"line"`
	// Interval between samples; zero keeps the driver default.
	Interval time.Duration `yaml:"interval"`
	Poll     Poll          `yaml:"poll"`
	// Mode is device specific: "ch1" or "ch1ch2" for ads1293, "motion6" or
	// "accel3" for bmi160.
	Mode string `yaml:"mode"`
	// Profile is "3-lead" or "1-lead" for ads1293.
	Profile string `yaml:"profile"`
	// Unsigned keeps IMU axes as unsigned words.
	Unsigned bool `yaml:"unsigned"`
	// Inputs lists the ads1241 inputs converted per sample: "ain0", "ain1".
	Inputs []string `yaml:"inputs,omitempty"`
}

// Session is the whole acquisition setup.
type Session struct {
	Platform string   `yaml:"platform"`
	SPI      SPI      `yaml:"spi"`
	Lines    string   `yaml:"lines"`
	Adapter  int      `yaml:"adapter"`
	Devices  []Device `yaml:"devices"`
	// Interleave reads the second device once per that many reads of the
	// first one; zero streams the first device only.
	Interleave int    `yaml:"interleave"`
	Output     string `yaml:"output"`
}

// Default matches the bench board wiring: ECG front-end and IMU on GPIO24,
// strain gauge ADC on GPIO23, spidev 0.0 at 32 kHz.
func Default() Session {
	return Session{
		Platform: PlatformPeriph,
		SPI:      SPI{Port: "", Bus: 0, Chip: 0, Speed: 32_000, NoCS: true},
		Lines:    LinesGPIO,
		Devices: []Device{
			{Name: "ecg", Type: DeviceADS1293, Line: "GPIO24"},
			{Name: "grip", Type: DeviceADS1241, Line: "GPIO23"},
		},
	}
}

func Load(path string) (Session, error) {
	f, err := os.Open(path)
	if err != nil {
		return Session{}, fmt.Errorf("could not open config: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads a session over the defaults and validates it.
func Decode(r io.Reader) (Session, error) {
	s := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return Session{}, fmt.Errorf("could not decode config: %w", err)
	}
	return s, s.Validate()
}

func (s Session) Validate() error {
	switch s.Platform {
	case PlatformPeriph, PlatformRaspi, PlatformNanoPi:
	default:
		return fmt.Errorf("%w: unknown platform %q", ErrInvalid, s.Platform)
	}
	switch s.Lines {
	case LinesGPIO, LinesMCP2221:
	default:
		return fmt.Errorf("%w: unknown line driver %q", ErrInvalid, s.Lines)
	}
	if s.SPI.Speed <= 0 {
		return fmt.Errorf("%w: spi speed must be positive", ErrInvalid)
	}
	if len(s.Devices) == 0 {
		return fmt.Errorf("%w: no devices", ErrInvalid)
	}
	names := make(map[string]struct{}, len(s.Devices))
	for _, d := range s.Devices {
		if d.Name == "" {
			return fmt.Errorf("%w: device without a name", ErrInvalid)
		}
		if _, ok := names[d.Name]; ok {
			return fmt.Errorf("%w: duplicate device %q", ErrInvalid, d.Name)
		}
		names[d.Name] = struct{}{}
		if d.Line == "" {
			return fmt.Errorf("%w: device %q has no select line", ErrInvalid, d.Name)
		}
		switch d.Type {
		case DeviceADS1293, DeviceBMI160, DeviceADS1241:
		default:
			return fmt.Errorf("%w: device %q has unknown type %q", ErrInvalid, d.Name, d.Type)
		}
	}
	if s.Interleave < 0 || (s.Interleave > 0 && len(s.Devices) < 2) {
		return fmt.Errorf("%w: interleave needs two devices", ErrInvalid)
	}
	return nil
}

// Device returns the named device, or the first one when name is empty.
func (s Session) Device(name string) (Device, error) {
	if name == "" {
		return s.Devices[0], nil
	}
	for _, d := range s.Devices {
		if d.Name == name {
			return d, nil
		}
	}
	return Device{}, fmt.Errorf("unknown device %q", name)
}

// LineIDs lists every select line in device order, without duplicates.
func (s Session) LineIDs() []biosignals.LineID {
	seen := make(map[biosignals.LineID]struct{})
	var ids []biosignals.LineID
	for _, d := range s.Devices {
		if _, ok := seen[d.Line]; ok {
			continue
		}
		seen[d.Line] = struct{}{}
		ids = append(ids, d.Line)
	}
	return ids
}

func (s Session) Marshal() ([]byte, error) {
	return yaml.Marshal(s)
}
