package config

import (
	"errors"
	"fmt"
	"os"

	yaml "gopkg.in/yaml.v3"

	"github.com/bbernstein/lacylights-gates/internal/sequencer"
)

// Layout is the YAML description of an installation.
type Layout struct {
	Pre        int         `yaml:"pre"`
	Keep       int         `yaml:"keep"`
	ErrorSound string      `yaml:"error_sound"`
	Levels     *Levels     `yaml:"levels"`
	Gates      []GateEntry `yaml:"gates"`
}

// Levels overrides the per-state DMX values. Levels left out of the layout
// keep their defaults.
type Levels struct {
	Off    int `yaml:"off"`
	Ready  int `yaml:"ready"`
	Active int `yaml:"active"`
	Error  int `yaml:"error"`
}

// UnmarshalYAML decodes a levels block on top of the default levels.
func (l *Levels) UnmarshalYAML(value *yaml.Node) error {
	d := sequencer.DefaultLevels()
	*l = Levels{Off: int(d.Off), Ready: int(d.Ready), Active: int(d.Active), Error: int(d.Error)}

	type plain Levels
	return value.Decode((*plain)(l))
}

// GateEntry is one gate of the layout.
type GateEntry struct {
	Pads []PadEntry `yaml:"pads"`
}

// PadEntry is one pad of a gate.
type PadEntry struct {
	Sensor  int    `yaml:"sensor"`
	Channel int    `yaml:"channel"`
	Sound   string `yaml:"sound"`
}

// LoadLayout reads and validates a layout file.
func LoadLayout(path string) (*Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read layout: %w", err)
	}
	return ParseLayout(data)
}

// ParseLayout decodes and validates a YAML layout.
func ParseLayout(data []byte) (*Layout, error) {
	layout := &Layout{}
	if err := yaml.Unmarshal(data, layout); err != nil {
		return nil, fmt.Errorf("failed to parse layout: %w", err)
	}
	if err := layout.Validate(); err != nil {
		return nil, fmt.Errorf("invalid layout: %w", err)
	}
	return layout, nil
}

// Validate checks the layout beyond what the sequencer itself requires.
func (l *Layout) Validate() error {
	if err := l.Sequence().Validate(); err != nil {
		return err
	}
	for i, gate := range l.Gates {
		seen := make(map[int]bool, len(gate.Pads))
		for j, pad := range gate.Pads {
			if pad.Channel < 1 || pad.Channel > 512 {
				return fmt.Errorf("gate %d pad %d: channel %d out of range [1,512]", i, j, pad.Channel)
			}
			if pad.Sound == "" {
				return fmt.Errorf("gate %d pad %d: missing sound", i, j)
			}
			if seen[pad.Sensor] {
				return fmt.Errorf("gate %d: sensor %d used twice", i, pad.Sensor)
			}
			seen[pad.Sensor] = true
		}
	}
	if l.Levels != nil {
		for name, v := range map[string]int{
			"off": l.Levels.Off, "ready": l.Levels.Ready,
			"active": l.Levels.Active, "error": l.Levels.Error,
		} {
			if v < 0 || v > 255 {
				return fmt.Errorf("level %s %d out of range [0,255]", name, v)
			}
		}
		if l.Levels.Active <= l.Levels.Ready {
			return errors.New("active level must be above the ready level")
		}
	}
	return nil
}

// Sequence converts the layout into the sequencer's shape.
func (l *Layout) Sequence() sequencer.Layout {
	gates := make([][]sequencer.PadSpec, len(l.Gates))
	for i, gate := range l.Gates {
		for _, pad := range gate.Pads {
			gates[i] = append(gates[i], sequencer.PadSpec{
				SensorID: pad.Sensor,
				Channel:  pad.Channel,
				Sound:    pad.Sound,
			})
		}
	}
	return sequencer.Layout{Gates: gates, Pre: l.Pre, Keep: l.Keep}
}

// DMXLevels returns the configured levels, falling back to the defaults.
func (l *Layout) DMXLevels() sequencer.Levels {
	if l.Levels == nil {
		return sequencer.DefaultLevels()
	}
	return sequencer.Levels{
		Off:    byte(l.Levels.Off),
		Ready:  byte(l.Levels.Ready),
		Active: byte(l.Levels.Active),
		Error:  byte(l.Levels.Error),
	}
}

// ErrorCue returns the error sound, falling back to the default.
func (l *Layout) ErrorCue() string {
	if l.ErrorSound == "" {
		return sequencer.DefaultErrorSound
	}
	return l.ErrorSound
}
