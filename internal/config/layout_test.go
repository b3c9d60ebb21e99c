package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbernstein/lacylights-gates/internal/sequencer"
)

const twoGates = `
pre: 2
keep: 0
gates:
  - pads:
      - {sensor: 2, channel: 324, sound: Do}
      - {sensor: 3, channel: 325, sound: Fa}
  - pads:
      - {sensor: 4, channel: 326, sound: Sol}
`

func TestParseLayout(t *testing.T) {
	layout, err := ParseLayout([]byte(twoGates))
	require.NoError(t, err)

	assert.Equal(t, 2, layout.Pre)
	assert.Equal(t, 0, layout.Keep)
	require.Len(t, layout.Gates, 2)
	assert.Equal(t, PadEntry{Sensor: 3, Channel: 325, Sound: "Fa"}, layout.Gates[0].Pads[1])

	seq := layout.Sequence()
	assert.Equal(t, 2, seq.Pre)
	assert.Equal(t, [][]sequencer.PadSpec{
		{{SensorID: 2, Channel: 324, Sound: "Do"}, {SensorID: 3, Channel: 325, Sound: "Fa"}},
		{{SensorID: 4, Channel: 326, Sound: "Sol"}},
	}, seq.Gates)

	assert.Equal(t, sequencer.DefaultLevels(), layout.DMXLevels())
	assert.Equal(t, sequencer.DefaultErrorSound, layout.ErrorCue())
}

func TestParseLayout_Overrides(t *testing.T) {
	layout, err := ParseLayout([]byte(twoGates + `
error_sound: buzz
levels: {off: 1, ready: 40, active: 200, error: 5}
`))
	require.NoError(t, err)

	assert.Equal(t, "buzz", layout.ErrorCue())
	assert.Equal(t, sequencer.Levels{Off: 1, Ready: 40, Active: 200, Error: 5}, layout.DMXLevels())
}

func TestParseLayout_PartialLevels(t *testing.T) {
	layout, err := ParseLayout([]byte(twoGates + `
levels: {active: 200}
`))
	require.NoError(t, err)

	want := sequencer.DefaultLevels()
	want.Active = 200
	assert.Equal(t, want, layout.DMXLevels())
}

func TestParseLayout_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"not_yaml", "pre: [1"},
		{"no_gates", "pre: 1\nkeep: 0\n"},
		{"empty_gate", "pre: 1\ngates:\n  - pads: []\n"},
		{"pre_zero", "pre: 0\ngates:\n  - pads: [{sensor: 1, channel: 1, sound: a}]\n"},
		{"keep_too_large", "pre: 1\nkeep: 1\ngates:\n  - pads: [{sensor: 1, channel: 1, sound: a}]\n"},
		{"channel_zero", "pre: 1\ngates:\n  - pads: [{sensor: 1, channel: 0, sound: a}]\n"},
		{"channel_513", "pre: 1\ngates:\n  - pads: [{sensor: 1, channel: 513, sound: a}]\n"},
		{"missing_sound", "pre: 1\ngates:\n  - pads: [{sensor: 1, channel: 1}]\n"},
		{"duplicate_sensor", "pre: 1\ngates:\n  - pads: [{sensor: 1, channel: 1, sound: a}, {sensor: 1, channel: 2, sound: b}]\n"},
		{"level_out_of_range", "pre: 1\nlevels: {ready: 30, active: 300}\ngates:\n  - pads: [{sensor: 1, channel: 1, sound: a}]\n"},
		{"active_not_above_ready", "pre: 1\nlevels: {ready: 30, active: 30}\ngates:\n  - pads: [{sensor: 1, channel: 1, sound: a}]\n"},
		{"active_below_default_ready", "pre: 1\nlevels: {active: 20}\ngates:\n  - pads: [{sensor: 1, channel: 1, sound: a}]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseLayout([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestParseLayout_SameSensorInDifferentGates(t *testing.T) {
	_, err := ParseLayout([]byte("pre: 1\ngates:\n  - pads: [{sensor: 1, channel: 1, sound: a}]\n  - pads: [{sensor: 1, channel: 2, sound: b}]\n"))
	assert.NoError(t, err, "only the active gate sees events, so sensors may repeat across gates")
}

func TestLoadLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layout.yaml")
	require.NoError(t, os.WriteFile(path, []byte(twoGates), 0o644))

	layout, err := LoadLayout(path)
	require.NoError(t, err)
	assert.Len(t, layout.Gates, 2)

	_, err = LoadLayout(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestExampleLayoutIsValid(t *testing.T) {
	layout, err := LoadLayout(filepath.Join("..", "..", "layout.example.yaml"))
	require.NoError(t, err)
	assert.Len(t, layout.Gates, 4)
	assert.Equal(t, 3, layout.Pre)
	assert.Equal(t, 1, layout.Keep)
}
