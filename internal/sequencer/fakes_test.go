package sequencer

import (
	"errors"
	"fmt"
)

// fakeLighting records channel writes and renders.
type fakeLighting struct {
	channels map[int]byte
	writes   []string
	renders  int
	err      error
}

func newFakeLighting() *fakeLighting {
	return &fakeLighting{channels: make(map[int]byte)}
}

func (f *fakeLighting) SetChannel(channel int, value byte) error {
	if f.err != nil {
		return f.err
	}
	f.channels[channel] = value
	f.writes = append(f.writes, fmt.Sprintf("%d=%d", channel, value))
	return nil
}

func (f *fakeLighting) Render() error {
	f.renders++
	return f.err
}

// fakeAudio records plays and hands out playbacks that record stops.
type fakeAudio struct {
	played  []string
	handles []*fakePlayback
	err     error
}

func (f *fakeAudio) Play(sound string) (Playback, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.played = append(f.played, sound)
	h := &fakePlayback{sound: sound}
	f.handles = append(f.handles, h)
	return h, nil
}

func (f *fakeAudio) running() []string {
	var out []string
	for _, h := range f.handles {
		if h.stops == 0 {
			out = append(out, h.sound)
		}
	}
	return out
}

type fakePlayback struct {
	sound string
	stops int
}

func (p *fakePlayback) Stop() { p.stops++ }

// seqRand returns the queued values in order, then zeros.
type seqRand struct {
	values []int
	calls  int
}

func (r *seqRand) Intn(n int) int {
	r.calls++
	if len(r.values) == 0 {
		return 0
	}
	v := r.values[0]
	r.values = r.values[1:]
	return v % n
}

var errUnreachable = errors.New("fixture controller unreachable")

// singlePadLayout builds n gates of one pad each, sensor i and channel i+1.
func singlePadLayout(n, pre, keep int) Layout {
	gates := make([][]PadSpec, n)
	for i := range gates {
		gates[i] = []PadSpec{{SensorID: i, Channel: i + 1, Sound: fmt.Sprintf("note%d", i)}}
	}
	return Layout{Gates: gates, Pre: pre, Keep: keep}
}

// multiPadLayout builds n gates of m pads, sensor 10*gate+pad.
func multiPadLayout(n, m, pre, keep int) Layout {
	gates := make([][]PadSpec, n)
	for i := range gates {
		for j := 0; j < m; j++ {
			gates[i] = append(gates[i], PadSpec{
				SensorID: 10*i + j,
				Channel:  m*i + j + 1,
				Sound:    fmt.Sprintf("g%dp%d", i, j),
			})
		}
	}
	return Layout{Gates: gates, Pre: pre, Keep: keep}
}
