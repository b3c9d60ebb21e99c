package sequencer

import (
	log "github.com/sirupsen/logrus"
)

// State is the visual/audio state of a pad.
type State int

const (
	StateOff State = iota
	StateReady
	StateActive
	StateError
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateOff:
		return "off"
	case StateReady:
		return "ready"
	case StateActive:
		return "active"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText lets states appear by name in JSON status payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// PadSpec is the static description of a pad.
type PadSpec struct {
	SensorID int
	Channel  int
	Sound    string
}

// PadStatus is a point-in-time view of a pad.
type PadStatus struct {
	Gate     int     `json:"gate"`
	Index    int     `json:"index"`
	SensorID int     `json:"sensorId"`
	Channel  int     `json:"channel"`
	Sound    string  `json:"sound"`
	State    State   `json:"state"`
	Percent  float64 `json:"percent"`
	Target   bool    `json:"target"`
}

// Pad is a single touch unit with its own light channel and sound.
type Pad struct {
	spec  PadSpec
	gate  *Gate
	index int
	out   *Outputs

	state   State
	percent float64

	// at most one running sound per pad
	playback Playback
}

func newPad(spec PadSpec, gate *Gate, index int, out *Outputs) *Pad {
	return &Pad{
		spec:  spec,
		gate:  gate,
		index: index,
		out:   out,
	}
}

// SensorID returns the id incoming sensor events are matched against.
func (p *Pad) SensorID() int { return p.spec.SensorID }

// State returns the current state and, for StateReady, its intensity.
func (p *Pad) State() (State, float64) { return p.state, p.percent }

// Off darkens the pad and stops its sound.
func (p *Pad) Off() {
	p.state, p.percent = StateOff, 0
	p.light(p.out.Levels.Off)
	p.stopSound()
	p.notify()
}

// Ready lights the pad at the ready level scaled by percent (clamped to [0,1]).
func (p *Pad) Ready(percent float64) {
	if percent < 0 {
		percent = 0
	} else if percent > 1 {
		percent = 1
	}
	p.state, p.percent = StateReady, percent
	p.light(byte(float64(p.out.Levels.Ready) * percent))
	p.notify()
}

// Active lights the pad at full intensity and plays its sound.
func (p *Pad) Active() {
	p.state, p.percent = StateActive, 1
	p.light(p.out.Levels.Active)
	p.play(p.spec.Sound)
	p.notify()
}

// Error shows the error cue and plays the shared error sound.
func (p *Pad) Error() {
	p.state, p.percent = StateError, 0
	p.light(p.out.Levels.Error)
	p.play(p.out.ErrorSound)
	p.notify()
}

// Status returns a snapshot of the pad.
func (p *Pad) Status() PadStatus {
	return PadStatus{
		Gate:     p.gate.index,
		Index:    p.index,
		SensorID: p.spec.SensorID,
		Channel:  p.spec.Channel,
		Sound:    p.spec.Sound,
		State:    p.state,
		Percent:  p.percent,
		Target:   p.gate.target == p.index,
	}
}

func (p *Pad) fields() log.Fields {
	return log.Fields{
		"gate":    p.gate.index,
		"pad":     p.index,
		"sensor":  p.spec.SensorID,
		"channel": p.spec.Channel,
	}
}

func (p *Pad) light(value byte) {
	if p.out.Lighting == nil {
		return
	}
	if err := p.out.Lighting.SetChannel(p.spec.Channel, value); err != nil {
		p.out.fail("lighting", p.fields(), err)
		return
	}
	if err := p.out.Lighting.Render(); err != nil {
		p.out.fail("lighting", p.fields(), err)
	}
}

func (p *Pad) play(sound string) {
	p.stopSound()
	if p.out.Audio == nil || sound == "" {
		return
	}
	pb, err := p.out.Audio.Play(sound)
	if err != nil {
		p.out.fail("audio", p.fields(), err)
		return
	}
	p.playback = pb
}

func (p *Pad) stopSound() {
	if p.playback == nil {
		return
	}
	p.playback.Stop()
	p.playback = nil
}

func (p *Pad) notify() {
	log.WithFields(p.fields()).Debugf("pad %s", p.state)
	if p.out.OnChange != nil {
		p.out.OnChange(p.Status())
	}
}
