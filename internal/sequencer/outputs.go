// Package sequencer implements the pad, gate and gate array state machines
// that drive the traveling wave of light across the installation.
//
// Nothing in this package is safe for concurrent use. A GateArray and every
// Gate and Pad it owns must be driven from a single goroutine; see the
// installation service for the serialized entry point.
package sequencer

import (
	log "github.com/sirupsen/logrus"
)

// Lighting is the light channel side of the fixture controller.
type Lighting interface {
	SetChannel(channel int, value byte) error
	Render() error
}

// Blackouter is implemented by lighting outputs that can zero and send every
// channel at once. GateArray.Blackout prefers it over a plain Render.
type Blackouter interface {
	Blackout() error
}

// Audio starts sounds by name.
type Audio interface {
	Play(sound string) (Playback, error)
}

// Playback is a running sound owned by a single pad. Stop terminates it and
// returns once it has been released.
type Playback interface {
	Stop()
}

// Rand is the source used to pick each gate's target pad.
// *math/rand.Rand satisfies it.
type Rand interface {
	Intn(n int) int
}

// Levels holds the lighting values, in device units, for each pad state.
type Levels struct {
	Off    byte
	Ready  byte
	Active byte
	Error  byte
}

// DefaultLevels returns the levels the first installation was tuned to.
func DefaultLevels() Levels {
	return Levels{
		Off:    0,
		Ready:  30,
		Active: 250,
		Error:  10,
	}
}

// DefaultErrorSound is the sound played on a wrong touch.
const DefaultErrorSound = "error"

// Outputs bundles the collaborators shared by every pad of an array.
type Outputs struct {
	Lighting   Lighting
	Audio      Audio
	Levels     Levels
	ErrorSound string

	// OnChange is called after every pad state transition.
	OnChange func(PadStatus)
	// OnFailure is called when a collaborator returns an error. The
	// transition that triggered it still completes.
	OnFailure func(collaborator string, err error)
}

func (o *Outputs) fail(collaborator string, fields log.Fields, err error) {
	log.WithFields(fields).WithError(err).Warnf("%s output failed", collaborator)
	if o.OnFailure != nil {
		o.OnFailure(collaborator, err)
	}
}
