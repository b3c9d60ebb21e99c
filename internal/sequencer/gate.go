package sequencer

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

const noTarget = -1

// Gate is a group of pads, one of which is the target for the current cycle.
type Gate struct {
	index  int
	pads   []*Pad
	target int
	rng    Rand
}

func newGate(index int, specs []PadSpec, rng Rand, out *Outputs) *Gate {
	g := &Gate{
		index:  index,
		target: noTarget,
		rng:    rng,
	}
	g.pads = make([]*Pad, len(specs))
	for i, spec := range specs {
		g.pads[i] = newPad(spec, g, i, out)
	}
	return g
}

// Index returns the gate's position in its array.
func (g *Gate) Index() int { return g.index }

// Pads returns the gate's pads in configuration order.
func (g *Gate) Pads() []*Pad { return g.pads }

// Target returns the target pad index, or false if none is assigned.
func (g *Gate) Target() (int, bool) {
	return g.target, g.target != noTarget
}

// Stop clears the target and turns every pad off.
func (g *Gate) Stop() {
	g.target = noTarget
	for _, pad := range g.pads {
		pad.Off()
	}
}

// Init picks a uniformly random target pad. It does not change any pad's
// visual state.
func (g *Gate) Init() {
	g.target = g.rng.Intn(len(g.pads))
	log.WithFields(log.Fields{"gate": g.index, "target": g.target}).Debug("gate armed")
}

// InitTarget assigns an explicit target pad.
func (g *Gate) InitTarget(target int) error {
	if target < 0 || target >= len(g.pads) {
		return fmt.Errorf("gate %d: target %d out of range [0,%d)", g.index, target, len(g.pads))
	}
	g.target = target
	return nil
}

// Ready pre-lights the target pad. A gate without a target is left untouched.
func (g *Gate) Ready(percent float64) {
	if g.target == noTarget {
		log.WithField("gate", g.index).Warn("ready on a gate without target")
		return
	}
	g.pads[g.target].Ready(percent)
}

// Touch routes a press and reports whether the sequence should advance.
//
// A press on the target activates it. A press on any other pad of this gate
// shows the error cue on the target pad, not on the pad that was touched, and
// still advances. Presses on sensors outside the gate are ignored.
func (g *Gate) Touch(sensorID int) bool {
	if g.target == noTarget {
		return false
	}
	target := g.pads[g.target]
	if target.SensorID() == sensorID {
		target.Active()
		return true
	}
	if g.owns(sensorID) {
		target.Error()
		return true
	}
	return false
}

// Release reports whether sensorID belongs to this gate. It has no effect.
func (g *Gate) Release(sensorID int) bool {
	return g.owns(sensorID)
}

func (g *Gate) owns(sensorID int) bool {
	for _, pad := range g.pads {
		if pad.SensorID() == sensorID {
			return true
		}
	}
	return false
}
