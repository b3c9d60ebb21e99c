package sequencer

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// Layout is the static shape of an installation.
type Layout struct {
	Gates [][]PadSpec
	// Pre is the number of gates pre-lit from the active one onwards (>= 1).
	Pre int
	// Keep is the number of gates held behind the active one (>= 0).
	Keep int
}

// Validate checks the layout can drive a gate array.
func (l Layout) Validate() error {
	n := len(l.Gates)
	if n == 0 {
		return errors.New("layout has no gates")
	}
	for i, pads := range l.Gates {
		if len(pads) == 0 {
			return fmt.Errorf("gate %d has no pads", i)
		}
	}
	if l.Pre < 1 || l.Pre > n {
		return fmt.Errorf("pre must be in [1,%d], got %d", n, l.Pre)
	}
	if l.Keep < 0 || l.Keep >= n {
		return fmt.Errorf("keep must be in [0,%d), got %d", n, l.Keep)
	}
	return nil
}

// GateArray is the circular sequence of gates.
type GateArray struct {
	gates []*Gate
	pre   int
	keep  int
	ready int
	out   *Outputs
}

// NewGateArray builds the gates and pads of a layout. Every pad starts off
// without touching the outputs; call Start to light the first window.
func NewGateArray(layout Layout, out Outputs, rng Rand) (*GateArray, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, errors.New("random source is required")
	}
	if out.ErrorSound == "" {
		out.ErrorSound = DefaultErrorSound
	}

	a := &GateArray{
		pre:   layout.Pre,
		keep:  layout.Keep,
		ready: noTarget,
		out:   &out,
	}
	a.gates = make([]*Gate, len(layout.Gates))
	for i, specs := range layout.Gates {
		a.gates[i] = newGate(i, specs, rng, a.out)
	}
	return a, nil
}

// Gates returns the gates in sequence order.
func (a *GateArray) Gates() []*Gate { return a.gates }

// ReadyIndex returns the active gate, or false before Start.
func (a *GateArray) ReadyIndex() (int, bool) {
	return a.ready, a.ready != noTarget
}

// Stop clears the active gate and stops every gate.
func (a *GateArray) Stop() {
	a.ready = noTarget
	for _, g := range a.gates {
		g.Stop()
	}
}

// Start resets the array, gives every gate a fresh target and lights the
// first window.
func (a *GateArray) Start() {
	a.Stop()
	for _, g := range a.gates {
		g.Init()
	}
	a.Advance()
	log.WithFields(log.Fields{"gates": len(a.gates), "pre": a.pre, "keep": a.keep}).Info("sequence started")
}

// Advance rotates the active gate forward one position. The gate Keep+1
// positions behind the previous active gate is stopped, then the Pre gates
// starting at the new active one are readied with decreasing intensity.
// A gate that lost its target when it was stopped on an earlier lap is armed
// again before it is readied.
func (a *GateArray) Advance() {
	n := len(a.gates)
	stop := mod(a.ready+n-1-a.keep, n)
	a.gates[stop].Stop()

	a.ready = mod(a.ready+1, n)

	for k := 0; k < a.pre; k++ {
		g := a.gates[(a.ready+k)%n]
		if _, ok := g.Target(); !ok {
			g.Init()
		}
		g.Ready(Percent(k, a.pre))
	}
	log.WithFields(log.Fields{"ready": a.ready, "stopped": stop}).Debug("advance")
}

// Touch forwards a press to the active gate and advances once if the gate
// asks for it. Gates other than the active one never see the event.
func (a *GateArray) Touch(sensorID int) bool {
	if a.ready == noTarget {
		return false
	}
	if !a.gates[a.ready].Touch(sensorID) {
		return false
	}
	a.Advance()
	return true
}

// Release is a no-op: releasing a pad never changes the sequence.
func (a *GateArray) Release(sensorID int) {}

// Blackout turns every pad off and issues a final lighting commit. Outputs
// implementing Blackouter send a full zero frame, even when nothing changed.
func (a *GateArray) Blackout() {
	a.Stop()
	if a.out.Lighting == nil {
		return
	}
	commit := a.out.Lighting.Render
	if b, ok := a.out.Lighting.(Blackouter); ok {
		commit = b.Blackout
	}
	if err := commit(); err != nil {
		a.out.fail("lighting", log.Fields{"phase": "blackout"}, err)
	}
}

// Snapshot returns the status of every pad, gate by gate.
func (a *GateArray) Snapshot() []PadStatus {
	var statuses []PadStatus
	for _, g := range a.gates {
		for _, p := range g.pads {
			statuses = append(statuses, p.Status())
		}
	}
	return statuses
}

// Percent is the pre-light intensity of the k-th gate of a window of pre
// gates: 1 - k/(pre+1).
func Percent(k, pre int) float64 {
	return 1 - float64(k)/float64(pre+1)
}

func mod(x, n int) int {
	return ((x % n) + n) % n
}
