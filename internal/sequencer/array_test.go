package sequencer

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestArray(t *testing.T, layout Layout, rng Rand) (*GateArray, *fakeLighting, *fakeAudio) {
	t.Helper()
	lights := newFakeLighting()
	audio := &fakeAudio{}
	a, err := NewGateArray(layout, Outputs{Lighting: lights, Audio: audio, Levels: DefaultLevels()}, rng)
	require.NoError(t, err)
	return a, lights, audio
}

// gateState returns the state of the gate's target pad, or of its first
// non-off pad when it has no target.
func gateState(g *Gate) (State, float64) {
	if target, ok := g.Target(); ok {
		return g.pads[target].State()
	}
	for _, p := range g.pads {
		if s, pct := p.State(); s != StateOff {
			return s, pct
		}
	}
	return StateOff, 0
}

func readyGates(a *GateArray) map[int]float64 {
	ready := make(map[int]float64)
	for i, g := range a.gates {
		if s, pct := gateState(g); s == StateReady {
			ready[i] = pct
		}
	}
	return ready
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 1.0, Percent(0, 3))
	assert.Equal(t, 0.75, Percent(1, 3))
	assert.Equal(t, 0.5, Percent(2, 3))
	assert.Equal(t, 0.5, Percent(1, 1))
}

func TestLayoutValidate(t *testing.T) {
	tests := []struct {
		name    string
		layout  Layout
		wantErr bool
	}{
		{"valid", singlePadLayout(4, 3, 1), false},
		{"single_gate", singlePadLayout(1, 1, 0), false},
		{"no_gates", Layout{Pre: 1}, true},
		{"empty_gate", Layout{Gates: [][]PadSpec{{{SensorID: 1, Channel: 1, Sound: "a"}}, {}}, Pre: 1}, true},
		{"pre_zero", singlePadLayout(4, 0, 1), true},
		{"pre_above_gate_count", singlePadLayout(4, 5, 1), true},
		{"keep_negative", singlePadLayout(4, 3, -1), true},
		{"keep_equals_gate_count", singlePadLayout(4, 3, 4), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.layout.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewGateArrayErrors(t *testing.T) {
	_, err := NewGateArray(Layout{}, Outputs{}, &seqRand{})
	assert.Error(t, err)

	_, err = NewGateArray(singlePadLayout(2, 1, 0), Outputs{}, nil)
	assert.Error(t, err)
}

func TestNewGateArrayTouchesNothing(t *testing.T) {
	a, lights, _ := newTestArray(t, singlePadLayout(4, 3, 1), &seqRand{})

	_, ok := a.ReadyIndex()
	assert.False(t, ok)
	assert.Empty(t, lights.writes)
	assert.False(t, a.Touch(0), "touch before start is ignored")
}

// Four single-pad gates, PRE=3, KEEP=1.
func TestGateArrayExample(t *testing.T) {
	a, lights, audio := newTestArray(t, singlePadLayout(4, 3, 1), &seqRand{})

	a.Start()

	ready, ok := a.ReadyIndex()
	require.True(t, ok)
	assert.Equal(t, 0, ready)
	assert.Equal(t, map[int]float64{0: 1.0, 1: 0.75, 2: 0.5}, readyGates(a))
	s, _ := gateState(a.gates[3])
	assert.Equal(t, StateOff, s)
	assert.Equal(t, byte(30), lights.channels[1])
	assert.Equal(t, byte(22), lights.channels[2])
	assert.Equal(t, byte(15), lights.channels[3])
	assert.Equal(t, byte(0), lights.channels[4])

	advanced := a.Touch(0)

	require.True(t, advanced)
	s, _ = gateState(a.gates[0])
	assert.Equal(t, StateActive, s)
	assert.Equal(t, []string{"note0"}, audio.played)
	ready, _ = a.ReadyIndex()
	assert.Equal(t, 1, ready)
	assert.Equal(t, map[int]float64{1: 1.0, 2: 0.75, 3: 0.5}, readyGates(a))
	assert.Equal(t, byte(250), lights.channels[1])
	assert.Equal(t, byte(30), lights.channels[2])
	assert.Equal(t, byte(22), lights.channels[3])
	assert.Equal(t, byte(15), lights.channels[4])
}

func TestGateArrayStartWindow(t *testing.T) {
	for n := 1; n <= 6; n++ {
		for pre := 1; pre <= n; pre++ {
			for keep := 0; keep < n; keep++ {
				t.Run(fmt.Sprintf("n%d_pre%d_keep%d", n, pre, keep), func(t *testing.T) {
					a, _, _ := newTestArray(t, multiPadLayout(n, 3, pre, keep), rand.New(rand.NewSource(int64(n*100+pre*10+keep))))

					a.Start()

					ready := readyGates(a)
					require.Len(t, ready, pre)
					for k := 0; k < pre; k++ {
						pct, ok := ready[k]
						require.True(t, ok, "gate %d should be ready", k)
						assert.Equal(t, Percent(k, pre), pct)
						if k > 0 {
							assert.Less(t, pct, ready[k-1], "intensity strictly decreases")
						}
					}
				})
			}
		}
	}
}

func TestGateArrayAdvanceWrapsAround(t *testing.T) {
	const n, pre, keep = 5, 2, 1
	a, _, _ := newTestArray(t, multiPadLayout(n, 2, pre, keep), rand.New(rand.NewSource(7)))
	a.Start()

	// Light every gate's target so the stop is observable.
	for _, g := range a.gates {
		if _, ok := g.Target(); !ok {
			g.Init()
		}
		target, _ := g.Target()
		g.pads[target].Active()
	}

	for step := 0; step < 3*n; step++ {
		prev, _ := a.ReadyIndex()
		a.Advance()

		cur, _ := a.ReadyIndex()
		require.Equal(t, (prev+1)%n, cur)

		stopped := ((prev+n-1-keep)%n + n) % n
		stoppedGate := a.gates[stopped]
		inWindow := false
		for k := 0; k < pre; k++ {
			if (cur+k)%n == stopped {
				inWindow = true
			}
		}
		if !inWindow {
			_, ok := stoppedGate.Target()
			assert.False(t, ok, "step %d: gate %d should have lost its target", step, stopped)
			for _, p := range stoppedGate.pads {
				s, _ := p.State()
				assert.Equal(t, StateOff, s, "step %d: gate %d", step, stopped)
			}
		}

		for k := 0; k < pre; k++ {
			g := a.gates[(cur+k)%n]
			s, pct := gateState(g)
			assert.Equal(t, StateReady, s, "step %d: gate %d", step, g.index)
			assert.Equal(t, Percent(k, pre), pct)
		}

		// Re-light the gate just readied so the next stop is observable.
		g := a.gates[cur]
		target, _ := g.Target()
		g.pads[target].Active()
	}
}

func TestGateArrayRearmsGatesOnLaterLaps(t *testing.T) {
	rng := &seqRand{values: []int{0, 1, 2, 0, 1, 2, 0, 1, 2, 0, 1, 2}}
	a, _, _ := newTestArray(t, multiPadLayout(3, 3, 1, 0), rng)
	a.Start()

	for lap := 0; lap < 3; lap++ {
		for i := 0; i < 3; i++ {
			cur, _ := a.ReadyIndex()
			_, ok := a.gates[cur].Target()
			require.True(t, ok, "lap %d: active gate %d has a target", lap, cur)
			a.Advance()
		}
	}
}

func TestGateArrayTouch(t *testing.T) {
	t.Run("target_advances_once", func(t *testing.T) {
		a, _, audio := newTestArray(t, multiPadLayout(4, 3, 2, 1), &seqRand{values: []int{1, 1, 1, 1, 1}})
		a.Start()

		assert.True(t, a.Touch(1))

		ready, _ := a.ReadyIndex()
		assert.Equal(t, 1, ready)
		s, _ := a.gates[0].pads[1].State()
		assert.Equal(t, StateActive, s)
		assert.Equal(t, []string{"g0p1"}, audio.played)
	})

	t.Run("wrong_pad_errors_target_and_advances", func(t *testing.T) {
		a, _, audio := newTestArray(t, multiPadLayout(4, 3, 2, 1), &seqRand{values: []int{1, 1, 1, 1, 1}})
		a.Start()

		assert.True(t, a.Touch(2))

		ready, _ := a.ReadyIndex()
		assert.Equal(t, 1, ready)
		touched, _ := a.gates[0].pads[2].State()
		target, _ := a.gates[0].pads[1].State()
		assert.Equal(t, StateOff, touched)
		assert.Equal(t, StateError, target)
		assert.Equal(t, []string{"error"}, audio.played)
	})

	t.Run("unknown_sensor_is_noop", func(t *testing.T) {
		a, lights, audio := newTestArray(t, multiPadLayout(4, 3, 2, 1), &seqRand{})
		a.Start()
		before := a.Snapshot()
		writes := len(lights.writes)

		assert.False(t, a.Touch(99))

		ready, _ := a.ReadyIndex()
		assert.Equal(t, 0, ready)
		assert.Equal(t, before, a.Snapshot())
		assert.Len(t, lights.writes, writes)
		assert.Empty(t, audio.played)
	})

	t.Run("other_gate_sensor_is_noop", func(t *testing.T) {
		a, _, _ := newTestArray(t, multiPadLayout(4, 3, 2, 1), &seqRand{})
		a.Start()

		// sensor 11 belongs to gate 1 which is pre-lit but not active
		assert.False(t, a.Touch(11))
		ready, _ := a.ReadyIndex()
		assert.Equal(t, 0, ready)
	})

	t.Run("duplicate_press_advances_again", func(t *testing.T) {
		a, _, _ := newTestArray(t, singlePadLayout(4, 3, 1), &seqRand{})
		a.Start()

		assert.True(t, a.Touch(0))
		assert.False(t, a.Touch(0), "gate 0 is no longer active")
		assert.True(t, a.Touch(1))
		ready, _ := a.ReadyIndex()
		assert.Equal(t, 2, ready)
	})
}

func TestGateArrayReleaseIsNoop(t *testing.T) {
	a, lights, audio := newTestArray(t, singlePadLayout(4, 3, 1), &seqRand{})
	a.Start()
	before := a.Snapshot()
	writes := len(lights.writes)

	a.Release(0)
	a.Release(99)

	assert.Equal(t, before, a.Snapshot())
	assert.Len(t, lights.writes, writes)
	assert.Empty(t, audio.played)
}

func TestGateArrayStop(t *testing.T) {
	a, _, _ := newTestArray(t, singlePadLayout(4, 3, 1), &seqRand{})
	a.Start()
	a.Touch(0)

	a.Stop()

	_, ok := a.ReadyIndex()
	assert.False(t, ok)
	for _, s := range a.Snapshot() {
		assert.Equal(t, StateOff, s.State)
		assert.False(t, s.Target)
	}
}

func TestGateArrayBlackout(t *testing.T) {
	a, lights, audio := newTestArray(t, multiPadLayout(3, 2, 2, 0), &seqRand{})
	a.Start()
	a.Touch(0)
	a.Touch(10)
	renders := lights.renders

	a.Blackout()

	for _, s := range a.Snapshot() {
		assert.Equal(t, StateOff, s.State)
	}
	for ch, v := range lights.channels {
		assert.Equal(t, byte(0), v, "channel %d", ch)
	}
	assert.Empty(t, audio.running())
	assert.Equal(t, renders+6+1, lights.renders, "one render per pad plus the final commit")
}

// blackoutLighting is a fakeLighting that also zeroes everything on request.
type blackoutLighting struct {
	*fakeLighting
	blackouts int
}

func (b *blackoutLighting) Blackout() error {
	b.blackouts++
	for ch := range b.channels {
		b.channels[ch] = 0
	}
	return b.err
}

func TestGateArrayBlackout_UsesOutputBlackout(t *testing.T) {
	lights := &blackoutLighting{fakeLighting: newFakeLighting()}
	var failures []string
	a, err := NewGateArray(multiPadLayout(3, 2, 2, 0), Outputs{
		Lighting:  lights,
		Audio:     &fakeAudio{},
		Levels:    DefaultLevels(),
		OnFailure: func(collaborator string, err error) { failures = append(failures, collaborator) },
	}, &seqRand{})
	require.NoError(t, err)
	a.Start()
	renders := lights.renders

	a.Blackout()

	assert.Equal(t, 1, lights.blackouts)
	assert.Equal(t, renders+6, lights.renders, "final commit goes through Blackout, not Render")

	assert.Empty(t, failures)
	lights.err = errUnreachable
	a.Blackout()
	assert.Contains(t, failures, "lighting")
}

func TestGateArrayRestart(t *testing.T) {
	rng := &seqRand{values: []int{0, 0, 0, 0, 0, 1, 1, 1, 1, 1}}
	a, _, _ := newTestArray(t, multiPadLayout(4, 2, 2, 1), rng)
	a.Start()
	a.Touch(0)
	a.Touch(10)

	a.Start()

	ready, _ := a.ReadyIndex()
	assert.Equal(t, 0, ready)
	for _, s := range a.Snapshot() {
		assert.NotEqual(t, StateActive, s.State)
	}
	target, _ := a.gates[0].Target()
	assert.Equal(t, 1, target)
}

func TestGateArraySnapshot(t *testing.T) {
	a, _, _ := newTestArray(t, multiPadLayout(2, 2, 1, 0), &seqRand{values: []int{1, 0, 1}})
	a.Start()

	snap := a.Snapshot()

	require.Len(t, snap, 4)
	assert.Equal(t, PadStatus{Gate: 0, Index: 0, SensorID: 0, Channel: 1, Sound: "g0p0", State: StateOff}, snap[0])
	assert.Equal(t, PadStatus{Gate: 0, Index: 1, SensorID: 1, Channel: 2, Sound: "g0p1", State: StateReady, Percent: 1, Target: true}, snap[1])
	assert.Equal(t, 1, snap[2].Gate)
	assert.Equal(t, 11, snap[3].SensorID)
}
