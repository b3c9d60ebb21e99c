// Package installation owns the running gate array. A single goroutine
// receives sensor events, layout reloads and state queries, so the
// sequencer is only ever driven from one place.
package installation

import (
	"context"
	"errors"
	"strconv"

	log "github.com/sirupsen/logrus"

	"github.com/bbernstein/lacylights-gates/internal/config"
	"github.com/bbernstein/lacylights-gates/internal/sequencer"
	"github.com/bbernstein/lacylights-gates/internal/services/metrics"
	"github.com/bbernstein/lacylights-gates/internal/services/pubsub"
	"github.com/bbernstein/lacylights-gates/internal/services/sensor"
)

// ErrNotRunning is returned by requests made while Run is not active.
var ErrNotRunning = errors.New("installation is not running")

// Deps are the collaborators shared by every array the service builds.
type Deps struct {
	Lighting sequencer.Lighting
	Audio    sequencer.Audio
	Rand     sequencer.Rand
	// PubSub and Metrics are optional.
	PubSub  *pubsub.PubSub
	Metrics *metrics.Metrics
}

// State is a point-in-time view of the installation.
type State struct {
	Running bool                  `json:"running"`
	Ready   *int                  `json:"ready"`
	Gates   int                   `json:"gates"`
	Pre     int                   `json:"pre"`
	Keep    int                   `json:"keep"`
	Pads    []sequencer.PadStatus `json:"pads"`
}

// Failure is published on pubsub.TopicFailure.
type Failure struct {
	Collaborator string `json:"collaborator"`
	Error        string `json:"error"`
}

type reloadRequest struct {
	layout *config.Layout
	reply  chan error
}

// Service serializes all access to the gate array.
type Service struct {
	deps   Deps
	layout *config.Layout
	array  *sequencer.GateArray

	events    chan sensor.Event
	reloads   chan reloadRequest
	snapshots chan chan State
	done      chan struct{}
}

// NewService builds the gate array for layout. Nothing is lit until Run.
func NewService(layout *config.Layout, deps Deps) (*Service, error) {
	if deps.Rand == nil {
		return nil, errors.New("random source is required")
	}
	s := &Service{
		deps:      deps,
		events:    make(chan sensor.Event, 64),
		reloads:   make(chan reloadRequest),
		snapshots: make(chan chan State),
		done:      make(chan struct{}),
	}
	array, err := s.build(layout)
	if err != nil {
		return nil, err
	}
	s.layout, s.array = layout, array
	return s, nil
}

// Events is where sensor events are delivered.
func (s *Service) Events() chan<- sensor.Event { return s.events }

// Done is closed once Run has blacked out and returned.
func (s *Service) Done() <-chan struct{} { return s.done }

// Run starts the sequence and processes requests until ctx is cancelled,
// then turns every pad off. Run must be called once.
func (s *Service) Run(ctx context.Context) error {
	defer close(s.done)

	s.array.Start()
	s.armed()
	s.publish(pubsub.TopicLayout, "", s.state(true))

	for {
		select {
		case <-ctx.Done():
			log.Info("blacking out installation")
			s.array.Blackout()
			s.setArmed(-1)
			return nil
		case ev := <-s.events:
			s.handle(ev)
		case req := <-s.reloads:
			req.reply <- s.swap(req.layout)
		case reply := <-s.snapshots:
			reply <- s.state(true)
		}
	}
}

// Reload replaces the running layout. An invalid layout is rejected and the
// current sequence keeps running.
func (s *Service) Reload(ctx context.Context, layout *config.Layout) error {
	reply := make(chan error, 1)
	select {
	case s.reloads <- reloadRequest{layout: layout, reply: reply}:
	case <-s.done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the current state. After Run has returned it reports the
// final, blacked out state.
func (s *Service) Snapshot(ctx context.Context) (State, error) {
	reply := make(chan State, 1)
	select {
	case s.snapshots <- reply:
	case <-s.done:
		return s.state(false), nil
	case <-ctx.Done():
		return State{}, ctx.Err()
	}
	select {
	case st := <-reply:
		return st, nil
	case <-ctx.Done():
		return State{}, ctx.Err()
	}
}

func (s *Service) handle(ev sensor.Event) {
	fields := log.Fields{"sensor": ev.SensorID, "pressed": ev.Pressed}
	if !ev.Pressed {
		s.array.Release(ev.SensorID)
		s.count(metrics.KindRelease)
		log.WithFields(fields).Debug("release")
		return
	}
	s.count(metrics.KindPress)

	hit := s.isTarget(ev.SensorID)
	if !s.array.Touch(ev.SensorID) {
		s.count(metrics.KindIgnored)
		log.WithFields(fields).Debug("press outside the armed gate")
		return
	}
	if hit {
		s.count(metrics.KindHit)
	} else {
		s.count(metrics.KindMiss)
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.Advances.Inc()
	}
	s.armed()
	log.WithFields(fields).WithField("hit", hit).Info("gate passed")
}

func (s *Service) isTarget(sensorID int) bool {
	ready, ok := s.array.ReadyIndex()
	if !ok {
		return false
	}
	gate := s.array.Gates()[ready]
	target, ok := gate.Target()
	return ok && gate.Pads()[target].SensorID() == sensorID
}

func (s *Service) swap(layout *config.Layout) error {
	array, err := s.build(layout)
	if err != nil {
		s.countReload("rejected")
		log.WithError(err).Warn("layout rejected, keeping current sequence")
		return err
	}
	s.array.Blackout()
	s.layout, s.array = layout, array
	s.array.Start()
	s.armed()
	s.countReload("ok")
	s.publish(pubsub.TopicLayout, "", s.state(true))
	log.WithField("gates", len(layout.Gates)).Info("layout reloaded")
	return nil
}

func (s *Service) build(layout *config.Layout) (*sequencer.GateArray, error) {
	if layout == nil {
		return nil, errors.New("layout is required")
	}
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	out := sequencer.Outputs{
		Lighting:   s.deps.Lighting,
		Audio:      s.deps.Audio,
		Levels:     layout.DMXLevels(),
		ErrorSound: layout.ErrorCue(),
		OnChange: func(st sequencer.PadStatus) {
			s.publish(pubsub.TopicPadState, strconv.Itoa(st.Gate), st)
		},
		OnFailure: func(collaborator string, err error) {
			if s.deps.Metrics != nil {
				s.deps.Metrics.Failures.WithLabelValues(collaborator).Inc()
			}
			s.publish(pubsub.TopicFailure, "", Failure{Collaborator: collaborator, Error: err.Error()})
		},
	}
	return sequencer.NewGateArray(layout.Sequence(), out, s.deps.Rand)
}

func (s *Service) state(running bool) State {
	st := State{
		Running: running,
		Gates:   len(s.layout.Gates),
		Pre:     s.layout.Pre,
		Keep:    s.layout.Keep,
		Pads:    s.array.Snapshot(),
	}
	if ready, ok := s.array.ReadyIndex(); ok {
		st.Ready = &ready
	}
	return st
}

func (s *Service) armed() {
	ready, ok := s.array.ReadyIndex()
	if !ok {
		ready = -1
	}
	s.setArmed(ready)
	s.publish(pubsub.TopicGateArmed, strconv.Itoa(ready), ready)
}

func (s *Service) setArmed(ready int) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.ArmedGate.Set(float64(ready))
	}
}

func (s *Service) count(kind string) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.Events.WithLabelValues(kind).Inc()
	}
}

func (s *Service) countReload(result string) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.Reloads.WithLabelValues(result).Inc()
	}
}

func (s *Service) publish(topic pubsub.Topic, filter string, msg interface{}) {
	if s.deps.PubSub != nil {
		s.deps.PubSub.Publish(topic, filter, msg)
	}
}
