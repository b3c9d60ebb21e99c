// Package dmx provides the DMX channel buffer and its transmission to the
// fixture controller.
package dmx

import (
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// UniverseSize is the number of channels per DMX universe.
const UniverseSize = 512

// ErrChannelRange is returned for channels outside 1..512.
var ErrChannelRange = errors.New("dmx channel out of range")

// Output sends a full universe of channel values to the fixture controller.
type Output interface {
	Send(channels []byte) error
	Close() error
}

// Service holds the channel values of one universe. SetChannel stages a
// value, Render commits every staged value in a single frame. A keep-alive
// loop resends the last frame at the idle rate so controllers that time out
// without traffic stay lit.
type Service struct {
	mu sync.Mutex

	channels []byte
	dirty    bool
	output   Output

	idleRateHz int
	lastSend   time.Time
	frames     int

	stopChan chan struct{}
	done     chan struct{}
	running  bool
	closed   bool
}

// Config holds DMX service configuration.
type Config struct {
	IdleRateHz int
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() Config {
	return Config{IdleRateHz: 1}
}

// NewService creates a DMX service writing to output.
func NewService(cfg Config, output Output) *Service {
	idleRate := cfg.IdleRateHz
	if idleRate <= 0 {
		idleRate = 1
	}
	if output == nil {
		output = NewNullOutput()
	}
	return &Service{
		channels:   make([]byte, UniverseSize),
		output:     output,
		idleRateHz: idleRate,
	}
}

// Start begins the keep-alive loop.
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	go s.keepAliveLoop(s.stopChan, s.done)

	log.WithField("idleRateHz", s.idleRateHz).Info("DMX output started")
}

func (s *Service) keepAliveLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	interval := time.Second / time.Duration(s.idleRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			if time.Since(s.lastSend) >= interval {
				if err := s.send(); err != nil {
					log.WithError(err).Debug("DMX keep-alive failed")
				}
			}
			s.mu.Unlock()
		}
	}
}

// send transmits the current frame. Callers hold s.mu.
func (s *Service) send() error {
	s.lastSend = time.Now()
	s.frames++
	if err := s.output.Send(s.channels); err != nil {
		return fmt.Errorf("dmx send: %w", err)
	}
	s.dirty = false
	return nil
}

// SetChannel stages a 1-based channel value until the next Render.
func (s *Service) SetChannel(channel int, value byte) error {
	if channel < 1 || channel > UniverseSize {
		return fmt.Errorf("%w: %d", ErrChannelRange, channel)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.channels[channel-1] != value {
		s.channels[channel-1] = value
		s.dirty = true
	}
	return nil
}

// Render commits staged values. Nothing is sent when nothing changed.
func (s *Service) Render() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty {
		return nil
	}
	return s.send()
}

// Blackout zeroes every channel and sends the frame immediately.
func (s *Service) Blackout() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.channels {
		s.channels[i] = 0
	}
	return s.send()
}

// Channel returns the staged value of a 1-based channel.
func (s *Service) Channel(channel int) byte {
	if channel < 1 || channel > UniverseSize {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channels[channel-1]
}

// Universe returns a copy of all channel values.
func (s *Service) Universe() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.channels...)
}

// FramesSent returns how many frames have been handed to the output.
func (s *Service) FramesSent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// IsRunning returns whether the keep-alive loop is active.
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Stop ends the keep-alive loop, sends a final blackout and closes the output.
func (s *Service) Stop() {
	s.mu.Lock()
	if s.running {
		close(s.stopChan)
		s.running = false
		done := s.done
		s.mu.Unlock()
		<-done
		s.mu.Lock()
	}
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true

	for i := range s.channels {
		s.channels[i] = 0
	}
	if err := s.send(); err != nil {
		log.WithError(err).Warn("final DMX blackout failed")
	}
	if err := s.output.Close(); err != nil {
		log.WithError(err).Warn("closing DMX output failed")
	}
	log.Info("DMX output stopped")
}
