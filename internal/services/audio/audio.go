// Package audio plays the pad sounds.
package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/bbernstein/lacylights-gates/internal/sequencer"
)

// Backend names accepted by Open.
const (
	BackendExec = "exec"
	BackendBeep = "beep"
	BackendNone = "none"
)

// Extensions tried, in order, when resolving a sound name.
var Extensions = []string{".wav", ".mp3"}

// ErrSoundNotFound is returned when no file matches a sound name.
var ErrSoundNotFound = errors.New("sound not found")

// Config selects and configures the audio backend.
type Config struct {
	Backend  string
	SoundDir string
	// Player is the external command of the exec backend.
	Player string
}

// Open creates the configured player.
func Open(cfg Config) (sequencer.Audio, error) {
	switch cfg.Backend {
	case BackendExec, "":
		return NewExecPlayer(cfg.SoundDir, cfg.Player), nil
	case BackendBeep:
		p, err := NewBeepPlayer(cfg.SoundDir)
		if err != nil {
			return nil, err
		}
		return p, nil
	case BackendNone:
		log.Info("audio disabled")
		return NullPlayer{}, nil
	default:
		return nil, fmt.Errorf("unknown audio backend %q", cfg.Backend)
	}
}

// Resolve returns the file for a sound name in dir.
func Resolve(dir, sound string) (string, error) {
	if sound == "" || filepath.Base(sound) != sound {
		return "", fmt.Errorf("%w: invalid name %q", ErrSoundNotFound, sound)
	}
	for _, ext := range Extensions {
		path := filepath.Join(dir, sound+ext)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: %s in %s", ErrSoundNotFound, sound, dir)
}

// NullPlayer plays nothing.
type NullPlayer struct{}

// Play returns a playback that is already finished.
func (NullPlayer) Play(string) (sequencer.Playback, error) {
	return nullPlayback{}, nil
}

type nullPlayback struct{}

func (nullPlayback) Stop() {}
