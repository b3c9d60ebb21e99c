package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"
	log "github.com/sirupsen/logrus"

	"github.com/bbernstein/lacylights-gates/internal/sequencer"
)

const (
	// DefaultSampleRate is the speaker's output rate.
	DefaultSampleRate = beep.SampleRate(44100)
	// DefaultResampleQuality is passed to beep.Resample.
	DefaultResampleQuality = 4
)

// BeepPlayer mixes every sound into a single speaker stream in-process.
type BeepPlayer struct {
	dir        string
	sampleRate beep.SampleRate
}

// NewBeepPlayer initialises the speaker with a 100ms buffer.
func NewBeepPlayer(dir string) (*BeepPlayer, error) {
	if err := speaker.Init(DefaultSampleRate, DefaultSampleRate.N(time.Second/10)); err != nil {
		return nil, fmt.Errorf("failed to open speaker: %w", err)
	}
	return &BeepPlayer{dir: dir, sampleRate: DefaultSampleRate}, nil
}

// Play decodes the sound's file and queues it on the speaker.
func (p *BeepPlayer) Play(sound string) (sequencer.Playback, error) {
	path, err := Resolve(p.dir, sound)
	if err != nil {
		return nil, err
	}
	streamer, format, err := decode(path)
	if err != nil {
		return nil, err
	}

	pb := &beepPlayback{streamer: streamer}
	resampled := beep.Resample(DefaultResampleQuality, format.SampleRate, p.sampleRate, streamer)
	pb.ctrl = &beep.Ctrl{Streamer: beep.Seq(resampled, beep.Callback(pb.release))}
	speaker.Play(pb.ctrl)

	log.WithField("sound", sound).Debug("playing")
	return pb, nil
}

func decode(path string) (beep.StreamSeekCloser, beep.Format, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, beep.Format{}, err
	}

	var (
		streamer beep.StreamSeekCloser
		format   beep.Format
	)
	switch filepath.Ext(path) {
	case ".mp3":
		streamer, format, err = mp3.Decode(file)
	default:
		streamer, format, err = wav.Decode(file)
	}
	if err != nil {
		_ = file.Close()
		return nil, beep.Format{}, fmt.Errorf("cannot decode %s: %w", path, err)
	}
	return streamer, format, nil
}

type beepPlayback struct {
	ctrl     *beep.Ctrl
	streamer beep.StreamSeekCloser
	once     sync.Once
}

// Stop detaches the sound from the speaker mixer and closes its file.
func (pb *beepPlayback) Stop() {
	speaker.Lock()
	pb.ctrl.Streamer = nil
	speaker.Unlock()
	pb.release()
}

func (pb *beepPlayback) release() {
	pb.once.Do(func() {
		_ = pb.streamer.Close()
	})
}
