package audio

import (
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/bbernstein/lacylights-gates/internal/sequencer"
)

// DefaultStopTimeout is how long a player gets to exit after SIGTERM before
// it is killed.
const DefaultStopTimeout = 500 * time.Millisecond

// Process is a started player process.
type Process interface {
	Wait() error
	Signal(sig os.Signal) error
	Kill() error
}

// ProcessStarter starts player processes.
type ProcessStarter interface {
	Start(name string, args ...string) (Process, error)
}

// realStarter implements ProcessStarter with os/exec.
type realStarter struct{}

func (realStarter) Start(name string, args ...string) (Process, error) {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &cmdProcess{cmd: cmd}, nil
}

type cmdProcess struct {
	cmd *exec.Cmd
}

func (p *cmdProcess) Wait() error                { return p.cmd.Wait() }
func (p *cmdProcess) Signal(sig os.Signal) error { return p.cmd.Process.Signal(sig) }
func (p *cmdProcess) Kill() error                { return p.cmd.Process.Kill() }

// ExecPlayer plays each sound in its own external player process.
type ExecPlayer struct {
	dir         string
	command     string
	args        []string
	starter     ProcessStarter
	stopTimeout time.Duration
}

// NewExecPlayer creates a player running command (split on spaces, the sound
// file appended as the last argument) for every sound in dir.
func NewExecPlayer(dir, command string) *ExecPlayer {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		fields = []string{"aplay"}
	}
	return &ExecPlayer{
		dir:         dir,
		command:     fields[0],
		args:        fields[1:],
		starter:     realStarter{},
		stopTimeout: DefaultStopTimeout,
	}
}

// SetStarter sets the process starter (for testing).
func (p *ExecPlayer) SetStarter(starter ProcessStarter) {
	p.starter = starter
}

// Play starts the player on the sound's file.
func (p *ExecPlayer) Play(sound string) (sequencer.Playback, error) {
	path, err := Resolve(p.dir, sound)
	if err != nil {
		return nil, err
	}
	args := append(append([]string(nil), p.args...), path)
	proc, err := p.starter.Start(p.command, args...)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"sound": sound, "player": p.command}).Debug("playing")

	pb := &execPlayback{
		proc:    proc,
		done:    make(chan struct{}),
		timeout: p.stopTimeout,
	}
	go func() {
		// the exit status of a terminated player is expected
		_ = proc.Wait()
		close(pb.done)
	}()
	return pb, nil
}

// execPlayback owns one player process.
type execPlayback struct {
	proc    Process
	done    chan struct{}
	timeout time.Duration
	once    sync.Once
}

// Stop terminates the process and waits until it has exited.
func (pb *execPlayback) Stop() {
	pb.once.Do(func() {
		select {
		case <-pb.done:
			return
		default:
		}

		_ = pb.proc.Signal(syscall.SIGTERM)
		select {
		case <-pb.done:
		case <-time.After(pb.timeout):
			log.Warn("player ignored SIGTERM, killing it")
			_ = pb.proc.Kill()
			<-pb.done
		}
	})
}

// Done is closed once the process has exited.
func (pb *execPlayback) Done() <-chan struct{} {
	return pb.done
}
