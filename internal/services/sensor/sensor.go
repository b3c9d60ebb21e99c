// Package sensor reads pad press/release events from the sensor board.
//
// The board writes one line per event:
//
//	PIN:<sensor id>:<state>
//
// where state 1 is a press and anything else a release. Other lines are
// ignored.
package sensor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/bbernstein/lacylights-gates/internal/serialport"
)

// Event is a single press or release.
type Event struct {
	SensorID int
	Pressed  bool
}

// String formats the event the way the board does.
func (e Event) String() string {
	state := 0
	if e.Pressed {
		state = 1
	}
	return fmt.Sprintf("PIN:%d:%d", e.SensorID, state)
}

// ParseLine decodes one line. It returns false for empty or malformed lines.
func ParseLine(line string) (Event, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Event{}, false
	}
	fields := strings.Split(line, ":")
	if len(fields) < 3 || fields[0] != "PIN" {
		return Event{}, false
	}
	id, err := strconv.Atoi(strings.TrimSpace(fields[1]))
	if err != nil {
		return Event{}, false
	}
	return Event{SensorID: id, Pressed: strings.TrimSpace(fields[2]) == "1"}, true
}

// Run scans src and delivers events until src is exhausted or ctx is
// cancelled. src is closed when ctx is cancelled so a blocked read returns.
// A clean end of input returns nil.
func Run(ctx context.Context, src io.ReadCloser, events chan<- Event) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)

	go func() {
		scanner := bufio.NewScanner(src)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			_ = src.Close()
			return ctx.Err()
		case err := <-scanErr:
			return err
		case line := <-lines:
			ev, ok := ParseLine(line)
			if !ok {
				if strings.TrimSpace(line) != "" {
					log.WithField("line", line).Debug("ignoring sensor line")
				}
				continue
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				_ = src.Close()
				return ctx.Err()
			}
		}
	}
}

// Config selects the event source.
type Config struct {
	// Port is a serial device, or "-" for standard input.
	Port string
	Baud int
	// OpenTimeout bounds the retries while the board is unplugged.
	OpenTimeout time.Duration
}

// Open returns the configured event source.
func Open(cfg Config) (io.ReadCloser, error) {
	if cfg.Port == "-" {
		log.Info("reading sensor events from stdin")
		return io.NopCloser(os.Stdin), nil
	}
	if cfg.Port == "" {
		return nil, errors.New("no sensor port configured")
	}
	port, err := serialport.Open(cfg.Port, cfg.Baud, cfg.OpenTimeout)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"port": cfg.Port, "baud": cfg.Baud}).Info("sensor board connected")
	return port, nil
}
