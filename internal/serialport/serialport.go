// Package serialport opens the USB serial devices of the installation: the
// sensor board and the DMX widget. Both may be plugged in after startup.
package serialport

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

// Open opens a serial port with exponential backoff. A zero timeout
// tries once.
func Open(path string, baud int, timeout time.Duration) (serial.Port, error) {
	mode := &serial.Mode{BaudRate: baud}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = timeout
	var policy backoff.BackOff = bo
	if timeout <= 0 {
		policy = &backoff.StopBackOff{}
	}

	var port serial.Port
	err := backoff.Retry(func() error {
		p, err := serial.Open(path, mode)
		if err != nil {
			log.WithError(err).WithField("port", path).Warn("serial port not available, retrying")
			return err
		}
		port = p
		return nil
	}, policy)
	if err != nil {
		return nil, fmt.Errorf("could not open %s: %w", path, err)
	}
	return port, nil
}
