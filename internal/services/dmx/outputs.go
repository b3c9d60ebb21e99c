package dmx

import (
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/bbernstein/lacylights-gates/internal/serialport"
	"github.com/bbernstein/lacylights-gates/pkg/artnet"
	"github.com/bbernstein/lacylights-gates/pkg/enttec"
)

// Output kinds accepted by Open.
const (
	OutputArtNet = "artnet"
	OutputEnttec = "enttec"
	OutputNone   = "none"
)

// OutputConfig selects and configures the fixture controller connection.
type OutputConfig struct {
	Kind string

	BroadcastAddr string
	Port          int
	Universe      int

	SerialPort string
	// OpenTimeout bounds the retries while the serial widget is unplugged.
	OpenTimeout time.Duration
}

// Open connects the configured output.
func Open(cfg OutputConfig) (Output, error) {
	switch cfg.Kind {
	case OutputArtNet:
		return OpenArtNet(cfg.BroadcastAddr, cfg.Port, cfg.Universe)
	case OutputEnttec:
		return OpenEnttec(cfg.SerialPort, cfg.OpenTimeout)
	case OutputNone, "":
		log.Info("DMX output disabled (simulation mode)")
		return NewNullOutput(), nil
	default:
		return nil, fmt.Errorf("unknown DMX output %q", cfg.Kind)
	}
}

// ArtNetOutput broadcasts ArtDmx packets over UDP.
type ArtNetOutput struct {
	conn     net.Conn
	universe uint16
	sequence byte
}

// OpenArtNet dials the Art-Net broadcast address.
func OpenArtNet(broadcastAddr string, port, universe int) (*ArtNetOutput, error) {
	if port <= 0 {
		port = artnet.DefaultPort
	}
	if universe < 0 || universe > artnet.MaxUniverse {
		return nil, fmt.Errorf("art-net universe %d out of range", universe)
	}
	addr, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(broadcastAddr, strconv.Itoa(port)))
	if err != nil {
		return nil, err
	}
	conn, err := net.DialUDP("udp4", nil, addr)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"addr": addr.String(), "universe": universe}).Info("Art-Net output enabled")
	return &ArtNetOutput{conn: conn, universe: uint16(universe)}, nil
}

// Send transmits one ArtDmx packet.
func (o *ArtNetOutput) Send(channels []byte) error {
	// sequence 0 means "no reordering", so skip it on wrap
	o.sequence++
	if o.sequence == 0 {
		o.sequence = 1
	}
	_, err := o.conn.Write(artnet.BuildDMXPacket(o.universe, channels, o.sequence))
	return err
}

// Close closes the UDP socket.
func (o *ArtNetOutput) Close() error {
	return o.conn.Close()
}

// EnttecOutput writes Send DMX frames to an Enttec DMX USB Pro.
type EnttecOutput struct {
	port io.WriteCloser
}

// NewEnttecOutput wraps an already opened port.
func NewEnttecOutput(port io.WriteCloser) *EnttecOutput {
	return &EnttecOutput{port: port}
}

// OpenEnttec opens the widget's serial port, retrying until timeout.
func OpenEnttec(path string, timeout time.Duration) (*EnttecOutput, error) {
	port, err := serialport.Open(path, enttec.DefaultBaudRate, timeout)
	if err != nil {
		return nil, err
	}
	log.WithField("port", path).Info("Enttec DMX USB Pro output enabled")
	return NewEnttecOutput(port), nil
}

// Send writes one frame.
func (o *EnttecOutput) Send(channels []byte) error {
	_, err := o.port.Write(enttec.BuildDMXFrame(channels))
	return err
}

// Close closes the serial port.
func (o *EnttecOutput) Close() error {
	return o.port.Close()
}

// NullOutput keeps the last frame in memory. It is used in simulation mode
// and in tests.
type NullOutput struct {
	mu     sync.Mutex
	last   []byte
	sent   int
	closed bool
	err    error
}

// NewNullOutput creates an output that discards frames.
func NewNullOutput() *NullOutput {
	return &NullOutput{}
}

// Send records the frame.
func (o *NullOutput) Send(channels []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.last = append(o.last[:0], channels...)
	o.sent++
	return nil
}

// Close marks the output closed.
func (o *NullOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	return nil
}

// Last returns a copy of the last frame sent.
func (o *NullOutput) Last() []byte {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]byte(nil), o.last...)
}

// Sent returns the number of frames sent.
func (o *NullOutput) Sent() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sent
}

// Closed returns whether Close was called.
func (o *NullOutput) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

// FailWith makes subsequent sends return err (nil restores them).
func (o *NullOutput) FailWith(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.err = err
}
