package mysensors

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog/log"
	"go.bug.st/serial"

	"sensorbridge/internal/config"
)

// SerialTransport reads protocol lines from a gateway attached to a
// serial port.
type SerialTransport struct {
	port   io.ReadCloser
	device string
	done   chan struct{}

	closeOnce sync.Once
	closeErr  error
	closing   bool
	mu        sync.Mutex
}

// SerialMode is the 8N1 line setup MySensors gateways use.
func SerialMode(baudRate int) *serial.Mode {
	if baudRate <= 0 {
		baudRate = config.DefaultBaudRate
	}
	return &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

// OpenSerial opens device and starts feeding its lines into gw.
func OpenSerial(device string, baudRate int, gw *Gateway) (*SerialTransport, error) {
	port, err := serial.Open(device, SerialMode(baudRate))
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", device, err)
	}
	t := newSerialTransport(port, device)
	go t.monitor(gw)
	log.Info().Str("gateway", gw.EntryID()).Str("device", device).Int("baud_rate", baudRate).Msg("serial gateway opened")
	return t, nil
}

func newSerialTransport(port io.ReadCloser, device string) *SerialTransport {
	return &SerialTransport{port: port, device: device, done: make(chan struct{})}
}

// Done is closed once the read loop has returned.
func (t *SerialTransport) Done() <-chan struct{} { return t.done }

func (t *SerialTransport) monitor(gw *Gateway) {
	defer close(t.done)
	scan := bufio.NewScanner(t.port)
	for scan.Scan() {
		handlePayload(gw, scan.Bytes())
	}
	err := scan.Err()
	t.mu.Lock()
	closing := t.closing
	t.mu.Unlock()
	switch {
	case closing:
	case err != nil && !errors.Is(err, os.ErrClosed):
		log.Error().Err(err).Str("gateway", gw.EntryID()).Str("device", t.device).Msg("serial read failed")
	default:
		log.Warn().Str("gateway", gw.EntryID()).Str("device", t.device).Msg("serial port closed")
	}
}

// Close closes the port and waits for the read loop to finish.
func (t *SerialTransport) Close() error {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closing = true
		t.mu.Unlock()
		t.closeErr = t.port.Close()
	})
	<-t.done
	return t.closeErr
}
