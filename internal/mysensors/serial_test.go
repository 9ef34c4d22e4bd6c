package mysensors

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"

	"sensorbridge/internal/config"
	"sensorbridge/internal/dispatcher"
)

func TestSerialMode(t *testing.T) {
	m := SerialMode(38400)
	assert.Equal(t, 38400, m.BaudRate)
	assert.Equal(t, 8, m.DataBits)
	assert.Equal(t, serial.NoParity, m.Parity)
	assert.Equal(t, serial.OneStopBit, m.StopBits)

	assert.Equal(t, config.DefaultBaudRate, SerialMode(0).BaudRate)
}

func TestSerialTransportFeedsGateway(t *testing.T) {
	gw := NewGateway("usb", dispatcher.New())
	lines := strings.Join([]string{
		"4;255;3;0;11;Garage",
		"4;2;0;0;1;tilt",
		"garbage",
		"4;2;1;0;16;1",
	}, "\n") + "\n"
	tr := newSerialTransport(io.NopCloser(strings.NewReader(lines)), "/dev/fake")
	go tr.monitor(gw)

	select {
	case <-tr.Done():
	case <-time.After(time.Second):
		t.Fatal("read loop did not finish")
	}

	c, ok := gw.Child(4, 2)
	require.True(t, ok)
	assert.Equal(t, SMotion, c.Type)
	assert.Equal(t, "1", c.Values[VTripped])
	assert.NoError(t, tr.Close())
}

func TestSerialTransportCloseStopsLoop(t *testing.T) {
	gw := NewGateway("usb", dispatcher.New())
	r, w := io.Pipe()
	tr := newSerialTransport(r, "/dev/fake")
	go tr.monitor(gw)

	_, err := w.Write([]byte("9;1;0;0;0;\n"))
	require.NoError(t, err)

	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())
	_, ok := gw.Child(9, 1)
	assert.True(t, ok)
	assert.Equal(t, "/dev/fake", tr.device)
}
