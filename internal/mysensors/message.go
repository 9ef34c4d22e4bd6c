package mysensors

import (
	"fmt"
	"strconv"
	"strings"
)

const maxID = 255

// Message is one serial protocol line:
// node-id;child-sensor-id;command;ack;type;payload
type Message struct {
	NodeID  int
	ChildID int
	Command Command
	Ack     bool
	Type    int
	Payload string
}

// ParseMessage decodes a protocol line. A trailing newline is ignored.
func ParseMessage(line string) (Message, error) {
	line = strings.TrimRight(line, "\r\n")
	fields := strings.SplitN(line, ";", 6)
	if len(fields) != 6 {
		return Message{}, fmt.Errorf("malformed message %q: want 6 fields, got %d", line, len(fields))
	}

	ints := make([]int, 5)
	for i, f := range fields[:5] {
		n, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil || n < 0 {
			return Message{}, fmt.Errorf("malformed message %q: field %d is not a non-negative integer", line, i)
		}
		ints[i] = n
	}
	if ints[0] > maxID || ints[1] > maxID {
		return Message{}, fmt.Errorf("malformed message %q: id out of range", line)
	}
	if ints[2] > int(CommandStream) {
		return Message{}, fmt.Errorf("malformed message %q: unknown command %d", line, ints[2])
	}
	if ints[3] > 1 {
		return Message{}, fmt.Errorf("malformed message %q: ack must be 0 or 1", line)
	}

	return Message{
		NodeID:  ints[0],
		ChildID: ints[1],
		Command: Command(ints[2]),
		Ack:     ints[3] == 1,
		Type:    ints[4],
		Payload: fields[5],
	}, nil
}

// Encode renders m as a protocol line including the trailing newline.
func (m Message) Encode() string {
	ack := 0
	if m.Ack {
		ack = 1
	}
	return fmt.Sprintf("%d;%d;%d;%d;%d;%s\n", m.NodeID, m.ChildID, int(m.Command), ack, m.Type, m.Payload)
}
