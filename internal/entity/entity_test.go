package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type stub struct {
	available bool
	state     any
}

func (s stub) Domain() string             { return "sensor" }
func (s stub) Name() string               { return "Stub" }
func (s stub) UniqueID() string           { return "stub-1" }
func (s stub) Available() bool            { return s.available }
func (s stub) State() any                 { return s.state }
func (s stub) Attributes() map[string]any { return map[string]any{"a": 1} }
func (s stub) DeviceClass() string        { return "timestamp" }
func (s stub) Icon() string               { return "mdi:bus" }

func TestSnapUnavailable(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	s := Snap(stub{available: false, state: now}, "sensor.stub", now)
	assert.Equal(t, StateUnavailable, s.State)
	assert.False(t, s.Available)
	assert.Equal(t, "sensor.stub", s.EntityID)
}

func TestFormatState(t *testing.T) {
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	cases := []struct {
		in   any
		want string
	}{
		{nil, StateUnknown},
		{ts, "2024-03-01T10:00:00Z"},
		{time.Time{}, StateUnknown},
		{true, StateOn},
		{false, StateOff},
		{"x", "x"},
		{3, "3"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, FormatState(c.in))
	}
}

func TestObjectID(t *testing.T) {
	assert.Equal(t, "de_lijn_gent_zuid", ObjectID("De Lijn  Gent-Zuid"))
	assert.Equal(t, "unnamed", ObjectID("  --  "))
	assert.Equal(t, "kitchen_1", ObjectID("Kitchen 1!"))
}

func TestSnapAvailable(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	s := Snap(stub{available: true, state: now}, "sensor.stub", now)
	assert.Equal(t, "2024-03-01T10:00:00Z", s.State)
	assert.Equal(t, "timestamp", s.DeviceClass)
	assert.Equal(t, map[string]any{"a": 1}, s.Attributes)
	assert.Equal(t, now, s.Timestamp)
}
