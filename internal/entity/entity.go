package entity

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	StateOn          = "on"
	StateOff         = "off"
	StateUnavailable = "unavailable"
	StateUnknown     = "unknown"
)

// Entity is the capability set every adapter entity exposes to the host.
type Entity interface {
	// Domain is the platform the entity belongs to, e.g. "sensor".
	Domain() string
	Name() string
	UniqueID() string
	Available() bool
	// State is the native value: time.Time, bool, string, number or nil.
	State() any
	Attributes() map[string]any
	DeviceClass() string
	Icon() string
}

// Updater is implemented by entities that refresh themselves on a poll.
type Updater interface {
	Update(ctx context.Context) error
}

// Snapshot is the rendered state of an entity at a point in time.
type Snapshot struct {
	EntityID    string         `json:"entityId"`
	UniqueID    string         `json:"uniqueId,omitempty"`
	Name        string         `json:"name,omitempty"`
	State       string         `json:"state"`
	Available   bool           `json:"available"`
	DeviceClass string         `json:"deviceClass,omitempty"`
	Icon        string         `json:"icon,omitempty"`
	Attributes  map[string]any `json:"attributes,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// Snap renders e under the entity id the host assigned to it.
func Snap(e Entity, entityID string, now time.Time) Snapshot {
	s := Snapshot{
		EntityID:    entityID,
		UniqueID:    e.UniqueID(),
		Name:        e.Name(),
		Available:   e.Available(),
		DeviceClass: e.DeviceClass(),
		Icon:        e.Icon(),
		Attributes:  e.Attributes(),
		Timestamp:   now,
	}
	if !s.Available {
		s.State = StateUnavailable
		return s
	}
	s.State = FormatState(e.State())
	return s
}

// FormatState renders a native value the way states are stored.
func FormatState(v any) string {
	switch t := v.(type) {
	case nil:
		return StateUnknown
	case time.Time:
		if t.IsZero() {
			return StateUnknown
		}
		return t.Format(time.RFC3339)
	case *time.Time:
		if t == nil || t.IsZero() {
			return StateUnknown
		}
		return t.Format(time.RFC3339)
	case bool:
		if t {
			return StateOn
		}
		return StateOff
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

// ObjectID slugifies a name into an entity object id.
func ObjectID(name string) string {
	var b strings.Builder
	lastUnderscore := true
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.TrimSuffix(b.String(), "_")
	if out == "" {
		return "unnamed"
	}
	return out
}
