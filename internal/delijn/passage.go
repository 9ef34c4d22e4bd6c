package delijn

import "time"

// Passage is one departure as reported for a stop. Fields are kept as a
// map so consumers can tell a missing field from an empty one.
type Passage map[string]any

const (
	KeyLineNumber        = "line_number"
	KeyLineNumberPublic  = "line_number_public"
	KeyLineTransportType = "line_transport_type"
	KeyFinalDestination  = "final_destination"
	KeyDueAtSchedule     = "due_at_schedule"
	KeyDueAtRealtime     = "due_at_realtime"
	KeyIsRealtime        = "is_realtime"
	KeyDirection         = "direction"
)

// AutoAttributes are copied from the first passage onto the sensor.
var AutoAttributes = []string{
	KeyLineNumberPublic,
	KeyLineTransportType,
	KeyFinalDestination,
	KeyDueAtSchedule,
	KeyDueAtRealtime,
	KeyIsRealtime,
}

// MissingKeyError reports a passage without an expected field.
type MissingKeyError struct {
	Key string
}

func (e *MissingKeyError) Error() string { return "missing passage field " + e.Key }

// Lookup returns the value stored under key or a MissingKeyError.
func (p Passage) Lookup(key string) (any, error) {
	v, ok := p[key]
	if !ok {
		return nil, &MissingKeyError{Key: key}
	}
	return v, nil
}

// isNull treats untyped nil, nil time pointers and zero times as absent.
func isNull(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case *time.Time:
		return t == nil
	case time.Time:
		return t.IsZero()
	}
	return false
}
