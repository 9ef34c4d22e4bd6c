package delijn

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/rs/zerolog/log"

	"sensorbridge/internal/config"
	"sensorbridge/internal/entity"
	"sensorbridge/internal/platform"
)

const (
	Attribution = "Data provided by data.delijn.be"
	DefaultName = "De Lijn"
	DeviceClass = "timestamp"
	Icon        = "mdi:bus"

	attrAttribution  = "attribution"
	attrStopName     = "stopname"
	attrNextPassages = "next_passages"
)

// Sensor exposes the next departure at a stop as a timestamp.
type Sensor struct {
	line Line

	mu        sync.RWMutex
	name      string
	available bool
	value     any
	attrs     map[string]any
}

func NewSensor(line Line) *Sensor {
	return &Sensor{
		line:      line,
		name:      DefaultName,
		available: true,
		attrs:     make(map[string]any),
	}
}

func (s *Sensor) Domain() string      { return "sensor" }
func (s *Sensor) UniqueID() string    { return "delijn-" + s.line.StopID() }
func (s *Sensor) DeviceClass() string { return DeviceClass }
func (s *Sensor) Icon() string        { return Icon }

func (s *Sensor) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

func (s *Sensor) Available() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.available
}

func (s *Sensor) State() any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

func (s *Sensor) Attributes() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.attrs)+1)
	for k, v := range s.attrs {
		out[k] = v
	}
	out[attrAttribution] = Attribution
	return out
}

// Update fetches the latest passages. Failures never propagate: a
// transport error marks the sensor unavailable and keeps the previous
// value, bad data marks it unavailable.
func (s *Sensor) Update(ctx context.Context) error {
	err := s.line.GetPassages(ctx)
	var name string
	if err == nil {
		name, err = s.line.StopName(ctx)
	}
	if err != nil {
		msg := "De Lijn update failed"
		var httpErr *HTTPError
		if errors.As(err, &httpErr) {
			msg = "De Lijn http error"
		}
		log.Error().Err(err).Str("stop", s.line.StopID()).Msg(msg)
		s.setAvailable(false)
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if name != "" {
		s.name = name
	}
	s.attrs[attrStopName] = s.name

	passages := s.line.Passages()
	if len(passages) == 0 {
		s.available = false
		return nil
	}

	if err := s.apply(passages); err != nil {
		log.Error().Err(err).Str("stop", s.line.StopID()).Msg("Invalid data received from De Lijn")
		s.available = false
		return nil
	}
	s.available = true
	return nil
}

// apply copies the first passage onto the sensor. Nothing is changed
// unless every expected field is present.
func (s *Sensor) apply(passages []Passage) error {
	first := passages[0]

	value, err := first.Lookup(KeyDueAtRealtime)
	if err != nil {
		return err
	}
	if isNull(value) {
		if value, err = first.Lookup(KeyDueAtSchedule); err != nil {
			return err
		}
	}

	copied := make(map[string]any, len(AutoAttributes))
	for _, key := range AutoAttributes {
		v, err := first.Lookup(key)
		if err != nil {
			return err
		}
		copied[key] = v
	}

	s.value = value
	for k, v := range copied {
		s.attrs[k] = v
	}
	s.attrs[attrNextPassages] = passages
	return nil
}

func (s *Sensor) setAvailable(v bool) {
	s.mu.Lock()
	s.available = v
	s.mu.Unlock()
}

// LineFactory builds the departure source for one configured stop.
type LineFactory func(stop config.Stop, apiKey string) Line

// HTTPLines returns a LineFactory backed by the De Lijn HTTP API.
func HTTPLines(client *http.Client, opts ...Option) LineFactory {
	return func(stop config.Stop, apiKey string) Line {
		return NewPassages(stop.StopID, stop.NumberOfDepartures, apiKey, client, opts...)
	}
}

// SetupPlatform creates one sensor per configured stop and adds them
// with an update before they are first written.
func SetupPlatform(cfg config.DeLijn, newLine LineFactory, add platform.AddEntities) {
	sensors := make([]entity.Entity, 0, len(cfg.NextDeparture))
	for _, stop := range cfg.NextDeparture {
		sensors = append(sensors, NewSensor(newLine(stop, cfg.APIKey)))
	}
	log.Info().Int("stops", len(sensors)).Msg("setting up De Lijn sensors")
	add(sensors, true)
}
