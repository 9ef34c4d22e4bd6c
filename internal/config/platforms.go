package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	PlatformDeLijn            = "delijn"
	DefaultNumberOfDepartures = 5
	DefaultBaudRate           = 115200
)

// Stop is one stop the De Lijn sensor watches.
type Stop struct {
	StopID             string `yaml:"stop_id"`
	NumberOfDepartures int    `yaml:"number_of_departures"`
}

// DeLijn is one "sensor" platform entry.
type DeLijn struct {
	Platform      string `yaml:"platform"`
	APIKey        string `yaml:"api_key"`
	NextDeparture []Stop `yaml:"next_departure"`
}

// MySensors is one gateway entry. A gateway with a device path is read
// from the serial port; otherwise its lines arrive over NATS.
type MySensors struct {
	EntryID       string `yaml:"entry_id"`
	SubjectPrefix string `yaml:"subject_prefix"`
	Device        string `yaml:"device"`
	BaudRate      int    `yaml:"baud_rate"`
}

func (m MySensors) Serial() bool { return m.Device != "" }

// Platforms is the parsed configuration file.
type Platforms struct {
	Sensor    []DeLijn    `yaml:"sensor"`
	MySensors []MySensors `yaml:"mysensors"`
}

// rawStop distinguishes an omitted number_of_departures from zero.
type rawStop struct {
	StopID             *string `yaml:"stop_id"`
	NumberOfDepartures *int    `yaml:"number_of_departures"`
}

type rawSensor struct {
	Platform      string     `yaml:"platform"`
	APIKey        *string    `yaml:"api_key"`
	NextDeparture *[]rawStop `yaml:"next_departure"`
}

type rawPlatforms struct {
	Sensor    []rawSensor `yaml:"sensor"`
	MySensors []MySensors `yaml:"mysensors"`
}

// FieldError points at the offending configuration key.
type FieldError struct {
	Path string
	Msg  string
}

func (e *FieldError) Error() string { return e.Path + ": " + e.Msg }

func LoadPlatforms(path string) (*Platforms, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	return ParsePlatforms(f)
}

// ParsePlatforms decodes and validates a configuration document.
// Validation errors are joined so every problem is reported at once.
func ParsePlatforms(r io.Reader) (*Platforms, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var raw rawPlatforms
	if len(bytes.TrimSpace(data)) > 0 {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	}

	var errs []error
	out := &Platforms{}
	for i, s := range raw.Sensor {
		path := fmt.Sprintf("sensor[%d]", i)
		cfg, err := validateSensor(path, s)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out.Sensor = append(out.Sensor, cfg)
	}

	seen := make(map[string]bool)
	for i, m := range raw.MySensors {
		path := fmt.Sprintf("mysensors[%d]", i)
		m.EntryID = strings.TrimSpace(m.EntryID)
		switch {
		case m.EntryID == "":
			errs = append(errs, &FieldError{Path: path + ".entry_id", Msg: "required"})
			continue
		case seen[m.EntryID]:
			errs = append(errs, &FieldError{Path: path + ".entry_id", Msg: fmt.Sprintf("duplicate entry id %q", m.EntryID)})
			continue
		}
		seen[m.EntryID] = true
		if m.SubjectPrefix == "" {
			m.SubjectPrefix = "mysensors." + m.EntryID
		}
		if strings.ContainsAny(m.SubjectPrefix, " *>") {
			errs = append(errs, &FieldError{Path: path + ".subject_prefix", Msg: "must be a literal NATS subject"})
			continue
		}
		m.Device = strings.TrimSpace(m.Device)
		if m.BaudRate == 0 {
			m.BaudRate = DefaultBaudRate
		}
		if m.BaudRate < 0 {
			errs = append(errs, &FieldError{Path: path + ".baud_rate", Msg: fmt.Sprintf("must be positive, got %d", m.BaudRate)})
			continue
		}
		out.MySensors = append(out.MySensors, m)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

func validateSensor(path string, s rawSensor) (DeLijn, error) {
	if s.Platform != PlatformDeLijn {
		return DeLijn{}, &FieldError{Path: path + ".platform", Msg: fmt.Sprintf("unknown platform %q", s.Platform)}
	}
	if s.APIKey == nil || strings.TrimSpace(*s.APIKey) == "" {
		return DeLijn{}, &FieldError{Path: path + ".api_key", Msg: "required"}
	}
	if s.NextDeparture == nil || len(*s.NextDeparture) == 0 {
		return DeLijn{}, &FieldError{Path: path + ".next_departure", Msg: "at least one stop is required"}
	}

	cfg := DeLijn{Platform: s.Platform, APIKey: strings.TrimSpace(*s.APIKey)}
	var errs []error
	for i, st := range *s.NextDeparture {
		stopPath := fmt.Sprintf("%s.next_departure[%d]", path, i)
		if st.StopID == nil || strings.TrimSpace(*st.StopID) == "" {
			errs = append(errs, &FieldError{Path: stopPath + ".stop_id", Msg: "required"})
			continue
		}
		n := DefaultNumberOfDepartures
		if st.NumberOfDepartures != nil {
			n = *st.NumberOfDepartures
		}
		if n < 1 {
			errs = append(errs, &FieldError{Path: stopPath + ".number_of_departures", Msg: fmt.Sprintf("must be a positive integer, got %d", n)})
			continue
		}
		cfg.NextDeparture = append(cfg.NextDeparture, Stop{StopID: strings.TrimSpace(*st.StopID), NumberOfDepartures: n})
	}
	if len(errs) > 0 {
		return DeLijn{}, errors.Join(errs...)
	}
	return cfg, nil
}
