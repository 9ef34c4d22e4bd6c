package delijn

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
)

const (
	DefaultBaseURL = "https://api.delijn.be/DLKernOpenData/api/v1"
	apiKeyHeader   = "Ocp-Apim-Subscription-Key"
	timeLayout     = "2006-01-02T15:04:05"
)

// HTTPError is returned for every transport-level failure talking to
// the De Lijn API: network errors, non-2xx responses and bodies that do
// not decode.
type HTTPError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *HTTPError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("delijn: %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("delijn: %s: %v", e.URL, e.Err)
}

func (e *HTTPError) Unwrap() error { return e.Err }

// Line is what the sensor needs from a departure source for one stop.
type Line interface {
	StopID() string
	GetPassages(ctx context.Context) error
	StopName(ctx context.Context) (string, error)
	Passages() []Passage
}

type lineInfo struct {
	PublicNumber  string `json:"lijnnummerPubliek"`
	TransportType string `json:"vervoertype"`
	Description   string `json:"omschrijving"`
}

type stopResponse struct {
	EntityNumber string `json:"entiteitnummer"`
	StopNumber   string `json:"haltenummer"`
	Description  string `json:"omschrijving"`
}

type realtimeResponse struct {
	StopPassages []struct {
		StopNumber string `json:"haltenummer"`
		Passages   []struct {
			EntityNumber string   `json:"entiteitnummer"`
			LineNumber   string   `json:"lijnnummer"`
			Direction    string   `json:"richting"`
			Destination  string   `json:"bestemming"`
			Scheduled    string   `json:"dienstregelingTijdstip"`
			Realtime     string   `json:"real-timeTijdstip"`
			Predictions  []string `json:"predictionStatussen"`
		} `json:"doorkomsten"`
	} `json:"halteDoorkomsten"`
}

// Passages fetches upcoming departures for a single stop.
type Passages struct {
	stopID      string
	maxPassages int
	apiKey      string
	client      *http.Client
	baseURL     string
	loc         *time.Location

	mu       sync.Mutex
	passages []Passage
	lines    map[string]lineInfo // "<entity>/<line>" -> info
}

type Option func(*Passages)

func WithBaseURL(u string) Option {
	return func(p *Passages) { p.baseURL = strings.TrimRight(u, "/") }
}

// WithLocation sets the zone the API's local timestamps are read in.
func WithLocation(loc *time.Location) Option {
	return func(p *Passages) { p.loc = loc }
}

func NewPassages(stopID string, maxPassages int, apiKey string, client *http.Client, opts ...Option) *Passages {
	if client == nil {
		client = http.DefaultClient
	}
	p := &Passages{
		stopID:      stopID,
		maxPassages: maxPassages,
		apiKey:      apiKey,
		client:      client,
		baseURL:     DefaultBaseURL,
		lines:       make(map[string]lineInfo),
	}
	for _, o := range opts {
		o(p)
	}
	if p.loc == nil {
		loc, err := time.LoadLocation("Europe/Brussels")
		if err != nil {
			log.Warn().Err(err).Msg("Europe/Brussels unavailable, reading De Lijn times as UTC")
			loc = time.UTC
		}
		p.loc = loc
	}
	return p
}

func (p *Passages) StopID() string { return p.stopID }

// entity is the De Lijn entity (province) number a stop belongs to: the
// first character of the stop id.
func (p *Passages) entity() string {
	_, size := utf8.DecodeRuneInString(p.stopID)
	return p.stopID[:size]
}

// Passages returns the departures from the last successful GetPassages.
func (p *Passages) Passages() []Passage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Passage(nil), p.passages...)
}

// StopName returns the stop's description.
func (p *Passages) StopName(ctx context.Context) (string, error) {
	var stop stopResponse
	if err := p.get(ctx, fmt.Sprintf("/haltes/%s/%s", p.entity(), url.PathEscape(p.stopID)), nil, &stop); err != nil {
		return "", err
	}
	return stop.Description, nil
}

// GetPassages refreshes the passage list. On error the previous list is kept.
func (p *Passages) GetPassages(ctx context.Context) error {
	q := url.Values{}
	q.Set("maxAantalDoorkomsten", strconv.Itoa(p.maxPassages))

	var rt realtimeResponse
	if err := p.get(ctx, fmt.Sprintf("/haltes/%s/%s/real-time", p.entity(), url.PathEscape(p.stopID)), q, &rt); err != nil {
		return err
	}

	var out []Passage
	for _, stop := range rt.StopPassages {
		for _, d := range stop.Passages {
			if p.maxPassages > 0 && len(out) >= p.maxPassages {
				break
			}
			entityNumber := d.EntityNumber
			if entityNumber == "" {
				entityNumber = p.entity()
			}
			info, err := p.line(ctx, entityNumber, d.LineNumber)
			if err != nil {
				return err
			}
			passage := Passage{
				KeyLineNumber:        d.LineNumber,
				KeyLineNumberPublic:  info.PublicNumber,
				KeyLineTransportType: info.TransportType,
				KeyFinalDestination:  d.Destination,
				KeyDirection:         d.Direction,
				KeyDueAtSchedule:     p.parseTime(d.Scheduled),
				KeyDueAtRealtime:     nil,
				KeyIsRealtime:        false,
			}
			if realtime := p.parseTime(d.Realtime); realtime != nil {
				passage[KeyDueAtRealtime] = realtime
				passage[KeyIsRealtime] = true
			}
			out = append(out, passage)
		}
	}

	p.mu.Lock()
	p.passages = out
	p.mu.Unlock()
	return nil
}

func (p *Passages) line(ctx context.Context, entity, number string) (lineInfo, error) {
	key := entity + "/" + number
	p.mu.Lock()
	info, ok := p.lines[key]
	p.mu.Unlock()
	if ok {
		return info, nil
	}
	if err := p.get(ctx, fmt.Sprintf("/lijnen/%s/%s", url.PathEscape(entity), url.PathEscape(number)), nil, &info); err != nil {
		return lineInfo{}, err
	}
	p.mu.Lock()
	p.lines[key] = info
	p.mu.Unlock()
	return info, nil
}

// parseTime returns nil for empty or unparseable timestamps.
func (p *Passages) parseTime(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	t, err := time.ParseInLocation(timeLayout, s, p.loc)
	if err != nil {
		log.Debug().Err(err).Str("value", s).Msg("unparseable De Lijn timestamp")
		return nil
	}
	return t
}

func (p *Passages) get(ctx context.Context, path string, q url.Values, out any) error {
	u := p.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return &HTTPError{URL: u, Err: err}
	}
	req.Header.Set(apiKeyHeader, p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return &HTTPError{URL: u, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &HTTPError{URL: u, StatusCode: resp.StatusCode}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &HTTPError{URL: u, Err: fmt.Errorf("decode payload: %w", err)}
	}
	return nil
}
