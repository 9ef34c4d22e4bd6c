package delijn

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAPI(t *testing.T, lineCalls *atomic.Int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/haltes/2/200552", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"entiteitnummer":"2","haltenummer":"200552","omschrijving":"Gent Zuid perron 3"}`)
	})
	mux.HandleFunc("/haltes/2/200552/real-time", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2", r.URL.Query().Get("maxAantalDoorkomsten"))
		fmt.Fprint(w, `{"halteDoorkomsten":[{"haltenummer":"200552","doorkomsten":[
			{"entiteitnummer":"2","lijnnummer":"70","richting":"HEEN","bestemming":"Oostakker",
			 "dienstregelingTijdstip":"2024-03-01T10:05:00","real-timeTijdstip":"2024-03-01T10:07:00"},
			{"entiteitnummer":"2","lijnnummer":"70","richting":"HEEN","bestemming":"Oostakker",
			 "dienstregelingTijdstip":"2024-03-01T10:20:00"},
			{"entiteitnummer":"2","lijnnummer":"3","richting":"TERUG","bestemming":"Mariakerke",
			 "dienstregelingTijdstip":"2024-03-01T10:25:00"}
		]}]}`)
	})
	mux.HandleFunc("/lijnen/2/70", func(w http.ResponseWriter, r *http.Request) {
		lineCalls.Add(1)
		fmt.Fprint(w, `{"lijnnummerPubliek":"70","vervoertype":"BUS","omschrijving":"Gent - Oostakker"}`)
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(apiKeyHeader) != "secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGetPassages(t *testing.T) {
	var lineCalls atomic.Int32
	srv := newAPI(t, &lineCalls)
	p := NewPassages("200552", 2, "secret", srv.Client(), WithBaseURL(srv.URL+"/"), WithLocation(time.UTC))

	require.NoError(t, p.GetPassages(context.Background()))
	got := p.Passages()
	require.Len(t, got, 2)

	first := got[0]
	assert.Equal(t, "70", first[KeyLineNumberPublic])
	assert.Equal(t, "BUS", first[KeyLineTransportType])
	assert.Equal(t, "Oostakker", first[KeyFinalDestination])
	assert.Equal(t, time.Date(2024, 3, 1, 10, 5, 0, 0, time.UTC), first[KeyDueAtSchedule])
	assert.Equal(t, time.Date(2024, 3, 1, 10, 7, 0, 0, time.UTC), first[KeyDueAtRealtime])
	assert.Equal(t, true, first[KeyIsRealtime])

	second := got[1]
	assert.Nil(t, second[KeyDueAtRealtime])
	assert.Contains(t, second, KeyDueAtRealtime)
	assert.Equal(t, false, second[KeyIsRealtime])

	require.NoError(t, p.GetPassages(context.Background()))
	assert.EqualValues(t, 1, lineCalls.Load(), "line lookups are cached")
}

func TestStopName(t *testing.T) {
	var lineCalls atomic.Int32
	srv := newAPI(t, &lineCalls)
	p := NewPassages("200552", 2, "secret", srv.Client(), WithBaseURL(srv.URL))

	name, err := p.StopName(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Gent Zuid perron 3", name)
}

func TestTransportErrorsAreHTTPErrors(t *testing.T) {
	var lineCalls atomic.Int32
	srv := newAPI(t, &lineCalls)

	t.Run("status", func(t *testing.T) {
		p := NewPassages("200552", 2, "wrong", srv.Client(), WithBaseURL(srv.URL))
		err := p.GetPassages(context.Background())
		var httpErr *HTTPError
		require.True(t, errors.As(err, &httpErr))
		assert.Equal(t, http.StatusUnauthorized, httpErr.StatusCode)
	})

	t.Run("decode", func(t *testing.T) {
		bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "not json")
		}))
		defer bad.Close()
		p := NewPassages("200552", 2, "secret", bad.Client(), WithBaseURL(bad.URL))
		_, err := p.StopName(context.Background())
		var httpErr *HTTPError
		require.True(t, errors.As(err, &httpErr))
		assert.Zero(t, httpErr.StatusCode)
	})

	t.Run("network", func(t *testing.T) {
		closed := httptest.NewServer(http.NotFoundHandler())
		closed.Close()
		p := NewPassages("200552", 2, "secret", http.DefaultClient, WithBaseURL(closed.URL))
		err := p.GetPassages(context.Background())
		var httpErr *HTTPError
		require.True(t, errors.As(err, &httpErr))
	})
}

func TestFailedFetchKeepsPreviousPassages(t *testing.T) {
	var lineCalls atomic.Int32
	srv := newAPI(t, &lineCalls)
	p := NewPassages("200552", 2, "secret", srv.Client(), WithBaseURL(srv.URL), WithLocation(time.UTC))
	require.NoError(t, p.GetPassages(context.Background()))

	p.apiKey = "wrong"
	require.Error(t, p.GetPassages(context.Background()))
	assert.Len(t, p.Passages(), 2)
}

func TestGetPassagesFallsBackToStopEntity(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/haltes/2/200552/real-time", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"halteDoorkomsten":[{"haltenummer":"200552","doorkomsten":[
			{"lijnnummer":"70","richting":"HEEN","bestemming":"Oostakker",
			 "dienstregelingTijdstip":"2024-03-01T10:05:00"}
		]}]}`)
	})
	mux.HandleFunc("/lijnen/2/70", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"lijnnummerPubliek":"70","vervoertype":"BUS"}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	p := NewPassages("200552", 5, "secret", srv.Client(), WithBaseURL(srv.URL), WithLocation(time.UTC))
	require.NoError(t, p.GetPassages(context.Background()))
	got := p.Passages()
	require.Len(t, got, 1)
	assert.Equal(t, "BUS", got[0][KeyLineTransportType])
}

func TestEntityIsFirstCharacter(t *testing.T) {
	assert.Equal(t, "", NewPassages("", 1, "", nil, WithLocation(time.UTC)).entity())
	assert.Equal(t, "4", NewPassages("40231", 1, "", nil, WithLocation(time.UTC)).entity())
	assert.Equal(t, "é", NewPassages("é12", 1, "", nil, WithLocation(time.UTC)).entity())
}
