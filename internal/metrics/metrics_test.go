package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorPlatformHooks(t *testing.T) {
	c := NewCollector(30 * time.Second)

	c.EntityAdded("sensor")
	c.EntityAdded("sensor")
	c.UpdateObserve("sensor", 10*time.Millisecond, nil)
	c.UpdateObserve("sensor", 10*time.Millisecond, errors.New("x"))
	c.SetAvailable("sensor.gent_zuid", true)
	c.SetAvailable("binary_sensor.hall_1", false)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.Entities.WithLabelValues("sensor")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Updates.WithLabelValues("sensor", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Updates.WithLabelValues("sensor", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.EntityAvailable.WithLabelValues("sensor.gent_zuid")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.EntityAvailable.WithLabelValues("binary_sensor.hall_1")))
	assert.Equal(t, 30.0, testutil.ToFloat64(c.ScanInterval))
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := NewCollector(time.Minute)
	c.NATSPublished.Inc()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "sensorbridge_nats_published_total 1"))
	assert.True(t, strings.Contains(body, "sensorbridge_scan_interval_seconds 60"))
}

func TestRegistryCountsLabelledSeries(t *testing.T) {
	c := NewCollector(time.Minute)
	c.EntityAdded("sensor")
	c.EntityAdded("binary_sensor")

	n, err := testutil.GatherAndCount(c.Registry(), "sensorbridge_entities_added_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
