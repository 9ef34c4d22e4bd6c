package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

type Collector struct {
	reg *prometheus.Registry

	Entities        *prometheus.CounterVec // domain
	EntityAvailable *prometheus.GaugeVec   // entity_id
	Updates         *prometheus.CounterVec // domain, result: ok|error
	UpdateDuration  *prometheus.HistogramVec

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge
	PublishDuration prometheus.Histogram

	GatewayMessages  *prometheus.CounterVec // gateway, command
	GatewayRejected  *prometheus.CounterVec // gateway
	GatewayDiscovery *prometheus.CounterVec // gateway, domain

	RecorderWrites prometheus.Counter

	ScanInterval prometheus.Gauge // seconds
}

func NewCollector(scanInterval time.Duration) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		Entities: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensorbridge_entities_added_total",
			Help: "Entities added, by domain.",
		}, []string{"domain"}),
		EntityAvailable: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sensorbridge_entity_available",
			Help: "1 if the entity's last written state was available, 0 otherwise.",
		}, []string{"entity_id"}),
		Updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensorbridge_entity_updates_total",
			Help: "Polled entity updates by domain and result.",
		}, []string{"domain", "result"}),
		UpdateDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sensorbridge_entity_update_duration_seconds",
			Help:    "Duration of polled entity updates.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"domain"}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sensorbridge_nats_published_total",
			Help: "Total state messages published to NATS.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sensorbridge_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sensorbridge_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sensorbridge_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS state message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		GatewayMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensorbridge_gateway_messages_total",
			Help: "MySensors messages handled, by gateway and command.",
		}, []string{"gateway", "command"}),
		GatewayRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensorbridge_gateway_rejected_total",
			Help: "Malformed MySensors messages dropped.",
		}, []string{"gateway"}),
		GatewayDiscovery: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensorbridge_gateway_discovered_devices_total",
			Help: "Devices discovered, by gateway and entity domain.",
		}, []string{"gateway", "domain"}),
		RecorderWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sensorbridge_recorder_writes_total",
			Help: "States handed to the recorder.",
		}),
		ScanInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sensorbridge_scan_interval_seconds",
			Help: "Poll interval in seconds.",
		}),
	}

	// Register
	reg.MustRegister(
		c.Entities, c.EntityAvailable, c.Updates, c.UpdateDuration,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected, c.PublishDuration,
		c.GatewayMessages, c.GatewayRejected, c.GatewayDiscovery,
		c.RecorderWrites, c.ScanInterval,
	)

	c.ScanInterval.Set(scanInterval.Seconds())

	return c
}

func (c *Collector) Registry() *prometheus.Registry { return c.reg }

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server error")
		}
	}()
	log.Info().Str("addr", addr).Msg("metrics listening")
	return srv
}

// EntityAdded, UpdateObserve and SetAvailable satisfy platform.Metrics.
func (c *Collector) EntityAdded(domain string) { c.Entities.WithLabelValues(domain).Inc() }

func (c *Collector) UpdateObserve(domain string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.Updates.WithLabelValues(domain, result).Inc()
	c.UpdateDuration.WithLabelValues(domain).Observe(d.Seconds())
}

func (c *Collector) SetAvailable(entityID string, available bool) {
	v := 0.0
	if available {
		v = 1
	}
	c.EntityAvailable.WithLabelValues(entityID).Set(v)
}
