package main

import (
	"context"
	"time"

	"sensorbridge/internal/entity"
	"sensorbridge/internal/metrics"
	"sensorbridge/internal/mysensors"
	"sensorbridge/internal/platform"
	"sensorbridge/internal/publisher"
)

// wrapPublisherMetrics adapts our Collector to the PublisherMetrics interface.
func wrapPublisherMetrics(c *metrics.Collector) publisher.PublisherMetrics {
	if c == nil {
		return nil
	}
	return &pubMetrics{c: c}
}

type pubMetrics struct{ c *metrics.Collector }

func (p *pubMetrics) NATSPublishedInc()              { p.c.NATSPublished.Inc() }
func (p *pubMetrics) NATSPublishErrInc()             { p.c.NATSPublishErrs.Inc() }
func (p *pubMetrics) PublishObserve(d time.Duration) { p.c.PublishDuration.Observe(d.Seconds()) }
func (p *pubMetrics) NATSSetConnected(b bool) {
	if b {
		p.c.NATSConnected.Set(1)
	} else {
		p.c.NATSConnected.Set(0)
	}
}

func wrapPlatformMetrics(c *metrics.Collector) platform.Metrics {
	if c == nil {
		return nil
	}
	return c
}

func wrapGatewayMetrics(c *metrics.Collector) mysensors.GatewayMetrics {
	if c == nil {
		return nil
	}
	return &gatewayMetrics{c: c}
}

type gatewayMetrics struct{ c *metrics.Collector }

func (g *gatewayMetrics) MessageHandled(entryID string, cmd mysensors.Command) {
	g.c.GatewayMessages.WithLabelValues(entryID, cmd.String()).Inc()
}

func (g *gatewayMetrics) MessageRejected(entryID string) {
	g.c.GatewayRejected.WithLabelValues(entryID).Inc()
}

func (g *gatewayMetrics) DevicesDiscovered(entryID, domain string, n int) {
	g.c.GatewayDiscovery.WithLabelValues(entryID, domain).Add(float64(n))
}

// countWrites counts states handed to w when metrics are enabled.
func countWrites(w platform.StateWriter, c *metrics.Collector) platform.StateWriter {
	if c == nil {
		return w
	}
	return &countingWriter{w: w, c: c}
}

type countingWriter struct {
	w platform.StateWriter
	c *metrics.Collector
}

func (cw *countingWriter) WriteState(ctx context.Context, s entity.Snapshot) error {
	cw.c.RecorderWrites.Inc()
	return cw.w.WriteState(ctx, s)
}
