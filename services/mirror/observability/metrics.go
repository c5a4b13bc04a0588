// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the mood
// mirror: reading throughput, live connections, broadcast delivery,
// and cache effectiveness.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal
// locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "moodmirror"

const realtimeSubsystem = "realtime"

// Metrics holds all Prometheus metrics for the realtime pipeline.
// Initialize once at startup via Init(), or with a private registry in
// tests via New().
type Metrics struct {
	// ReadingsTotal counts processed readings.
	// Labels: source (websocket, rest), status (success, error)
	ReadingsTotal *prometheus.CounterVec

	// PipelineDurationSeconds measures the full reading pipeline:
	// synthesize, persist, aggregate, collective, broadcast.
	// Labels: source
	PipelineDurationSeconds *prometheus.HistogramVec

	// ActiveConnections tracks currently open websocket connections.
	ActiveConnections prometheus.Gauge

	// BroadcastsTotal counts delivered and dropped update events.
	// Labels: group (session, collective), outcome (delivered, dropped)
	BroadcastsTotal *prometheus.CounterVec

	// CacheOpsTotal counts cache lookups by kind and result.
	// Labels: kind (reading, analytics, collective, health, trends),
	// result (hit, miss)
	CacheOpsTotal *prometheus.CounterVec

	// CollectiveRecomputesTotal counts collective snapshot recomputes.
	CollectiveRecomputesTotal prometheus.Counter

	// ErrorsTotal counts errors by component and code.
	// Labels: component (hub, store, registry, cache), code
	// (validation, upstream, protocol, internal)
	ErrorsTotal *prometheus.CounterVec
}

// Default is the singleton instance, set by Init().
var Default *Metrics

// Init creates and registers the default metrics on the global
// Prometheus registry. Call once at startup; a second call panics on
// duplicate registration.
func Init() *Metrics {
	Default = New(prometheus.DefaultRegisterer)
	return Default
}

// New creates metrics registered on the given registerer. Tests pass a
// fresh prometheus.NewRegistry() to avoid duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ReadingsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: realtimeSubsystem,
				Name:      "readings_total",
				Help:      "Total emotion readings processed by source and status",
			},
			[]string{"source", "status"},
		),

		PipelineDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: realtimeSubsystem,
				Name:      "pipeline_duration_seconds",
				Help:      "End-to-end reading pipeline duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
			},
			[]string{"source"},
		),

		ActiveConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: realtimeSubsystem,
				Name:      "active_connections",
				Help:      "Number of currently open websocket connections",
			},
		),

		BroadcastsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: realtimeSubsystem,
				Name:      "broadcasts_total",
				Help:      "Update events delivered or dropped by group",
			},
			[]string{"group", "outcome"},
		),

		CacheOpsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: realtimeSubsystem,
				Name:      "cache_ops_total",
				Help:      "Result cache lookups by kind and result",
			},
			[]string{"kind", "result"},
		),

		CollectiveRecomputesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: realtimeSubsystem,
				Name:      "collective_recomputes_total",
				Help:      "Collective snapshot recomputations",
			},
		),

		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: realtimeSubsystem,
				Name:      "errors_total",
				Help:      "Errors by component and code",
			},
			[]string{"component", "code"},
		),
	}
}

// ErrorCode categorizes an error for metrics, mirroring the service's
// error taxonomy.
type ErrorCode string

const (
	ErrorCodeValidation ErrorCode = "validation"
	ErrorCodeUpstream   ErrorCode = "upstream"
	ErrorCodeProtocol   ErrorCode = "protocol"
	ErrorCodeInternal   ErrorCode = "internal"
)

// RecordReading records a completed (or failed) reading pipeline run.
func (m *Metrics) RecordReading(source string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.ReadingsTotal.WithLabelValues(source, status).Inc()
}

// RecordError records an error against a component.
func (m *Metrics) RecordError(component string, code ErrorCode) {
	m.ErrorsTotal.WithLabelValues(component, string(code)).Inc()
}

// RecordBroadcast records one delivery attempt to one subscriber.
func (m *Metrics) RecordBroadcast(group string, delivered bool) {
	outcome := "delivered"
	if !delivered {
		outcome = "dropped"
	}
	m.BroadcastsTotal.WithLabelValues(group, outcome).Inc()
}

// RecordCacheLookup records a cache hit or miss for a result kind.
func (m *Metrics) RecordCacheLookup(kind string, hit bool) {
	result := "hit"
	if !hit {
		result = "miss"
	}
	m.CacheOpsTotal.WithLabelValues(kind, result).Inc()
}

// ConnectionOpened increments the live connection gauge.
func (m *Metrics) ConnectionOpened() {
	m.ActiveConnections.Inc()
}

// ConnectionClosed decrements the live connection gauge.
func (m *Metrics) ConnectionClosed() {
	m.ActiveConnections.Dec()
}
