// Package metrics instruments the connection read/write and RPC paths
// with Prometheus histograms, replacing the teacher's hand-rolled
// stats.Histogram/stats.MakeHistogram/stats.Start/stats.RecordHisto
// pattern (server/connection.go) with real prometheus.Histogram vectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Set bundles the four frame-path histograms the teacher instruments
// (Out.Blocked, Out.Network, In.Blocked, In.Network) plus an RPC
// round-trip histogram this module adds per SPEC_FULL.md §1.
type Set struct {
	OutBlocked   prometheus.Histogram
	OutNetwork   prometheus.Histogram
	InBlocked    prometheus.Histogram
	InNetwork    prometheus.Histogram
	RPCRoundTrip *prometheus.HistogramVec
}

// NewSet creates a Set and registers its collectors against reg. Passing
// nil registers against prometheus.DefaultRegisterer, matching the
// zero-config default a library embedder expects.
//
// Every Connection in a process shares the same fixed collector names, so
// a second New() against the same registerer (e.g. one test binary
// constructing several Connections, each with an empty Config) must not
// panic: Register's AlreadyRegisteredError is treated as "reuse the
// collector already there" rather than surfaced via MustRegister.
func NewSet(reg prometheus.Registerer) *Set {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	buckets := prometheus.ExponentialBuckets(0.00005, 2, 20)
	return &Set{
		OutBlocked: registerHistogram(reg, prometheus.HistogramOpts{
			Namespace: "amqpcore",
			Name:      "connection_out_blocked_seconds",
			Help:      "Time spent waiting for a frame to be queued for write.",
			Buckets:   buckets,
		}),
		OutNetwork: registerHistogram(reg, prometheus.HistogramOpts{
			Namespace: "amqpcore",
			Name:      "connection_out_network_seconds",
			Help:      "Time spent writing a frame to the network.",
			Buckets:   buckets,
		}),
		InBlocked: registerHistogram(reg, prometheus.HistogramOpts{
			Namespace: "amqpcore",
			Name:      "connection_in_blocked_seconds",
			Help:      "Time spent waiting for a frame to be dispatched to its channel.",
			Buckets:   buckets,
		}),
		InNetwork: registerHistogram(reg, prometheus.HistogramOpts{
			Namespace: "amqpcore",
			Name:      "connection_in_network_seconds",
			Help:      "Time spent reading a frame from the network.",
			Buckets:   buckets,
		}),
		RPCRoundTrip: registerHistogramVec(reg, prometheus.HistogramOpts{
			Namespace: "amqpcore",
			Name:      "channel_rpc_round_trip_seconds",
			Help:      "Round-trip latency of a synchronous method call, by class.method.",
			Buckets:   buckets,
		}, []string{"method"}),
	}
}

// registerHistogram registers h against reg, falling back to the
// already-registered collector of the same name rather than panicking, so
// multiple Connections sharing a registerer (the common case when no
// explicit one is configured) don't collide.
func registerHistogram(reg prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	h := prometheus.NewHistogram(opts)
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing
			}
		}
	}
	return h
}

func registerHistogramVec(reg prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	v := prometheus.NewHistogramVec(opts, labels)
	if err := reg.Register(v); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing
			}
		}
	}
	return v
}

// Start returns the current time; paired with Record or Set.RecordRPC
// around a blocking call, mirroring the teacher's stats.Start()/
// stats.RecordHisto(h, start) pairing.
func Start() time.Time { return time.Now() }

// RecordRPC observes the elapsed time since start against the RPC
// histogram for the given method name (e.g. "basic.publish").
func (s *Set) RecordRPC(method string, start time.Time) {
	if s == nil {
		return
	}
	s.RPCRoundTrip.WithLabelValues(method).Observe(time.Since(start).Seconds())
}

// Record observes the elapsed time since start against h.
func Record(h prometheus.Histogram, start time.Time) {
	if h == nil {
		return
	}
	h.Observe(time.Since(start).Seconds())
}
