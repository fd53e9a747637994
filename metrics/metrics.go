// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// DecryptMetrics collects signature cache, signing and dispatch counters
type DecryptMetrics struct {
	SignatureCacheHits     prometheus.Counter
	SignatureCacheMisses   prometheus.Counter
	SignatureCacheInvalid  prometheus.Counter
	SignatureStoreFailures prometheus.Counter
	SigningPrompts         prometheus.Counter
	SigningFailures        prometheus.Counter
	SigningStale           prometheus.Counter
	DecryptRequests        prometheus.Counter
	DecryptDispatches      prometheus.Counter
	DecryptFailures        prometheus.Counter
	HandlesDecrypted       prometheus.Counter
	InFlightJoins          prometheus.Counter
	DispatchLatency        prometheus.Histogram
}

// NewDecryptMetrics creates and registers the collectors. A nil registerer
// leaves them unregistered, which tests rely on.
func NewDecryptMetrics(registerer prometheus.Registerer) *DecryptMetrics {
	m := &DecryptMetrics{
		SignatureCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signature_cache_hits",
			Help: "Number of contract lookups served by a valid cached decryption signature",
		}),
		SignatureCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signature_cache_misses",
			Help: "Number of contract lookups without a valid cached decryption signature",
		}),
		SignatureCacheInvalid: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signature_cache_invalid",
			Help: "Number of persisted signatures rejected as malformed or expired",
		}),
		SignatureStoreFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signature_store_failures",
			Help: "Number of signature store reads or writes that failed",
		}),
		SigningPrompts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signing_prompts",
			Help: "Number of wallet signature requests issued",
		}),
		SigningFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signing_failures",
			Help: "Number of wallet signature requests rejected or failed",
		}),
		SigningStale: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signing_stale",
			Help: "Number of signatures discarded because the signing context changed",
		}),
		DecryptRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "decrypt_requests",
			Help: "Number of decrypt requests received",
		}),
		DecryptDispatches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "decrypt_dispatches",
			Help: "Number of user decrypt calls issued",
		}),
		DecryptFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "decrypt_failures",
			Help: "Number of user decrypt calls that failed",
		}),
		HandlesDecrypted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "handles_decrypted",
			Help: "Number of handles merged into the result cache",
		}),
		InFlightJoins: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "inflight_joins",
			Help: "Number of times a request joined an already dispatched call",
		}),
		DispatchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "decrypt_dispatch_latency_seconds",
			Help:    "Latency of user decrypt calls",
			Buckets: prometheus.DefBuckets,
		}),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.SignatureCacheHits,
			m.SignatureCacheMisses,
			m.SignatureCacheInvalid,
			m.SignatureStoreFailures,
			m.SigningPrompts,
			m.SigningFailures,
			m.SigningStale,
			m.DecryptRequests,
			m.DecryptDispatches,
			m.DecryptFailures,
			m.HandlesDecrypted,
			m.InFlightJoins,
			m.DispatchLatency,
		)
	}
	return m
}
