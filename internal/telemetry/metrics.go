// =====================================
// File: internal/telemetry/metrics.go
// =====================================
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects the counters backing the error-handling policy:
// decoder misses, dedup hits, dropped events and sink failures are
// reported here instead of being raised as errors.
type Metrics struct {
	DecoderMisses    *prometheus.CounterVec
	DedupHits        prometheus.Counter
	EventsEmitted    *prometheus.CounterVec
	EventsDropped    prometheus.Counter
	SinkFailures     prometheus.Counter
	MetadataHits     prometheus.Counter
	MetadataMisses   prometheus.Counter
	StreamReconnects prometheus.Counter
	VaultUpdates     prometheus.Counter
}

// New registers the counter set on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DecoderMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "solwatch",
			Name:      "decoder_misses_total",
			Help:      "Account updates dropped by the decoder (short buffer, bad discriminator, invalid mint).",
		}, []string{"dex"}),
		DedupHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "solwatch",
			Name:      "dedup_hits_total",
			Help:      "Pool events dropped as duplicates of an already seen (dex, base, quote) key.",
		}),
		EventsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "solwatch",
			Name:      "events_emitted_total",
			Help:      "Pool events handed to the emission pipeline.",
		}, []string{"kind"}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "solwatch",
			Name:      "events_dropped_total",
			Help:      "Events dropped because the emission queue was full.",
		}),
		SinkFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "solwatch",
			Name:      "sink_failures_total",
			Help:      "Failed POSTs to the remote alert sink.",
		}),
		MetadataHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "solwatch",
			Name:      "metadata_hits_total",
			Help:      "Pool events annotated from the metadata cache.",
		}),
		MetadataMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "solwatch",
			Name:      "metadata_misses_total",
			Help:      "Pool events forwarded without metadata after retry exhaustion.",
		}),
		StreamReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "solwatch",
			Name:      "stream_reconnects_total",
			Help:      "Geyser stream reconnection attempts.",
		}),
		VaultUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "solwatch",
			Name:      "vault_updates_total",
			Help:      "SPL token vault balance updates applied to tracked pools.",
		}),
	}

	reg.MustRegister(
		m.DecoderMisses, m.DedupHits, m.EventsEmitted, m.EventsDropped,
		m.SinkFailures, m.MetadataHits, m.MetadataMisses,
		m.StreamReconnects, m.VaultUpdates,
	)
	return m
}

// NewUnregistered returns a counter set on a private registry, for
// tests and embedded use.
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}
