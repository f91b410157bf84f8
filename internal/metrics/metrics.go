// Package metrics holds the Prometheus collectors shared by MANA's components.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups every collector MANA exports.
type Metrics struct {
	tweets         *prometheus.CounterVec
	mirrorFailures prometheus.Counter
	ledgerSize     prometheus.Gauge
	cleanups       *prometheus.CounterVec
	embedFailures  prometheus.Counter
	chunksSkipped  prometheus.Counter
	searches       *prometheus.CounterVec
	generations    *prometheus.CounterVec
}

// New creates the collectors and registers them with reg when reg is non-nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		tweets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mana",
			Name:      "ledger_tweets_total",
			Help:      "Tweets offered to the ledger, by outcome.",
		}, []string{"outcome"}),
		mirrorFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mana",
			Name:      "ledger_mirror_failures_total",
			Help:      "Ledger writes whose knowledge-store mirror failed.",
		}),
		ledgerSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mana",
			Name:      "ledger_size",
			Help:      "Tweets currently retained in the ledger.",
		}),
		cleanups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mana",
			Name:      "ledger_cleanups_total",
			Help:      "Cleanup runs, by outcome.",
		}, []string{"outcome"}),
		embedFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mana",
			Name:      "knowledge_embedding_failures_total",
			Help:      "Failed embedding calls.",
		}),
		chunksSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mana",
			Name:      "knowledge_chunks_skipped_total",
			Help:      "Document chunks skipped during ingestion.",
		}),
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mana",
			Name:      "knowledge_namespace_queries_total",
			Help:      "Per-namespace search queries, by outcome.",
		}, []string{"namespace", "outcome"}),
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mana",
			Name:      "persona_generations_total",
			Help:      "Generation calls, by kind and outcome.",
		}, []string{"kind", "outcome"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.tweets, m.mirrorFailures, m.ledgerSize, m.cleanups,
			m.embedFailures, m.chunksSkipped, m.searches, m.generations,
		)
	}
	return m
}

// TweetOffered records a ledger add; outcome is "accepted" or a rejection reason.
func (m *Metrics) TweetOffered(outcome string) {
	if m == nil {
		return
	}
	m.tweets.WithLabelValues(outcome).Inc()
}

func (m *Metrics) MirrorFailed() {
	if m == nil {
		return
	}
	m.mirrorFailures.Inc()
}

func (m *Metrics) SetLedgerSize(n int) {
	if m == nil {
		return
	}
	m.ledgerSize.Set(float64(n))
}

func (m *Metrics) CleanupRun(outcome string) {
	if m == nil {
		return
	}
	m.cleanups.WithLabelValues(outcome).Inc()
}

func (m *Metrics) EmbeddingFailed() {
	if m == nil {
		return
	}
	m.embedFailures.Inc()
}

func (m *Metrics) ChunkSkipped() {
	if m == nil {
		return
	}
	m.chunksSkipped.Inc()
}

// NamespaceQueried records one namespace query; outcome is "hit", "miss" or "error".
func (m *Metrics) NamespaceQueried(namespace, outcome string) {
	if m == nil {
		return
	}
	m.searches.WithLabelValues(namespace, outcome).Inc()
}

func (m *Metrics) Generated(kind, outcome string) {
	if m == nil {
		return
	}
	m.generations.WithLabelValues(kind, outcome).Inc()
}
