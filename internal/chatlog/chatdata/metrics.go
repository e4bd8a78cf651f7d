package chatdata

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 加载过程的计数，挂在独立的 Registry 上，由 HTTP 层通过 /metrics 暴露
type Metrics struct {
	Registry *prometheus.Registry

	PageQueries      prometheus.Counter
	MessagesKept     prometheus.Counter
	RowsDropped      prometheus.Counter
	ApproxTimestamps prometheus.Counter
	CacheHits        prometheus.Counter
	SoftErrors       *prometheus.CounterVec
	LoadDuration     prometheus.Histogram
}

func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		PageQueries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wxchat",
			Name:      "page_queries_total",
			Help:      "Message table page queries issued.",
		}),
		MessagesKept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wxchat",
			Name:      "messages_kept_total",
			Help:      "Rows normalized into messages for the requested contact.",
		}),
		RowsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wxchat",
			Name:      "rows_dropped_total",
			Help:      "Rows filtered out as empty or unrelated to the contact.",
		}),
		ApproxTimestamps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wxchat",
			Name:      "approx_timestamps_total",
			Help:      "Rows whose timestamp could not be parsed and was replaced by load time.",
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wxchat",
			Name:      "message_cache_hits_total",
			Help:      "LoadMessages calls served from cache.",
		}),
		SoftErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wxchat",
			Name:      "soft_errors_total",
			Help:      "Skipped units by stage.",
		}, []string{"stage"}),
		LoadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "wxchat",
			Name:      "load_messages_seconds",
			Help:      "LoadMessages latency.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	m.Registry.MustRegister(
		m.PageQueries,
		m.MessagesKept,
		m.RowsDropped,
		m.ApproxTimestamps,
		m.CacheHits,
		m.SoftErrors,
		m.LoadDuration,
	)
	return m
}
