package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 检索引擎Prometheus指标
var (
	UpsertsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rag_upserts_total",
		Help: "Number of document upserts processed",
	})

	RetrievalsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rag_retrievals_total",
		Help: "Number of retrieval queries processed",
	})

	RetrievalDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rag_retrieval_duration_seconds",
		Help:    "Latency of retrieval queries",
		Buckets: prometheus.DefBuckets,
	})

	OwnerCorpusLoads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rag_owner_corpus_loads_total",
		Help: "Number of cold bulk loads of an owner corpus from storage",
	})

	CorruptEmbeddingsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rag_corrupt_embeddings_dropped_total",
		Help: "Persisted embeddings that failed to decode and were excluded from scoring",
	})
)

// Handler 返回Prometheus指标的HTTP处理器
func Handler() http.Handler {
	return promhttp.Handler()
}
