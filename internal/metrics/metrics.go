// Package metrics holds the Prometheus metrics for the sharded lookup
// engine, built the same way the teacher's storage-node builds its
// metrics: a struct of named metrics constructed once via promauto,
// exposing small Record*/Observe* methods rather than leaking
// prometheus types into callers.
//
// Grounded on storage-node/internal/metrics/prometheus.go.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for one kvshard node.
type Metrics struct {
	ShardFanoutTotal       *prometheus.CounterVec
	ShardFanoutFailures    *prometheus.CounterVec
	PaddingBytes           prometheus.Histogram
	QueryEvaluationsTotal  prometheus.Counter
	QueryEmptyTotal        prometheus.Counter
	QueryParseErrorsTotal  prometheus.Counter
	MissingKeySetTotal     *prometheus.CounterVec
	KeyCollisionTotal      *prometheus.CounterVec
	OHTTPEncryptDuration   prometheus.Histogram
	OHTTPDecryptDuration   prometheus.Histogram
	UDFInvocationsTotal    prometheus.Counter
	UDFInvocationFailures  prometheus.Counter
	UDFInvocationDuration  prometheus.Histogram
	PartitionsFailedTotal  prometheus.Counter
	CompressionGroupsTotal prometheus.Counter
}

// New creates and registers all Prometheus metrics for nodeID.
func New(nodeID string) *Metrics {
	labels := prometheus.Labels{"node_id": nodeID}

	return &Metrics{
		ShardFanoutTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "kvshard",
			Subsystem:   "lookupengine",
			Name:        "shard_fanout_total",
			Help:        "Total number of per-shard lookup tasks dispatched",
			ConstLabels: labels,
		}, []string{"shard"}),
		ShardFanoutFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "kvshard",
			Subsystem:   "lookupengine",
			Name:        "shard_fanout_failures_total",
			Help:        "Total number of per-shard lookup tasks that failed or were cancelled",
			ConstLabels: labels,
		}, []string{"shard"}),
		PaddingBytes: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "kvshard",
			Subsystem:   "lookupengine",
			Name:        "padding_bytes",
			Help:        "Histogram of per-bucket padding bytes added before fan-out",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(8, 2, 12),
		}),
		QueryEvaluationsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace:   "kvshard",
			Subsystem:   "query",
			Name:        "evaluations_total",
			Help:        "Total number of set-query evaluations",
			ConstLabels: labels,
		}),
		QueryEmptyTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace:   "kvshard",
			Subsystem:   "query",
			Name:        "empty_total",
			Help:        "Total number of empty-text run_query calls",
			ConstLabels: labels,
		}),
		QueryParseErrorsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace:   "kvshard",
			Subsystem:   "query",
			Name:        "parse_errors_total",
			Help:        "Total number of run_query calls that failed to parse",
			ConstLabels: labels,
		}),
		MissingKeySetTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "kvshard",
			Subsystem:   "query",
			Name:        "missing_key_set_total",
			Help:        "Total number of identifier resolutions that missed (treated as empty set)",
			ConstLabels: labels,
		}, []string{"name"}),
		KeyCollisionTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "kvshard",
			Subsystem:   "lookupengine",
			Name:        "key_collision_total",
			Help:        "Total number of cross-shard key collisions observed while merging set results",
			ConstLabels: labels,
		}, []string{"key"}),
		OHTTPEncryptDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "kvshard",
			Subsystem:   "ohttp",
			Name:        "encrypt_duration_seconds",
			Help:        "Histogram of OHTTP request-encryption durations",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),
		OHTTPDecryptDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "kvshard",
			Subsystem:   "ohttp",
			Name:        "decrypt_duration_seconds",
			Help:        "Histogram of OHTTP response-decryption durations",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),
		UDFInvocationsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace:   "kvshard",
			Subsystem:   "udf",
			Name:        "invocations_total",
			Help:        "Total number of UDF invocations",
			ConstLabels: labels,
		}),
		UDFInvocationFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace:   "kvshard",
			Subsystem:   "udf",
			Name:        "invocation_failures_total",
			Help:        "Total number of failed UDF invocations",
			ConstLabels: labels,
		}),
		UDFInvocationDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "kvshard",
			Subsystem:   "udf",
			Name:        "invocation_duration_seconds",
			Help:        "Histogram of UDF invocation durations",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),
		PartitionsFailedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace:   "kvshard",
			Subsystem:   "reqhandler",
			Name:        "partitions_failed_total",
			Help:        "Total number of partitions that failed UDF execution",
			ConstLabels: labels,
		}),
		CompressionGroupsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace:   "kvshard",
			Subsystem:   "reqhandler",
			Name:        "compression_groups_total",
			Help:        "Total number of non-empty compression groups assembled",
			ConstLabels: labels,
		}),
	}
}

// RecordShardFanout counts one dispatched task for shard.
func (m *Metrics) RecordShardFanout(shard int) {
	m.ShardFanoutTotal.WithLabelValues(shardLabel(shard)).Inc()
}

// RecordShardFanoutFailure counts one failed/cancelled task for shard.
func (m *Metrics) RecordShardFanoutFailure(shard int) {
	m.ShardFanoutFailures.WithLabelValues(shardLabel(shard)).Inc()
}

// RecordPadding observes the padding bytes added to one bucket.
func (m *Metrics) RecordPadding(n int) {
	m.PaddingBytes.Observe(float64(n))
}

// RecordMissingKeySet counts one resolver miss for identifier name.
func (m *Metrics) RecordMissingKeySet(name string) {
	m.MissingKeySetTotal.WithLabelValues(name).Inc()
}

// RecordKeyCollision counts one cross-shard key collision for key.
func (m *Metrics) RecordKeyCollision(key string) {
	m.KeyCollisionTotal.WithLabelValues(key).Inc()
}

// RecordUDFInvocation records one UDF call outcome and its duration in
// seconds.
func (m *Metrics) RecordUDFInvocation(success bool, durationSeconds float64) {
	m.UDFInvocationsTotal.Inc()
	m.UDFInvocationDuration.Observe(durationSeconds)
	if !success {
		m.UDFInvocationFailures.Inc()
	}
}

func shardLabel(shard int) string {
	return strconv.Itoa(shard)
}
