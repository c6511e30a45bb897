// Package stats provides a unified interface for collecting metrics.
package stats

// Metric names used throughout the module.
const (
	// Pipeline metrics.
	MetricMovesAnnotated = "annotator_moves_annotated_total"
	MetricGamesAnnotated = "annotator_games_annotated_total"
	MetricGamesFailed    = "annotator_games_failed_total"
	MetricTerminalPlies  = "annotator_terminal_plies_total"

	// Evaluation cache metrics.
	MetricLookups   = "annotator_cache_lookups_total"
	MetricHits      = "annotator_cache_hits_total"
	MetricMisses    = "annotator_cache_misses_total"
	MetricMalformed = "annotator_cache_malformed_total"
	MetricMerges    = "annotator_cache_merges_total"

	// Engine metrics.
	MetricEngineCalls    = "annotator_engine_calls_total"
	MetricEngineFailures = "annotator_engine_failures_total"
	MetricEngineLatency  = "annotator_engine_latency_seconds"

	// Read-through row cache metrics.
	MetricRowCacheHits   = "annotator_row_cache_hits_total"
	MetricRowCacheMisses = "annotator_row_cache_misses_total"
	MetricRowCacheSize   = "annotator_row_cache_size"
)

var help = map[string]string{
	MetricMovesAnnotated: "Plies emitted by the annotation pipeline.",
	MetricGamesAnnotated: "Games annotated to completion.",
	MetricGamesFailed:    "Games that stopped early because of an error.",
	MetricTerminalPlies:  "Plies that reached checkmate, stalemate or a dead position.",
	MetricLookups:        "Evaluation cache lookups.",
	MetricHits:           "Evaluation cache lookups that found a record.",
	MetricMisses:         "Evaluation cache lookups that found nothing.",
	MetricMalformed:      "Stored records that failed to decode.",
	MetricMerges:         "Merge updates applied to the evaluation cache.",
	MetricEngineCalls:    "Engine evaluations requested.",
	MetricEngineFailures: "Engine evaluations that failed.",
	MetricEngineLatency:  "Engine evaluation wall time.",
	MetricRowCacheHits:   "Row cache hits in front of the persistent store.",
	MetricRowCacheMisses: "Row cache misses in front of the persistent store.",
	MetricRowCacheSize:   "Rows held in the read-through cache.",
}

// Help returns the description registered for a metric name, or the name itself.
func Help(name string) string {
	if h, ok := help[name]; ok {
		return h
	}
	return name
}

// Collector defines the interface for collecting metrics.
type Collector interface {
	// IncCounter increments a counter metric by delta.
	IncCounter(name string, delta int64)

	// SetGauge sets a gauge metric to value.
	SetGauge(name string, value int64)

	// ObserveHistogram records a value in a histogram metric.
	ObserveHistogram(name string, value float64)
}
