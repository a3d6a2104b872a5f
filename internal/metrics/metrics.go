// Package metrics provides Prometheus metrics for the translation pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Stage names.
const (
	StageCapture    = "capture"
	StageTranscribe = "transcribe"
	StageTranslate  = "translate"
	StageSynthesize = "synthesize"
)

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)

var (
	// stageTotal counts pipeline stage executions.
	// Labels: stage, outcome
	stageTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicebridge_stage_total",
			Help: "Total number of pipeline stage executions by outcome",
		},
		[]string{"stage", "outcome"},
	)

	// stageDuration records per-stage latency.
	// Buckets: 50ms to 30s
	stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "voicebridge_stage_duration_seconds",
			Help:    "Duration of pipeline stages in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"stage"},
	)

	// engineFailures counts engine failures that fell through to the next engine.
	// Labels: capability (stt/tts/translate), engine
	engineFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicebridge_engine_failures_total",
			Help: "Total number of failed engine attempts",
		},
		[]string{"capability", "engine"},
	)

	// cacheLookups counts translation cache lookups.
	// Labels: tier (memory/disk), result (hit/miss)
	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicebridge_translation_cache_lookups_total",
			Help: "Total number of translation cache lookups",
		},
		[]string{"tier", "result"},
	)

	sessionActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "voicebridge_session_active",
			Help: "1 while a continuous translation session is listening",
		},
	)
)

func init() {
	prometheus.MustRegister(stageTotal)
	prometheus.MustRegister(stageDuration)
	prometheus.MustRegister(engineFailures)
	prometheus.MustRegister(cacheLookups)
	prometheus.MustRegister(sessionActive)
}

// RecordStage records a stage outcome and, for executed stages, its duration.
func RecordStage(stage, outcome string, seconds float64) {
	stageTotal.WithLabelValues(stage, outcome).Inc()
	if outcome != OutcomeSkipped {
		stageDuration.WithLabelValues(stage).Observe(seconds)
	}
}

// RecordEngineFailure records a failed engine attempt.
func RecordEngineFailure(capability, engine string) {
	engineFailures.WithLabelValues(capability, engine).Inc()
}

// RecordCacheLookup records a translation cache lookup.
func RecordCacheLookup(tier string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookups.WithLabelValues(tier, result).Inc()
}

// SetSessionActive flags whether a session is listening.
func SetSessionActive(active bool) {
	if active {
		sessionActive.Set(1)
		return
	}
	sessionActive.Set(0)
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
