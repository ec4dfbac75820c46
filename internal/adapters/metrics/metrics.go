package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slovo_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "slovo_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	PipelineRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slovo_pipeline_requests_total",
		Help: "Pipeline runs by outcome",
	}, []string{"outcome"})

	PipelineStageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "slovo_pipeline_stage_duration_seconds",
		Help:    "Per-agent pipeline stage duration",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"stage"})

	PipelineCorrectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slovo_pipeline_corrections_total",
		Help: "Correction retries triggered by the verifier",
	})

	FastPathTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slovo_pipeline_fast_path_total",
		Help: "Conversational requests answered without planning",
	})

	LLMRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slovo_llm_requests_total",
		Help: "Total LLM requests",
	}, []string{"provider", "status"})

	LLMRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "slovo_llm_request_duration_seconds",
		Help:    "LLM request duration",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"provider"})

	MemoryRetrievalDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "slovo_memory_retrieval_duration_seconds",
		Help:    "Memory retrieval duration per context section",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
	}, []string{"section"})

	MemoryWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slovo_memory_writes_total",
		Help: "Memory write attempts by kind and outcome",
	}, []string{"kind", "outcome"})

	EmbeddingRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "slovo_embedding_request_duration_seconds",
		Help:    "Embedding request duration",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	})

	ToolExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slovo_tool_executions_total",
		Help: "Sandboxed tool executions by terminal status",
	}, []string{"status"})

	ToolExecutionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "slovo_tool_execution_duration_seconds",
		Help:    "Sandboxed tool execution duration",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	})
)
