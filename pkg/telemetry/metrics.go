package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/AlecFritsch/inito/pkg/logger"
)

const (
	// MeterName is the default meter name for the application
	MeterName = "github.com/AlecFritsch/inito"
)

// Metrics holds all application metrics
type Metrics struct {
	// Run metrics
	RunsTotal       metric.Int64Counter
	RunsByStatus    metric.Int64Counter
	RunDuration     metric.Float64Histogram
	ActiveRuns      metric.Int64UpDownCounter
	StageDuration   metric.Float64Histogram
	ConfidenceScore metric.Int64Histogram

	// Sandbox metrics
	SandboxExecTotal    metric.Int64Counter
	SandboxExecDuration metric.Float64Histogram
	SandboxRejected     metric.Int64Counter

	// LLM metrics
	LLMCallsTotal metric.Int64Counter
	LLMErrors     metric.Int64Counter

	// HTTP metrics
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram

	// Git metrics
	GitCloneTotal    metric.Int64Counter
	GitCloneDuration metric.Float64Histogram
}

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// GetMetrics returns the global metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		var err error
		globalMetrics, err = initMetrics()
		if err != nil {
			logger.Error("Failed to initialize metrics", zap.Error(err))
			globalMetrics = &Metrics{}
		}
	})
	return globalMetrics
}

// initMetrics initializes all application metrics
func initMetrics() (*Metrics, error) {
	meter := otel.Meter(MeterName)
	m := &Metrics{}

	var err error

	if m.RunsTotal, err = meter.Int64Counter(
		"havoc_runs_total",
		metric.WithDescription("Total number of pipeline runs started"),
		metric.WithUnit("{run}"),
	); err != nil {
		return nil, err
	}

	if m.RunsByStatus, err = meter.Int64Counter(
		"havoc_runs_by_status_total",
		metric.WithDescription("Total number of finished runs by terminal status"),
		metric.WithUnit("{run}"),
	); err != nil {
		return nil, err
	}

	if m.RunDuration, err = meter.Float64Histogram(
		"havoc_run_duration_seconds",
		metric.WithDescription("Duration of pipeline runs in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(10, 30, 60, 120, 300, 600, 1200, 1800, 3600),
	); err != nil {
		return nil, err
	}

	if m.ActiveRuns, err = meter.Int64UpDownCounter(
		"havoc_active_runs",
		metric.WithDescription("Number of runs currently executing"),
		metric.WithUnit("{run}"),
	); err != nil {
		return nil, err
	}

	if m.StageDuration, err = meter.Float64Histogram(
		"havoc_stage_duration_seconds",
		metric.WithDescription("Duration of individual pipeline stages in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 30, 60, 120, 300, 600),
	); err != nil {
		return nil, err
	}

	if m.ConfidenceScore, err = meter.Int64Histogram(
		"havoc_confidence_score",
		metric.WithDescription("Distribution of computed confidence scores"),
		metric.WithExplicitBucketBoundaries(10, 20, 30, 40, 50, 60, 70, 80, 90, 100),
	); err != nil {
		return nil, err
	}

	if m.SandboxExecTotal, err = meter.Int64Counter(
		"havoc_sandbox_exec_total",
		metric.WithDescription("Total number of commands executed in sandboxes"),
		metric.WithUnit("{command}"),
	); err != nil {
		return nil, err
	}

	if m.SandboxExecDuration, err = meter.Float64Histogram(
		"havoc_sandbox_exec_duration_seconds",
		metric.WithDescription("Duration of sandboxed commands in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 5, 10, 30, 60, 300, 600),
	); err != nil {
		return nil, err
	}

	if m.SandboxRejected, err = meter.Int64Counter(
		"havoc_sandbox_rejected_total",
		metric.WithDescription("Total number of commands rejected by the allow-list"),
		metric.WithUnit("{command}"),
	); err != nil {
		return nil, err
	}

	if m.LLMCallsTotal, err = meter.Int64Counter(
		"havoc_llm_calls_total",
		metric.WithDescription("Total number of LLM calls"),
		metric.WithUnit("{call}"),
	); err != nil {
		return nil, err
	}

	if m.LLMErrors, err = meter.Int64Counter(
		"havoc_llm_errors_total",
		metric.WithDescription("Total number of failed LLM calls"),
		metric.WithUnit("{error}"),
	); err != nil {
		return nil, err
	}

	if m.HTTPRequestsTotal, err = meter.Int64Counter(
		"havoc_http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, err
	}

	if m.HTTPRequestDuration, err = meter.Float64Histogram(
		"havoc_http_request_duration_seconds",
		metric.WithDescription("Duration of HTTP requests in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	); err != nil {
		return nil, err
	}

	if m.GitCloneTotal, err = meter.Int64Counter(
		"havoc_git_clone_total",
		metric.WithDescription("Total number of git clone operations"),
		metric.WithUnit("{clone}"),
	); err != nil {
		return nil, err
	}

	if m.GitCloneDuration, err = meter.Float64Histogram(
		"havoc_git_clone_duration_seconds",
		metric.WithDescription("Duration of git clone operations in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 30, 60, 120, 300),
	); err != nil {
		return nil, err
	}

	logger.Info("Metrics initialized successfully")
	return m, nil
}

// RecordRunStarted records that a run has started
func (m *Metrics) RecordRunStarted(ctx context.Context, repo string) {
	if m.RunsTotal != nil {
		m.RunsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("repo", repo)))
	}
	if m.ActiveRuns != nil {
		m.ActiveRuns.Add(ctx, 1)
	}
}

// RecordRunCompleted records a run reaching a terminal status
func (m *Metrics) RecordRunCompleted(ctx context.Context, status string, durationSeconds float64) {
	if m.ActiveRuns != nil {
		m.ActiveRuns.Add(ctx, -1)
	}
	if m.RunsByStatus != nil {
		m.RunsByStatus.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	}
	if m.RunDuration != nil {
		m.RunDuration.Record(ctx, durationSeconds, metric.WithAttributes(attribute.String("status", status)))
	}
}

// RecordStage records the duration of one pipeline stage
func (m *Metrics) RecordStage(ctx context.Context, stage string, success bool, durationSeconds float64) {
	if m.StageDuration == nil {
		return
	}
	m.StageDuration.Record(ctx, durationSeconds,
		metric.WithAttributes(
			attribute.String("stage", stage),
			attribute.Bool("success", success),
		),
	)
}

// RecordConfidence records a computed confidence score
func (m *Metrics) RecordConfidence(ctx context.Context, score int, policyPassed bool) {
	if m.ConfidenceScore == nil {
		return
	}
	m.ConfidenceScore.Record(ctx, int64(score), metric.WithAttributes(attribute.Bool("policy_passed", policyPassed)))
}

// RecordSandboxExec records one sandboxed command
func (m *Metrics) RecordSandboxExec(ctx context.Context, command string, exitCode int, durationSeconds float64) {
	attrs := metric.WithAttributes(
		attribute.String("command", command),
		attribute.Bool("success", exitCode == 0),
	)
	if m.SandboxExecTotal != nil {
		m.SandboxExecTotal.Add(ctx, 1, attrs)
	}
	if m.SandboxExecDuration != nil {
		m.SandboxExecDuration.Record(ctx, durationSeconds, attrs)
	}
}

// RecordSandboxRejected records a command refused by the allow-list
func (m *Metrics) RecordSandboxRejected(ctx context.Context, command string) {
	if m.SandboxRejected == nil {
		return
	}
	m.SandboxRejected.Add(ctx, 1, metric.WithAttributes(attribute.String("command", command)))
}

// RecordLLMCall records an LLM call
func (m *Metrics) RecordLLMCall(ctx context.Context, client, operation string, success bool) {
	if m.LLMCallsTotal != nil {
		m.LLMCallsTotal.Add(ctx, 1,
			metric.WithAttributes(
				attribute.String("client", client),
				attribute.String("operation", operation),
				attribute.Bool("success", success),
			),
		)
	}
	if !success && m.LLMErrors != nil {
		m.LLMErrors.Add(ctx, 1,
			metric.WithAttributes(
				attribute.String("client", client),
				attribute.String("operation", operation),
			),
		)
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, durationSeconds float64) {
	if m.HTTPRequestsTotal != nil {
		m.HTTPRequestsTotal.Add(ctx, 1,
			metric.WithAttributes(
				attribute.String("method", method),
				attribute.String("path", path),
				attribute.Int("status_code", statusCode),
			),
		)
	}
	if m.HTTPRequestDuration != nil {
		m.HTTPRequestDuration.Record(ctx, durationSeconds,
			metric.WithAttributes(
				attribute.String("method", method),
				attribute.String("path", path),
			),
		)
	}
}

// RecordGitClone records a git clone operation
func (m *Metrics) RecordGitClone(ctx context.Context, provider string, success bool, durationSeconds float64) {
	attrs := metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.Bool("success", success),
	)
	if m.GitCloneTotal != nil {
		m.GitCloneTotal.Add(ctx, 1, attrs)
	}
	if m.GitCloneDuration != nil {
		m.GitCloneDuration.Record(ctx, durationSeconds, attrs)
	}
}
