package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName names the instrumentation scope of havoc's spans
const TracerName = "github.com/AlecFritsch/inito"

// Span attribute keys
const (
	AttrRunID        = attribute.Key("havoc.run.id")
	AttrStage        = attribute.Key("havoc.run.stage")
	AttrRepo         = attribute.Key("havoc.repo")
	AttrIssue        = attribute.Key("havoc.issue")
	AttrConfidence   = attribute.Key("havoc.confidence")
	AttrPolicyPassed = attribute.Key("havoc.policy_passed")
	AttrLLMProvider  = attribute.Key("havoc.llm.provider")
)

func tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// StartRun opens the root span of a pipeline run
func StartRun(ctx context.Context, runID, repo string, issue int) (context.Context, trace.Span) {
	return tracer().Start(ctx, "pipeline.run", trace.WithAttributes(
		AttrRunID.String(runID),
		AttrRepo.String(repo),
		AttrIssue.Int(issue),
	))
}

// StartStage opens a span for one pipeline stage, named "pipeline.<stage>"
func StartStage(ctx context.Context, runID, stage string) (context.Context, trace.Span) {
	return tracer().Start(ctx, "pipeline."+stage, trace.WithAttributes(
		AttrRunID.String(runID),
		AttrStage.String(stage),
	))
}

// StartLLMCall opens a client span for one model call, named "llm.<stage>"
func StartLLMCall(ctx context.Context, provider, stage string) (context.Context, trace.Span) {
	return tracer().Start(ctx, "llm."+stage,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			AttrLLMProvider.String(provider),
			AttrStage.String(stage),
		))
}

// Finish sets the span status from err. A nil err is Ok.
func Finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}

// SetRunOutcome records the run's confidence score and policy verdict
func SetRunOutcome(span trace.Span, confidence int, policyPassed bool) {
	span.SetAttributes(
		AttrConfidence.Int(confidence),
		AttrPolicyPassed.Bool(policyPassed),
	)
}
