package pipeline

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/vnykmshr/flowpipe/pkg/pipeline"

func (p *pipeline) startPipelineSpan(ctx context.Context, exec *ExecutionContext) (context.Context, trace.Span) {
	return p.opts.tracer.Start(ctx, "pipeline.execute", trace.WithAttributes(
		attribute.String("pipeline.id", exec.PipelineID),
		attribute.String("pipeline.execution_id", exec.ExecutionID),
		attribute.Int("pipeline.total_steps", exec.TotalSteps),
	))
}

func endPipelineSpan(span trace.Span, result *Result) {
	span.SetAttributes(
		attribute.Bool("pipeline.cached", result.Cached),
		attribute.Int("pipeline.steps", len(result.Steps)),
	)
	if result.Error != nil {
		span.RecordError(result.Error)
		span.SetStatus(codes.Error, result.Error.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func (p *pipeline) startStageSpan(ctx context.Context, index int, stage Stage) (context.Context, trace.Span) {
	return p.opts.tracer.Start(ctx, "pipeline.stage", trace.WithAttributes(
		attribute.String("pipeline.id", p.config.ID),
		attribute.String("stage.name", stage.Name()),
		attribute.Int("stage.index", index),
	))
}

func endStageSpan(span trace.Span, err error, attempts int) {
	span.SetAttributes(attribute.Int("stage.attempts", attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
