package observer

import (
	"context"
	"time"

	"github.com/avendel/converse"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ObservedSearcher wraps a converse.Searcher with OTEL instrumentation.
type ObservedSearcher struct {
	inner converse.Searcher
	inst  *Instruments
}

// WrapSearcher returns an instrumented searcher.
func WrapSearcher(inner converse.Searcher, inst *Instruments) *ObservedSearcher {
	return &ObservedSearcher{inner: inner, inst: inst}
}

func (o *ObservedSearcher) Search(ctx context.Context, query string, maxResults int, includeAnswer bool) ([]converse.WebResult, error) {
	ctx, span := o.inst.Tracer.Start(ctx, "websearch", trace.WithAttributes(
		AttrSearchMaxResults.Int(maxResults),
	))
	defer span.End()
	start := time.Now()

	results, err := o.inner.Search(ctx, query, maxResults, includeAnswer)

	durationMs := float64(time.Since(start).Milliseconds())
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(AttrSearchResultCount.Int(len(results)))

	o.inst.SearchRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", status),
	))
	o.inst.SearchDuration.Record(ctx, durationMs)

	return results, err
}

var _ converse.Searcher = (*ObservedSearcher)(nil)
