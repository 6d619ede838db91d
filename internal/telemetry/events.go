package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Events creates spans for the domain operations worth tracing end to end:
// vendor sync passes, reply round-trips, and batch application.
type Events struct {
	tracer trace.Tracer
}

// NewEvents creates the domain event tracer
func NewEvents() *Events {
	return &Events{tracer: otel.Tracer("replyhub.events")}
}

// TraceVendorSync starts a span covering one connection's sync pass
func (e *Events) TraceVendorSync(ctx context.Context, platform string, userID string) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, "vendor.sync",
		trace.WithAttributes(
			attribute.String("vendor.platform", platform),
			attribute.String("user.id", userID),
		),
	)
}

// RecordSyncResult attaches the sync outcome to the span
func RecordSyncResult(span trace.Span, added, skipped, itemErrors int) {
	span.SetAttributes(
		attribute.Int("sync.new", added),
		attribute.Int("sync.skipped", skipped),
		attribute.Int("sync.item_errors", itemErrors),
	)
}

// TraceVendorReply starts a span covering a reply posted to a vendor
func (e *Events) TraceVendorReply(ctx context.Context, platform string, interactionID string) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, "vendor.reply",
		trace.WithAttributes(
			attribute.String("vendor.platform", platform),
			attribute.String("interaction.id", interactionID),
		),
	)
}

// TraceBatchApply starts a span covering one coalesced batch merge
func (e *Events) TraceBatchApply(ctx context.Context, userID string, batchSize int) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, "inbox.apply_batch",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int("batch.size", batchSize),
		),
	)
}

// RecordVendorError marks the span failed with the vendor error
func RecordVendorError(span trace.Span, err error, retryable bool) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attribute.Bool("error.retryable", retryable))
}

var defaultEvents *Events

// GetEvents returns the shared domain event tracer
func GetEvents() *Events {
	if defaultEvents == nil {
		defaultEvents = NewEvents()
	}
	return defaultEvents
}
