package session

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/mx-space/authgate/internal/pkg/session"

type tracedRegistry struct {
	next    Registry
	backend string
	tracer  trace.Tracer
}

// Traced wraps reg so every call records a span on the global tracer
// provider. backend is attached as the session.backend attribute.
func Traced(reg Registry, backend string) Registry {
	return &tracedRegistry{next: reg, backend: backend, tracer: otel.Tracer(tracerName)}
}

func (t *tracedRegistry) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("session.backend", t.backend))
	return t.tracer.Start(ctx, "session."+op, trace.WithAttributes(attrs...))
}

func end(span trace.Span, err error) {
	if err != nil && !errors.Is(err, ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (t *tracedRegistry) Create(ctx context.Context, rec *Record) (id string, err error) {
	ctx, span := t.start(ctx, "create")
	defer func() { end(span, err) }()
	return t.next.Create(ctx, rec)
}

func (t *tracedRegistry) Get(ctx context.Context, id string) (rec *Record, err error) {
	ctx, span := t.start(ctx, "get")
	defer func() { end(span, err) }()
	return t.next.Get(ctx, id)
}

func (t *tracedRegistry) List(ctx context.Context, owner string) (recs []Record, err error) {
	ctx, span := t.start(ctx, "list")
	defer func() {
		span.SetAttributes(attribute.Int("session.count", len(recs)))
		end(span, err)
	}()
	return t.next.List(ctx, owner)
}

func (t *tracedRegistry) Touch(ctx context.Context, id string) (err error) {
	ctx, span := t.start(ctx, "touch")
	defer func() { end(span, err) }()
	return t.next.Touch(ctx, id)
}

func (t *tracedRegistry) Revoke(ctx context.Context, id string) (err error) {
	ctx, span := t.start(ctx, "revoke")
	defer func() { end(span, err) }()
	return t.next.Revoke(ctx, id)
}

func (t *tracedRegistry) RevokeAllExcept(ctx context.Context, owner, keep string) (err error) {
	ctx, span := t.start(ctx, "revoke_all_except", attribute.Bool("session.keep", keep != ""))
	defer func() { end(span, err) }()
	return t.next.RevokeAllExcept(ctx, owner, keep)
}

func (t *tracedRegistry) Prune(ctx context.Context) (n int64, err error) {
	ctx, span := t.start(ctx, "prune")
	defer func() {
		span.SetAttributes(attribute.Int64("session.pruned", n))
		end(span, err)
	}()
	return t.next.Prune(ctx)
}
