package events

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"builderpulse/notification-service/internal/metrics"
)

// DispatchMode decides what a handler failure does to the rest of a publish.
type DispatchMode int

const (
	// DispatchStrict stops at the first failing handler and returns its
	// error to the publisher. Remaining handlers do not run.
	DispatchStrict DispatchMode = iota
	// DispatchIsolated logs each failure and keeps going; Publish returns nil.
	DispatchIsolated
)

// HandlerError identifies the handler that failed a strict publish.
type HandlerError struct {
	Kind    Kind
	Handler string
	Err     error
}

func (e *HandlerError) Error() string {
	return "handler " + e.Handler + " failed on " + string(e.Kind) + ": " + e.Err.Error()
}

func (e *HandlerError) Unwrap() error { return e.Err }

// Bus dispatches events to the handlers registered for their kind.
// Handlers run sequentially on the publisher's goroutine, in registration
// order, inside whatever scope (transaction, deadline) the caller's context
// carries. Nothing is persisted or retried by the bus itself.
type Bus struct {
	handlers map[Kind][]registration
	mode     DispatchMode
	log      *zap.SugaredLogger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

// Option customises a Bus.
type Option func(*Bus)

// WithMode sets the dispatch mode. The default is DispatchStrict.
func WithMode(m DispatchMode) Option { return func(b *Bus) { b.mode = m } }

// WithMetrics records publish counts and handler failures.
func WithMetrics(m *metrics.Metrics) Option { return func(b *Bus) { b.metrics = m } }

// NewBus snapshots reg; later changes to reg are not seen by the bus.
func NewBus(reg *Registry, log *zap.SugaredLogger, opts ...Option) *Bus {
	b := &Bus{
		handlers: reg.snapshot(),
		mode:     DispatchStrict,
		log:      log.Named("events"),
		tracer:   otel.Tracer("builderpulse/notification-service/events"),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Publish hands ev to every handler registered for its kind.
func (b *Bus) Publish(ctx context.Context, ev Event) error {
	if ev == nil {
		return errors.AssertionFailedf("publish: nil event")
	}
	kind := ev.Kind()

	ctx, span := b.tracer.Start(ctx, "events.publish",
		trace.WithAttributes(
			attribute.String("event.kind", string(kind)),
			attribute.String("event.id", ev.EventID()),
		))
	defer span.End()

	regs := b.handlers[kind]
	b.metrics.EventPublished(string(kind))
	if len(regs) == 0 {
		b.log.Debugw("no handlers registered", "kind", kind, "eventId", ev.EventID())
		return nil
	}

	for _, reg := range regs {
		if err := ctx.Err(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "cancelled")
			return errors.Wrapf(err, "publish %s", kind)
		}

		err := reg.fn(ctx, ev)
		if err == nil {
			continue
		}

		b.metrics.HandlerFailed(string(kind), reg.name)
		span.RecordError(err, trace.WithAttributes(attribute.String("handler", reg.name)))

		if b.mode == DispatchIsolated {
			b.log.Errorw("event handler failed; continuing",
				"kind", kind, "eventId", ev.EventID(), "handler", reg.name, "err", err)
			continue
		}

		span.SetStatus(codes.Error, reg.name)
		return &HandlerError{Kind: kind, Handler: reg.name, Err: err}
	}
	return nil
}

// Handlers returns the handler names that Publish will invoke for k.
func (b *Bus) Handlers(k Kind) []string {
	names := make([]string, 0, len(b.handlers[k]))
	for _, reg := range b.handlers[k] {
		names = append(names, reg.name)
	}
	return names
}
