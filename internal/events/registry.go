package events

import (
	"context"

	"github.com/cockroachdb/errors"
)

// Handler reacts to one concrete event type.
type Handler[E Event] interface {
	Handle(ctx context.Context, ev E) error
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc[E Event] func(ctx context.Context, ev E) error

func (f HandlerFunc[E]) Handle(ctx context.Context, ev E) error { return f(ctx, ev) }

type registration struct {
	name string
	fn   func(ctx context.Context, ev Event) error
}

// Registry maps each kind to an ordered list of handlers. It is built once
// at start-up and handed to NewBus, which takes a snapshot.
type Registry struct {
	byKind map[Kind][]registration
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byKind: make(map[Kind][]registration)}
}

// Register appends h to the handlers of E's kind. E must be a concrete
// event type (JobPosted, BidPlaced, ...).
func Register[E Event](r *Registry, name string, h Handler[E]) {
	var zero E
	kind := zero.Kind()
	r.add(kind, name, func(ctx context.Context, ev Event) error {
		e, ok := ev.(E)
		if !ok {
			return errors.AssertionFailedf("handler %s: got %T for kind %s", name, ev, kind)
		}
		return h.Handle(ctx, e)
	})
}

// RegisterAll appends h to the handlers of every kind. Used by cross-cutting
// handlers such as the activity log and the audit logger.
func RegisterAll(r *Registry, name string, h Handler[Event]) {
	for _, k := range AllKinds() {
		r.add(k, name, h.Handle)
	}
}

func (r *Registry) add(k Kind, name string, fn func(context.Context, Event) error) {
	r.byKind[k] = append(r.byKind[k], registration{name: name, fn: fn})
}

// Names returns the handler names registered for k, in invocation order.
func (r *Registry) Names(k Kind) []string {
	regs := r.byKind[k]
	names := make([]string, 0, len(regs))
	for _, reg := range regs {
		names = append(names, reg.name)
	}
	return names
}

func (r *Registry) snapshot() map[Kind][]registration {
	out := make(map[Kind][]registration, len(r.byKind))
	for k, regs := range r.byKind {
		out[k] = append([]registration(nil), regs...)
	}
	return out
}
