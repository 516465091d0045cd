// Package httpapi implements the HTTP surface of the notification service.
//
// Routes:
//
//	GET  /health             → liveness
//	POST /events/{kind}      → validate and publish a domain event
//	POST /admin/digest/run   → run one digest pass now
//	GET  /metrics            → Prometheus metrics
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"builderpulse/notification-service/internal/digest"
	"builderpulse/notification-service/internal/events"
	"builderpulse/notification-service/internal/scheduler"
)

const maxEventBody = 64 << 10

// Publisher publishes one event. *events.Bus implements it.
type Publisher interface {
	Publish(ctx context.Context, ev events.Event) error
}

// TxRunner runs fn inside one database transaction.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

// DigestTrigger runs a digest pass on demand. *scheduler.Scheduler
// implements it.
type DigestTrigger interface {
	RunNow(ctx context.Context) (digest.Summary, error)
}

// Handler holds shared dependencies.
type Handler struct {
	bus      Publisher
	inTx     TxRunner
	digest   DigestTrigger
	gatherer prometheus.Gatherer
	validate *validator.Validate
	now      func() time.Time
	log      *zap.SugaredLogger
	version  string
}

// Config collects the handler's collaborators. Gatherer may be nil to
// disable /metrics.
type Config struct {
	Bus      Publisher
	InTx     TxRunner
	Digest   DigestTrigger
	Gatherer prometheus.Gatherer
	Log      *zap.SugaredLogger
	Version  string
}

// NewHandler returns a configured Handler.
func NewHandler(c Config) *Handler {
	inTx := c.InTx
	if inTx == nil {
		inTx = func(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }
	}
	return &Handler{
		bus:      c.Bus,
		inTx:     inTx,
		digest:   c.Digest,
		gatherer: c.Gatherer,
		validate: newValidator(),
		now:      time.Now,
		log:      c.Log.Named("http"),
		version:  c.Version,
	}
}

// RegisterRoutes mounts all routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.health)
	mux.HandleFunc("POST /events/{kind}", h.publishEvent)
	mux.HandleFunc("POST /admin/digest/run", h.runDigest)
	if h.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}
}

// ─── Handlers ────────────────────────────────────────────────────────────────

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	jsonOK(w, map[string]string{
		"status":  "ok",
		"service": "notification-service",
		"version": h.version,
	})
}

func (h *Handler) publishEvent(w http.ResponseWriter, r *http.Request) {
	kind, err := events.ParseKind(r.PathValue("kind"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusNotFound)
		return
	}

	ev, err := h.decodeEvent(w, r, kind)
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			jsonErrorFields(w, ve.Msg, ve.Fields, http.StatusBadRequest)
			return
		}
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = h.inTx(r.Context(), func(ctx context.Context) error {
		return h.bus.Publish(ctx, ev)
	})
	if err != nil {
		var he *events.HandlerError
		if errors.As(err, &he) {
			h.log.Errorw("publish failed", "kind", kind, "eventId", ev.EventID(), "handler", he.Handler, "err", he.Err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error":   "event handler failed",
				"handler": he.Handler,
			})
			return
		}
		h.log.Errorw("publish failed", "kind", kind, "eventId", ev.EventID(), "err", err)
		jsonError(w, "publish failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"id":         ev.EventID(),
		"kind":       kind,
		"occurredAt": ev.OccurredAt(),
	})
}

func (h *Handler) runDigest(w http.ResponseWriter, r *http.Request) {
	sum, err := h.digest.RunNow(r.Context())
	switch {
	case errors.Is(err, scheduler.ErrBusy), errors.Is(err, scheduler.ErrLockHeld):
		jsonError(w, err.Error(), http.StatusConflict)
	case err != nil:
		h.log.Errorw("manual digest pass failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":   err.Error(),
			"summary": sum,
		})
	default:
		jsonOK(w, sum)
	}
}

// ─── Decoding ────────────────────────────────────────────────────────────────

// decodeEvent reads the body into the event type for kind, stamps id, time
// and actor, then validates it.
func (h *Handler) decodeEvent(w http.ResponseWriter, r *http.Request, kind events.Kind) (events.Event, error) {
	ev, err := events.New(kind)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(ev); err != nil {
		return nil, errors.Wrap(err, "invalid JSON body")
	}

	type envelope interface {
		Stamp(now time.Time)
		DefaultActor(id string)
	}
	if e, ok := ev.(envelope); ok {
		e.Stamp(h.now())
		e.DefaultActor(r.Header.Get("x-user-id"))
	}

	// Validated after stamping so the header actor is checked too.
	if err := h.validate.Struct(ev); err != nil {
		return nil, newValidationError(err)
	}
	return events.Deref(ev), nil
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonOK(w http.ResponseWriter, v any) {
	writeJSON(w, http.StatusOK, v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func jsonErrorFields(w http.ResponseWriter, msg string, fields map[string]string, code int) {
	writeJSON(w, code, map[string]any{"error": msg, "fields": fields})
}
