// Package handlers holds the event handlers registered on the bus at
// start-up: persistence of derived records, digest enqueueing,
// transactional email and realtime forwarding.
package handlers

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"builderpulse/notification-service/internal/events"
	"builderpulse/notification-service/internal/model"
)

// ActivityStore persists activity_log rows.
type ActivityStore interface {
	InsertActivity(ctx context.Context, rec model.ActivityRecord) error
}

// ActivityLog records every event in activity_log.
type ActivityLog struct {
	store ActivityStore
}

func NewActivityLog(st ActivityStore) *ActivityLog { return &ActivityLog{store: st} }

func (h *ActivityLog) Handle(ctx context.Context, ev events.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "marshal activity payload")
	}
	return h.store.InsertActivity(ctx, model.ActivityRecord{
		EventID:    ev.EventID(),
		Kind:       string(ev.Kind()),
		ActorID:    ev.ActorID(),
		JobID:      events.JobOf(ev),
		Payload:    payload,
		OccurredAt: ev.OccurredAt(),
	})
}

// AuditLogger writes one structured log line per event.
type AuditLogger struct {
	log *zap.SugaredLogger
}

func NewAuditLogger(log *zap.SugaredLogger) *AuditLogger {
	return &AuditLogger{log: log.Named("audit")}
}

func (h *AuditLogger) Handle(ctx context.Context, ev events.Event) error {
	h.log.Infow("domain event",
		"kind", ev.Kind(),
		"eventId", ev.EventID(),
		"actorId", ev.ActorID(),
		"jobId", events.JobOf(ev),
		"occurredAt", ev.OccurredAt())
	return nil
}
