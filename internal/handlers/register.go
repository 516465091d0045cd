package handlers

import (
	"go.uber.org/zap"

	"builderpulse/notification-service/internal/email"
	"builderpulse/notification-service/internal/events"
)

// Store is every query the handlers need. *store.Postgres implements it.
type Store interface {
	ActivityStore
	EnqueueStore
	RecipientStore
}

// Deps collects what Register wires. Redis and AMQP are optional.
type Deps struct {
	Store     Store
	Sender    email.Sender
	Templates *email.Templates
	Redis     RedisPublisher
	AMQP      *AMQPForwarder
	Log       *zap.SugaredLogger
}

// Register adds every handler to reg. Per kind they run in this order:
// activity log, audit log, kind-specific handlers, then forwarders.
func Register(reg *events.Registry, d Deps) {
	events.RegisterAll(reg, "activity-log", NewActivityLog(d.Store))
	events.RegisterAll(reg, "audit-log", NewAuditLogger(d.Log))

	events.Register[events.JobPosted](reg, "digest-enqueue", NewDigestEnqueuer(d.Store, d.Log))

	m := NewMailer(d.Store, d.Sender, d.Templates, d.Log)
	events.Register[events.BidPlaced](reg, "email.bid-placed", events.HandlerFunc[events.BidPlaced](m.BidPlaced))
	events.Register[events.BidAccepted](reg, "email.bid-accepted", events.HandlerFunc[events.BidAccepted](m.BidAccepted))
	events.Register[events.JobCompleted](reg, "email.job-completed", events.HandlerFunc[events.JobCompleted](m.JobCompleted))
	events.Register[events.MessagePosted](reg, "email.message-posted", events.HandlerFunc[events.MessagePosted](m.MessagePosted))

	if d.Redis != nil {
		events.RegisterAll(reg, "forward.redis", NewRedisForwarder(d.Redis, d.Log))
	}
	if d.AMQP != nil {
		events.RegisterAll(reg, "forward.amqp", d.AMQP)
	}
}
