package handlers

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"builderpulse/notification-service/internal/events"
)

// Channel returns the Redis channel an event kind is forwarded on,
// e.g. EVENT_JOB_POSTED.
func Channel(k events.Kind) string {
	return "EVENT_" + strings.ToUpper(strings.ReplaceAll(string(k), ".", "_"))
}

type forwarded struct {
	Type  string       `json:"type"`
	Kind  events.Kind  `json:"kind"`
	Event events.Event `json:"event"`
}

// RedisPublisher is the part of *redis.Client the forwarder uses.
type RedisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisForwarder publishes every event on its Redis channel for the gateway's
// live updates. Failures are logged and never fail the publish.
type RedisForwarder struct {
	rdb RedisPublisher
	log *zap.SugaredLogger
}

func NewRedisForwarder(rdb RedisPublisher, log *zap.SugaredLogger) *RedisForwarder {
	return &RedisForwarder{rdb: rdb, log: log.Named("forward.redis")}
}

func (h *RedisForwarder) Handle(ctx context.Context, ev events.Event) error {
	ch := Channel(ev.Kind())
	msg, err := json.Marshal(forwarded{Type: ch, Kind: ev.Kind(), Event: ev})
	if err != nil {
		h.log.Warnw("marshal event failed", "kind", ev.Kind(), "err", err)
		return nil
	}
	if err := h.rdb.Publish(ctx, ch, msg).Err(); err != nil {
		h.log.Warnw("publish "+ch+" failed", "eventId", ev.EventID(), "err", err)
	}
	return nil
}

// AMQPChannel is the part of *amqp.Channel the forwarder uses.
type AMQPChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPForwarder publishes every event to a topic exchange with the event
// kind as routing key. Failures are logged and never fail the publish.
type AMQPForwarder struct {
	mu       sync.Mutex
	ch       AMQPChannel
	exchange string
	log      *zap.SugaredLogger
	closers  []func() error
}

// NewAMQPForwarder wraps an already open channel.
func NewAMQPForwarder(ch AMQPChannel, exchange string, log *zap.SugaredLogger) *AMQPForwarder {
	return &AMQPForwarder{ch: ch, exchange: exchange, log: log.Named("forward.amqp")}
}

// DialAMQP connects to url and declares exchange as a durable topic exchange.
func DialAMQP(url, exchange string, log *zap.SugaredLogger) (*AMQPForwarder, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, errors.Wrap(err, "dial rabbitmq")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "open channel")
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, errors.Wrap(err, "declare exchange")
	}

	f := NewAMQPForwarder(ch, exchange, log)
	f.closers = []func() error{ch.Close, conn.Close}
	return f, nil
}

func (h *AMQPForwarder) Handle(ctx context.Context, ev events.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		h.log.Warnw("marshal event failed", "kind", ev.Kind(), "err", err)
		return nil
	}

	h.mu.Lock()
	err = h.ch.PublishWithContext(ctx, h.exchange, string(ev.Kind()), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.EventID(),
		Timestamp:    ev.OccurredAt(),
		Type:         string(ev.Kind()),
		Body:         body,
	})
	h.mu.Unlock()
	if err != nil {
		h.log.Warnw("amqp publish failed", "kind", ev.Kind(), "eventId", ev.EventID(), "err", err)
	}
	return nil
}

// Close closes the channel and connection opened by DialAMQP.
func (h *AMQPForwarder) Close() error {
	var errs error
	for _, c := range h.closers {
		errs = errors.CombineErrors(errs, c())
	}
	return errs
}
