package handlers_test

import (
	"context"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"builderpulse/notification-service/internal/email"
	"builderpulse/notification-service/internal/matching"
	"builderpulse/notification-service/internal/model"
	"builderpulse/notification-service/internal/store"
)

type memStore struct {
	mu            sync.Mutex
	jobs          map[string]model.Job
	profiles      []model.ContractorProfile
	users         map[string]model.Recipient
	contractors   map[string]model.Recipient
	notifications map[[2]string]bool
	activity      []model.ActivityRecord
}

func newMemStore() *memStore {
	return &memStore{
		jobs:          map[string]model.Job{},
		users:         map[string]model.Recipient{},
		contractors:   map[string]model.Recipient{},
		notifications: map[[2]string]bool{},
	}
}

func (s *memStore) Job(ctx context.Context, id string) (model.Job, error) {
	j, ok := s.jobs[id]
	if !ok {
		return j, store.ErrNotFound
	}
	return j, nil
}

func (s *memStore) CandidateProfiles(ctx context.Context, trade string) ([]model.ContractorProfile, error) {
	var out []model.ContractorProfile
	for _, p := range s.profiles {
		if matching.HasTrade(p.Trades, trade) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memStore) InsertNotifications(ctx context.Context, jobID string, ids []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range ids {
		key := [2]string{id, jobID}
		if !s.notifications[key] {
			s.notifications[key] = true
			n++
		}
	}
	return n, nil
}

func (s *memStore) InsertActivity(ctx context.Context, rec model.ActivityRecord) error {
	s.activity = append(s.activity, rec)
	return nil
}

func (s *memStore) UserRecipient(ctx context.Context, id string) (model.Recipient, error) {
	r, ok := s.users[id]
	if !ok {
		return r, store.ErrNotFound
	}
	return r, nil
}

func (s *memStore) ContractorRecipient(ctx context.Context, id string) (model.Recipient, error) {
	r, ok := s.contractors[id]
	if !ok {
		return r, store.ErrNotFound
	}
	return r, nil
}

type recordingSender struct {
	sent []email.Message
	err  error
}

func (s *recordingSender) Send(ctx context.Context, msg email.Message) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

type published struct {
	channel string
	payload []byte
}

type fakeRedis struct {
	msgs []published
	err  error
}

func (r *fakeRedis) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	if r.err != nil {
		cmd.SetErr(r.err)
		return cmd
	}
	r.msgs = append(r.msgs, published{channel: channel, payload: message.([]byte)})
	cmd.SetVal(1)
	return cmd
}

type amqpPublished struct {
	exchange, key string
	msg           amqp.Publishing
}

type fakeAMQP struct {
	msgs []amqpPublished
	err  error
}

func (c *fakeAMQP) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, amqpPublished{exchange: exchange, key: key, msg: msg})
	return nil
}

func ptr(f float64) *float64 { return &f }
