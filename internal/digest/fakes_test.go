package digest_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"builderpulse/notification-service/internal/email"
	"builderpulse/notification-service/internal/model"
	"builderpulse/notification-service/internal/store"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type notification struct {
	id           string
	contractorID string
	jobID        string
	createdAt    time.Time
	sentAt       *time.Time
}

type fakeJob struct {
	title, trade string
	createdAt    time.Time
}

// memStore is an in-memory digest.Store.
type memStore struct {
	mu            sync.Mutex
	seq           int
	notifications []*notification
	jobs          map[string]fakeJob
	profiles      map[string]model.ContractorProfile
	emails        map[string]string

	failProfile  map[string]error
	failMarkSent error
	failPending  error

	// honourCtx makes writes fail once their context is done, like pgx.
	honourCtx bool
	// onRecipient runs after each recipient lookup.
	onRecipient func()
}

func newMemStore() *memStore {
	return &memStore{
		jobs:        map[string]fakeJob{},
		profiles:    map[string]model.ContractorProfile{},
		emails:      map[string]string{},
		failProfile: map[string]error{},
	}
}

func (s *memStore) addContractor(id, mail string) {
	s.profiles[id] = model.ContractorProfile{ID: id, UserID: "u-" + id, IsAvailable: true}
	s.emails[id] = mail
}

func (s *memStore) addJob(id, title, trade string, at time.Time) {
	s.jobs[id] = fakeJob{title: title, trade: trade, createdAt: at}
}

func (s *memStore) enqueue(contractorID, jobID string, at time.Time) {
	s.seq++
	s.notifications = append(s.notifications, &notification{
		id: fmt.Sprintf("n-%03d", s.seq), contractorID: contractorID, jobID: jobID, createdAt: at,
	})
}

func (s *memStore) pending(contractorID string) int {
	n := 0
	for _, x := range s.notifications {
		if x.contractorID == contractorID && x.sentAt == nil {
			n++
		}
	}
	return n
}

func (s *memStore) PendingContractorIDs(ctx context.Context, limit int) ([]string, error) {
	if s.failPending != nil {
		return nil, s.failPending
	}
	first := map[string]time.Time{}
	for _, x := range s.notifications {
		if x.sentAt != nil {
			continue
		}
		if at, ok := first[x.contractorID]; !ok || x.createdAt.Before(at) {
			first[x.contractorID] = x.createdAt
		}
	}
	ids := make([]string, 0, len(first))
	for id := range first {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if !first[ids[i]].Equal(first[ids[j]]) {
			return first[ids[i]].Before(first[ids[j]])
		}
		return ids[i] < ids[j]
	})
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (s *memStore) Profile(ctx context.Context, contractorID string) (model.ContractorProfile, error) {
	if err := s.failProfile[contractorID]; err != nil {
		return model.ContractorProfile{}, err
	}
	p, ok := s.profiles[contractorID]
	if !ok {
		return p, store.ErrNotFound
	}
	return p, nil
}

func (s *memStore) PendingBatch(ctx context.Context, contractorID string, limit int) ([]model.PendingJob, error) {
	var batch []model.PendingJob
	for _, x := range s.notifications {
		if x.contractorID != contractorID || x.sentAt != nil {
			continue
		}
		j := s.jobs[x.jobID]
		batch = append(batch, model.PendingJob{
			NotificationID: x.id, JobID: x.jobID, Title: j.title, Trade: j.trade, JobCreatedAt: j.createdAt,
		})
	}
	sort.SliceStable(batch, func(i, k int) bool { return batch[i].JobCreatedAt.After(batch[k].JobCreatedAt) })
	if len(batch) > limit {
		batch = batch[:limit]
	}
	return batch, nil
}

func (s *memStore) ContractorRecipient(ctx context.Context, contractorID string) (model.Recipient, error) {
	if s.onRecipient != nil {
		s.onRecipient()
	}
	mail, ok := s.emails[contractorID]
	if !ok {
		return model.Recipient{}, store.ErrNotFound
	}
	return model.Recipient{UserID: "u-" + contractorID, Name: "Sam", Email: mail}, nil
}

func (s *memStore) SetLastDigestSent(ctx context.Context, contractorID string, at time.Time) error {
	if s.honourCtx && ctx.Err() != nil {
		return ctx.Err()
	}
	p, ok := s.profiles[contractorID]
	if !ok {
		return store.ErrNotFound
	}
	p.LastDigestSentAt = &at
	s.profiles[contractorID] = p
	return nil
}

func (s *memStore) MarkSent(ctx context.Context, ids []string, at time.Time) (int, error) {
	if s.honourCtx && ctx.Err() != nil {
		return 0, ctx.Err()
	}
	if s.failMarkSent != nil {
		return 0, s.failMarkSent
	}
	want := map[string]bool{}
	for _, id := range ids {
		want[id] = true
	}
	n := 0
	for _, x := range s.notifications {
		if want[x.id] && x.sentAt == nil {
			t := at
			x.sentAt = &t
			n++
		}
	}
	return n, nil
}

// recordingSender keeps every message. failFor maps recipient address to an
// error; onSend runs after each successful send.
type recordingSender struct {
	sent    []email.Message
	failFor map[string]error
	onSend  func()
}

func (s *recordingSender) Send(ctx context.Context, msg email.Message) error {
	if err := s.failFor[msg.To]; err != nil {
		return err
	}
	s.sent = append(s.sent, msg)
	if s.onSend != nil {
		s.onSend()
	}
	return nil
}
