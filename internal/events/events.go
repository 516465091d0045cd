// Package events defines the marketplace domain events and the in-process
// bus that fans each published event out to its registered handlers.
//
// Event kinds form a closed set:
//
//	job.posted      a client published a new job
//	bid.placed      a contractor bid on a job
//	bid.accepted    the client accepted a bid
//	job.completed   the job was marked done
//	message.posted  a message was sent on a job thread
package events

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// Kind identifies an event type. Values double as Redis channel suffixes
// and AMQP routing keys.
type Kind string

const (
	KindJobPosted     Kind = "job.posted"
	KindBidPlaced     Kind = "bid.placed"
	KindBidAccepted   Kind = "bid.accepted"
	KindJobCompleted  Kind = "job.completed"
	KindMessagePosted Kind = "message.posted"
)

// ErrUnknownKind is returned by ParseKind for values outside the closed set.
var ErrUnknownKind = errors.New("unknown event kind")

// AllKinds returns every kind in declaration order.
func AllKinds() []Kind {
	return []Kind{KindJobPosted, KindBidPlaced, KindBidAccepted, KindJobCompleted, KindMessagePosted}
}

// ParseKind converts a raw string to a Kind. Matching is exact.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	switch k {
	case KindJobPosted, KindBidPlaced, KindBidAccepted, KindJobCompleted, KindMessagePosted:
		return k, nil
	}
	return "", errors.Wrapf(ErrUnknownKind, "%q", s)
}

// Event is an immutable fact about something that already happened.
type Event interface {
	Kind() Kind
	EventID() string
	OccurredAt() time.Time
	ActorID() string
}

// Envelope carries the identity and timestamp shared by every event.
type Envelope struct {
	ID    string    `json:"id" validate:"omitempty,uuid"`
	At    time.Time `json:"occurredAt"`
	Actor string    `json:"actorId,omitempty" validate:"omitempty,uuid"`
}

func (e Envelope) EventID() string       { return e.ID }
func (e Envelope) OccurredAt() time.Time { return e.At }
func (e Envelope) ActorID() string       { return e.Actor }

// Stamp fills a missing id and timestamp.
func (e *Envelope) Stamp(now time.Time) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = now.UTC()
	}
}

// DefaultActor sets the actor when the event does not name one.
func (e *Envelope) DefaultActor(id string) {
	if e.Actor == "" {
		e.Actor = id
	}
}

// JobPosted is published after a job row is committed.
type JobPosted struct {
	Envelope
	JobID    string `json:"jobId" validate:"required,uuid"`
	ClientID string `json:"clientId" validate:"required,uuid"`
}

func (JobPosted) Kind() Kind { return KindJobPosted }

// BidPlaced is published when a contractor submits a bid.
type BidPlaced struct {
	Envelope
	BidID        string `json:"bidId" validate:"required,uuid"`
	JobID        string `json:"jobId" validate:"required,uuid"`
	ContractorID string `json:"contractorId" validate:"required,uuid"`
	AmountCents  int64  `json:"amountCents" validate:"gte=0"`
}

func (BidPlaced) Kind() Kind { return KindBidPlaced }

// BidAccepted is published when the client accepts a bid.
type BidAccepted struct {
	Envelope
	BidID        string `json:"bidId" validate:"required,uuid"`
	JobID        string `json:"jobId" validate:"required,uuid"`
	ContractorID string `json:"contractorId" validate:"required,uuid"`
	ClientID     string `json:"clientId" validate:"required,uuid"`
}

func (BidAccepted) Kind() Kind { return KindBidAccepted }

// JobCompleted is published when a job is marked complete.
type JobCompleted struct {
	Envelope
	JobID        string `json:"jobId" validate:"required,uuid"`
	ClientID     string `json:"clientId" validate:"required,uuid"`
	ContractorID string `json:"contractorId" validate:"required,uuid"`
}

func (JobCompleted) Kind() Kind { return KindJobCompleted }

// MessagePosted is published for each message on a job thread.
type MessagePosted struct {
	Envelope
	MessageID   string `json:"messageId" validate:"required,uuid"`
	JobID       string `json:"jobId" validate:"required,uuid"`
	SenderID    string `json:"senderId" validate:"required,uuid"`
	RecipientID string `json:"recipientId" validate:"required,uuid"`
	Preview     string `json:"preview" validate:"max=280"`
}

func (MessagePosted) Kind() Kind { return KindMessagePosted }

// JobOf returns the job an event refers to.
func JobOf(ev Event) string {
	switch e := ev.(type) {
	case JobPosted:
		return e.JobID
	case BidPlaced:
		return e.JobID
	case BidAccepted:
		return e.JobID
	case JobCompleted:
		return e.JobID
	case MessagePosted:
		return e.JobID
	}
	return ""
}

// New returns an empty, addressable event value of the given kind, ready to
// be decoded into.
func New(k Kind) (Event, error) {
	switch k {
	case KindJobPosted:
		return &JobPosted{}, nil
	case KindBidPlaced:
		return &BidPlaced{}, nil
	case KindBidAccepted:
		return &BidAccepted{}, nil
	case KindJobCompleted:
		return &JobCompleted{}, nil
	case KindMessagePosted:
		return &MessagePosted{}, nil
	}
	return nil, errors.Wrapf(ErrUnknownKind, "%q", k)
}

// Deref turns a pointer returned by New back into the value form that
// handlers are registered for.
func Deref(ev Event) Event {
	switch e := ev.(type) {
	case *JobPosted:
		return *e
	case *BidPlaced:
		return *e
	case *BidAccepted:
		return *e
	case *JobCompleted:
		return *e
	case *MessagePosted:
		return *e
	}
	return ev
}
