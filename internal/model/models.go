// Package model defines shared data structures for the notification service.
package model

import "time"

// ContractorJobNotification mirrors a contractor_job_notifications row:
// "job JobID should be (or has been) surfaced to contractor ContractorID".
// At most one row exists per (ContractorID, JobID).
type ContractorJobNotification struct {
	ID           string
	ContractorID string
	JobID        string
	CreatedAt    time.Time
	SentAt       *time.Time // nil while pending
}

// Pending reports whether the notification still awaits a digest.
func (n ContractorJobNotification) Pending() bool { return n.SentAt == nil }

// ContractorProfile is the subset of contractor_profiles used for matching
// and digest gating.
type ContractorProfile struct {
	ID               string
	UserID           string
	Trades           []string
	ServiceCity      string
	Latitude         *float64
	Longitude        *float64
	ServiceRadiusKm  float64
	IsAvailable      bool
	LastDigestSentAt *time.Time
}

// Job is the subset of jobs needed to find eligible contractors.
type Job struct {
	ID        string
	ClientID  string
	Title     string
	Trade     string
	City      string
	Latitude  *float64
	Longitude *float64
	CreatedAt time.Time
}

// PendingJob is one row of a digest batch: a pending notification joined
// with the job summary fields shown in the email.
type PendingJob struct {
	NotificationID string
	JobID          string
	Title          string
	Trade          string
	JobCreatedAt   time.Time
}

// ActivityRecord is a row of activity_log derived from a published event.
type ActivityRecord struct {
	EventID    string
	Kind       string
	ActorID    string
	JobID      string
	Payload    []byte // JSON
	OccurredAt time.Time
}

// Recipient is a resolved user address for transactional mail.
type Recipient struct {
	UserID string
	Name   string
	Email  string
}
