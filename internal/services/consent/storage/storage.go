// Package storage defines persistence contracts for consent request state.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates a requested consent record is missing.
	ErrNotFound = errors.New("consent record not found")
	// ErrAlreadyExists indicates a consent record with the same conversation
	// SID already exists.
	ErrAlreadyExists = errors.New("consent record already exists")
	// ErrNotPending indicates a conditional resolution found the record
	// already in a terminal status.
	ErrNotPending = errors.New("consent record is not pending")
)

// Status is the consent request lifecycle state.
type Status string

const (
	// StatusPending means the request was sent and no decision arrived yet.
	StatusPending Status = "pending"
	// StatusApproved means the resident approved the visitor.
	StatusApproved Status = "approved"
	// StatusDenied means the resident denied the visitor.
	StatusDenied Status = "denied"
	// StatusNoAnswer means the request expired before a reply arrived.
	StatusNoAnswer Status = "no_answer"
	// StatusFailed means a reply arrived but could not be classified.
	StatusFailed Status = "failed"
)

// Terminal reports whether the status is absorbing. Terminal statuses are
// never overwritten by later events.
func (s Status) Terminal() bool {
	switch s {
	case StatusApproved, StatusDenied, StatusNoAnswer, StatusFailed:
		return true
	}
	return false
}

// Valid reports whether the status is one of the known lifecycle states.
func (s Status) Valid() bool {
	return s == StatusPending || s.Terminal()
}

// Transcript event directions.
const (
	DirectionOutbound = "outbound"
	DirectionInbound  = "inbound"
)

// TranscriptEvent records one message exchanged within a consent conversation.
// The JSON field names match the provider-facing transcript format.
type TranscriptEvent struct {
	Direction     string    `json:"type"`
	Body          string    `json:"body,omitempty"`
	ButtonPayload string    `json:"buttonPayload,omitempty"`
	MessageSID    string    `json:"sid,omitempty"`
	Status        string    `json:"status,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	Decision      string    `json:"decision,omitempty"`
}

// ConsentRequest stores one outbound approval request and its resolution.
// The conversation SID is assigned by the messaging provider at send time.
type ConsentRequest struct {
	ConversationSID string
	ToNumber        string
	Apt             string
	Visitor         string
	Company         string
	LastMsgSID      string
	TTLSeconds      int
	Status          Status
	Transcript      []TranscriptEvent
	CreatedAt       time.Time
	DecidedAt       *time.Time
}

// SweepResult reports the rows marked by one expiry sweep.
type SweepResult struct {
	Marked           int
	ConversationSIDs []string
}

// ConsentStore persists consent requests keyed by conversation SID.
//
// Resolve and SweepExpired mutate rows only while they are still pending, so
// terminal statuses are absorbing even when an inbound reply races the sweep.
type ConsentStore interface {
	CreateConsent(ctx context.Context, consent ConsentRequest) error
	GetConsent(ctx context.Context, conversationSID string) (ConsentRequest, error)
	// LatestPendingByNumber returns the most recently created pending request
	// for the normalized destination number.
	LatestPendingByNumber(ctx context.Context, toNumber string) (ConsentRequest, error)
	// ResolveConsent appends one inbound transcript event and flips the row to
	// the given terminal status. It fails with ErrNotPending when the row was
	// already resolved by a concurrent writer.
	ResolveConsent(ctx context.Context, conversationSID string, status Status, event TranscriptEvent, decidedAt time.Time) error
	// SweepExpired marks pending rows whose TTL elapsed before now as
	// no_answer. Rows already terminal are skipped, making the sweep idempotent.
	SweepExpired(ctx context.Context, now time.Time) (SweepResult, error)
	ListByNumber(ctx context.Context, toNumber string, status *Status, limit int) ([]ConsentRequest, error)
	ListAll(ctx context.Context, status *Status, limit int) ([]ConsentRequest, error)
}
