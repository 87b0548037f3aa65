// Package consent orchestrates the WhatsApp visitor-consent lifecycle:
// starting a request, applying an inbound decision, and sweeping timeouts.
package consent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/Thiagoxp95/portaria/internal/platform/whatsapp"
	"github.com/Thiagoxp95/portaria/internal/services/consent/storage"
)

var (
	// ErrSendFailed indicates the outbound provider send failed; no consent
	// row was created.
	ErrSendFailed = errors.New("whatsapp send failed")
	// ErrNoPendingFound indicates no pending consent matches the inbound
	// sender, or a concurrent writer resolved it first.
	ErrNoPendingFound = errors.New("no pending consent found")
)

// DefaultTTLSeconds is the consent request time-to-live applied when the
// caller does not specify one.
const DefaultTTLSeconds = 300

// Service runs the consent request state machine.
type Service struct {
	store  storage.ConsentStore
	sender whatsapp.Sender
	now    func() time.Time
}

// NewService creates a consent service over the given store and sender.
func NewService(store storage.ConsentStore, sender whatsapp.Sender) *Service {
	return &Service{store: store, sender: sender, now: time.Now}
}

// StartParams carries the inputs for a new consent request.
type StartParams struct {
	To         string
	Apt        string
	Visitor    string
	Company    string
	TTLSeconds int
}

// StartResult reports the provider-assigned conversation SID for polling.
type StartResult struct {
	ConversationSID string
	Status          storage.Status
}

// Start sends the approve/deny WhatsApp message and records a pending consent
// request keyed by the provider-assigned SID.
//
// The send is authoritative: if it fails, nothing is persisted and the error
// wraps ErrSendFailed. The insert afterwards is best-effort bookkeeping: a
// failure there (for example a duplicate SID) is logged and swallowed because
// the message already went out and the caller needs the SID to poll.
func (s *Service) Start(ctx context.Context, params StartParams) (StartResult, error) {
	if s == nil || s.store == nil || s.sender == nil {
		return StartResult{}, fmt.Errorf("consent service is not configured")
	}
	if strings.TrimSpace(params.To) == "" {
		return StartResult{}, fmt.Errorf("destination number is required")
	}
	if strings.TrimSpace(params.Apt) == "" {
		return StartResult{}, fmt.Errorf("apartment number is required")
	}
	if strings.TrimSpace(params.Visitor) == "" {
		return StartResult{}, fmt.Errorf("visitor name is required")
	}
	if strings.TrimSpace(params.Company) == "" {
		return StartResult{}, fmt.Errorf("company is required")
	}
	ttl := params.TTLSeconds
	if ttl == 0 {
		ttl = DefaultTTLSeconds
	}
	if ttl < 0 {
		return StartResult{}, fmt.Errorf("ttl seconds must be positive")
	}

	message, err := s.sender.SendConsent(ctx, whatsapp.ConsentParams{
		To:      params.To,
		Apt:     params.Apt,
		Visitor: params.Visitor,
		Company: params.Company,
	})
	if err != nil {
		return StartResult{}, fmt.Errorf("%w: %v", ErrSendFailed, err)
	}

	now := s.now().UTC()
	consent := storage.ConsentRequest{
		ConversationSID: message.SID,
		ToNumber:        whatsapp.NormalizeNumber(params.To),
		Apt:             params.Apt,
		Visitor:         params.Visitor,
		Company:         params.Company,
		LastMsgSID:      message.SID,
		TTLSeconds:      ttl,
		Status:          storage.StatusPending,
		CreatedAt:       now,
		Transcript: []storage.TranscriptEvent{{
			Direction:  storage.DirectionOutbound,
			MessageSID: message.SID,
			Status:     message.Status,
			Timestamp:  now,
		}},
	}
	if err := s.store.CreateConsent(ctx, consent); err != nil {
		log.Printf("consent %s: insert after send failed: %v", message.SID, err)
	}

	return StartResult{ConversationSID: message.SID, Status: storage.StatusPending}, nil
}

// InboundMessage is one webhook delivery from the messaging provider.
type InboundMessage struct {
	From          string
	Body          string
	ButtonPayload string
	MessageSID    string
	SmsStatus     string
}

// Resolution reports the consent flipped by an inbound reply.
type Resolution struct {
	ConversationSID string
	Status          storage.Status
	Decision        Decision
}

// ResolveFromInbound classifies an inbound reply and applies it to the most
// recent pending consent for the sender's number.
//
// ErrNoPendingFound is returned when nothing matches or a concurrent sweep
// resolved the row first; callers should still acknowledge the provider so
// it does not retry the delivery.
func (s *Service) ResolveFromInbound(ctx context.Context, message InboundMessage) (Resolution, error) {
	if s == nil || s.store == nil {
		return Resolution{}, fmt.Errorf("consent service is not configured")
	}

	decision := Classify(message.ButtonPayload, message.Body)

	// A blank sender can never match a pending row, so it takes the same
	// non-fatal path as an unknown number and the provider gets its ack.
	fromNumber := whatsapp.NormalizeNumber(message.From)
	if fromNumber == "" {
		return Resolution{}, fmt.Errorf("blank sender number: %w", ErrNoPendingFound)
	}

	pending, err := s.store.LatestPendingByNumber(ctx, fromNumber)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Resolution{}, fmt.Errorf("number %s: %w", fromNumber, ErrNoPendingFound)
		}
		return Resolution{}, fmt.Errorf("find pending consent: %w", err)
	}

	now := s.now().UTC()
	event := storage.TranscriptEvent{
		Direction:     storage.DirectionInbound,
		Body:          message.Body,
		ButtonPayload: message.ButtonPayload,
		MessageSID:    message.MessageSID,
		Status:        message.SmsStatus,
		Timestamp:     now,
		Decision:      string(decision),
	}
	err = s.store.ResolveConsent(ctx, pending.ConversationSID, storage.Status(decision), event, now)
	if err != nil {
		if errors.Is(err, storage.ErrNotPending) || errors.Is(err, storage.ErrNotFound) {
			// Lost the race against the sweep or another reply.
			return Resolution{}, fmt.Errorf("consent %s: %w", pending.ConversationSID, ErrNoPendingFound)
		}
		return Resolution{}, fmt.Errorf("resolve consent %s: %w", pending.ConversationSID, err)
	}

	return Resolution{
		ConversationSID: pending.ConversationSID,
		Status:          storage.Status(decision),
		Decision:        decision,
	}, nil
}

// Status returns a snapshot of one consent request.
func (s *Service) Status(ctx context.Context, conversationSID string) (storage.ConsentRequest, error) {
	if s == nil || s.store == nil {
		return storage.ConsentRequest{}, fmt.Errorf("consent service is not configured")
	}
	return s.store.GetConsent(ctx, conversationSID)
}

// SweepExpired marks pending requests past their TTL as no_answer. It is
// meant to be driven by an external scheduler; the service keeps no timer.
func (s *Service) SweepExpired(ctx context.Context, now time.Time) (storage.SweepResult, error) {
	if s == nil || s.store == nil {
		return storage.SweepResult{}, fmt.Errorf("consent service is not configured")
	}
	if now.IsZero() {
		now = s.now().UTC()
	}
	return s.store.SweepExpired(ctx, now)
}

// ListByPhone returns recent consents for a resident's number, newest first.
func (s *Service) ListByPhone(ctx context.Context, toNumber string, status *storage.Status, limit int) ([]storage.ConsentRequest, error) {
	if s == nil || s.store == nil {
		return nil, fmt.Errorf("consent service is not configured")
	}
	return s.store.ListByNumber(ctx, whatsapp.NormalizeNumber(toNumber), status, limit)
}

// ListAll returns recent consents across all numbers, newest first.
func (s *Service) ListAll(ctx context.Context, status *storage.Status, limit int) ([]storage.ConsentRequest, error) {
	if s == nil || s.store == nil {
		return nil, fmt.Errorf("consent service is not configured")
	}
	return s.store.ListAll(ctx, status, limit)
}
