package whatsapp

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
)

// MockSender logs messages instead of delivering them. It stands in for
// Twilio during local development when credentials are absent, fabricating
// SIDs in the provider's format so the rest of the flow is exercisable.
type MockSender struct{}

// SendConsent logs the would-be message and returns a fabricated SID.
func (MockSender) SendConsent(_ context.Context, params ConsentParams) (Message, error) {
	to := strings.TrimSpace(params.To)
	if to == "" {
		return Message{}, fmt.Errorf("destination number is required")
	}
	if !strings.HasPrefix(to, AddressPrefix) {
		to = AddressPrefix + to
	}
	sid := "SM" + strings.ReplaceAll(uuid.NewString(), "-", "")
	log.Printf("[MOCK WHATSAPP] to=%s apt=%s visitor=%s company=%s sid=%s",
		to, params.Apt, params.Visitor, params.Company, sid)
	return Message{SID: sid, Status: "queued", To: to}, nil
}

var _ Sender = MockSender{}
