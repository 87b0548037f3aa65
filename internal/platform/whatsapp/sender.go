// Package whatsapp sends WhatsApp messages through Twilio and validates
// inbound webhook signatures.
package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// AddressPrefix is the provider scheme Twilio prepends to WhatsApp numbers.
const AddressPrefix = "whatsapp:"

// Message captures the provider response for one outbound send.
type Message struct {
	SID    string
	Status string
	To     string
	From   string
}

// ConsentParams carries the template variables for a consent request message.
type ConsentParams struct {
	To      string
	Apt     string
	Visitor string
	Company string
}

// Sender delivers one approve/deny WhatsApp message and reports the
// provider-assigned message SID.
type Sender interface {
	SendConsent(ctx context.Context, params ConsentParams) (Message, error)
}

// Config holds Twilio credentials and template addressing.
type Config struct {
	AccountSID     string
	AuthToken      string
	From           string // e.g. whatsapp:+14155238886
	ContentSID     string // approved WhatsApp template SID
	StatusCallback string // optional delivery-status webhook URL
}

// Configured reports whether the config carries enough to reach Twilio.
func (c Config) Configured() bool {
	return c.AccountSID != "" && c.AuthToken != "" && c.From != "" && c.ContentSID != ""
}

// Client sends WhatsApp content-template messages through the Twilio REST API.
type Client struct {
	rest *twilio.RestClient
	cfg  Config
}

// NewClient creates a Twilio-backed WhatsApp sender.
func NewClient(cfg Config) *Client {
	rest := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &Client{rest: rest, cfg: cfg}
}

// SendConsent sends the approve/deny template to the resident's number.
// Template variables follow the approved content layout: 1=apartment,
// 2=company, 3=visitor.
func (c *Client) SendConsent(ctx context.Context, params ConsentParams) (Message, error) {
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}
	if !c.cfg.Configured() {
		return Message{}, fmt.Errorf("twilio whatsapp sender is not configured")
	}
	to := strings.TrimSpace(params.To)
	if to == "" {
		return Message{}, fmt.Errorf("destination number is required")
	}
	if !strings.HasPrefix(to, AddressPrefix) {
		to = AddressPrefix + to
	}

	variables, err := json.Marshal(map[string]string{
		"1": params.Apt,
		"2": params.Company,
		"3": params.Visitor,
	})
	if err != nil {
		return Message{}, fmt.Errorf("encode template variables: %w", err)
	}

	create := &twilioapi.CreateMessageParams{}
	create.SetTo(to)
	create.SetFrom(c.cfg.From)
	create.SetContentSid(c.cfg.ContentSID)
	create.SetContentVariables(string(variables))
	if c.cfg.StatusCallback != "" {
		create.SetStatusCallback(c.cfg.StatusCallback)
	}

	message, err := c.rest.Api.CreateMessage(create)
	if err != nil {
		return Message{}, fmt.Errorf("send whatsapp message: %w", err)
	}
	if message == nil || message.Sid == nil {
		return Message{}, fmt.Errorf("twilio response is missing a message sid")
	}

	result := Message{SID: *message.Sid}
	if message.Status != nil {
		result.Status = *message.Status
	}
	if message.To != nil {
		result.To = *message.To
	}
	if message.From != nil {
		result.From = *message.From
	}
	return result, nil
}

// Validator checks X-Twilio-Signature headers on inbound webhooks.
type Validator struct {
	inner twilioclient.RequestValidator
}

// NewValidator creates a signature validator keyed by the account auth token.
func NewValidator(authToken string) Validator {
	return Validator{inner: twilioclient.NewRequestValidator(authToken)}
}

// Validate reports whether signature matches the HMAC of url plus the sorted
// form parameters.
func (v Validator) Validate(url string, params map[string]string, signature string) bool {
	return v.inner.Validate(url, params, signature)
}

// NormalizeNumber canonicalizes a provider address for comparison: the
// whatsapp: prefix and common formatting characters are removed so
// "whatsapp:+55 11 99999-9999" and "+5511999999999" compare equal.
func NormalizeNumber(number string) string {
	number = strings.TrimSpace(number)
	number = strings.TrimPrefix(number, AddressPrefix)
	var b strings.Builder
	for i, r := range number {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}
