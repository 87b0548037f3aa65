package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Thiagoxp95/portaria/internal/services/consent"
	"github.com/Thiagoxp95/portaria/internal/services/consent/storage"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// StartConsentInput represents the MCP tool input for starting a consent request.
type StartConsentInput struct {
	To         string `json:"to" jsonschema:"resident WhatsApp phone number in E.164 format"`
	Apt        string `json:"apt" jsonschema:"apartment number the visitor is headed to"`
	Visitor    string `json:"visitor" jsonschema:"visitor name announced to the resident"`
	Company    string `json:"company" jsonschema:"company or reason for the visit"`
	TTLSeconds int    `json:"ttl,omitempty" jsonschema:"seconds before an unanswered request expires (default 300)"`
}

// StartConsentResult represents the MCP tool output for starting a consent request.
type StartConsentResult struct {
	ConversationSID string `json:"conversationSid" jsonschema:"provider-assigned conversation identifier for polling"`
	Status          string `json:"status" jsonschema:"consent status, always pending on success"`
	Message         string `json:"message" jsonschema:"human-readable outcome summary"`
}

// StartConsentTool defines the MCP tool schema for starting a consent request.
func StartConsentTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "start_whatsapp_consent",
		Description: "Sends an approve/deny WhatsApp message to a resident and returns a conversation SID to poll for the decision.",
	}
}

// StartConsentHandler executes a consent start request.
func StartConsentHandler(svc *consent.Service) mcp.ToolHandlerFor[StartConsentInput, StartConsentResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input StartConsentInput) (*mcp.CallToolResult, StartConsentResult, error) {
		result, err := svc.Start(ctx, consent.StartParams{
			To:         input.To,
			Apt:        input.Apt,
			Visitor:    input.Visitor,
			Company:    input.Company,
			TTLSeconds: input.TTLSeconds,
		})
		if err != nil {
			if errors.Is(err, consent.ErrSendFailed) {
				return nil, StartConsentResult{}, fmt.Errorf("send WhatsApp message: %v", err)
			}
			return nil, StartConsentResult{}, err
		}

		return nil, StartConsentResult{
			ConversationSID: result.ConversationSID,
			Status:          string(result.Status),
			Message:         "WhatsApp consent request sent successfully",
		}, nil
	}
}

// GetConsentStatusInput represents the MCP tool input for polling a consent request.
type GetConsentStatusInput struct {
	ConversationSID string `json:"conversationSid" jsonschema:"conversation identifier returned by start_whatsapp_consent"`
}

// TranscriptEntry is one message within a consent conversation.
type TranscriptEntry struct {
	Type          string `json:"type" jsonschema:"message direction (outbound, inbound)"`
	Body          string `json:"body,omitempty" jsonschema:"free-text message body, if any"`
	ButtonPayload string `json:"buttonPayload,omitempty" jsonschema:"structured button payload, if the reply used a button"`
	MessageSID    string `json:"sid,omitempty" jsonschema:"provider message identifier"`
	Status        string `json:"status,omitempty" jsonschema:"provider delivery status"`
	Timestamp     string `json:"timestamp" jsonschema:"RFC3339 timestamp of the message"`
	Decision      string `json:"decision,omitempty" jsonschema:"decision extracted from the reply, if any"`
}

// GetConsentStatusResult represents the MCP tool output for polling a consent request.
type GetConsentStatusResult struct {
	ConversationSID string            `json:"conversationSid" jsonschema:"conversation identifier"`
	Status          string            `json:"status" jsonschema:"consent status (pending, approved, denied, no_answer, failed)"`
	Apt             string            `json:"apt" jsonschema:"apartment number the request was for"`
	Visitor         string            `json:"visitor" jsonschema:"visitor name announced to the resident"`
	Company         string            `json:"company" jsonschema:"company or reason for the visit"`
	CreatedAt       string            `json:"createdAt" jsonschema:"RFC3339 timestamp when the request was sent"`
	DecidedAt       string            `json:"decidedAt,omitempty" jsonschema:"RFC3339 timestamp when the request was resolved, if resolved"`
	Transcript      []TranscriptEntry `json:"transcript" jsonschema:"messages exchanged so far, oldest first"`
}

// GetConsentStatusTool defines the MCP tool schema for polling a consent request.
func GetConsentStatusTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "get_consent_status",
		Description: "Returns the current status and transcript of a consent request by conversation SID.",
	}
}

// GetConsentStatusHandler executes a consent status poll.
func GetConsentStatusHandler(svc *consent.Service) mcp.ToolHandlerFor[GetConsentStatusInput, GetConsentStatusResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input GetConsentStatusInput) (*mcp.CallToolResult, GetConsentStatusResult, error) {
		request, err := svc.Status(ctx, input.ConversationSID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, GetConsentStatusResult{}, fmt.Errorf("no consent request found for conversation %q", input.ConversationSID)
			}
			return nil, GetConsentStatusResult{}, fmt.Errorf("get consent status: %w", err)
		}

		result := GetConsentStatusResult{
			ConversationSID: request.ConversationSID,
			Status:          string(request.Status),
			Apt:             request.Apt,
			Visitor:         request.Visitor,
			Company:         request.Company,
			CreatedAt:       request.CreatedAt.Format(time.RFC3339),
			Transcript:      make([]TranscriptEntry, 0, len(request.Transcript)),
		}
		if request.DecidedAt != nil {
			result.DecidedAt = request.DecidedAt.Format(time.RFC3339)
		}
		for _, event := range request.Transcript {
			result.Transcript = append(result.Transcript, TranscriptEntry{
				Type:          event.Direction,
				Body:          event.Body,
				ButtonPayload: event.ButtonPayload,
				MessageSID:    event.MessageSID,
				Status:        event.Status,
				Timestamp:     event.Timestamp.Format(time.RFC3339),
				Decision:      event.Decision,
			})
		}

		return nil, result, nil
	}
}
