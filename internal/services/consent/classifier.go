package consent

import "strings"

// Decision is the outcome of classifying one inbound reply.
type Decision string

const (
	// DecisionApproved means the reply grants entry.
	DecisionApproved Decision = "approved"
	// DecisionDenied means the reply refuses entry.
	DecisionDenied Decision = "denied"
	// DecisionFailed means the reply could not be understood. Failed is
	// terminal; a new consent request must be started to retry.
	DecisionFailed Decision = "failed"
)

// Quick-reply button payloads and text replies accepted as a decision.
// Text matching is exact on the trimmed, lowercased body: multilingual
// keywords only, no substring matching.
var (
	approvedReplies = map[string]struct{}{
		"approve":  {},
		"approved": {},
		"yes":      {},
		"sim":      {},
		"oui":      {},
		"sí":  {},
		"si":       {},
		"ok":       {},
		"okay":     {},
	}
	deniedReplies = map[string]struct{}{
		"deny":     {},
		"denied":   {},
		"no":       {},
		"nao":      {},
		"não": {},
		"non":      {},
	}
)

// Classify maps an inbound reply to a decision. A structured button payload
// takes precedence over free text when both are present. Anything that does
// not match a known affirmative or negative reply classifies as failed.
func Classify(buttonPayload, body string) Decision {
	if payload := strings.ToLower(strings.TrimSpace(buttonPayload)); payload != "" {
		switch payload {
		case "approve", "approved":
			return DecisionApproved
		case "deny", "denied":
			return DecisionDenied
		default:
			return DecisionFailed
		}
	}

	reply := strings.ToLower(strings.TrimSpace(body))
	if _, ok := approvedReplies[reply]; ok {
		return DecisionApproved
	}
	if _, ok := deniedReplies[reply]; ok {
		return DecisionDenied
	}
	return DecisionFailed
}
