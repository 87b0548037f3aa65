package consent

import "testing"

func TestClassifyButtonPayloads(t *testing.T) {
	t.Parallel()

	cases := []struct {
		payload string
		want    Decision
	}{
		{"approve", DecisionApproved},
		{"Approved", DecisionApproved},
		{"APPROVE", DecisionApproved},
		{"deny", DecisionDenied},
		{"Denied", DecisionDenied},
		{"maybe", DecisionFailed},
		{"approve_later", DecisionFailed},
	}
	for _, tc := range cases {
		if got := Classify(tc.payload, ""); got != tc.want {
			t.Errorf("Classify(button=%q) = %q, want %q", tc.payload, got, tc.want)
		}
	}
}

func TestClassifyTextReplies(t *testing.T) {
	t.Parallel()

	cases := []struct {
		body string
		want Decision
	}{
		{"yes", DecisionApproved},
		{"  YES  ", DecisionApproved},
		{"sim", DecisionApproved},
		{"oui", DecisionApproved},
		{"sí", DecisionApproved},
		{"si", DecisionApproved},
		{"ok", DecisionApproved},
		{"okay", DecisionApproved},
		{"approved", DecisionApproved},
		{"no", DecisionDenied},
		{"nao", DecisionDenied},
		{"não", DecisionDenied},
		{"non", DecisionDenied},
		{"deny", DecisionDenied},
		{"DENIED", DecisionDenied},
	}
	for _, tc := range cases {
		if got := Classify("", tc.body); got != tc.want {
			t.Errorf("Classify(body=%q) = %q, want %q", tc.body, got, tc.want)
		}
	}
}

func TestClassifyRequiresExactMatch(t *testing.T) {
	t.Parallel()

	// No substring or punctuation handling beyond trimming.
	for _, body := range []string{"yes please", "ok!", "sim.", "nope", "approve the visitor", "é claro"} {
		if got := Classify("", body); got != DecisionFailed {
			t.Errorf("Classify(body=%q) = %q, want failed", body, got)
		}
	}
}

func TestClassifyUnrecognizedIsFailed(t *testing.T) {
	t.Parallel()

	for _, body := range []string{"", "   ", "what is this", "??", "da", "hai"} {
		if got := Classify("", body); got != DecisionFailed {
			t.Errorf("Classify(body=%q) = %q, want failed", body, got)
		}
	}
}

func TestClassifyButtonPrecedenceOverText(t *testing.T) {
	t.Parallel()

	if got := Classify("approve", "no"); got != DecisionApproved {
		t.Fatalf("button approve with body no = %q, want approved", got)
	}
	if got := Classify("deny", "yes"); got != DecisionDenied {
		t.Fatalf("button deny with body yes = %q, want denied", got)
	}
	// An unknown button payload fails even when the text would match.
	if got := Classify("snooze", "yes"); got != DecisionFailed {
		t.Fatalf("unknown button with body yes = %q, want failed", got)
	}
}

func TestClassifyTotality(t *testing.T) {
	t.Parallel()

	payloads := []string{"", "approve", "deny", "junk", "  "}
	bodies := []string{"", "yes", "no", "junk", "ãéí", "   "}
	for _, payload := range payloads {
		for _, body := range bodies {
			got := Classify(payload, body)
			switch got {
			case DecisionApproved, DecisionDenied, DecisionFailed:
			default:
				t.Fatalf("Classify(%q, %q) = %q, not a known decision", payload, body, got)
			}
		}
	}
}
