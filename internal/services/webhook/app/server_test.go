package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Thiagoxp95/portaria/internal/platform/whatsapp"
	"github.com/Thiagoxp95/portaria/internal/services/consent"
	"github.com/Thiagoxp95/portaria/internal/services/consent/storage"
	consentsqlite "github.com/Thiagoxp95/portaria/internal/services/consent/storage/sqlite"
)

// stubSender returns a fixed SID so tests can address the created consent.
type stubSender struct {
	sid string
}

func (s stubSender) SendConsent(_ context.Context, params whatsapp.ConsentParams) (whatsapp.Message, error) {
	return whatsapp.Message{SID: s.sid, Status: "queued", To: whatsapp.AddressPrefix + params.To}, nil
}

// stubValidator approves or rejects every signature.
type stubValidator struct {
	ok bool
}

func (v stubValidator) Validate(string, map[string]string, string) bool { return v.ok }

func newTestHandler(t *testing.T, sid string, valid bool) (http.Handler, *consent.Service) {
	t.Helper()

	store, err := consentsqlite.Open(filepath.Join(t.TempDir(), "consents.db"))
	if err != nil {
		t.Fatalf("open consent store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close consent store: %v", err)
		}
	})

	svc := consent.NewService(store, stubSender{sid: sid})
	handler := NewHandler(Config{PublicURL: "https://portaria.example/webhooks/twilio/whatsapp"}, svc, stubValidator{ok: valid})
	return handler, svc
}

func startPendingConsent(t *testing.T, svc *consent.Service, to string) string {
	t.Helper()

	result, err := svc.Start(context.Background(), consent.StartParams{
		To:      to,
		Apt:     "1203",
		Visitor: "João",
		Company: "iFood",
	})
	if err != nil {
		t.Fatalf("start consent: %v", err)
	}
	return result.ConversationSID
}

func postInbound(t *testing.T, handler http.Handler, form url.Values) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, WebhookPath, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Twilio-Signature", "sig")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestInboundButtonApproval(t *testing.T) {
	t.Parallel()

	handler, svc := newTestHandler(t, "SMapproval", true)
	sid := startPendingConsent(t, svc, "+5511999999999")

	rec := postInbound(t, handler, url.Values{
		"From":          {"whatsapp:+5511999999999"},
		"ButtonPayload": {"approve"},
		"MessageSid":    {"SMreply1"},
		"SmsStatus":     {"received"},
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/xml" {
		t.Errorf("content type = %q, want text/xml", ct)
	}
	if !strings.Contains(rec.Body.String(), "Entry has been approved") {
		t.Errorf("body = %q, want approval confirmation", rec.Body.String())
	}

	request, err := svc.Status(context.Background(), sid)
	if err != nil {
		t.Fatalf("status after reply: %v", err)
	}
	if request.Status != storage.StatusApproved {
		t.Errorf("status = %q, want %q", request.Status, storage.StatusApproved)
	}
	if request.DecidedAt == nil {
		t.Error("expected decidedAt to be set")
	}
	if len(request.Transcript) != 2 {
		t.Fatalf("transcript length = %d, want 2", len(request.Transcript))
	}
	inbound := request.Transcript[1]
	if inbound.Direction != storage.DirectionInbound {
		t.Errorf("transcript[1].Direction = %q, want inbound", inbound.Direction)
	}
	if inbound.ButtonPayload != "approve" {
		t.Errorf("transcript[1].ButtonPayload = %q, want approve", inbound.ButtonPayload)
	}
	if inbound.Decision != string(consent.DecisionApproved) {
		t.Errorf("transcript[1].Decision = %q, want approved", inbound.Decision)
	}
}

func TestInboundTextDenial(t *testing.T) {
	t.Parallel()

	handler, svc := newTestHandler(t, "SMdenial", true)
	sid := startPendingConsent(t, svc, "+5511888888888")

	rec := postInbound(t, handler, url.Values{
		"From":       {"whatsapp:+5511888888888"},
		"Body":       {"não"},
		"MessageSid": {"SMreply2"},
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Entry has been denied") {
		t.Errorf("body = %q, want denial confirmation", rec.Body.String())
	}

	request, err := svc.Status(context.Background(), sid)
	if err != nil {
		t.Fatalf("status after reply: %v", err)
	}
	if request.Status != storage.StatusDenied {
		t.Errorf("status = %q, want %q", request.Status, storage.StatusDenied)
	}
}

func TestInboundUnrecognizedReplyMarksFailed(t *testing.T) {
	t.Parallel()

	handler, svc := newTestHandler(t, "SMgarbled", true)
	sid := startPendingConsent(t, svc, "+5511777777777")

	rec := postInbound(t, handler, url.Values{
		"From": {"whatsapp:+5511777777777"},
		"Body": {"maybe tomorrow"},
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "didn't understand") {
		t.Errorf("body = %q, want fallback confirmation", rec.Body.String())
	}

	request, err := svc.Status(context.Background(), sid)
	if err != nil {
		t.Fatalf("status after reply: %v", err)
	}
	if request.Status != storage.StatusFailed {
		t.Errorf("status = %q, want %q", request.Status, storage.StatusFailed)
	}
}

func TestInvalidSignatureRejectedWithoutMutation(t *testing.T) {
	t.Parallel()

	handler, svc := newTestHandler(t, "SMsigned", false)
	sid := startPendingConsent(t, svc, "+5511666666666")

	rec := postInbound(t, handler, url.Values{
		"From":          {"whatsapp:+5511666666666"},
		"ButtonPayload": {"approve"},
	})

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}

	request, err := svc.Status(context.Background(), sid)
	if err != nil {
		t.Fatalf("status after rejected request: %v", err)
	}
	if request.Status != storage.StatusPending {
		t.Errorf("status = %q, want pending after rejected signature", request.Status)
	}
	if len(request.Transcript) != 1 {
		t.Errorf("transcript length = %d, want 1", len(request.Transcript))
	}
}

func TestInboundWithoutPendingConsentAcknowledged(t *testing.T) {
	t.Parallel()

	handler, _ := newTestHandler(t, "SMnone", true)

	rec := postInbound(t, handler, url.Values{
		"From": {"whatsapp:+5511000000000"},
		"Body": {"yes"},
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if payload["message"] != "No pending consent found" {
		t.Errorf("message = %q, want no-pending acknowledgement", payload["message"])
	}
}

func TestInboundWithoutSenderAcknowledged(t *testing.T) {
	t.Parallel()

	handler, svc := newTestHandler(t, "SMblank", true)
	sid := startPendingConsent(t, svc, "+5511444444444")

	rec := postInbound(t, handler, url.Values{
		"Body": {"yes"},
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if payload["message"] != "No pending consent found" {
		t.Errorf("message = %q, want no-pending acknowledgement", payload["message"])
	}

	request, err := svc.Status(context.Background(), sid)
	if err != nil {
		t.Fatalf("status after blank sender: %v", err)
	}
	if request.Status != storage.StatusPending {
		t.Errorf("status = %q, want pending after blank sender", request.Status)
	}
}

func TestLatestPendingConsentWins(t *testing.T) {
	t.Parallel()

	store, err := consentsqlite.Open(filepath.Join(t.TempDir(), "consents.db"))
	if err != nil {
		t.Fatalf("open consent store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close consent store: %v", err)
		}
	})

	now := time.Now().UTC()
	for i, sid := range []string{"SMfirst", "SMsecond"} {
		err := store.CreateConsent(context.Background(), storage.ConsentRequest{
			ConversationSID: sid,
			ToNumber:        "+5511555555555",
			Apt:             "1203",
			Visitor:         "João",
			Company:         "iFood",
			TTLSeconds:      300,
			Status:          storage.StatusPending,
			CreatedAt:       now.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("create consent %s: %v", sid, err)
		}
	}

	svc := consent.NewService(store, stubSender{sid: "unused"})
	handler := NewHandler(Config{PublicURL: "https://portaria.example" + WebhookPath}, svc, stubValidator{ok: true})

	rec := postInbound(t, handler, url.Values{
		"From":          {"whatsapp:+5511555555555"},
		"ButtonPayload": {"deny"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	second, err := svc.Status(context.Background(), "SMsecond")
	if err != nil {
		t.Fatalf("status SMsecond: %v", err)
	}
	if second.Status != storage.StatusDenied {
		t.Errorf("SMsecond status = %q, want denied", second.Status)
	}

	first, err := svc.Status(context.Background(), "SMfirst")
	if err != nil {
		t.Fatalf("status SMfirst: %v", err)
	}
	if first.Status != storage.StatusPending {
		t.Errorf("SMfirst status = %q, want pending", first.Status)
	}
}

func TestLivenessGet(t *testing.T) {
	t.Parallel()

	handler, _ := newTestHandler(t, "SMlive", true)

	req := httptest.NewRequest(http.MethodGet, WebhookPath, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if payload["message"] == "" {
		t.Error("expected a liveness message")
	}
	if payload["timestamp"] == "" {
		t.Error("expected a timestamp")
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	handler, _ := newTestHandler(t, "SMhealth", true)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestServerShutsDownOnCancel(t *testing.T) {
	t.Parallel()

	_, svc := newTestHandler(t, "SMshutdown", true)
	server, err := NewServer(Config{Addr: "127.0.0.1:0"}, svc, stubValidator{ok: true})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- server.ListenAndServe(ctx)
	}()

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("listen and serve returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop after cancel")
	}
}
