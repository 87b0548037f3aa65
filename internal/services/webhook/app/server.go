// Package app wires the Twilio inbound webhook HTTP server.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/Thiagoxp95/portaria/internal/services/consent"
)

const (
	// WebhookPath is where the messaging provider delivers inbound replies.
	WebhookPath = "/webhooks/twilio/whatsapp"
	// signatureHeader carries the provider's HMAC over URL plus form params.
	signatureHeader = "X-Twilio-Signature"
	// shutdownTimeout bounds graceful drain on context cancellation.
	shutdownTimeout = 10 * time.Second
)

// SignatureValidator checks a provider signature over the request URL and
// its form parameters. whatsapp.Validator satisfies it.
type SignatureValidator interface {
	Validate(url string, params map[string]string, signature string) bool
}

// Config carries the webhook server configuration.
type Config struct {
	// Addr is the listen address, e.g. ":8082".
	Addr string
	// PublicURL is the externally visible URL the provider signed against.
	// Required because the provider signs the URL it was configured with,
	// not the one seen behind a proxy.
	PublicURL string
}

// Server hosts the inbound webhook endpoint and its health probe.
type Server struct {
	httpServer *http.Server
	addr       string
}

// NewServer builds a webhook server resolving replies through the consent service.
func NewServer(cfg Config, consents *consent.Service, validator SignatureValidator) (*Server, error) {
	if consents == nil {
		return nil, errors.New("consent service is required")
	}
	if validator == nil {
		return nil, errors.New("signature validator is required")
	}

	addr := cfg.Addr
	if addr == "" {
		addr = ":8082"
	}

	handler := NewHandler(cfg, consents, validator)
	return &Server{
		addr: addr,
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// NewHandler builds the webhook routing mux. Exposed separately so tests can
// drive it with httptest without binding a port.
func NewHandler(cfg Config, consents *consent.Service, validator SignatureValidator) http.Handler {
	h := &handler{
		consents:  consents,
		validator: validator,
		publicURL: cfg.PublicURL,
	}

	mux := http.NewServeMux()
	mux.HandleFunc(http.MethodPost+" "+WebhookPath, h.handleInbound)
	mux.HandleFunc(http.MethodGet+" "+WebhookPath, h.handleLiveness)
	mux.HandleFunc(http.MethodGet+" /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// ListenAndServe runs the HTTP server until the context ends.
//
// On cancellation, it performs a bounded shutdown so in-flight requests are
// drained before hard close.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil || s.httpServer == nil {
		return errors.New("webhook server is not configured")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	serveErr := make(chan error, 1)
	log.Printf("webhook listening on %s", s.addr)
	go func() {
		serveErr <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

type handler struct {
	consents  *consent.Service
	validator SignatureValidator
	publicURL string
}

// handleInbound processes one provider delivery: verify the signature, apply
// the reply to the newest pending consent, and acknowledge with TwiML.
//
// Classification misses and absent pending rows are still acknowledged with
// 200 so the provider does not retry the same delivery.
func (h *handler) handleInbound(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed form body"})
		return
	}

	params := make(map[string]string, len(r.PostForm))
	for key, values := range r.PostForm {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}

	if !h.validator.Validate(h.signedURL(r), params, r.Header.Get(signatureHeader)) {
		log.Printf("webhook: invalid signature from %s", r.RemoteAddr)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid signature"})
		return
	}

	resolution, err := h.consents.ResolveFromInbound(r.Context(), consent.InboundMessage{
		From:          params["From"],
		Body:          params["Body"],
		ButtonPayload: params["ButtonPayload"],
		MessageSID:    params["MessageSid"],
		SmsStatus:     params["SmsStatus"],
	})
	if err != nil {
		if errors.Is(err, consent.ErrNoPendingFound) {
			log.Printf("webhook: no pending consent for %s", params["From"])
			writeJSON(w, http.StatusOK, map[string]string{"message": "No pending consent found"})
			return
		}
		log.Printf("webhook: resolve inbound reply: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
		return
	}

	log.Printf("webhook: consent %s updated to %s", resolution.ConversationSID, resolution.Status)
	writeTwiML(w, confirmationMessage(resolution.Decision))
}

// handleLiveness answers provider console verification checks.
func (h *handler) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message":   "Twilio WhatsApp webhook endpoint is active",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// signedURL returns the URL the provider computed its signature over.
func (h *handler) signedURL(r *http.Request) string {
	if h.publicURL != "" {
		return h.publicURL
	}
	scheme := "https"
	if r.TLS == nil {
		scheme = "http"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

func confirmationMessage(decision consent.Decision) string {
	switch decision {
	case consent.DecisionApproved:
		return "Thank you! Entry has been approved."
	case consent.DecisionDenied:
		return "Thank you! Entry has been denied."
	default:
		return "Sorry, I didn't understand your response."
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("webhook: write response: %v", err)
	}
}

func writeTwiML(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	body := fmt.Sprintf("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n<Response>\n  <Message>%s</Message>\n</Response>", message)
	if _, err := w.Write([]byte(body)); err != nil {
		log.Printf("webhook: write response: %v", err)
	}
}
