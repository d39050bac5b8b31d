// Package webhook posts operator notices as signed JSON to an HTTP endpoint
// and accepts chat commands over a signed inbound endpoint.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/h1v3-io/seatwatch/internal/connector"
	"github.com/h1v3-io/seatwatch/internal/handover"
	"github.com/h1v3-io/seatwatch/pkg/protocol"
)

// SignatureHeader carries the HMAC-SHA256 of the request body.
const SignatureHeader = "X-Signature-256"

// Config holds outbound webhook settings.
type Config struct {
	URL     string
	Secret  string            // signs request bodies when set
	Headers map[string]string // extra request headers
	Kinds   []handover.Kind   // notice kinds to deliver; empty = all
	Client  *http.Client
}

// Payload is the JSON body posted for each notice.
type Payload struct {
	Kind  handover.Kind  `json:"kind"`
	Title string         `json:"title"`
	Text  string         `json:"text"`
	Event protocol.Event `json:"event"`
	At    time.Time      `json:"at"`
}

// Sender delivers notices to the configured URL. It implements
// handover.Notifier and connector.Connector.
type Sender struct {
	config Config
	client *http.Client
	logger *slog.Logger
}

var (
	_ handover.Notifier   = (*Sender)(nil)
	_ connector.Connector = (*Sender)(nil)
)

// NewSender creates a webhook sender.
func NewSender(cfg Config, logger *slog.Logger) (*Sender, error) {
	if !strings.HasPrefix(cfg.URL, "http://") && !strings.HasPrefix(cfg.URL, "https://") {
		return nil, fmt.Errorf("webhook: url must be http(s): %q", cfg.URL)
	}
	if logger == nil {
		logger = slog.Default()
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Sender{config: cfg, client: client, logger: logger}, nil
}

func (s *Sender) Name() string { return "webhook" }

// Start waits for ctx; the sender has nothing to listen on.
func (s *Sender) Start(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (s *Sender) Stop() error { return nil }

// Notify posts a structured notice.
func (s *Sender) Notify(ctx context.Context, n handover.Notice) error {
	if !s.wants(n.Kind) {
		return nil
	}
	return s.post(ctx, Payload{
		Kind:  n.Kind,
		Title: n.Title(),
		Text:  n.Markdown(),
		Event: n.Event,
		At:    n.At,
	})
}

// Send posts a plain text message.
func (s *Sender) Send(ctx context.Context, msg connector.OutboundMessage) error {
	return s.post(ctx, map[string]string{"chat_id": msg.ChatID, "text": msg.Content})
}

func (s *Sender) wants(k handover.Kind) bool {
	return len(s.config.Kinds) == 0 || slices.Contains(s.config.Kinds, k)
}

func (s *Sender) post(ctx context.Context, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("webhook: encode: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range s.config.Headers {
		req.Header.Set(k, v)
	}
	if s.config.Secret != "" {
		req.Header.Set(SignatureHeader, ComputeSignature(body, s.config.Secret))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: post: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook: %s returned %d", s.config.URL, resp.StatusCode)
	}
	return nil
}

// InboundConfig authenticates inbound command requests. Secret checks an
// HMAC signature; BearerToken checks the Authorization header. With
// neither set every request is rejected.
type InboundConfig struct {
	Secret      string
	BearerToken string
}

// CommandPayload is the JSON body of an inbound command.
type CommandPayload struct {
	SenderID string `json:"sender_id"`
	ChatID   string `json:"chat_id"`
	Content  string `json:"content"`
}

// Handler serves inbound commands and answers with the reply text.
type Handler struct {
	config  InboundConfig
	handler connector.InboundHandler
	logger  *slog.Logger
}

// NewHandler creates an inbound command handler.
func NewHandler(cfg InboundConfig, handler connector.InboundHandler, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{config: cfg, handler: handler, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1MB limit
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	if !h.authenticate(r, body) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var payload CommandPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(payload.Content) == "" {
		http.Error(w, "content is required", http.StatusBadRequest)
		return
	}

	in := connector.InboundMessage{
		Channel:  "webhook",
		SenderID: payload.SenderID,
		ChatID:   payload.ChatID,
		Content:  payload.Content,
	}
	if in.SenderID == "" {
		in.SenderID = "webhook"
	}
	if in.ChatID == "" {
		in.ChatID = "webhook"
	}

	reply, err := h.handler(r.Context(), in)
	if err != nil {
		h.logger.Error("webhook handler error", "sender", in.SenderID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok", "reply": reply})
}

func (h *Handler) authenticate(r *http.Request, body []byte) bool {
	if h.config.Secret != "" {
		return verifyHMAC(body, h.config.Secret, r.Header.Get(SignatureHeader))
	}
	if h.config.BearerToken != "" {
		return r.Header.Get("Authorization") == "Bearer "+h.config.BearerToken
	}
	return false
}

// verifyHMAC checks a "sha256=<hex>" signature.
func verifyHMAC(body []byte, secret, signature string) bool {
	sig, ok := strings.CutPrefix(signature, "sha256=")
	if !ok {
		return false
	}
	expected, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), expected)
}

// ComputeSignature returns the "sha256=<hex>" HMAC of body.
func ComputeSignature(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
