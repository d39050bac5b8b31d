package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/h1v3-io/seatwatch/internal/connector"
	"github.com/h1v3-io/seatwatch/internal/handover"
	"github.com/h1v3-io/seatwatch/pkg/protocol"
)

type receiver struct {
	mu      sync.Mutex
	bodies  [][]byte
	headers []http.Header
	status  int
}

func (rc *receiver) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	rc.mu.Lock()
	rc.bodies = append(rc.bodies, body)
	rc.headers = append(rc.headers, r.Header.Clone())
	status := rc.status
	rc.mu.Unlock()
	if status != 0 {
		w.WriteHeader(status)
	}
}

func newSender(t *testing.T, cfg Config) (*Sender, *receiver) {
	t.Helper()
	rc := &receiver{}
	srv := httptest.NewServer(rc)
	t.Cleanup(srv.Close)
	cfg.URL = srv.URL
	s, err := NewSender(cfg, nil)
	if err != nil {
		t.Fatalf("NewSender: %v", err)
	}
	return s, rc
}

func handoverNotice() handover.Notice {
	return handover.Notice{
		Kind:  handover.KindHandover,
		Event: protocol.Event{ID: "evt_1", Title: "Final", URL: "https://in.bookmyshow.com/e/1", Source: protocol.SourceBookMyShow},
		At:    time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestSender_NotifySigned(t *testing.T) {
	s, rc := newSender(t, Config{Secret: "s3cret", Headers: map[string]string{"X-Team": "ops"}})

	if err := s.Notify(context.Background(), handoverNotice()); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	rc.mu.Lock()
	defer rc.mu.Unlock()
	if len(rc.bodies) != 1 {
		t.Fatalf("posts = %d", len(rc.bodies))
	}
	body, hdr := rc.bodies[0], rc.headers[0]
	if !verifyHMAC(body, "s3cret", hdr.Get(SignatureHeader)) {
		t.Errorf("signature %q does not verify", hdr.Get(SignatureHeader))
	}
	if hdr.Get("X-Team") != "ops" {
		t.Errorf("X-Team = %q", hdr.Get("X-Team"))
	}
	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Kind != handover.KindHandover || p.Title != "ACTION REQUIRED" || p.Event.ID != "evt_1" {
		t.Errorf("payload = %+v", p)
	}
	if !strings.Contains(p.Text, "https://in.bookmyshow.com/e/1") {
		t.Errorf("text = %q", p.Text)
	}
}

func TestSender_KindFilter(t *testing.T) {
	s, rc := newSender(t, Config{Kinds: []handover.Kind{handover.KindHandover}})

	n := handoverNotice()
	n.Kind = handover.KindDiscovered
	if err := s.Notify(context.Background(), n); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if len(rc.bodies) != 0 {
		t.Errorf("filtered notice was posted")
	}
}

func TestSender_ErrorStatus(t *testing.T) {
	s, rc := newSender(t, Config{})
	rc.status = http.StatusBadGateway

	if err := s.Notify(context.Background(), handoverNotice()); err == nil {
		t.Error("expected error for 502")
	}
}

func TestSender_SendText(t *testing.T) {
	s, rc := newSender(t, Config{})
	if err := s.Send(context.Background(), connector.OutboundMessage{ChatID: "ops", Content: "hello"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if got := string(rc.bodies[0]); !strings.Contains(got, `"text":"hello"`) {
		t.Errorf("body = %s", got)
	}
	if rc.headers[0].Get(SignatureHeader) != "" {
		t.Error("unsigned sender set a signature")
	}
}

func TestNewSender_BadURL(t *testing.T) {
	if _, err := NewSender(Config{URL: "ftp://x"}, nil); err == nil {
		t.Error("expected error for non-http url")
	}
}

type capture struct {
	mu   sync.Mutex
	msgs []connector.InboundMessage
}

func (c *capture) handle(_ context.Context, msg connector.InboundMessage) (string, error) {
	c.mu.Lock()
	c.msgs = append(c.msgs, msg)
	c.mu.Unlock()
	return "ok: " + msg.Content, nil
}

func post(h http.Handler, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/webhook", strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHandler_HMAC(t *testing.T) {
	c := &capture{}
	h := NewHandler(InboundConfig{Secret: "key"}, c.handle, nil)
	body := `{"sender_id":"ci","content":"/status"}`

	w := post(h, body, map[string]string{SignatureHeader: ComputeSignature([]byte(body), "key")})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp map[string]string
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["reply"] != "ok: /status" {
		t.Errorf("reply = %q", resp["reply"])
	}
	if c.msgs[0].SenderID != "ci" || c.msgs[0].ChatID != "webhook" || c.msgs[0].Channel != "webhook" {
		t.Errorf("inbound = %+v", c.msgs[0])
	}

	if w := post(h, body, map[string]string{SignatureHeader: "sha256=00"}); w.Code != http.StatusUnauthorized {
		t.Errorf("bad signature status = %d", w.Code)
	}
	if w := post(h, body, nil); w.Code != http.StatusUnauthorized {
		t.Errorf("missing signature status = %d", w.Code)
	}
}

func TestHandler_Bearer(t *testing.T) {
	c := &capture{}
	h := NewHandler(InboundConfig{BearerToken: "tok"}, c.handle, nil)

	if w := post(h, `{"content":"/help"}`, map[string]string{"Authorization": "Bearer tok"}); w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
	if w := post(h, `{"content":"/help"}`, map[string]string{"Authorization": "Bearer nope"}); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token status = %d", w.Code)
	}
}

func TestHandler_NoAuthConfigured(t *testing.T) {
	h := NewHandler(InboundConfig{}, (&capture{}).handle, nil)
	if w := post(h, `{"content":"/stop"}`, nil); w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestHandler_BadRequests(t *testing.T) {
	h := NewHandler(InboundConfig{BearerToken: "tok"}, (&capture{}).handle, nil)
	auth := map[string]string{"Authorization": "Bearer tok"}

	if w := post(h, `not json`, auth); w.Code != http.StatusBadRequest {
		t.Errorf("invalid json status = %d", w.Code)
	}
	if w := post(h, `{"content":"  "}`, auth); w.Code != http.StatusBadRequest {
		t.Errorf("empty content status = %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/webhook", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d", w.Code)
	}
}

func TestComputeSignature(t *testing.T) {
	sig := ComputeSignature([]byte("test body"), "secret")
	if !strings.HasPrefix(sig, "sha256=") {
		t.Errorf("signature should start with sha256=: %q", sig)
	}
	if !verifyHMAC([]byte("test body"), "secret", sig) {
		t.Error("signature should verify")
	}
	if verifyHMAC([]byte("other body"), "secret", sig) {
		t.Error("signature verified for a different body")
	}
}
