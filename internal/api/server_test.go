package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/akvo/logbook/internal/extractor"
	"github.com/akvo/logbook/internal/twilio"
)

type stubInbound struct {
	last twilio.IncomingMessage
	err  error
}

func (s *stubInbound) HandleInbound(_ context.Context, in twilio.IncomingMessage) error {
	s.last = in
	return s.err
}

type stubExtractor struct {
	candidates []extractor.Candidate
	err        error
}

func (s *stubExtractor) Extract(_ context.Context, _ extractor.Input) ([]extractor.Candidate, error) {
	return s.candidates, s.err
}

func newTestServer(inbound *stubInbound, ext *stubExtractor) *Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(8080, nil, inbound, ext, logger)
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(&stubInbound{}, &stubExtractor{})

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %q", body["status"])
	}
}

func TestWebhookParsesTwilioForm(t *testing.T) {
	inbound := &stubInbound{}
	srv := newTestServer(inbound, &stubExtractor{})

	form := url.Values{}
	form.Set("MessageSid", "SM123")
	form.Set("From", "whatsapp:+628123")
	form.Set("To", "whatsapp:+14155238886")
	form.Set("Body", "watered the chili rows")
	form.Set("ProfileName", "Budi")

	req := httptest.NewRequest("POST", "/api/webhook/whatsapp", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if inbound.last.MessageSID != "SM123" {
		t.Errorf("sid = %q, want SM123", inbound.last.MessageSID)
	}
	if inbound.last.Body != "watered the chili rows" {
		t.Errorf("body = %q", inbound.last.Body)
	}
	if inbound.last.ProfileName != "Budi" {
		t.Errorf("profile name = %q", inbound.last.ProfileName)
	}
}

func TestWebhookRejectsMissingSid(t *testing.T) {
	srv := newTestServer(&stubInbound{}, &stubExtractor{})

	form := url.Values{}
	form.Set("Body", "hello")

	req := httptest.NewRequest("POST", "/api/webhook/whatsapp", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestWebhookProcessingFailureReturns500(t *testing.T) {
	inbound := &stubInbound{err: errors.New("db down")}
	srv := newTestServer(inbound, &stubExtractor{})

	form := url.Values{}
	form.Set("MessageSid", "SM456")
	form.Set("From", "whatsapp:+628123")
	form.Set("Body", "watered")

	req := httptest.NewRequest("POST", "/api/webhook/whatsapp", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 so the provider retries, got %d", w.Code)
	}
}

func TestExtractEndpoint(t *testing.T) {
	ext := &stubExtractor{candidates: []extractor.Candidate{{
		RecordType: "irrigation",
		Data:       map[string]any{"crop": "chili"},
	}}}
	srv := newTestServer(&stubInbound{}, ext)

	body := `{"transcript":"watered the chili"}`
	req := httptest.NewRequest("POST", "/api/extract", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp extractResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Count != 1 || len(resp.Records) != 1 {
		t.Fatalf("count = %d, records = %d, want 1", resp.Count, len(resp.Records))
	}
	if resp.Records[0].RecordType != "irrigation" {
		t.Errorf("record type = %q", resp.Records[0].RecordType)
	}
}

func TestExtractRequiresTranscript(t *testing.T) {
	srv := newTestServer(&stubInbound{}, &stubExtractor{})

	req := httptest.NewRequest("POST", "/api/extract", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestExtractUpstreamFailureReturns502(t *testing.T) {
	srv := newTestServer(&stubInbound{}, &stubExtractor{err: errors.New("upstream unavailable")})

	req := httptest.NewRequest("POST", "/api/extract", strings.NewReader(`{"transcript":"hi"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", w.Code)
	}
}

func TestNotFoundEndpoint(t *testing.T) {
	srv := newTestServer(&stubInbound{}, &stubExtractor{})

	req := httptest.NewRequest("GET", "/nonexistent", nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}
