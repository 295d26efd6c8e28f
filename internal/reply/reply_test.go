package reply

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/akvo/logbook/internal/llm"
	"github.com/akvo/logbook/internal/schema"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func synthWithServer(t *testing.T, content string, prompts *[2]string) (*Synthesizer, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		body, _ := io.ReadAll(r.Body)
		if json.Unmarshal(body, &req) == nil && prompts != nil {
			for _, m := range req.Messages {
				if m.Role == "system" {
					prompts[0] = m.Content
				} else {
					prompts[1] = m.Content
				}
			}
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": content}},
			},
		})
	}))
	client := llm.New(llm.Config{APIKey: "k", BaseURL: server.URL, ExtractionModel: "m"}, discardLogger())
	return NewSynthesizer(client, discardLogger()), server
}

func TestGenerate_Followup(t *testing.T) {
	var prompts [2]string
	s, server := synthWithServer(t, "Terima kasih Pak Budi! Berapa banyak air yang digunakan?", &prompts)
	defer server.Close()

	got := s.Generate(context.Background(), Payload{
		RecordType:    schema.Irrigation,
		Data:          map[string]any{"crop": "chili", "occurred_at": "2026-01-19"},
		MissingFields: []string{"water_amount", "rainfall"},
		FarmerName:    "Pak Budi",
		Language:      "id",
	})
	if !strings.Contains(got, "Berapa banyak air") {
		t.Errorf("unexpected reply %q", got)
	}
	if !strings.Contains(prompts[0], "follow-up question") {
		t.Error("follow-up payload must use the follow-up system prompt")
	}
	if !strings.Contains(prompts[1], "water_amount, rainfall") {
		t.Errorf("user prompt must list missing fields, got: %s", prompts[1])
	}
	if !strings.Contains(prompts[1], "Language: id") {
		t.Error("user prompt must carry the language")
	}
}

func TestGenerate_FollowupCapsFieldsAsked(t *testing.T) {
	var prompts [2]string
	s, server := synthWithServer(t, "ok", &prompts)
	defer server.Close()

	s.Generate(context.Background(), Payload{
		RecordType:    schema.ChemicalSpray,
		Data:          map[string]any{},
		MissingFields: []string{"dosage", "application_rate", "weather_condition", "sprayed_by", "growth_stage"},
		FarmerName:    "Ma Khin",
		Language:      "my",
	})
	if strings.Contains(prompts[1], "sprayed_by") || strings.Contains(prompts[1], "growth_stage") {
		t.Errorf("at most %d fields may be asked per message, got: %s", maxFieldsPerAsk, prompts[1])
	}
	for _, f := range []string{"dosage", "application_rate", "weather_condition"} {
		if !strings.Contains(prompts[1], f) {
			t.Errorf("expected %s in prompt", f)
		}
	}
}

func TestGenerate_Confirmation(t *testing.T) {
	var prompts [2]string
	s, server := synthWithServer(t, "All recorded! Reply OK to confirm.", &prompts)
	defer server.Close()

	got := s.Generate(context.Background(), Payload{
		RecordType: schema.Irrigation,
		Data:       map[string]any{"crop": "chili", "water_amount": "200L", "occurred_at": "2026-01-19"},
		FarmerName: "Pak Budi",
		Language:   "en",
		Confirmed:  true,
	})
	if got != "All recorded! Reply OK to confirm." {
		t.Errorf("unexpected reply %q", got)
	}
	if !strings.Contains(prompts[0], "confirmation message") {
		t.Error("confirmed payload must use the confirmation system prompt")
	}
	if !strings.Contains(prompts[1], "occurred_at") {
		t.Error("confirmation prompt must include occurred_at folded into the data")
	}
	if strings.Contains(prompts[1], "Missing fields") {
		t.Error("confirmation prompt must not ask for missing fields")
	}
}

func TestGenerate_DegradesOnFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()
	client := llm.New(llm.Config{APIKey: "k", BaseURL: server.URL, ExtractionModel: "m"}, discardLogger())
	s := NewSynthesizer(client, discardLogger())

	got := s.Generate(context.Background(), Payload{RecordType: schema.Irrigation, Language: "en"})
	if got != FallbackThanks {
		t.Errorf("expected canned fallback, got %q", got)
	}
}

func TestGenerate_DegradesOnEmptyReply(t *testing.T) {
	s, server := synthWithServer(t, "   ", nil)
	defer server.Close()

	got := s.Generate(context.Background(), Payload{RecordType: schema.Irrigation, Language: "en"})
	if got != FallbackThanks {
		t.Errorf("expected canned fallback for blank reply, got %q", got)
	}
}
