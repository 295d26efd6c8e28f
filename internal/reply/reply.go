// Package reply builds the payload for the outbound message generation
// step and holds the canned fallbacks used when no generation happens.
package reply

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/akvo/logbook/internal/llm"
	"github.com/akvo/logbook/internal/schema"
)

// Canned replies for the degraded paths. Always English: language
// detection happens during extraction, which these paths never reach.
const (
	ApologyNoRecords     = "Sorry, I couldn't extract any records from your message. Please try again with more details."
	ApologyTranscription = "Sorry, I couldn't process your voice message. Please try again."
	ApologyDownload      = "Sorry, I couldn't download your voice message. Please try again."
	FallbackThanks       = "Thank you for your message. We'll process it shortly."
)

// maxFieldsPerAsk caps how many missing fields one follow-up question
// may request, so the farmer is not overwhelmed. The rest are asked in
// later turns while the record stays open.
const maxFieldsPerAsk = 3

// Payload is the contract with the generation step: everything it may
// use, nothing else.
type Payload struct {
	RecordType    schema.RecordType
	Data          map[string]any // merged data, occurred_at folded in
	MissingFields []string
	FarmerName    string
	Language      string
	Confirmed     bool
}

type Synthesizer struct {
	llm    *llm.Client
	logger *slog.Logger
}

func NewSynthesizer(client *llm.Client, logger *slog.Logger) *Synthesizer {
	return &Synthesizer{llm: client, logger: logger}
}

const confirmationSystemPrompt = `You are a friendly agricultural assistant helping farmers keep records via WhatsApp.
Generate a confirmation message in the specified language that:
1. Thanks the farmer
2. Summarizes the recorded data in a clear, readable list format
3. Asks if they want to correct anything (reply 'OK' to confirm or send corrections)

IMPORTANT formatting rules:
- Do NOT use asterisks (*) or any markdown formatting
- Use plain text only
- Use line breaks and dashes (-) for lists
- Keep it simple and readable

Be warm, concise, and use simple language that farmers can easily understand.
Output ONLY the message text.`

const followupSystemPrompt = `You are a friendly agricultural assistant helping farmers keep records via WhatsApp.
Generate a natural follow-up question in the specified language that:
1. Briefly acknowledges what was already recorded
2. Asks for the missing information in a conversational way
3. Be specific about what information is needed

IMPORTANT formatting rules:
- Do NOT use asterisks (*) or any markdown formatting
- Use plain text only
- Keep it simple and readable

Be warm, concise, and use simple language that farmers can easily understand.
Only ask for the fields listed; more will be asked later.
Output ONLY the message text.`

// Generate produces the farmer-facing reply. It never fails: any
// generation problem degrades to the fixed thank-you.
func (s *Synthesizer) Generate(ctx context.Context, p Payload) string {
	system, user := buildPrompts(p)

	text, err := s.llm.Complete(ctx, system, user, llm.CompleteOptions{
		Temperature: 0.7,
		MaxTokens:   500,
	})
	if err != nil {
		s.logger.Error("reply generation failed", "record_type", p.RecordType, "error", err)
		return FallbackThanks
	}

	reply := strings.TrimSpace(text)
	if reply == "" {
		return FallbackThanks
	}
	return reply
}

func buildPrompts(p Payload) (system, user string) {
	dataJSON, _ := json.Marshal(p.Data)
	recordLabel := strings.ReplaceAll(string(p.RecordType), "_", " ")

	if p.Confirmed {
		user = fmt.Sprintf(`Language: %s
Farmer name: %s
Record type: %s
Recorded data: %s

Generate a confirmation message without any asterisks or markdown.`,
			p.Language, p.FarmerName, recordLabel, dataJSON)
		return confirmationSystemPrompt, user
	}

	ask := p.MissingFields
	if len(ask) > maxFieldsPerAsk {
		ask = ask[:maxFieldsPerAsk]
	}
	user = fmt.Sprintf(`Language: %s
Farmer name: %s
Record type: %s
Already recorded: %s
Missing fields needed: %s

Generate a follow-up question without any asterisks or markdown.`,
		p.Language, p.FarmerName, recordLabel, dataJSON, strings.Join(ask, ", "))
	return followupSystemPrompt, user
}
