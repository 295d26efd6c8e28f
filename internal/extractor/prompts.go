package extractor

import (
	"fmt"
	"strings"

	"github.com/akvo/logbook/internal/schema"
)

const systemPromptHeader = `You are an agricultural record-keeping assistant. Farmers send you WhatsApp messages (typed or transcribed voice notes) describing farm activities, and you extract structured logbook records.

Classify each activity as one of the record types below and fill in its data fields. Use null for anything the farmer did not mention. Never invent values.

Record types and their data fields:
`

const systemPromptFooter = `
If the activity matches none of the types, use record_type "unknown" with whatever data you can capture.

Dates: resolve relative expressions ("yesterday", "last Tuesday") against current_date and output ISO format (YYYY-MM-DD). occurred_at is the date the activity happened, not the date of the message.

Language: detect the language of the transcript and report it in source.language as one of "id", "en", "my", or "unknown".

When an existing record is provided, the farmer is answering a follow-up question. Merge their answer into the existing data: fill missing fields, keep existing values unless the farmer explicitly corrects one, and keep the existing record_type.

Respond with a single JSON object:
{
  "records": [
    {
      "record_type": "...",
      "occurred_at": "YYYY-MM-DD" or null,
      "source": {"channel": "whatsapp", "input_mode": "...", "language": "..."},
      "data": { ...fields for the type... },
      "quality": {
        "confidence": 0.0-1.0,
        "missing_fields": [fields the farmer did not provide],
        "needs_followup": true if any field is missing,
        "notes": "anything ambiguous, or null"
      }
    }
  ]
}

Output one record per distinct activity. If the message contains no farm activity at all, output {"records": []}.`

// systemPrompt is assembled from the same field table that drives
// validation, so prompt and evaluator can never drift apart.
var systemPrompt = buildSystemPrompt()

func buildSystemPrompt() string {
	var b strings.Builder
	b.WriteString(systemPromptHeader)
	for _, rt := range schema.RecordTypes() {
		fmt.Fprintf(&b, "- %s: %s\n", rt, strings.Join(schema.RequiredFields(rt), ", "))
	}
	b.WriteString(systemPromptFooter)
	return b.String()
}
