// Package merge folds a new extraction into an in-progress record. The
// rule protecting earlier turns: a value the farmer already gave is
// never cleared by an absent or empty value in a later partial answer.
package merge

// transcriptSeparator joins per-turn transcripts into one audit trail.
const transcriptSeparator = "\n---\n"

// Data combines newly extracted data into the existing mapping and
// returns a fresh map; neither input is mutated. An incoming value
// overwrites only when it is non-nil and not an empty string. Keys not
// seen before are added.
func Data(existing, incoming map[string]any) map[string]any {
	merged := make(map[string]any, len(existing)+len(incoming))
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range incoming {
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok && s == "" {
			continue
		}
		merged[k] = v
	}
	return merged
}

// Transcript appends a new turn's text to the cumulative transcript,
// separated so the full history stays readable turn by turn.
func Transcript(existing, addition string) string {
	if existing == "" {
		return addition
	}
	return existing + transcriptSeparator + addition
}

// Confidence keeps the prior confidence unless the new extraction
// reported one.
func Confidence(existing, incoming float64) float64 {
	if incoming != 0 {
		return incoming
	}
	return existing
}

// Notes keeps the prior quality notes unless the new extraction
// reported any.
func Notes(existing, incoming string) string {
	if incoming != "" {
		return incoming
	}
	return existing
}
