// Package schema defines the closed set of agricultural record types and
// the required-field table driving the follow-up workflow.
package schema

// RecordType classifies one logbook entry.
type RecordType string

const (
	SeedPurchaseAndSowing   RecordType = "seed_purchase_and_sowing"
	HazardEvaluation        RecordType = "hazard_evaluation"
	ChemicalSpray           RecordType = "chemical_spray"
	ChemicalPurchase        RecordType = "chemical_purchase"
	ChemicalDisposal        RecordType = "chemical_disposal"
	PostHarvestChemicalUsage RecordType = "post_harvest_chemical_usage"
	FertilizerApplication   RecordType = "fertilizer_application"
	Irrigation              RecordType = "irrigation"
	SprayingToolSanitation  RecordType = "spraying_tool_sanitation"
	HarvestAndPackaging     RecordType = "harvest_and_packaging"
	TrainingUpdate          RecordType = "training_update"
	CorrectionReport        RecordType = "correction_report"
	Unknown                 RecordType = "unknown"
)

// MessageDirection marks a message as farmer-to-system or system-to-farmer.
type MessageDirection string

const (
	DirectionInbound  MessageDirection = "inbound"
	DirectionOutbound MessageDirection = "outbound"
)

// Input modes for a message.
const (
	InputModeText  = "text"
	InputModeVoice = "voice"
)

// Known source languages. Anything else is stored as LanguageUnknown.
const (
	LanguageIndonesian = "id"
	LanguageEnglish    = "en"
	LanguageBurmese    = "my"
	LanguageUnknown    = "unknown"
)

// ParseRecordType maps a raw string to a RecordType, falling back to
// Unknown for anything outside the closed set. Extraction output is
// untrusted, so an unrecognised type must never fail a batch.
func ParseRecordType(s string) RecordType {
	t := RecordType(s)
	if _, ok := requiredFields[t]; ok {
		return t
	}
	return Unknown
}

// ParseLanguage normalises a language code to one of the known values.
func ParseLanguage(s string) string {
	switch s {
	case LanguageIndonesian, LanguageEnglish, LanguageBurmese:
		return s
	}
	return LanguageUnknown
}
