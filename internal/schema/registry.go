package schema

// requiredFields is the single source of truth for which data keys a
// record type needs before it can be confirmed. Adding a record type is
// a table edit, not a code change. Unknown has no required fields: an
// unclassified activity never triggers a follow-up on its own.
var requiredFields = map[RecordType][]string{
	ChemicalSpray: {
		"crop_variety",
		"plot_or_row",
		"growth_stage",
		"chemical_name",
		"dosage",
		"application_rate",
		"spraying_apparatus_and_method",
		"harvesting_period_days",
		"weather_condition",
		"sprayed_by",
	},
	FertilizerApplication: {
		"crop_variety",
		"plot_or_row",
		"fertilizer_name",
		"input_dealer",
		"rate",
		"farmer_perspective",
		"applied_by",
	},
	Irrigation: {
		"crop",
		"variety",
		"plot_or_row",
		"water_amount",
		"rainfall",
		"farmer_perspective",
	},
	SeedPurchaseAndSowing: {
		"crop_name",
		"variety",
		"shop_name_and_address",
		"amount_or_number",
		"place_of_sowing",
	},
	HarvestAndPackaging: {
		"crop_variety",
		"planting_date",
		"plot_number",
		"harvesting_date",
		"packaging_date",
		"trade_mark",
		"number_of_packs",
		"destination",
		"product_registration_number",
		"farmer_perspective",
	},
	ChemicalPurchase: {
		"date_of_buying",
		"chemical_name",
		"quantity",
		"place_of_buying",
		"product_registration_number",
		"production_date",
		"expiry_date",
	},
	ChemicalDisposal: {
		"chemical_name",
		"disposal_date",
		"disposal_method",
	},
	PostHarvestChemicalUsage: {
		"chemical_name",
		"container_size",
		"solution_rate",
		"application_method",
		"chemical_quantity",
		"solution_amount_added",
		"application_time",
		"chemical_type",
		"farmer_perspective",
		"signature",
	},
	HazardEvaluation: {
		"crop_name",
		"cause_of_hazard",
		"evaluation",
		"remedies",
		"signature",
	},
	SprayingToolSanitation: {
		"cleaning_place",
		"frequency",
		"duty_and_responsibility",
		"cleaning_method",
	},
	TrainingUpdate: {
		"name",
		"chemical_usage",
		"fertilizer_usage",
		"irrigation",
		"harvesting",
		"grading_packaging",
		"sanitation",
		"personal_hygiene",
		"repair_and_maintenance",
		"personal_evaluation",
	},
	CorrectionReport: {
		"date_reported",
		"problem",
		"source_and_reason",
		"action_taken",
		"signature",
		"date_resolved",
	},
	Unknown: {},
}

// RequiredFields returns the ordered required data keys for a record
// type. The returned slice is a copy; callers may mutate it freely.
func RequiredFields(t RecordType) []string {
	fields := requiredFields[t]
	out := make([]string, len(fields))
	copy(out, fields)
	return out
}

// RecordTypes lists every known type except Unknown, in a stable order.
// Used to build the extraction prompt from the same table that drives
// validation.
func RecordTypes() []RecordType {
	return []RecordType{
		SeedPurchaseAndSowing,
		HazardEvaluation,
		ChemicalSpray,
		ChemicalPurchase,
		ChemicalDisposal,
		PostHarvestChemicalUsage,
		FertilizerApplication,
		Irrigation,
		SprayingToolSanitation,
		HarvestAndPackaging,
		TrainingUpdate,
		CorrectionReport,
	}
}
