package models

import (
	"time"
)

// Signatory is one signing party extracted from the grant document
type Signatory struct {
	Name string `json:"name"`
	ID   string `json:"id,omitempty"`
	Role string `json:"role,omitempty"`
}

// ExtractionFields is the fixed LLM extraction schema. Keys mirror the JSON
// object the fields prompt asks the model to return; anything outside this
// whitelist is dropped during mapping. Raw carries the raw_* debug copies of
// source text fragments.
type ExtractionFields struct {
	// Basic
	Title           string `json:"title,omitempty"`
	Organisation    string `json:"organisation,omitempty"`
	GeographicScope string `json:"geographic_scope,omitempty"`

	// Beneficiary
	BeneficiaryName            string   `json:"beneficiary_name,omitempty"`
	BeneficiaryTaxID           string   `json:"beneficiary_tax_id,omitempty"`
	ProjectName                string   `json:"project_name,omitempty"`
	BeneficiaryTypesRaw        string   `json:"beneficiary_types_raw,omitempty"`
	BeneficiaryTypesNormalized []string `json:"beneficiary_types_normalized,omitempty"`

	// Purpose
	Purpose            string   `json:"purpose,omitempty"`
	PurposeDescription string   `json:"purpose_description,omitempty"`
	SectorsRaw         string   `json:"sectors_raw,omitempty"`
	SectorsInferred    []string `json:"sectors_inferred,omitempty"`

	// Instrument / procedure
	InstrumentRaw        string `json:"instrument_raw,omitempty"`
	InstrumentNormalized string `json:"instrument_normalized,omitempty"`
	Procedure            string `json:"procedure,omitempty"`

	// Region
	RegionMentioned string `json:"region_mentioned,omitempty"`
	RegionCode      string `json:"region_code,omitempty"` // NUTS code

	// Signatories
	Signatories []Signatory `json:"signatories,omitempty"`

	// Verification
	CSVCode         string `json:"csv_code,omitempty"`
	VerificationURL string `json:"verification_url,omitempty"`

	// Compliance
	MandatoryReports        []string `json:"mandatory_reports,omitempty"`
	CompatibleWithOtherAids bool     `json:"compatible_with_other_aids,omitempty"`

	// Administrative inference
	AdminTypeRaw         string `json:"admin_type_raw,omitempty"`
	AdminTypeNormalized  string `json:"admin_type_normalized,omitempty"`
	AdminLevelRaw        string `json:"admin_level_raw,omitempty"`
	AdminLevelNormalized string `json:"admin_level_normalized,omitempty"`
	ScopeRaw             string `json:"scope_raw,omitempty"`
	ScopeNormalized      string `json:"scope_normalized,omitempty"`

	// Financial
	EligibleExpenses     string  `json:"eligible_expenses,omitempty"`
	AmountText           string  `json:"amount_text,omitempty"`
	AmountMin            float64 `json:"amount_min,omitempty"`
	AmountMax            float64 `json:"amount_max,omitempty"`
	AidIntensity         string  `json:"aid_intensity,omitempty"`
	CompatibilityText    string  `json:"compatibility_text,omitempty"`
	TotalBudgetPDF       float64 `json:"total_budget_pdf,omitempty"`
	MaxPerBeneficiaryPDF float64 `json:"max_per_beneficiary_pdf,omitempty"`

	// Temporal
	ExecutionPeriod     string `json:"execution_period,omitempty"`
	JustificationPeriod string `json:"justification_period,omitempty"`
	ExecutionStart      string `json:"execution_start,omitempty"`
	ExecutionEnd        string `json:"execution_end,omitempty"`
	ResolutionPeriod    string `json:"resolution_period,omitempty"`

	// Procedural
	ApplicationMethod  string   `json:"application_method,omitempty"`
	SubmissionPlace    string   `json:"submission_place,omitempty"`
	ApplicationURL     string   `json:"application_url,omitempty"`
	LegalBasis         string   `json:"legal_basis,omitempty"`
	RelatedRegulations []string `json:"related_regulations,omitempty"`

	// Payment / guarantees
	PaymentMethod  string `json:"payment_method,omitempty"`
	AdvancePayment string `json:"advance_payment,omitempty"`
	Guarantees     string `json:"guarantees,omitempty"`
	RequiresSurety bool   `json:"requires_surety,omitempty"`

	// Obligations
	BeneficiaryObligations string `json:"beneficiary_obligations,omitempty"`
	PublicityRequirements  string `json:"publicity_requirements,omitempty"`
	Subcontracting         string `json:"subcontracting,omitempty"`
	PermittedModifications string `json:"permitted_modifications,omitempty"`

	// Requirements
	TechnicalRequirements string   `json:"technical_requirements,omitempty"`
	EvaluationCriteria    []string `json:"evaluation_criteria,omitempty"`
	ApplicationDocuments  []string `json:"application_documents,omitempty"`

	// Raw source fragments (raw_* keys), kept for debugging field provenance
	Raw map[string]string `json:"raw,omitempty"`
}

// Extraction is the per-grant LLM output and text artifact.
// At most one Extraction exists per Grant (1:1:1 with Embedding).
type Extraction struct {
	ID         string `json:"id" badgerhold:"key"`
	GrantID    string `json:"grant_id" badgerhold:"unique"`
	StagingID  string `json:"staging_id" badgerhold:"unique"`
	ExternalID string `json:"external_id" badgerhold:"index"` // denormalized for joins

	// Text artifact
	ExtractedText    string `json:"extracted_text,omitempty"`
	ExtractedSummary string `json:"extracted_summary,omitempty"`
	MarkdownPath     string `json:"markdown_path,omitempty"`
	PageCount        int    `json:"page_count"`
	WordCount        int    `json:"word_count"`
	IsScanned        bool   `json:"is_scanned"`

	Fields ExtractionFields `json:"fields"`

	// ExtractionModel names the LLM that produced Fields and acts as a
	// version tag: an empty tag means the LLM stage still has work to do.
	ExtractionModel      string  `json:"extraction_model,omitempty"`
	ExtractionConfidence float64 `json:"extraction_confidence"`
	ExtractionError      string  `json:"extraction_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
