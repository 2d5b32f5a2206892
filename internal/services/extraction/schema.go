package extraction

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ternarybob/convoca/internal/models"
)

// MapFields converts a recovered JSON object into the typed extraction
// schema. Only whitelisted keys are mapped; raw_* keys are carried in the
// Raw debug map; everything else is dropped.
func MapFields(obj map[string]interface{}) models.ExtractionFields {
	fields := models.ExtractionFields{
		Title:           asString(obj["title"]),
		Organisation:    asString(obj["organisation"]),
		GeographicScope: asString(obj["geographic_scope"]),

		BeneficiaryName:     asString(obj["beneficiary_name"]),
		BeneficiaryTaxID:    asString(obj["beneficiary_tax_id"]),
		ProjectName:         asString(obj["project_name"]),
		BeneficiaryTypesRaw: asString(obj["beneficiary_types_raw"]),

		Purpose:            asString(obj["purpose"]),
		PurposeDescription: asString(obj["purpose_description"]),
		SectorsRaw:         asString(obj["sectors_raw"]),

		InstrumentRaw: asString(obj["instrument_raw"]),
		Procedure:     asString(obj["procedure"]),

		RegionMentioned: asString(obj["region_mentioned"]),

		Signatories: asSignatories(obj["signatories"]),

		CSVCode:         asString(obj["csv_code"]),
		VerificationURL: asString(obj["verification_url"]),

		MandatoryReports:        asStringSlice(obj["mandatory_reports"]),
		CompatibleWithOtherAids: asBool(obj["compatible_with_other_aids"]),

		AdminTypeRaw:  asString(obj["admin_type_raw"]),
		AdminLevelRaw: asString(obj["admin_level_raw"]),
		ScopeRaw:      asString(obj["scope_raw"]),

		EligibleExpenses:     asString(obj["eligible_expenses"]),
		AmountText:           asString(obj["amount_text"]),
		AmountMin:            asFloat(obj["amount_min"]),
		AmountMax:            asFloat(obj["amount_max"]),
		AidIntensity:         asString(obj["aid_intensity"]),
		CompatibilityText:    asString(obj["compatibility_text"]),
		TotalBudgetPDF:       asFloat(obj["total_budget_pdf"]),
		MaxPerBeneficiaryPDF: asFloat(obj["max_per_beneficiary_pdf"]),

		ExecutionPeriod:     asString(obj["execution_period"]),
		JustificationPeriod: asString(obj["justification_period"]),
		ExecutionStart:      asString(obj["execution_start"]),
		ExecutionEnd:        asString(obj["execution_end"]),
		ResolutionPeriod:    asString(obj["resolution_period"]),

		ApplicationMethod:  asString(obj["application_method"]),
		SubmissionPlace:    asString(obj["submission_place"]),
		ApplicationURL:     asString(obj["application_url"]),
		LegalBasis:         asString(obj["legal_basis"]),
		RelatedRegulations: asStringSlice(obj["related_regulations"]),

		PaymentMethod:  asString(obj["payment_method"]),
		AdvancePayment: asString(obj["advance_payment"]),
		Guarantees:     asString(obj["guarantees"]),
		RequiresSurety: asBool(obj["requires_surety"]),

		BeneficiaryObligations: asString(obj["beneficiary_obligations"]),
		PublicityRequirements:  asString(obj["publicity_requirements"]),
		Subcontracting:         asString(obj["subcontracting"]),
		PermittedModifications: asString(obj["permitted_modifications"]),

		TechnicalRequirements: asString(obj["technical_requirements"]),
		EvaluationCriteria:    asStringSlice(obj["evaluation_criteria"]),
		ApplicationDocuments:  asStringSlice(obj["application_documents"]),
	}

	for key, value := range obj {
		if !strings.HasPrefix(key, "raw_") {
			continue
		}
		if fields.Raw == nil {
			fields.Raw = make(map[string]string)
		}
		fields.Raw[key] = asString(value)
	}

	return fields
}

// Normalize fills the derived vocabulary fields from the raw ones.
// It is a pure function of the raw strings and runs after every LLM call.
func Normalize(fields *models.ExtractionFields) {
	fields.SectorsInferred = NormalizeSectors(fields.SectorsRaw)
	fields.BeneficiaryTypesNormalized = NormalizeBeneficiaryTypes(fields.BeneficiaryTypesRaw)
	fields.InstrumentNormalized = NormalizeInstrument(fields.InstrumentRaw)

	if normalized := NormalizeProcedure(fields.Procedure); normalized != "" {
		fields.Procedure = normalized
	}

	fields.AdminTypeNormalized = NormalizeAdminLevel(fields.AdminTypeRaw)
	fields.AdminLevelNormalized = NormalizeAdminLevel(fields.AdminLevelRaw)
	if fields.AdminLevelNormalized == "" {
		fields.AdminLevelNormalized = fields.AdminTypeNormalized
	}
	fields.ScopeNormalized = NormalizeAdminLevel(fields.ScopeRaw)

	fields.RegionCode = RegionToNUTS(fields.RegionMentioned)
}

func asString(v interface{}) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(value)
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(value)
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", value))
	}
}

func asFloat(v interface{}) float64 {
	switch value := v.(type) {
	case float64:
		return value
	case string:
		// Models sometimes quote amounts, or use European decimal commas
		cleaned := strings.ReplaceAll(strings.TrimSpace(value), ",", ".")
		if f, err := strconv.ParseFloat(cleaned, 64); err == nil {
			return f
		}
	}
	return 0
}

func asBool(v interface{}) bool {
	switch value := v.(type) {
	case bool:
		return value
	case string:
		folded := fold(strings.TrimSpace(value))
		return folded == "true" || folded == "si" || folded == "yes"
	}
	return false
}

func asStringSlice(v interface{}) []string {
	switch value := v.(type) {
	case []interface{}:
		var out []string
		for _, item := range value {
			if s := asString(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if value == "" {
			return nil
		}
		var out []string
		for _, part := range strings.Split(value, ",") {
			if s := strings.TrimSpace(part); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func asSignatories(v interface{}) []models.Signatory {
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}
	var out []models.Signatory
	for _, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		signatory := models.Signatory{
			Name: asString(obj["name"]),
			ID:   asString(obj["id"]),
			Role: asString(obj["role"]),
		}
		if signatory.Name != "" {
			out = append(out, signatory)
		}
	}
	return out
}
