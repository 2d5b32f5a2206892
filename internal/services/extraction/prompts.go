package extraction

import (
	"fmt"
	"strings"
)

// minSummaryChars rejects degenerate summaries ("Resumen:" and nothing else)
const minSummaryChars = 50

const summarySystemPrompt = `Eres un analista experto en subvenciones públicas españolas. ` +
	`Respondes siempre en español, de forma precisa y sin inventar datos que no aparezcan en el texto.`

const summaryPromptTemplate = `Redacta un resumen de la siguiente convocatoria de subvención (máximo 500 palabras).

El resumen debe cubrir, cuando el texto lo permita:
- Objeto y finalidad de la ayuda
- Beneficiarios y requisitos
- Cuantía e intensidad de la ayuda
- Plazos de solicitud y justificación
- Procedimiento de concesión

Convocatoria %s:

%s`

const fieldsSystemPrompt = `Eres un sistema de extracción de datos estructurados de convocatorias de subvenciones españolas. ` +
	`Devuelves exclusivamente un objeto JSON válido, sin explicaciones ni marcado adicional. ` +
	`Usa null o cadena vacía para los campos que el texto no mencione; no inventes valores.`

// fieldKeys is the fixed extraction schema, in prompt order. Keys outside
// this list returned by the model are kept only under the raw_* debug map.
var fieldKeys = []string{
	"title", "organisation", "geographic_scope",
	"beneficiary_name", "beneficiary_tax_id", "project_name", "beneficiary_types_raw",
	"purpose", "purpose_description", "sectors_raw",
	"instrument_raw", "procedure",
	"region_mentioned",
	"signatories",
	"csv_code", "verification_url",
	"mandatory_reports", "compatible_with_other_aids",
	"admin_type_raw", "admin_level_raw", "scope_raw",
	"eligible_expenses", "amount_text", "amount_min", "amount_max",
	"aid_intensity", "compatibility_text", "total_budget_pdf", "max_per_beneficiary_pdf",
	"execution_period", "justification_period", "execution_start", "execution_end", "resolution_period",
	"application_method", "submission_place", "application_url", "legal_basis", "related_regulations",
	"payment_method", "advance_payment", "guarantees", "requires_surety",
	"beneficiary_obligations", "publicity_requirements", "subcontracting", "permitted_modifications",
	"technical_requirements", "evaluation_criteria", "application_documents",
}

const fieldsPromptTemplate = `Extrae los siguientes campos del texto de la convocatoria %s y devuélvelos como un único objeto JSON.

Campos (usa exactamente estas claves):
%s

Notas:
- "signatories" es una lista de objetos {"name","id","role"}.
- "mandatory_reports", "related_regulations", "evaluation_criteria" y "application_documents" son listas de cadenas.
- "compatible_with_other_aids" y "requires_surety" son booleanos.
- "amount_min", "amount_max", "total_budget_pdf" y "max_per_beneficiary_pdf" son números en euros, sin separadores de miles.
- Las fechas van en formato ISO (AAAA-MM-DD) cuando el texto las concrete.

Texto:

%s`

// BuildSummaryPrompt builds the summary-call prompt pair
func BuildSummaryPrompt(externalID, text string) (system, user string) {
	return summarySystemPrompt, fmt.Sprintf(summaryPromptTemplate, externalID, text)
}

// BuildFieldsPrompt builds the fields-call prompt pair
func BuildFieldsPrompt(externalID, text string) (system, user string) {
	return fieldsSystemPrompt, fmt.Sprintf(fieldsPromptTemplate, externalID, strings.Join(fieldKeys, ", "), text)
}
