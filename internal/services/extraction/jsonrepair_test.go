package extraction

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecoverJSON(t *testing.T) {
	tests := []struct {
		name     string
		response string
		wantStep RecoveryStep
		wantKey  string
		wantVal  interface{}
	}{
		{
			name:     "Clean JSON",
			response: `{"title": "Subvención cultural"}`,
			wantStep: RecoveryDirect,
			wantKey:  "title",
			wantVal:  "Subvención cultural",
		},
		{
			name:     "Fenced JSON",
			response: "Aquí está el resultado:\n```json\n{\"title\": \"Ayudas 2024\"}\n```\n",
			wantStep: RecoveryDirect,
			wantKey:  "title",
			wantVal:  "Ayudas 2024",
		},
		{
			name:     "JSON surrounded by prose",
			response: `El objeto extraído es {"purpose": "fomento del empleo"} según el documento.`,
			wantStep: RecoverySubstring,
			wantKey:  "purpose",
			wantVal:  "fomento del empleo",
		},
		{
			name:     "Trailing comma repaired",
			response: `{"sectors_raw": "cultura y turismo",}`,
			wantStep: RecoveryRepaired,
			wantKey:  "sectors_raw",
			wantVal:  "cultura y turismo",
		},
		{
			name:     "Trailing comma in array",
			response: `{"evaluation_criteria": ["calidad", "viabilidad",]}`,
			wantStep: RecoveryRepaired,
			wantKey:  "evaluation_criteria",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj, step := RecoverJSON(tt.response)
			assert.Equal(t, tt.wantStep, step)
			assert.NotNil(t, obj)
			assert.Contains(t, obj, tt.wantKey)
			if tt.wantVal != nil {
				assert.Equal(t, tt.wantVal, obj[tt.wantKey])
			}
		})
	}
}

func TestRecoverJSON_Unrecoverable(t *testing.T) {
	for _, response := range []string{
		"",
		"No puedo extraer los campos solicitados.",
		`{"title": "sin cerrar`,
		"[1, 2, 3]", // an array is not the expected object
	} {
		obj, step := RecoverJSON(response)
		assert.Equal(t, RecoveryUnrecoverable, step, "response: %q", response)
		assert.Nil(t, obj)
	}
}

func TestRecoverJSON_NestedBraces(t *testing.T) {
	// Braces inside JSON strings must not confuse the substring scan
	response := `Resultado: {"legal_basis": "art. 17 {ver anexo}", "amount_max": 5000}`

	obj, step := RecoverJSON(response)
	assert.Equal(t, RecoverySubstring, step)
	assert.Equal(t, "art. 17 {ver anexo}", obj["legal_basis"])
	assert.Equal(t, float64(5000), obj["amount_max"])
}

func TestRecoverJSON_ControlCharacters(t *testing.T) {
	// A raw control character inside a string is invalid JSON; the repair
	// step strips it
	response := "{\"title\": \"linea uno\x07linea dos\"}"

	obj, step := RecoverJSON(response)
	assert.Equal(t, RecoveryRepaired, step)
	assert.Equal(t, "linea unolinea dos", obj["title"])
}
