package extraction

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeSectors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{
			name: "Single sector",
			raw:  "Promoción del turismo rural",
			want: []string{"Turismo"},
		},
		{
			name: "Multiple sectors in one string",
			raw:  "actividades de cultura y turismo",
			want: []string{"Cultura y artes", "Turismo"},
		},
		{
			name: "Accented keyword",
			raw:  "Educación de personas adultas",
			want: []string{"Educación y formación"},
		},
		{
			name: "Duplicate keywords collapse",
			raw:  "investigación e innovación tecnológica",
			want: []string{"Investigación e innovación"},
		},
		{
			name: "No match",
			raw:  "otras actividades diversas",
			want: nil,
		},
		{
			name: "Empty",
			raw:  "",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeSectors(tt.raw))
		})
	}
}

func TestNormalizeInstrument(t *testing.T) {
	assert.Equal(t, "Subvención directa nominativa", NormalizeInstrument("Subvención nominativa prevista en presupuestos"))
	assert.Equal(t, "Subvención concurrencia competitiva", NormalizeInstrument("subvención en régimen de concurrencia competitiva"))
	assert.Equal(t, "Convenio", NormalizeInstrument("Convenio de colaboración"))
	assert.Equal(t, "Concesión directa", NormalizeInstrument("concesión directa"))
	assert.Equal(t, "", NormalizeInstrument("premio"))
	assert.Equal(t, "", NormalizeInstrument(""))

	// Nominativa wins over the directa it usually co-occurs with
	assert.Equal(t, "Subvención directa nominativa", NormalizeInstrument("subvención directa nominativa"))
}

func TestNormalizeProcedure(t *testing.T) {
	assert.Equal(t, "Concurrencia competitiva", NormalizeProcedure("Concurrencia competitiva"))
	assert.Equal(t, "Concesión directa", NormalizeProcedure("concesión directa por razones de interés público"))
	assert.Equal(t, "Convenio", NormalizeProcedure("mediante convenio"))
	assert.Equal(t, "", NormalizeProcedure("desconocido"))
}

func TestNormalizeAdminLevel(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"Ayuntamiento de Zamora", "Local"},
		{"Diputación Provincial de Badajoz", "Provincial"},
		{"Junta de Andalucía", "Autonómica"},
		{"Generalitat de Catalunya", "Autonómica"},
		{"Ministerio de Cultura", "Estatal"},
		{"Administración General del Estado", "Estatal"},
		{"", ""},
		{"entidad desconocida", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeAdminLevel(tt.raw), "raw: %q", tt.raw)
	}
}

func TestNormalizeBeneficiaryTypes(t *testing.T) {
	got := NormalizeBeneficiaryTypes("Fundaciones, asociaciones y entidades sin ánimo de lucro")
	assert.Equal(t, []string{"Fundación", "Asociación", "ONG"}, got)

	got = NormalizeBeneficiaryTypes("PYMES y trabajadores autónomos")
	assert.Equal(t, []string{"Autónomo", "Empresa"}, got)

	assert.Nil(t, NormalizeBeneficiaryTypes(""))
	assert.Nil(t, NormalizeBeneficiaryTypes("personas desconocidas"))
}
