package extraction

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeConfidence(t *testing.T) {
	t.Run("Short summary without domain terms", func(t *testing.T) {
		assert.InDelta(t, 0.7, ComputeConfidence("Resumen breve."), 0.001)
	})

	t.Run("Useful length adds a tenth", func(t *testing.T) {
		summary := strings.Repeat("texto descriptivo sin terminos relevantes ", 10) // ~420 chars
		assert.InDelta(t, 0.8, ComputeConfidence(summary), 0.001)
	})

	t.Run("Domain terms add coverage", func(t *testing.T) {
		// Two of seven terms, short summary: 0.7 + 0.2*2/7
		summary := "El beneficiario presenta la solicitud."
		assert.InDelta(t, 0.7+0.2*2.0/7.0, ComputeConfidence(summary), 0.001)
	})

	t.Run("Accented terms still count", func(t *testing.T) {
		summary := "La subvención fija una cuantía y un plazo de justificación."
		// subvencion, cuantia, plazo, justificacion = 4 of 7
		assert.InDelta(t, 0.7+0.2*4.0/7.0, ComputeConfidence(summary), 0.001)
	})

	t.Run("Rambling summary is penalised", func(t *testing.T) {
		summary := strings.Repeat("palabras y mas palabras de relleno sin fin ", 150) // >5000 chars
		assert.InDelta(t, 0.6, ComputeConfidence(summary), 0.001)
	})

	t.Run("Capped below certainty", func(t *testing.T) {
		terms := "beneficiario cuantia plazo subvencion solicitud requisito justificacion "
		summary := strings.Repeat(terms, 5) // in length band, full coverage
		assert.InDelta(t, 0.95, ComputeConfidence(summary), 0.001)
	})
}
