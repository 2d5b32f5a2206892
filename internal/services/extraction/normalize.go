package extraction

import (
	"strings"
)

// The normalizers below are pure functions from raw LLM/registry strings to
// closed vocabularies. They run after every LLM call and are versioned by the
// extraction model tag, so a re-run with a new tag may legitimately produce
// different mappings.

var accentFolder = strings.NewReplacer(
	"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u",
	"à", "a", "è", "e", "ì", "i", "ò", "o", "ù", "u",
	"ä", "a", "ë", "e", "ï", "i", "ö", "o", "ü", "u",
	"ñ", "n", "ç", "c",
)

// fold lowercases and strips Spanish accents for keyword matching
func fold(s string) string {
	return accentFolder.Replace(strings.ToLower(s))
}

// sectorKeywords maps folded keywords to the closed sector label set.
// Order matters only for stable output; matching is containment-based.
var sectorKeywords = []struct {
	keyword string
	label   string
}{
	{"cultura", "Cultura y artes"},
	{"arte", "Cultura y artes"},
	{"patrimonio", "Cultura y artes"},
	{"turismo", "Turismo"},
	{"agricultura", "Agricultura y pesca"},
	{"ganader", "Agricultura y pesca"},
	{"pesca", "Agricultura y pesca"},
	{"agroaliment", "Agricultura y pesca"},
	{"industria", "Industria"},
	{"manufactur", "Industria"},
	{"comercio", "Comercio"},
	{"educacion", "Educación y formación"},
	{"formacion", "Educación y formación"},
	{"investigacion", "Investigación e innovación"},
	{"innovacion", "Investigación e innovación"},
	{"i+d", "Investigación e innovación"},
	{"tecnolog", "Investigación e innovación"},
	{"digital", "Investigación e innovación"},
	{"medio ambiente", "Medio ambiente y energía"},
	{"ambiental", "Medio ambiente y energía"},
	{"energia", "Medio ambiente y energía"},
	{"sostenib", "Medio ambiente y energía"},
	{"social", "Servicios sociales"},
	{"inclusion", "Servicios sociales"},
	{"igualdad", "Servicios sociales"},
	{"empleo", "Empleo"},
	{"contratacion", "Empleo"},
	{"autoempleo", "Empleo"},
	{"deporte", "Deporte"},
	{"salud", "Sanidad"},
	{"sanidad", "Sanidad"},
	{"sanitari", "Sanidad"},
}

// NormalizeSectors maps a raw sector string to the closed sector label set.
// The raw string may name several sectors ("cultura, turismo"); every match
// is returned once, in keyword-table order.
func NormalizeSectors(raw string) []string {
	if raw == "" {
		return nil
	}
	folded := fold(raw)

	var labels []string
	seen := make(map[string]bool)
	for _, entry := range sectorKeywords {
		if !strings.Contains(folded, entry.keyword) {
			continue
		}
		if seen[entry.label] {
			continue
		}
		seen[entry.label] = true
		labels = append(labels, entry.label)
	}
	return labels
}

// NormalizeInstrument maps a raw instrument string to the closed instrument set
func NormalizeInstrument(raw string) string {
	folded := fold(raw)
	switch {
	case folded == "":
		return ""
	case strings.Contains(folded, "nominativa"):
		return "Subvención directa nominativa"
	case strings.Contains(folded, "concurrencia"):
		return "Subvención concurrencia competitiva"
	case strings.Contains(folded, "convenio"):
		return "Convenio"
	case strings.Contains(folded, "directa"):
		return "Concesión directa"
	default:
		return ""
	}
}

// NormalizeProcedure maps a raw procedure string to the closed procedure set
func NormalizeProcedure(raw string) string {
	folded := fold(raw)
	switch {
	case folded == "":
		return ""
	case strings.Contains(folded, "concurrencia"):
		return "Concurrencia competitiva"
	case strings.Contains(folded, "convenio"):
		return "Convenio"
	case strings.Contains(folded, "directa"):
		return "Concesión directa"
	default:
		return ""
	}
}

// NormalizeAdminLevel maps administrative phrases to the four-level hierarchy
func NormalizeAdminLevel(raw string) string {
	folded := fold(raw)
	switch {
	case folded == "":
		return ""
	case strings.Contains(folded, "ayuntamiento"),
		strings.Contains(folded, "municipal"),
		strings.Contains(folded, "municipio"),
		strings.Contains(folded, "local"):
		return "Local"
	case strings.Contains(folded, "diputacion"),
		strings.Contains(folded, "cabildo"),
		strings.Contains(folded, "provincial"):
		return "Provincial"
	case strings.Contains(folded, "comunidad autonoma"),
		strings.Contains(folded, "autonomic"),
		strings.Contains(folded, "generalitat"),
		strings.Contains(folded, "xunta"),
		strings.Contains(folded, "junta de"),
		strings.Contains(folded, "gobierno vasco"):
		return "Autonómica"
	case strings.Contains(folded, "ministerio"),
		strings.Contains(folded, "estatal"),
		strings.Contains(folded, "estado"),
		strings.Contains(folded, "administracion general"):
		return "Estatal"
	default:
		return ""
	}
}

// beneficiaryKeywords maps folded keywords to the closed beneficiary-type set
var beneficiaryKeywords = []struct {
	keyword string
	label   string
}{
	{"fundacion", "Fundación"},
	{"asociacion", "Asociación"},
	{"ayuntamiento", "Ayuntamiento"},
	{"universidad", "Universidad"},
	{"ong", "ONG"},
	{"sin animo de lucro", "ONG"},
	{"cooperativa", "Cooperativa"},
	{"camara de comercio", "Cámara de Comercio"},
	{"autonomo", "Autónomo"},
	{"trabajador por cuenta propia", "Autónomo"},
	{"entidad local", "Entidad local"},
	{"organismo publico", "Organismo público"},
	{"entidad publica", "Organismo público"},
	{"empresa", "Empresa"},
	{"pyme", "Empresa"},
	{"sociedad", "Empresa"},
}

// NormalizeBeneficiaryTypes maps a raw beneficiary-type string to the closed
// beneficiary set
func NormalizeBeneficiaryTypes(raw string) []string {
	if raw == "" {
		return nil
	}
	folded := fold(raw)

	var labels []string
	seen := make(map[string]bool)
	for _, entry := range beneficiaryKeywords {
		if !strings.Contains(folded, entry.keyword) {
			continue
		}
		if seen[entry.label] {
			continue
		}
		seen[entry.label] = true
		labels = append(labels, entry.label)
	}
	return labels
}
