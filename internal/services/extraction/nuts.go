package extraction

import (
	"strings"
)

// nutsProvince maps folded Spanish province names to their 3-digit NUTS codes
var nutsProvince = map[string]string{
	"a coruna":               "ES111",
	"la coruna":              "ES111",
	"lugo":                   "ES112",
	"ourense":                "ES113",
	"orense":                 "ES113",
	"pontevedra":             "ES114",
	"alava":                  "ES211",
	"araba":                  "ES211",
	"guipuzcoa":              "ES212",
	"gipuzkoa":               "ES212",
	"vizcaya":                "ES213",
	"bizkaia":                "ES213",
	"huesca":                 "ES241",
	"teruel":                 "ES242",
	"zaragoza":               "ES243",
	"avila":                  "ES411",
	"burgos":                 "ES412",
	"leon":                   "ES413",
	"palencia":               "ES414",
	"salamanca":              "ES415",
	"segovia":                "ES416",
	"soria":                  "ES417",
	"valladolid":             "ES418",
	"zamora":                 "ES419",
	"albacete":               "ES421",
	"ciudad real":            "ES422",
	"cuenca":                 "ES423",
	"guadalajara":            "ES424",
	"toledo":                 "ES425",
	"badajoz":                "ES431",
	"caceres":                "ES432",
	"barcelona":              "ES511",
	"girona":                 "ES512",
	"gerona":                 "ES512",
	"lleida":                 "ES513",
	"lerida":                 "ES513",
	"tarragona":              "ES514",
	"alicante":               "ES521",
	"alacant":                "ES521",
	"castellon":              "ES522",
	"castello":               "ES522",
	"valencia":               "ES523",
	"almeria":                "ES611",
	"cadiz":                  "ES612",
	"cordoba":                "ES613",
	"granada":                "ES614",
	"huelva":                 "ES615",
	"jaen":                   "ES616",
	"malaga":                 "ES617",
	"sevilla":                "ES618",
	"mallorca":               "ES532",
	"menorca":                "ES533",
	"eivissa":                "ES531",
	"ibiza":                  "ES531",
	"las palmas":             "ES701",
	"santa cruz de tenerife": "ES702",
	"tenerife":               "ES702",
}

// nutsCommunity maps folded autonomous-community names to their 2-digit codes
var nutsCommunity = map[string]string{
	"galicia":              "ES11",
	"asturias":             "ES12",
	"cantabria":            "ES13",
	"pais vasco":           "ES21",
	"euskadi":              "ES21",
	"navarra":              "ES22",
	"la rioja":             "ES23",
	"aragon":               "ES24",
	"madrid":               "ES30",
	"castilla y leon":      "ES41",
	"castilla-la mancha":   "ES42",
	"castilla la mancha":   "ES42",
	"extremadura":          "ES43",
	"cataluna":             "ES51",
	"catalunya":            "ES51",
	"comunidad valenciana": "ES52",
	"comunitat valenciana": "ES52",
	"baleares":             "ES53",
	"illes balears":        "ES53",
	"andalucia":            "ES61",
	"murcia":               "ES62",
	"ceuta":                "ES63",
	"melilla":              "ES64",
	"canarias":             "ES70",
}

// RegionToNUTS maps a mentioned region or province name to its NUTS code.
// The longest matching name wins, so "Castilla y León" resolves to the
// community rather than the province of León; on equal lengths the province
// (more specific code) wins. A bare country mention maps to ES; unknown
// names map to the empty string.
func RegionToNUTS(mention string) string {
	folded := fold(mention)
	if folded == "" {
		return ""
	}

	bestCode := ""
	bestLen := 0
	for name, code := range nutsCommunity {
		if strings.Contains(folded, name) && len(name) > bestLen {
			bestCode = code
			bestLen = len(name)
		}
	}
	for name, code := range nutsProvince {
		if strings.Contains(folded, name) && len(name) >= bestLen {
			bestCode = code
			bestLen = len(name)
		}
	}
	if bestCode != "" {
		return bestCode
	}

	if strings.Contains(folded, "espana") || strings.Contains(folded, "nacional") {
		return "ES"
	}
	return ""
}

// RegionsToNUTS maps a list of region mentions to distinct NUTS codes,
// dropping mentions that fail to map
func RegionsToNUTS(mentions []string) []string {
	var codes []string
	seen := make(map[string]bool)
	for _, mention := range mentions {
		code := RegionToNUTS(mention)
		if code == "" || seen[code] {
			continue
		}
		seen[code] = true
		codes = append(codes, code)
	}
	return codes
}
