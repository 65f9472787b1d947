package taxonomy

// sesarTestIGSNPrefixes are igsnPrefix fragments used by SESAR test records.
var sesarTestIGSNPrefixes = []string{
	"IEKTS",
	"IEKCM",
	"IEKEL",
	"IESDE",
	"MEG",
	"MCT IEJKH",
	"IESER",
	"IELL2",
	"IELL1",
	"LLS",
	"IEHS1",
	"HSU",
	"IECAO",
	"IESBC",
}

// sesarCVWords are material-related words; text containing one of them is
// considered content bearing.
var sesarCVWords = []string{
	"anthropogenic",
	"biogenic",
	"dispersed",
	"fluid",
	"frozen",
	"gaseous",
	"ice",
	"liquid",
	"material",
	"media",
	"metal",
	"mineral",
	"mixed",
	"natural",
	"non-aqueous",
	"non-organic",
	"organic",
	"particulate",
	"rock",
	"sediment",
	"soil",
	"soil,",
	"solid",
	"water",
}

// sesarSourceToCV maps SESAR source labels to the iSamples controlled vocabulary.
var sesarSourceToCV = map[string]string{
	"Biology":                    "Biogenic non-organic material",
	"EarthMaterial":              "Natural Solid Material",
	"Gas":                        "Gaseous material",
	"Ice":                        "Ice",
	"Liquid":                     "Liquid water",
	"Material":                   "Material",
	"Mineral":                    "Mineral",
	"Organic Material":           "Organic Material",
	"Other":                      "Material",
	"Particulate":                "Particulate",
	"Rock":                       "Rock",
	"Sediment":                   "Sediment",
	"Soil":                       "Soil",
	"experimentalMaterial":       "Material",
	"Sediment or Rock":           "Natural Solid Material",
	"Natural Solid Material":     "Natural Solid Material",
	"Mixed soil, sediment, rock": "Mixed soil, sediment, rock",
	"NotApplicable":              "Material",
}

// SESARControlledVocabulary maps a SESAR label to its controlled vocabulary
// term. Labels that are already terms, or unknown, are returned unchanged.
func SESARControlledVocabulary(label string) string {
	if cv, ok := sesarSourceToCV[label]; ok {
		return cv
	}
	return label
}
