package taxonomy

import "fmt"

const (
	sesarMaterialField   = "material"
	sesarSampleTypeField = "sampleType"
	sesarIGSNPrefixField = "igsnPrefix"
	sesarSupplementField = "supplementMetadata"
)

var sesarFields = []fieldSpec{
	{key: sesarSupplementField, subkeys: []string{
		"geologicalAge", "classificationComment",
		// purpose is listed twice in the field order the models were built with
		"purpose", "primaryLocationType", "geologicalUnit",
		"locality", "localityDescription", "fieldName",
		"purpose", "cruiseFieldPrgrm",
	}},
	{key: sesarIGSNPrefixField},
	{key: "collectionMethod"},
	{key: sesarMaterialField},
	{key: sesarSampleTypeField},
	{key: "description"},
	{key: "collectionMethodDescr"},
}

var sesarOrder = fieldOrder(sesarFields)

// ParseSESARRecord extracts the informative fields from the "description"
// object of a SESAR record and builds its material and sample text.
func ParseSESARRecord(record map[string]any) (*ClassifierInput, error) {
	description, ok := record["description"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: SESAR record has no description object", ErrMalformedRecord)
	}

	in := &ClassifierInput{DescriptionMap: make(map[string]string)}
	for key, value := range description {
		// null fields carry nothing to classify
		if value == nil {
			continue
		}
		switch key {
		case sesarSampleTypeField:
			in.GoldSample = stringify(value)
		case sesarMaterialField:
			in.GoldMaterial = stringify(value)
		}

		spec, ok := lookupSpec(sesarFields, key)
		if !ok {
			continue
		}
		if len(spec.subkeys) == 0 {
			in.DescriptionMap[key] = stringify(value)
			continue
		}
		nested, ok := value.(map[string]any)
		if !ok {
			continue
		}
		for sub, subValue := range nested {
			if subValue != nil && spec.has(sub) {
				in.DescriptionMap[key+"_"+sub] = stringify(subValue)
			}
		}
	}

	in.MaterialText = buildSESARText(in.DescriptionMap, sesarMaterialField)
	in.SampleText = buildSESARText(in.DescriptionMap, sesarSampleTypeField)
	return in, nil
}

func buildSESARText(values map[string]string, goldField string) string {
	return buildText(sesarOrder, values, func(key, value string) string {
		if key == sesarIGSNPrefixField || key == goldField {
			return ""
		}
		return value
	})
}
