package taxonomy

import "strings"

const (
	openContextMaterialField = "Consists of_label"
	openContextSampleField   = "Has type_label"
	openContextContextLabel  = "context label"
)

var openContextFields = []fieldSpec{
	{key: "Has type", subkeys: []string{"label"}},
	{key: "Consists of", subkeys: []string{"label"}},
	{key: "early bce/ce"},
	{key: "late bce/ce"},
	{key: "project label"},
	{key: "item category"},
	{key: openContextContextLabel},
	{key: "Temporal Coverage_label"},
	{key: "Has taxonomic identifier_label"},
	{key: "Has anatomical identification_label"},
}

var openContextOrder = fieldOrder(openContextFields)

// ParseOpenContextRecord extracts the informative fields of an OpenContext
// record and builds its material and sample text.
func ParseOpenContextRecord(record map[string]any) *ClassifierInput {
	in := &ClassifierInput{DescriptionMap: make(map[string]string)}

	for key, value := range record {
		spec, ok := lookupSpec(openContextFields, key)
		if !ok {
			continue
		}
		if len(spec.subkeys) == 0 {
			in.DescriptionMap[key] = stringify(value)
			continue
		}

		// fields with subkeys are lists of objects; only the first one counts
		first := firstObject(value)
		if first == nil {
			continue
		}
		if label, ok := first["label"]; ok && label != nil {
			switch key {
			case "Has type":
				in.GoldSample = stringify(label)
			case "Consists of":
				in.GoldMaterial = stringify(label)
			}
		}
		for sub, subValue := range first {
			if spec.has(sub) {
				in.DescriptionMap[key+"_"+sub] = stringify(subValue)
			}
		}
	}

	in.MaterialText = buildOpenContextText(in.DescriptionMap, openContextMaterialField)
	in.SampleText = buildOpenContextText(in.DescriptionMap, openContextSampleField)
	return in
}

// buildOpenContextText joins the informative values, leaving out the gold
// label field of the label type being predicted.
func buildOpenContextText(values map[string]string, goldField string) string {
	return buildText(openContextOrder, values, func(key, value string) string {
		switch key {
		case openContextContextLabel:
			return strings.Join(strings.Split(value, "/"), textSeparator)
		case goldField:
			return ""
		default:
			return value
		}
	})
}

func firstObject(v any) map[string]any {
	list, ok := v.([]any)
	if !ok || len(list) == 0 {
		return nil
	}
	obj, _ := list[0].(map[string]any)
	return obj
}
