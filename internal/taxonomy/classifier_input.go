package taxonomy

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// textSeparator joins informative field values into classifier text.
const textSeparator = " , "

// ClassifierInput is a source record reduced to what the classifiers need:
// the informative fields, the concatenated text for each label type, and
// the gold labels carried by the record itself.
type ClassifierInput struct {
	DescriptionMap map[string]string
	MaterialText   string
	SampleText     string
	GoldMaterial   string
	GoldSample     string
}

// fieldSpec is an informative field. Fields with subkeys contribute one
// entry per subkey, named "<key>_<subkey>".
type fieldSpec struct {
	key     string
	subkeys []string
}

func (f fieldSpec) has(subkey string) bool {
	for _, s := range f.subkeys {
		if s == subkey {
			return true
		}
	}
	return false
}

// fieldOrder flattens specs into the order in which text is assembled.
func fieldOrder(specs []fieldSpec) []string {
	order := make([]string, 0, len(specs))
	for _, spec := range specs {
		if len(spec.subkeys) == 0 {
			order = append(order, spec.key)
			continue
		}
		for _, sub := range spec.subkeys {
			order = append(order, spec.key+"_"+sub)
		}
	}
	return order
}

func lookupSpec(specs []fieldSpec, key string) (fieldSpec, bool) {
	for _, spec := range specs {
		if spec.key == key {
			return spec, true
		}
	}
	return fieldSpec{}, false
}

// stringify renders a decoded JSON value as Python's str does: null is
// "None" and a number written with a fraction or exponent keeps its float
// form.
func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return "None"
	case string:
		return val
	case json.Number:
		if !strings.ContainsAny(string(val), ".eE") {
			return string(val)
		}
		f, err := val.Float64()
		if err != nil {
			return string(val)
		}
		return pythonFloat(f)
	case float64:
		return pythonFloat(val)
	case bool:
		if val {
			return "True"
		}
		return "False"
	default:
		return fmt.Sprint(val)
	}
}

// pythonFloat formats f like Python's float repr: the shortest round-trip
// digits, ".0" on integral values, exponent form outside [1e-4, 1e16).
func pythonFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	if abs := math.Abs(f); abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(f, 'e', -1, 64)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// buildText walks order and joins the parts produced by part. A part of ""
// is dropped.
func buildText(order []string, values map[string]string, part func(key, value string) string) string {
	parts := make([]string, 0, len(order))
	for _, key := range order {
		value, ok := values[key]
		if !ok || value == "" {
			continue
		}
		if p := part(key, value); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, textSeparator)
}
