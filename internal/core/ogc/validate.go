package ogc

import (
	"encoding/json"

	"github.com/paulmach/orb/geojson"
)

// IsValid is the structural acceptance test for a stored geometry: a mapping
// with a supported "type" tag and a non-null "coordinates" member. The shape
// of the coordinate tree is not inspected.
func IsValid(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case *geojson.Geometry:
		return t != nil && SupportedKind(t.Type) && t.Coordinates != nil
	case geojson.Geometry:
		return IsValid(&t)
	case map[string]any:
		typ, _ := t["type"].(string)
		if !SupportedKind(typ) {
			return false
		}
		c, ok := t["coordinates"]
		return ok && c != nil
	case json.RawMessage:
		return isValidJSON(t)
	case []byte:
		return isValidJSON(t)
	default:
		return false
	}
}

func isValidJSON(b []byte) bool {
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return false
	}
	return IsValid(m)
}
