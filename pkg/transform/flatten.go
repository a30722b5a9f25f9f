package transform

import (
	"fmt"
	"reflect"
	"time"

	"github.com/goccy/go-json"
)

// Flatten recursively walks a nested object and produces a flat map whose
// keys are the snake_cased path segments joined with underscores. Arrays at
// any depth are not recursed into; they are serialized whole as JSON text.
// time.Time and other non-object values pass through unchanged, including
// explicit nils.
func Flatten(obj map[string]interface{}, prefix string) map[string]interface{} {
	out := make(map[string]interface{}, len(obj))
	flattenInto(out, obj, prefix)
	return out
}

func flattenInto(out map[string]interface{}, obj map[string]interface{}, prefix string) {
	for k, v := range obj {
		key := SnakeCase(k)
		if prefix != "" {
			key = prefix + "_" + key
		}

		switch val := v.(type) {
		case map[string]interface{}:
			flattenInto(out, val, key)
		case time.Time, *time.Time, nil:
			out[key] = v
		default:
			if isSequence(v) {
				out[key] = jsonText(v)
				continue
			}
			out[key] = v
		}
	}
}

// isSequence reports whether the value is an array or slice of any element
// type. JSON-decoded payloads produce []interface{}, but callers constructing
// events in Go hand us typed slices too.
func isSequence(v interface{}) bool {
	if v == nil {
		return false
	}
	k := reflect.TypeOf(v).Kind()
	return k == reflect.Slice || k == reflect.Array
}

// jsonText serializes a value to its JSON string form.
func jsonText(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
