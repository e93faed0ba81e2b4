package powerbi

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// ErrParse marks a response body that is not the expected JSON shape. It is
// distinct from transport failures, which surface as *HTTPError or network
// errors.
var ErrParse = errors.New("unexpected response shape")

// Object is one decoded JSON object from an admin API payload.
type Object map[string]any

// ParseArray decodes a list payload. Both a bare JSON array and the OData
// envelope {"value": [...]} are accepted. Elements that are not objects are
// returned as nil so callers can count them as malformed.
func ParseArray(body []byte) ([]Object, error) {
	items, _, err := parsePage(body)
	return items, err
}

// ParseObject decodes a single JSON object.
func ParseObject(body []byte) (Object, error) {
	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected object, got %s", ErrParse, kindOf(raw))
	}
	return obj, nil
}

// parsePage decodes a list payload and returns the @odata.nextLink, if any.
func parsePage(body []byte) ([]Object, string, error) {
	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrParse, err)
	}

	var (
		list     []any
		nextLink string
	)
	switch v := raw.(type) {
	case []any:
		list = v
	case map[string]any:
		value, ok := v["value"]
		if !ok {
			return nil, "", fmt.Errorf("%w: object without value array", ErrParse)
		}
		arr, ok := value.([]any)
		if !ok {
			return nil, "", fmt.Errorf("%w: value is %s, expected array", ErrParse, kindOf(value))
		}
		list = arr
		nextLink, _ = v["@odata.nextLink"].(string)
	default:
		return nil, "", fmt.Errorf("%w: expected array, got %s", ErrParse, kindOf(raw))
	}

	items := make([]Object, len(list))
	for i, el := range list {
		if obj, ok := el.(map[string]any); ok {
			items[i] = obj
		}
	}
	return items, nextLink, nil
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	default:
		return fmt.Sprintf("%T", v)
	}
}
