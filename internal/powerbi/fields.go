package powerbi

import (
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// Text returns the value at key as a string. Numbers and booleans are
// formatted; missing keys, null and nested values yield "".
func (o Object) Text(key string) string {
	switch v := o[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// FirstText tries keys in order and returns the first non-empty text value.
func (o Object) FirstText(keys ...string) string {
	for _, k := range keys {
		if s := o.Text(k); s != "" {
			return s
		}
	}
	return ""
}

// GUID returns the first non-empty candidate parsed as a GUID, or uuid.Nil
// when none is present or the value does not parse.
func (o Object) GUID(keys ...string) uuid.UUID {
	s := o.FirstText(keys...)
	if s == "" {
		return uuid.Nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil
	}
	return id
}

// Bool returns the boolean at key, accepting "true"/"false" strings, or def.
func (o Object) Bool(key string, def bool) bool {
	switch v := o[key].(type) {
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return def
		}
		return b
	default:
		return def
	}
}

// Time parses the timestamp at key. Timestamps without a zone are taken as
// UTC. The zero time and unparseable values report ok=false.
func (o Object) Time(key string) (time.Time, bool) {
	s := o.Text(key)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if t.Year() <= 1 {
			return time.Time{}, false
		}
		return t.UTC(), true
	}
	return time.Time{}, false
}

// Object returns the nested object at key, if any.
func (o Object) Object(key string) (Object, bool) {
	v, ok := o[key].(map[string]any)
	return v, ok
}
