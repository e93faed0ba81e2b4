package powerbi

import (
	"errors"
	"testing"
)

func TestParseArray(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantLen int
		wantErr bool
	}{
		{"bare array", `[{"id":"a"},{"id":"b"}]`, 2, false},
		{"odata envelope", `{"@odata.context":"x","value":[{"id":"a"}]}`, 1, false},
		{"empty", `[]`, 0, false},
		{"non-object element kept as nil", `[{"id":"a"}, 3]`, 2, false},
		{"not json", `<html>`, 0, true},
		{"object without value", `{"error":"x"}`, 0, true},
		{"value not array", `{"value":{}}`, 0, true},
		{"scalar", `"hello"`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := ParseArray([]byte(tt.body))
			if tt.wantErr {
				if !errors.Is(err, ErrParse) {
					t.Fatalf("err = %v, want ErrParse", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseArray: %v", err)
			}
			if len(items) != tt.wantLen {
				t.Errorf("len = %d, want %d", len(items), tt.wantLen)
			}
		})
	}
}

func TestParseArrayNonObjectIsNil(t *testing.T) {
	items, err := ParseArray([]byte(`[{"id":"a"}, "x"]`))
	if err != nil {
		t.Fatalf("ParseArray: %v", err)
	}
	if items[0] == nil || items[1] != nil {
		t.Errorf("items = %#v", items)
	}
}

func TestParseObject(t *testing.T) {
	obj, err := ParseObject([]byte(`{"errorCode":"ModelRefreshFailed"}`))
	if err != nil {
		t.Fatalf("ParseObject: %v", err)
	}
	if obj.Text("errorCode") != "ModelRefreshFailed" {
		t.Errorf("obj = %v", obj)
	}
	if _, err := ParseObject([]byte(`[1,2]`)); !errors.Is(err, ErrParse) {
		t.Errorf("ParseObject(array) err = %v, want ErrParse", err)
	}
}
