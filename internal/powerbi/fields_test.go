package powerbi

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestObjectText(t *testing.T) {
	o := Object{"s": "  Sales ", "n": float64(42), "b": true, "nil": nil, "obj": map[string]any{}}
	tests := map[string]string{"s": "Sales", "n": "42", "b": "true", "nil": "", "obj": "", "missing": ""}
	for key, want := range tests {
		if got := o.Text(key); got != want {
			t.Errorf("Text(%q) = %q, want %q", key, got, want)
		}
	}
}

func TestObjectFirstText(t *testing.T) {
	o := Object{"requestId": "", "id": "R9"}
	if got := o.FirstText("requestId", "id"); got != "R9" {
		t.Errorf("FirstText = %q, want R9", got)
	}
	o["requestId"] = "R1"
	if got := o.FirstText("requestId", "id"); got != "R1" {
		t.Errorf("FirstText = %q, want R1", got)
	}
	if got := o.FirstText("nope"); got != "" {
		t.Errorf("FirstText(nope) = %q, want empty", got)
	}
}

func TestObjectGUID(t *testing.T) {
	want := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	tests := []struct {
		name string
		obj  Object
		want uuid.UUID
	}{
		{"primary", Object{"id": want.String()}, want},
		{"fallback", Object{"objectId": want.String()}, want},
		{"missing", Object{}, uuid.Nil},
		{"garbage", Object{"id": "not-a-guid"}, uuid.Nil},
		{"nil guid", Object{"id": uuid.Nil.String()}, uuid.Nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.obj.GUID("id", "objectId"); got != tt.want {
				t.Errorf("GUID = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestObjectBool(t *testing.T) {
	o := Object{"t": true, "s": "false", "bad": "maybe"}
	if !o.Bool("t", false) {
		t.Error("Bool(t) = false")
	}
	if o.Bool("s", true) {
		t.Error("Bool(s) = true")
	}
	if !o.Bool("bad", true) || !o.Bool("missing", true) {
		t.Error("Bool should fall back to default")
	}
}

func TestObjectTime(t *testing.T) {
	tests := []struct {
		value  any
		want   time.Time
		wantOK bool
	}{
		{"2026-05-01T10:00:00Z", time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC), true},
		{"2026-05-01T10:00:00.123Z", time.Date(2026, 5, 1, 10, 0, 0, 123000000, time.UTC), true},
		{"2026-05-01T12:00:00+02:00", time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC), true},
		{"2026-05-01T10:00:00", time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC), true},
		{"0001-01-01T00:00:00Z", time.Time{}, false},
		{"yesterday", time.Time{}, false},
		{nil, time.Time{}, false},
	}
	for _, tt := range tests {
		got, ok := Object{"t": tt.value}.Time("t")
		if ok != tt.wantOK || !got.Equal(tt.want) {
			t.Errorf("Time(%v) = %v, %v; want %v, %v", tt.value, got, ok, tt.want, tt.wantOK)
		}
	}
}
