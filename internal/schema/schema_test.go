package schema

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestGetDefaultCategory(t *testing.T) {
	r := NewRegistry(nil)
	fields, err := r.Get("dining")
	if err != nil {
		t.Fatalf("get dining: %v", err)
	}
	if fields[0].Key != KeySummary || fields[1].Key != KeyTime || fields[2].Key != KeyDuration {
		t.Fatalf("standard head missing: %+v", fields[:3])
	}
	if fields[len(fields)-1].Key != KeyNotes {
		t.Fatalf("notes tail missing: %+v", fields[len(fields)-1])
	}
}

func TestGetUnknownCategory(t *testing.T) {
	r := NewRegistry(nil)
	if _, err := r.Get("nope"); !errors.Is(err, ErrUnknownCategory) {
		t.Fatalf("expected ErrUnknownCategory, got %v", err)
	}
}

func TestSetRejectsRemovedStandardField(t *testing.T) {
	r := NewRegistry(nil)
	fields, err := r.Get("dining")
	if err != nil {
		t.Fatalf("get dining: %v", err)
	}

	// Drop the trailing notes field.
	if err := r.Set("dining", fields[:len(fields)-1]); !errors.Is(err, ErrProtectedField) {
		t.Fatalf("expected ErrProtectedField, got %v", err)
	}

	// Rename summary.
	renamed := cloneFields(fields)
	renamed[0].Key = "title"
	if err := r.Set("dining", renamed); !errors.Is(err, ErrProtectedField) {
		t.Fatalf("expected ErrProtectedField, got %v", err)
	}
}

func TestSetRejectsDuplicateKeys(t *testing.T) {
	r := NewRegistry(nil)
	fields, _ := r.Get("work")
	dup := cloneFields(fields)
	dup = append(dup[:len(dup)-1], FieldSchema{Key: "project", Label: "Again", Type: FieldText}, notesTail())
	if err := r.Set("work", dup); !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestSetAndResetRoundTrip(t *testing.T) {
	r := NewRegistry(nil)
	fields, _ := r.Get("exercise")
	edited := cloneFields(fields)
	edited = append(edited[:len(edited)-1], FieldSchema{Key: "heart_rate", Label: "Heart rate", Type: FieldNumber, Unit: "bpm"}, notesTail())

	if err := r.Set("exercise", edited); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, _ := r.Get("exercise")
	if len(got) != len(fields)+1 {
		t.Fatalf("expected %d fields after edit, got %d", len(fields)+1, len(got))
	}
	if len(r.Overrides()) != 1 {
		t.Fatalf("expected one override, got %d", len(r.Overrides()))
	}

	if err := r.ResetToDefault("exercise"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	got, _ = r.Get("exercise")
	if len(got) != len(fields) {
		t.Fatalf("expected default restored, got %d fields", len(got))
	}
}

func TestCoerceDetailsDropsBadKeys(t *testing.T) {
	fields, err := NewRegistry(nil).Get("dining")
	if err != nil {
		t.Fatalf("get dining: %v", err)
	}

	raw := map[string]any{
		"summary":  "salad",
		"time":     "12:30",
		"cost":     float64(12.5),
		"rating":   "4",  // numeric string coerces
		"meal":     42.0, // wrong type for a select, dropped
		"bogus":    "x",  // unknown key, dropped
		"duration": "45",
	}
	details := CoerceDetails(raw, fields)

	if v := details["summary"]; v.Kind != KindString || v.Str != "salad" {
		t.Fatalf("summary mismatch: %+v", v)
	}
	if v := details["cost"]; v.Kind != KindNumber || v.Num != 12.5 {
		t.Fatalf("cost mismatch: %+v", v)
	}
	if v := details["rating"]; v.Kind != KindNumber || v.Num != 4 {
		t.Fatalf("rating mismatch: %+v", v)
	}
	if v := details["duration"]; v.Kind != KindNumber || v.Num != 45 {
		t.Fatalf("duration mismatch: %+v", v)
	}
	if _, ok := details["meal"]; ok {
		t.Fatal("expected ill-typed meal to be dropped")
	}
	if _, ok := details["bogus"]; ok {
		t.Fatal("expected unknown key to be dropped")
	}
}

func TestValueJSONRoundTrip(t *testing.T) {
	in := Details{
		"summary":  StringValue("run"),
		"distance": NumberValue(5.2),
		"triggers": ListValue([]string{"work", "weather"}),
	}
	b, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out Details
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v := out["summary"]; v.Kind != KindString || v.Str != "run" {
		t.Fatalf("summary mismatch: %+v", v)
	}
	if v := out["distance"]; v.Kind != KindNumber || v.Num != 5.2 {
		t.Fatalf("distance mismatch: %+v", v)
	}
	if v := out["triggers"]; v.Kind != KindList || len(v.List) != 2 || v.List[0] != "work" {
		t.Fatalf("triggers mismatch: %+v", v)
	}
}
