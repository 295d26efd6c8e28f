package merge

import (
	"reflect"
	"testing"
)

func TestData_EmptyIncomingIsNoOp(t *testing.T) {
	existing := map[string]any{"crop": "rice", "water_amount": "200L"}
	merged := Data(existing, map[string]any{})
	if !reflect.DeepEqual(merged, existing) {
		t.Errorf("merging empty data must not change anything: %v", merged)
	}
}

func TestData_NeverErases(t *testing.T) {
	existing := map[string]any{"a": "x"}
	merged := Data(existing, map[string]any{"a": ""})
	if merged["a"] != "x" {
		t.Errorf("empty string must not overwrite %q, got %q", "x", merged["a"])
	}
	merged = Data(existing, map[string]any{"a": nil})
	if merged["a"] != "x" {
		t.Errorf("nil must not overwrite %q, got %q", "x", merged["a"])
	}
}

func TestData_OverwritesAndAdds(t *testing.T) {
	existing := map[string]any{"crop": "rice", "rainfall": "none"}
	incoming := map[string]any{"rainfall": "light", "water_amount": "200L"}
	merged := Data(existing, incoming)

	if merged["rainfall"] != "light" {
		t.Errorf("non-empty value must overwrite, got %q", merged["rainfall"])
	}
	if merged["water_amount"] != "200L" {
		t.Errorf("new key must be added, got %q", merged["water_amount"])
	}
	if merged["crop"] != "rice" {
		t.Errorf("untouched key must survive, got %q", merged["crop"])
	}
}

func TestData_DoesNotMutateInputs(t *testing.T) {
	existing := map[string]any{"a": "x"}
	incoming := map[string]any{"b": "y"}
	Data(existing, incoming)
	if len(existing) != 1 || len(incoming) != 1 {
		t.Error("merge must not mutate its inputs")
	}
}

func TestData_KeepsExplicitFalsyValues(t *testing.T) {
	merged := Data(map[string]any{}, map[string]any{"water_amount": float64(0), "rainfall": false})
	if merged["water_amount"] != float64(0) {
		t.Errorf("zero is a real value, got %v", merged["water_amount"])
	}
	if merged["rainfall"] != false {
		t.Errorf("false is a real value, got %v", merged["rainfall"])
	}
}

func TestTranscript(t *testing.T) {
	if got := Transcript("", "first message"); got != "first message" {
		t.Errorf("first turn must not be prefixed, got %q", got)
	}
	got := Transcript("first message", "second message")
	want := "first message\n---\nsecond message"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
	// Appending never replaces prior text.
	got = Transcript(got, "third")
	want = "first message\n---\nsecond message\n---\nthird"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestConfidenceAndNotes(t *testing.T) {
	if got := Confidence(0.8, 0); got != 0.8 {
		t.Errorf("zero confidence must not overwrite, got %f", got)
	}
	if got := Confidence(0.8, 0.95); got != 0.95 {
		t.Errorf("expected 0.95, got %f", got)
	}
	if got := Notes("partial date", ""); got != "partial date" {
		t.Errorf("empty notes must not overwrite, got %q", got)
	}
	if got := Notes("partial date", "all clear"); got != "all clear" {
		t.Errorf("expected new notes, got %q", got)
	}
}
