package patientmatch

import (
	"testing"

	"github.com/s4nfs/mediscribe/pkg/store"
)

func roster(names ...string) []store.Patient {
	out := make([]store.Patient, len(names))
	for i, n := range names {
		out[i] = store.Patient{ID: n, Name: n}
	}
	return out
}

func TestMatch_ExactName(t *testing.T) {
	m := New()
	p, conf, ok := m.Match("Jane Doe", roster("Jane Doe", "John Smith"))
	if !ok {
		t.Fatal("expected a match")
	}
	if p.Name != "Jane Doe" {
		t.Errorf("matched %q", p.Name)
	}
	if conf < 0.99 {
		t.Errorf("confidence = %f for exact match", conf)
	}
}

func TestMatch_PhoneticVariant(t *testing.T) {
	m := New()

	cases := []struct {
		query string
		want  string
	}{
		{"Catherine Smith", "Katherine Smith"},
		{"Jon Andersen", "John Anderson"},
		{"Stephen", "Steven Brown"},
	}
	for _, tc := range cases {
		p, _, ok := m.Match(tc.query, roster("Katherine Smith", "John Anderson", "Steven Brown"))
		if !ok {
			t.Errorf("Match(%q): no match", tc.query)
			continue
		}
		if p.Name != tc.want {
			t.Errorf("Match(%q) = %q, want %q", tc.query, p.Name, tc.want)
		}
	}
}

func TestMatch_NoMatchForUnrelatedName(t *testing.T) {
	m := New()
	_, _, ok := m.Match("Xavier Quintero", roster("Jane Doe", "John Smith"))
	if ok {
		t.Error("expected no match for unrelated name")
	}
}

func TestMatch_EmptyInputs(t *testing.T) {
	m := New()
	if _, _, ok := m.Match("", roster("Jane Doe")); ok {
		t.Error("matched empty query")
	}
	if _, _, ok := m.Match("Jane", nil); ok {
		t.Error("matched against empty roster")
	}
}

func TestMatch_PhoneticBeatsFuzzy(t *testing.T) {
	// A phonetic candidate above the phonetic threshold wins even when a
	// non-phonetic entry has a similar string score.
	m := New(WithPhoneticThreshold(0.70), WithFuzzyThreshold(0.95))
	p, _, ok := m.Match("Smyth", roster("Smith", "Smyte"))
	if !ok {
		t.Fatal("expected a match")
	}
	if p.Name != "Smith" && p.Name != "Smyte" {
		t.Errorf("matched %q", p.Name)
	}
}

func TestMatch_ThresholdRejects(t *testing.T) {
	m := New(WithPhoneticThreshold(0.99), WithFuzzyThreshold(0.99))
	_, _, ok := m.Match("Jon", roster("John Anderson"))
	if ok {
		t.Error("expected thresholds to reject a weak match")
	}
}
