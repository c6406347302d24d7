package transcript

import (
	"strings"
	"testing"

	"github.com/s4nfs/mediscribe/pkg/provider/stt"
)

func TestApply_InterimReplacesPending(t *testing.T) {
	var r Reconciler

	r.Apply(stt.Result{Utterances: []stt.Utterance{{Speaker: 0, Text: "What brings"}}})
	r.Apply(stt.Result{Utterances: []stt.Utterance{{Speaker: 0, Text: "What brings you in"}}})

	p, ok := r.Pending()
	if !ok {
		t.Fatal("expected a pending utterance")
	}
	if p.Text != "What brings you in" {
		t.Errorf("pending = %q, want latest interim", p.Text)
	}
	if len(r.Finalized()) != 0 {
		t.Errorf("finalized = %d utterances, want 0", len(r.Finalized()))
	}
}

func TestApply_InterimUsesLastUtterance(t *testing.T) {
	var r Reconciler

	r.Apply(stt.Result{Utterances: []stt.Utterance{
		{Speaker: 0, Text: "What brings you in today?"},
		{Speaker: 1, Text: "I've had chest"},
	}})

	p, ok := r.Pending()
	if !ok {
		t.Fatal("expected a pending utterance")
	}
	if p.Speaker != 1 || p.Text != "I've had chest" {
		t.Errorf("pending = %+v, want last utterance of the interim", p)
	}
}

func TestApply_InterimEmptyLastKeepsPending(t *testing.T) {
	var r Reconciler

	r.Apply(stt.Result{Utterances: []stt.Utterance{{Speaker: 0, Text: "Hello"}}})
	r.Apply(stt.Result{Utterances: []stt.Utterance{{Speaker: 0, Text: ""}}})

	p, ok := r.Pending()
	if !ok || p.Text != "Hello" {
		t.Errorf("pending = %+v (ok=%v), want earlier interim retained", p, ok)
	}
}

func TestApply_FinalCommitsAllAndClearsPending(t *testing.T) {
	var r Reconciler

	r.Apply(stt.Result{Utterances: []stt.Utterance{{Speaker: 1, Text: "I've had chest"}}})
	r.Apply(stt.Result{
		IsFinal: true,
		Utterances: []stt.Utterance{
			{Speaker: 0, Text: "What brings you in today?"},
			{Speaker: 1, Text: "I've had chest pain since Tuesday."},
		},
	})

	if _, ok := r.Pending(); ok {
		t.Error("expected pending cleared after a final result")
	}
	got := r.Finalized()
	if len(got) != 2 {
		t.Fatalf("finalized = %d utterances, want 2", len(got))
	}
	if got[1].Speaker != 1 || got[1].Text != "I've had chest pain since Tuesday." {
		t.Errorf("finalized[1] = %+v", got[1])
	}
}

func TestApply_FinalizedIsAppendOnly(t *testing.T) {
	var r Reconciler

	r.Apply(stt.Result{IsFinal: true, Utterances: []stt.Utterance{{Speaker: 0, Text: "First."}}})
	r.Apply(stt.Result{Utterances: []stt.Utterance{{Speaker: 1, Text: "Second partial"}}})
	r.Apply(stt.Result{IsFinal: true, Utterances: []stt.Utterance{{Speaker: 1, Text: "Second, complete."}}})

	got := r.Finalized()
	if len(got) != 2 {
		t.Fatalf("finalized = %d utterances, want 2", len(got))
	}
	if got[0].Text != "First." {
		t.Errorf("finalized[0] = %+v, earlier finals must not be revised", got[0])
	}
}

func TestApply_FlatTextFallback(t *testing.T) {
	var r Reconciler

	// Final with no utterances but a flat transcript commits as speaker 0.
	r.Apply(stt.Result{IsFinal: true, Text: "Patient reports dizziness."})

	got := r.Finalized()
	if len(got) != 1 {
		t.Fatalf("finalized = %d utterances, want 1", len(got))
	}
	if got[0].Speaker != 0 || got[0].Text != "Patient reports dizziness." {
		t.Errorf("finalized[0] = %+v", got[0])
	}

	// Interim flat text shows as a pending speaker-0 utterance.
	r.Apply(stt.Result{Text: "And some"})
	p, ok := r.Pending()
	if !ok || p.Speaker != 0 || p.Text != "And some" {
		t.Errorf("pending = %+v (ok=%v)", p, ok)
	}
}

func TestApply_EmptyFinalOnlyClearsPending(t *testing.T) {
	var r Reconciler

	r.Apply(stt.Result{Utterances: []stt.Utterance{{Speaker: 0, Text: "partial"}}})
	r.Apply(stt.Result{IsFinal: true})

	if _, ok := r.Pending(); ok {
		t.Error("expected pending cleared")
	}
	if len(r.Finalized()) != 0 {
		t.Errorf("finalized = %d utterances, want 0", len(r.Finalized()))
	}
}

func TestDisplayText(t *testing.T) {
	var r Reconciler

	r.Apply(stt.Result{IsFinal: true, Utterances: []stt.Utterance{
		{Speaker: 0, Text: "What brings you in today?"},
		{Speaker: 1, Text: "Chest pain."},
	}})
	r.Apply(stt.Result{Utterances: []stt.Utterance{{Speaker: 0, Text: "When did"}}})

	want := strings.Join([]string{
		"[Speaker 0] What brings you in today?",
		"[Speaker 1] Chest pain.",
		"[Speaker 0] When did",
	}, "\n")
	if got := r.DisplayText(); got != want {
		t.Errorf("DisplayText:\n got %q\nwant %q", got, want)
	}

	wantFinal := strings.Join([]string{
		"[Speaker 0] What brings you in today?",
		"[Speaker 1] Chest pain.",
	}, "\n")
	if got := r.FinalText(); got != wantFinal {
		t.Errorf("FinalText:\n got %q\nwant %q", got, wantFinal)
	}
}

func TestDisplayText_Empty(t *testing.T) {
	var r Reconciler
	if got := r.DisplayText(); got != "" {
		t.Errorf("DisplayText = %q, want empty", got)
	}
	if !r.Empty() {
		t.Error("Empty() = false for zero reconciler")
	}
}

func TestSeed_Resume(t *testing.T) {
	var r Reconciler
	r.Seed("[Speaker 0] Earlier conversation.")

	got := r.Finalized()
	if len(got) != 1 || got[0].Speaker != 0 {
		t.Fatalf("finalized = %+v, want single speaker-0 seed", got)
	}

	// New results append after the seed.
	r.Apply(stt.Result{IsFinal: true, Utterances: []stt.Utterance{{Speaker: 1, Text: "It still hurts."}}})
	if len(r.Finalized()) != 2 {
		t.Errorf("finalized = %d utterances after resume, want 2", len(r.Finalized()))
	}
}

func TestSeed_RoundTripsSavedTranscript(t *testing.T) {
	var r Reconciler
	r.Apply(stt.Result{IsFinal: true, Utterances: []stt.Utterance{
		{Speaker: 0, Text: "symptoms began last Tuesday"},
		{Speaker: 1, Text: "I see"},
	}})
	saved := r.DisplayText()

	var resumed Reconciler
	resumed.Seed(saved)

	// Seeding what was saved must reproduce it exactly; no doubled speaker
	// prefixes, no collapse into one utterance.
	if got := resumed.DisplayText(); got != saved {
		t.Errorf("DisplayText after seed:\n got %q\nwant %q", got, saved)
	}
	got := resumed.Finalized()
	if len(got) != 2 {
		t.Fatalf("finalized = %d utterances, want 2", len(got))
	}
	if got[0].Speaker != 0 || got[0].Text != "symptoms began last Tuesday" {
		t.Errorf("finalized[0] = %+v", got[0])
	}
	if got[1].Speaker != 1 || got[1].Text != "I see" {
		t.Errorf("finalized[1] = %+v", got[1])
	}
}

func TestSeed_UnlabelledTextIsSpeakerZero(t *testing.T) {
	var r Reconciler
	r.Seed("dictated without labels\n[Speaker 2] labelled line")

	got := r.Finalized()
	if len(got) != 2 {
		t.Fatalf("finalized = %d utterances, want 2", len(got))
	}
	if got[0].Speaker != 0 || got[0].Text != "dictated without labels" {
		t.Errorf("finalized[0] = %+v", got[0])
	}
	if got[1].Speaker != 2 || got[1].Text != "labelled line" {
		t.Errorf("finalized[1] = %+v", got[1])
	}
}

func TestSeed_EmptyText(t *testing.T) {
	var r Reconciler
	r.Apply(stt.Result{IsFinal: true, Text: "old"})
	r.Seed("")
	if !r.Empty() {
		t.Error("Seed(\"\") should reset to an empty transcript")
	}
}
