// Package transcript reconciles a stream of interim and final transcription
// results into a stable, speaker-attributed transcript.
//
// The reconciler is a pure state machine over stt.Result values. Finalized
// utterances are append-only and never revised; at most one pending interim
// utterance trails them and is replaced wholesale by each newer result. The
// reconciler is not safe for concurrent use; callers serialize access.
package transcript

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/s4nfs/mediscribe/pkg/provider/stt"
)

// Reconciler accumulates transcription results into an ordered transcript.
// The zero value is ready to use.
type Reconciler struct {
	finalized []stt.Utterance
	pending   *stt.Utterance
}

// Seed initializes the finalized transcript from previously saved text, used
// when resuming a session. Saved transcripts are rendered "[Speaker N] text"
// lines, so each line is parsed back into its utterance; lines without a
// speaker label are attributed to speaker 0 unchanged. Seeding the output of
// DisplayText therefore reproduces it exactly. Seed replaces any existing
// state.
func (r *Reconciler) Seed(text string) {
	r.finalized = nil
	r.pending = nil
	if text == "" {
		return
	}
	for _, line := range strings.Split(text, "\n") {
		if line == "" {
			continue
		}
		r.finalized = append(r.finalized, parseUtterance(line))
	}
}

// parseUtterance inverts formatUtterance.
func parseUtterance(line string) stt.Utterance {
	if rest, ok := strings.CutPrefix(line, "[Speaker "); ok {
		if i := strings.Index(rest, "] "); i > 0 {
			if n, err := strconv.Atoi(rest[:i]); err == nil {
				return stt.Utterance{Speaker: n, Text: rest[i+2:]}
			}
		}
	}
	return stt.Utterance{Speaker: 0, Text: line}
}

// Apply folds one transcription result into the transcript.
//
// A final result commits all of its utterances to the finalized transcript
// and clears the pending interim. A final result with no utterances but a
// non-empty flat transcript commits a synthetic speaker-0 utterance, so text
// from providers without diarization is never lost.
//
// An interim result replaces the pending utterance with the result's last
// utterance. Interim results whose last utterance is empty leave the pending
// text as is, which keeps the display from flickering between partials.
func (r *Reconciler) Apply(res stt.Result) {
	if res.IsFinal {
		if len(res.Utterances) > 0 {
			r.finalized = append(r.finalized, res.Utterances...)
		} else if res.Text != "" {
			r.finalized = append(r.finalized, stt.Utterance{Speaker: 0, Text: res.Text})
		}
		r.pending = nil
		return
	}

	if len(res.Utterances) > 0 {
		last := res.Utterances[len(res.Utterances)-1]
		if last.Text != "" {
			r.pending = &last
		}
		return
	}
	if res.Text != "" {
		r.pending = &stt.Utterance{Speaker: 0, Text: res.Text}
	}
}

// Finalized returns the committed utterances in arrival order. The returned
// slice is shared with the reconciler and must not be mutated.
func (r *Reconciler) Finalized() []stt.Utterance { return r.finalized }

// Pending returns the current interim utterance, or false when there is none.
func (r *Reconciler) Pending() (stt.Utterance, bool) {
	if r.pending == nil {
		return stt.Utterance{}, false
	}
	return *r.pending, true
}

// Empty reports whether the transcript holds no text at all.
func (r *Reconciler) Empty() bool {
	return len(r.finalized) == 0 && r.pending == nil
}

// DisplayText renders the transcript for display, one utterance per line in
// the form "[Speaker N] text", finalized utterances first and the pending
// interim last.
func (r *Reconciler) DisplayText() string {
	lines := make([]string, 0, len(r.finalized)+1)
	for _, u := range r.finalized {
		lines = append(lines, formatUtterance(u))
	}
	if r.pending != nil {
		lines = append(lines, formatUtterance(*r.pending))
	}
	return strings.Join(lines, "\n")
}

// FinalText renders only the committed utterances, excluding the pending
// interim.
func (r *Reconciler) FinalText() string {
	lines := make([]string, 0, len(r.finalized))
	for _, u := range r.finalized {
		lines = append(lines, formatUtterance(u))
	}
	return strings.Join(lines, "\n")
}

func formatUtterance(u stt.Utterance) string {
	return fmt.Sprintf("[Speaker %d] %s", u.Speaker, u.Text)
}
