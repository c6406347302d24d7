// Package patientmatch resolves a spoken or roughly typed patient name to a
// patient record using Double Metaphone phonetic encoding combined with
// Jaro-Winkler string similarity.
//
// Names arriving through transcription are frequently misspelled versions of
// a roster entry ("Katherine" heard as "Catherine", "Nguyen" as "Newin").
// The algorithm proceeds in two stages:
//
//  1. Phonetic candidate filtering: Double Metaphone codes are computed for
//     each token of the query and each roster entry. An entry whose codes
//     overlap the query's becomes a phonetic candidate.
//
//  2. Jaro-Winkler ranking: among phonetic candidates, the entry with the
//     highest Jaro-Winkler similarity wins, provided it clears the phonetic
//     threshold. With no phonetic candidate, a secondary pass tests pure
//     Jaro-Winkler similarity against the whole roster using a stricter
//     fuzzy threshold.
//
// Multi-word names are supported: the matcher considers full-string,
// concatenated, and best pairwise token scores.
package patientmatch

import (
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/s4nfs/mediscribe/pkg/store"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically matched patient to be accepted. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when no
// phonetic match is found and the matcher falls back to pure string
// similarity. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// Matcher ranks roster patients against a query name. Read-only after
// construction, safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a new [Matcher] configured with the supplied options.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Match finds the patient whose name best matches the query name.
// When matched is false the returned patient is the zero value and
// confidence is 0.
func (m *Matcher) Match(name string, patients []store.Patient) (match store.Patient, confidence float64, matched bool) {
	if len(patients) == 0 || strings.TrimSpace(name) == "" {
		return store.Patient{}, 0, false
	}

	queryLower := strings.ToLower(strings.TrimSpace(name))
	queryTokens := strings.Fields(queryLower)
	queryCodes := codesForTokens(queryTokens)

	type candidate struct {
		patient  store.Patient
		score    float64
		phonetic bool
	}
	var best candidate

	for _, p := range patients {
		nameLower := strings.ToLower(strings.TrimSpace(p.Name))
		if nameLower == "" {
			continue
		}
		nameTokens := strings.Fields(nameLower)

		phonetic := codesOverlap(queryCodes, codesForTokens(nameTokens))
		score := bestJWScore(queryTokens, nameTokens, queryLower, nameLower)

		if phonetic {
			if score >= m.phoneticThreshold && (!best.phonetic || score > best.score) {
				best = candidate{patient: p, score: score, phonetic: true}
			}
		} else if !best.phonetic && score >= m.fuzzyThreshold && score > best.score {
			best = candidate{patient: p, score: score, phonetic: false}
		}
	}

	if best.patient.ID != "" {
		return best.patient, best.score, true
	}
	return store.Patient{}, 0, false
}

// codesForTokens returns the union of all Double Metaphone codes for the
// given tokens. Empty codes are excluded.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

// codesOverlap returns true if the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestJWScore computes the highest Jaro-Winkler similarity between query and
// roster name across three strategies: full strings, space-stripped strings,
// and the best pairwise token score.
func bestJWScore(queryTokens, nameTokens []string, queryFull, nameFull string) float64 {
	score := matchr.JaroWinkler(queryFull, nameFull, false)

	if len(queryTokens) > 1 || len(nameTokens) > 1 {
		if s := matchr.JaroWinkler(strings.Join(queryTokens, ""), strings.Join(nameTokens, ""), false); s > score {
			score = s
		}
	}

	for _, qt := range queryTokens {
		for _, nt := range nameTokens {
			if s := matchr.JaroWinkler(qt, nt, false); s > score {
				score = s
			}
		}
	}

	return score
}
