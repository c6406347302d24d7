package deepgram

import (
	"log/slog"
	"net/url"
	"testing"
	"time"

	"github.com/s4nfs/mediscribe/pkg/provider/stt"
)

// ---- URL / query-param tests ----

func TestBuildURL_Defaults(t *testing.T) {
	p, err := New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	cfg := stt.LiveConfig{
		SampleRate:     48000,
		Encoding:       "linear16",
		Diarize:        true,
		InterimResults: true,
		Punctuate:      true,
		SmartFormat:    true,
	}

	rawURL, err := p.buildURL(cfg)
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse URL: %v", err)
	}
	q := u.Query()

	assertEqual(t, "model", "nova-2-medical", q.Get("model"))
	assertEqual(t, "language", "en-US", q.Get("language"))
	assertEqual(t, "encoding", "linear16", q.Get("encoding"))
	assertEqual(t, "sample_rate", "48000", q.Get("sample_rate"))
	assertEqual(t, "punctuate", "true", q.Get("punctuate"))
	assertEqual(t, "interim_results", "true", q.Get("interim_results"))
	assertEqual(t, "diarize", "true", q.Get("diarize"))
	assertEqual(t, "smart_format", "true", q.Get("smart_format"))
	assertEqual(t, "utterances", "true", q.Get("utterances"))
}

func TestBuildURL_CustomModel(t *testing.T) {
	p, err := New("key", WithModel("nova-3"), WithLanguage("de-DE"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(stt.LiveConfig{})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, _ := url.Parse(rawURL)
	q := u.Query()

	assertEqual(t, "model", "nova-3", q.Get("model"))
	assertEqual(t, "language", "de-DE", q.Get("language"))
	assertEqual(t, "sample_rate", "48000", q.Get("sample_rate"))
	assertEqual(t, "encoding", "linear16", q.Get("encoding"))
}

func TestBuildURL_LanguageOverridenByCfg(t *testing.T) {
	// cfg.Language should take precedence over the provider-level default.
	p, err := New("key", WithLanguage("en-US"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(stt.LiveConfig{Language: "fr-FR", SampleRate: 16000})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, _ := url.Parse(rawURL)
	assertEqual(t, "language", "fr-FR", u.Query().Get("language"))
}

func TestBuildURL_NoDiarize(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(stt.LiveConfig{SampleRate: 16000})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, _ := url.Parse(rawURL)
	q := u.Query()
	assertEqual(t, "diarize", "false", q.Get("diarize"))
	if _, ok := q["utterances"]; ok {
		t.Error("expected no 'utterances' param when diarization is off")
	}
}

// ---- JSON parsing tests ----

func TestParseResponse_FinalWithUtterances(t *testing.T) {
	raw := []byte(`{
		"type": "Results",
		"is_final": true,
		"utterances": [
			{"speaker": 0, "transcript": "What brings you in today?"},
			{"speaker": 1, "transcript": "Chest pain since Tuesday."}
		],
		"channel": {
			"alternatives": [{
				"transcript": "What brings you in today? Chest pain since Tuesday.",
				"confidence": 0.95
			}]
		}
	}`)

	ev, ok := parseResponse(raw)
	if !ok {
		t.Fatal("expected ok=true for valid Results message")
	}
	res, isResult := ev.(stt.Result)
	if !isResult {
		t.Fatalf("expected stt.Result, got %T", ev)
	}

	if !res.IsFinal {
		t.Error("expected IsFinal=true")
	}
	if len(res.Utterances) != 2 {
		t.Fatalf("expected 2 utterances, got %d", len(res.Utterances))
	}
	if res.Utterances[0].Speaker != 0 || res.Utterances[1].Speaker != 1 {
		t.Errorf("unexpected speakers: %+v", res.Utterances)
	}
	assertEqual(t, "utterance[1]", "Chest pain since Tuesday.", res.Utterances[1].Text)
	assertEqual(t, "text", "What brings you in today? Chest pain since Tuesday.", res.Text)
}

func TestParseResponse_NestedUtterances(t *testing.T) {
	// Some API variants nest utterances inside the first alternative.
	raw := []byte(`{
		"type": "Results",
		"is_final": false,
		"channel": {
			"alternatives": [{
				"transcript": "Hello",
				"utterances": [{"speaker": 1, "transcript": "Hello"}]
			}]
		}
	}`)

	ev, ok := parseResponse(raw)
	if !ok {
		t.Fatal("expected ok=true")
	}
	res := ev.(stt.Result)
	if res.IsFinal {
		t.Error("expected IsFinal=false for interim result")
	}
	if len(res.Utterances) != 1 || res.Utterances[0].Speaker != 1 {
		t.Errorf("unexpected utterances: %+v", res.Utterances)
	}
}

func TestParseResponse_FlatTranscriptOnly(t *testing.T) {
	raw := []byte(`{
		"type": "Results",
		"is_final": true,
		"channel": {
			"alternatives": [{"transcript": "Patient reports dizziness."}]
		}
	}`)

	ev, ok := parseResponse(raw)
	if !ok {
		t.Fatal("expected ok=true")
	}
	res := ev.(stt.Result)
	if len(res.Utterances) != 0 {
		t.Errorf("expected no utterances, got %+v", res.Utterances)
	}
	assertEqual(t, "text", "Patient reports dizziness.", res.Text)
}

func TestParseResponse_FinalTranscriptType(t *testing.T) {
	raw := []byte(`{
		"type": "FinalTranscript",
		"channel": {"alternatives": [{"transcript": "Done."}]}
	}`)

	ev, ok := parseResponse(raw)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if !ev.(stt.Result).IsFinal {
		t.Error("expected FinalTranscript to parse as final")
	}
}

func TestParseResponse_Error(t *testing.T) {
	raw := []byte(`{"type":"Error","description":"bad audio"}`)
	ev, ok := parseResponse(raw)
	if !ok {
		t.Fatal("expected ok=true for Error message")
	}
	se, isErr := ev.(stt.StreamError)
	if !isErr {
		t.Fatalf("expected stt.StreamError, got %T", ev)
	}
	assertEqual(t, "message", "bad audio", se.Message)
}

func TestParseResponse_Ignored(t *testing.T) {
	cases := map[string][]byte{
		"metadata":      []byte(`{"type":"Metadata","request_id":"abc"}`),
		"empty interim": []byte(`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":""}]}}`),
		"no alts":       []byte(`{"type":"Results","is_final":true,"channel":{"alternatives":[]}}`),
		"invalid json":  []byte(`{invalid`),
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if _, ok := parseResponse(raw); ok {
				t.Error("expected ok=false")
			}
		})
	}
}

// ---- event delivery tests ----

func TestEmit_DropsOnlyInterimsWhenBufferFull(t *testing.T) {
	s := &session{
		events:       make(chan stt.Event, 1),
		logger:       slog.Default(),
		closeTimeout: time.Second,
	}

	s.emit(stt.Result{Text: "partial one"})
	s.emit(stt.Result{Text: "partial two"}) // buffer full, discarded

	// Finals and the terminal close wait for the consumer instead of
	// vanishing like interims do.
	delivered := make(chan struct{})
	go func() {
		defer close(delivered)
		s.emit(stt.Result{Text: "chest pain since tuesday", IsFinal: true})
		s.emit(stt.Closed{Code: stt.CloseCodeNormal, Reason: "session closed"})
	}()

	first := (<-s.events).(stt.Result)
	assertEqual(t, "buffered interim", "partial one", first.Text)

	fin := (<-s.events).(stt.Result)
	if !fin.IsFinal {
		t.Errorf("expected final result, got %+v", fin)
	}
	assertEqual(t, "final text", "chest pain since tuesday", fin.Text)

	if _, ok := (<-s.events).(stt.Closed); !ok {
		t.Error("expected terminal Closed event")
	}

	select {
	case <-delivered:
	case <-time.After(time.Second):
		t.Fatal("emit did not complete")
	}
}

func TestEmit_FinalDeliveryIsBounded(t *testing.T) {
	s := &session{
		events:       make(chan stt.Event, 1),
		logger:       slog.Default(),
		closeTimeout: 20 * time.Millisecond,
	}
	s.emit(stt.Result{Text: "partial"})

	// Nobody drains; the read loop must not wedge forever on the terminal
	// event.
	start := time.Now()
	s.emit(stt.Closed{Code: stt.CloseCodeNormal})
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("emit returned after %v, want it to wait the close timeout", elapsed)
	}
}

// ---- Constructor tests ----

func TestNew_EmptyAPIKey(t *testing.T) {
	_, err := New("")
	if err == nil {
		t.Error("expected error for empty API key")
	}
}

func TestNew_Defaults(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	assertEqual(t, "model", defaultModel, p.model)
	assertEqual(t, "language", defaultLanguage, p.language)
}

// ---- helpers ----

func assertEqual(t *testing.T, label, want, got string) {
	t.Helper()
	if want != got {
		t.Errorf("%s: want %q, got %q", label, want, got)
	}
}
