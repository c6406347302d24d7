package stt

// Utterance is one attributed span of recognised speech. Speaker is a
// stable per-session speaker index assigned by the provider's diarization;
// sessions without diarization use speaker 0 throughout.
type Utterance struct {
	Speaker int
	Text    string
}

// Result is a single transcription result, interim or final. A result may
// carry diarized Utterances, a flat Text transcript, or both; consumers
// prefer Utterances when present.
type Result struct {
	// Utterances holds per-speaker segments in provider order. May be empty.
	Utterances []Utterance

	// Text is the flat transcript of the first recognition alternative.
	Text string

	// IsFinal reports whether the provider has committed to this result.
	// Interim results are replaced wholesale by the next result for the
	// same span; final results are never revised.
	IsFinal bool
}

// Event is one entry in a live session's ordered event stream. The concrete
// types are Opened, Result, StreamError, and Closed.
type Event interface {
	event()
}

// Opened signals that the connection handshake completed and the session is
// ready to accept audio. It is always the first event.
type Opened struct{}

// StreamError carries a mid-session error reported by the provider. It is
// not terminal by itself; a Closed event follows when the connection is
// lost.
type StreamError struct {
	Message string
}

// Closed is the terminal event of every session. Code follows WebSocket
// close-code semantics: CloseCodeNormal indicates a clean shutdown, any
// other value a connection failure.
type Closed struct {
	Code   int
	Reason string
}

// CloseCodeNormal is the close code of a clean, intentional shutdown.
const CloseCodeNormal = 1000

// Normal reports whether the session ended cleanly.
func (c Closed) Normal() bool { return c.Code == CloseCodeNormal }

func (Opened) event()      {}
func (Result) event()      {}
func (StreamError) event() {}
func (Closed) event()      {}
