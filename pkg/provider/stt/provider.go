// Package stt defines the client interface for real-time Speech-to-Text
// services.
//
// An STT provider wraps a streaming transcription service (e.g., Deepgram)
// behind a uniform interface. The central abstraction is LiveSession: once
// opened, a session accepts encoded audio chunks and emits a single ordered
// stream of Event values — transcript results (interim and final), stream
// errors, and the terminal close notification. Consumers such as the
// transcript reconciler rely on events being delivered in the order the
// provider sent them; implementations must not reorder.
//
// Implementations must be safe for concurrent use. The events channel is
// closed when the session ends, after the terminal Closed event.
package stt

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors returned by StartLive. Callers distinguish a rejected
// credential from a transport failure to decide whether a retry is useful.
var (
	// ErrAuth indicates the transcription service rejected the credentials.
	ErrAuth = errors.New("stt: authentication rejected")

	// ErrConnection indicates the connection or handshake failed.
	ErrConnection = errors.New("stt: connection failed")

	// ErrSessionClosed is returned by SendChunk after Close has completed.
	ErrSessionClosed = errors.New("stt: session is closed")
)

// LiveConfig describes the audio format and recognition options for a new
// live transcription session.
type LiveConfig struct {
	// SampleRate is the audio sample rate in Hz (e.g., 48000 for Opus).
	SampleRate int

	// Encoding names the codec of the audio chunks (e.g., "opus").
	// An empty string lets the provider sniff a containerised format.
	Encoding string

	// Language is the BCP-47 language tag for recognition (e.g., "en-US").
	Language string

	// Diarize requests per-utterance speaker labels when the provider
	// supports them. Sessions without diarization emit flat transcripts
	// only.
	Diarize bool

	// InterimResults requests low-latency partial transcripts in addition
	// to finals.
	InterimResults bool

	// Punctuate requests punctuated output.
	Punctuate bool

	// SmartFormat requests provider-side formatting of numbers, dates, and
	// similar entities.
	SmartFormat bool

	// CloseTimeout bounds how long Close waits for the provider to flush
	// remaining final transcripts after the end-of-stream marker is sent.
	// Zero means the implementation default.
	CloseTimeout time.Duration
}

// LiveSession is an open streaming transcription session.
//
// Callers must call Close when the session is no longer needed; failing to
// do so leaks the network connection and the reader goroutine inside the
// implementation. All methods are safe for concurrent use.
type LiveSession interface {
	// SendChunk delivers one encoded audio chunk to the provider. Chunks
	// arriving while the session is not open (during close, or after a
	// failure) are logged and dropped rather than treated as fatal — the
	// reconciler's append-only design tolerates gaps. A non-nil error is
	// returned only once the session has fully closed.
	SendChunk(chunk []byte) error

	// Events returns the ordered event stream for this session. The first
	// event is Opened. The channel is closed after the terminal Closed
	// event has been delivered.
	Events() <-chan Event

	// Close performs a best-effort drain: it sends the end-of-stream
	// marker, waits (bounded by LiveConfig.CloseTimeout and ctx) for the
	// provider to emit remaining final transcripts and acknowledge
	// closure, then closes the connection. On timeout the connection is
	// force-closed; the session still ends in the closed state. Safe to
	// call multiple times.
	Close(ctx context.Context) error
}

// Provider is the abstraction over any real-time transcription backend.
//
// Implementations must be safe for concurrent use; multiple sessions may be
// open simultaneously.
type Provider interface {
	// StartLive opens a new streaming transcription session. Returns
	// ErrAuth (wrapped) when credentials are rejected and ErrConnection
	// (wrapped) for network or handshake failures; in both cases no
	// session resources remain allocated.
	StartLive(ctx context.Context, cfg LiveConfig) (LiveSession, error)
}
