// Package mock provides test doubles for the stt package interfaces.
//
// Use Provider to verify that the caller starts sessions with the expected
// LiveConfig. Use Session to feed scripted events and inspect which audio
// chunks were delivered.
//
// Example:
//
//	sess := mock.NewSession()
//	p := &mock.Provider{Session: sess}
//	handle, _ := p.StartLive(ctx, cfg)
//	sess.Emit(stt.Opened{})
package mock

import (
	"context"
	"sync"

	"github.com/s4nfs/mediscribe/pkg/provider/stt"
)

// StartLiveCall records a single invocation of Provider.StartLive.
type StartLiveCall struct {
	// Ctx is the context passed to StartLive.
	Ctx context.Context
	// Cfg is the LiveConfig passed to StartLive.
	Cfg stt.LiveConfig
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Session is the LiveSession returned by StartLive. If nil, StartLive
	// returns a fresh default Session.
	Session stt.LiveSession

	// StartLiveErr, if non-nil, is returned as the error from StartLive.
	StartLiveErr error

	// StartLiveCalls records every call to StartLive.
	StartLiveCalls []StartLiveCall
}

// StartLive records the call and returns Session, StartLiveErr.
func (p *Provider) StartLive(ctx context.Context, cfg stt.LiveConfig) (stt.LiveSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartLiveCalls = append(p.StartLiveCalls, StartLiveCall{Ctx: ctx, Cfg: cfg})
	if p.StartLiveErr != nil {
		return nil, p.StartLiveErr
	}
	if p.Session != nil {
		return p.Session, nil
	}
	return NewSession(), nil
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartLiveCalls = nil
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)

// SendChunkCall records a single invocation of Session.SendChunk.
type SendChunkCall struct {
	// Chunk is a copy of the audio bytes that were passed to SendChunk.
	Chunk []byte
}

// Session is a mock implementation of stt.LiveSession. Tests drive the event
// stream with Emit and terminate it with EmitClosed.
type Session struct {
	mu sync.Mutex

	// EventsCh is the channel returned by Events.
	EventsCh chan stt.Event

	// SendChunkErr, if non-nil, is returned from SendChunk.
	SendChunkErr error
	// CloseErr, if non-nil, is returned from Close.
	CloseErr error

	// SendChunkCalls records every call to SendChunk.
	SendChunkCalls []SendChunkCall
	// CloseCalls counts invocations of Close.
	CloseCalls int

	closed bool
}

// NewSession returns a Session with a buffered event channel.
func NewSession() *Session {
	return &Session{EventsCh: make(chan stt.Event, 16)}
}

// Emit delivers an event on the session's event stream.
func (s *Session) Emit(ev stt.Event) {
	s.EventsCh <- ev
}

// EmitClosed delivers a terminal Closed event and closes the event stream.
func (s *Session) EmitClosed(code int, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.EventsCh <- stt.Closed{Code: code, Reason: reason}
	close(s.EventsCh)
}

// SendChunk records the chunk and returns SendChunkErr.
func (s *Session) SendChunk(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	s.SendChunkCalls = append(s.SendChunkCalls, SendChunkCall{Chunk: cp})
	return s.SendChunkErr
}

// Sent returns a copy of the recorded SendChunk calls. Safe to call while
// another goroutine is sending.
func (s *Session) Sent() []SendChunkCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SendChunkCall(nil), s.SendChunkCalls...)
}

// Events returns the scripted event stream.
func (s *Session) Events() <-chan stt.Event { return s.EventsCh }

// Close records the call, terminates the event stream with a normal Closed
// event, and returns CloseErr.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	s.CloseCalls++
	err := s.CloseErr
	s.mu.Unlock()
	s.EmitClosed(stt.CloseCodeNormal, "session closed")
	return err
}

// Reset clears all recorded calls. The event channel is left untouched.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SendChunkCalls = nil
	s.CloseCalls = 0
}

// Ensure Session implements stt.LiveSession at compile time.
var _ stt.LiveSession = (*Session)(nil)
