// Package mock provides a test double for the audio.Capture interface.
package mock

import (
	"context"
	"sync"

	"github.com/s4nfs/mediscribe/pkg/audio"
)

// Capture is a mock audio.Capture. Tests push chunks with EmitChunk and end
// the stream with EndStream.
type Capture struct {
	mu sync.Mutex

	// StartErr, PauseErr, ResumeErr, StopErr are returned from the matching
	// lifecycle methods when non-nil.
	StartErr  error
	PauseErr  error
	ResumeErr error
	StopErr   error

	// StartCalls, PauseCalls, ResumeCalls, StopCalls count invocations.
	StartCalls  int
	PauseCalls  int
	ResumeCalls int
	StopCalls   int

	chunks chan []byte
	ended  bool
}

// NewCapture returns a Capture with a buffered chunk channel.
func NewCapture() *Capture {
	return &Capture{chunks: make(chan []byte, 32)}
}

// EmitChunk delivers one audio chunk to the consumer.
func (c *Capture) EmitChunk(chunk []byte) {
	c.chunks <- chunk
}

// EndStream closes the chunk channel, simulating device shutdown.
func (c *Capture) EndStream() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended {
		return
	}
	c.ended = true
	close(c.chunks)
}

// Start records the call and returns the chunk channel.
func (c *Capture) Start(ctx context.Context) (<-chan []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.StartCalls++
	if c.StartErr != nil {
		return nil, c.StartErr
	}
	return c.chunks, nil
}

// Pause records the call and returns PauseErr.
func (c *Capture) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.PauseCalls++
	return c.PauseErr
}

// Resume records the call and returns ResumeErr.
func (c *Capture) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ResumeCalls++
	return c.ResumeErr
}

// Stop records the call, ends the stream, and returns StopErr.
func (c *Capture) Stop() error {
	c.mu.Lock()
	c.StopCalls++
	err := c.StopErr
	ended := c.ended
	if !ended {
		c.ended = true
	}
	c.mu.Unlock()
	if !ended {
		close(c.chunks)
	}
	return err
}

// Ensure Capture implements audio.Capture at compile time.
var _ audio.Capture = (*Capture)(nil)
