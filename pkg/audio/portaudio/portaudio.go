// Package portaudio captures microphone audio through the PortAudio library.
// It implements the audio.Capture interface with the default input device.
package portaudio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/s4nfs/mediscribe/pkg/audio"
)

type state int

const (
	stateIdle state = iota
	stateRunning
	statePaused
	stateStopped
)

// Capture streams PCM from the default input device. Create one per
// recording; a stopped capture cannot be restarted.
type Capture struct {
	target   audio.Format
	interval time.Duration
	enc      audio.FrameEncoder
	logger   *slog.Logger

	mu     sync.Mutex
	st     state
	stream *portaudio.Stream
	chunks chan []byte
	done   chan struct{}
}

// Option configures a Capture.
type Option func(*Capture)

// WithEncoder sets the per-frame encoder. Defaults to passthrough PCM sized
// to the chunk interval.
func WithEncoder(enc audio.FrameEncoder) Option {
	return func(c *Capture) { c.enc = enc }
}

// WithLogger sets the logger for device lifecycle events.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Capture) { c.logger = logger }
}

// New creates a Capture that delivers chunks covering interval of audio in
// the target format.
func New(target audio.Format, interval time.Duration, opts ...Option) *Capture {
	c := &Capture{
		target:   target,
		interval: interval,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.enc == nil {
		frameBytes := target.SampleRate * target.Channels * 2 * int(interval/time.Millisecond) / 1000
		c.enc = audio.PCMEncoder{FrameSize: frameBytes}
	}
	return c
}

// Start acquires the default input device and begins streaming. The returned
// channel is closed when the capture stops or the device fails.
func (c *Capture) Start(ctx context.Context) (<-chan []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.st != stateIdle {
		return nil, fmt.Errorf("portaudio: start: %w", audio.ErrInvalidState)
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w: %v", audio.ErrDeviceUnavailable, err)
	}

	// Read in buffers of roughly a quarter of the chunk interval so pause
	// latency stays low regardless of chunk size.
	samplesPerRead := c.target.SampleRate * int(c.interval/time.Millisecond) / 1000 / 4
	if samplesPerRead < 64 {
		samplesPerRead = 64
	}
	buf := make([]int16, samplesPerRead*c.target.Channels)

	stream, err := portaudio.OpenDefaultStream(c.target.Channels, 0, float64(c.target.SampleRate), len(buf)/c.target.Channels, buf)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("portaudio: open default stream: %w: %v", audio.ErrDeviceUnavailable, err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("portaudio: start stream: %w: %v", audio.ErrDeviceUnavailable, err)
	}

	c.stream = stream
	c.chunks = make(chan []byte, 16)
	c.done = make(chan struct{})
	c.st = stateRunning
	c.logger.Debug("portaudio: capture started",
		"sampleRate", c.target.SampleRate,
		"channels", c.target.Channels,
		"chunkInterval", c.interval,
	)

	go c.readLoop(ctx, buf)
	return c.chunks, nil
}

// Pause suspends chunk delivery without releasing the device. Pausing an
// already paused capture is a no-op.
func (c *Capture) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.st == statePaused {
		return nil
	}
	if c.st != stateRunning {
		return fmt.Errorf("portaudio: pause: %w", audio.ErrInvalidState)
	}
	if err := c.stream.Stop(); err != nil {
		return fmt.Errorf("portaudio: pause: %w", err)
	}
	c.st = statePaused
	return nil
}

// Resume restarts chunk delivery after a Pause. Resuming a running capture
// is a no-op.
func (c *Capture) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.st == stateRunning {
		return nil
	}
	if c.st != statePaused {
		return fmt.Errorf("portaudio: resume: %w", audio.ErrInvalidState)
	}
	if err := c.stream.Start(); err != nil {
		return fmt.Errorf("portaudio: resume: %w", err)
	}
	c.st = stateRunning
	return nil
}

// Stop releases the device. Safe to call more than once.
func (c *Capture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.st == stateStopped {
		return nil
	}
	if c.st == stateIdle {
		c.st = stateStopped
		return nil
	}
	close(c.done)
	err := c.stream.Close()
	if terr := portaudio.Terminate(); terr != nil && err == nil {
		err = terr
	}
	c.st = stateStopped
	if err != nil {
		return fmt.Errorf("portaudio: stop: %w", err)
	}
	return nil
}

func (c *Capture) readLoop(ctx context.Context, buf []int16) {
	chunker := audio.NewChunker(c.enc)
	defer func() {
		c.emitTail(chunker)
		close(c.chunks)
	}()

	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		default:
		}

		c.mu.Lock()
		st := c.st
		stream := c.stream
		c.mu.Unlock()
		if st == stateStopped {
			return
		}
		if st == statePaused {
			time.Sleep(20 * time.Millisecond)
			continue
		}

		if err := stream.Read(); err != nil {
			select {
			case <-c.done:
			default:
				c.logger.Warn("portaudio: read failed, ending capture", "error", err)
			}
			return
		}

		for _, frame := range chunker.Push(audio.Int16sToBytes(buf)) {
			select {
			case c.chunks <- frame:
			case <-c.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}
}

// emitTail delivers the chunker's padded remainder before the chunk channel
// closes. A partial frame buffered at stop still carries speech. The send
// does not block; a consumer that already left loses only the tail.
func (c *Capture) emitTail(chunker *audio.Chunker) {
	tail := chunker.Flush()
	if tail == nil {
		return
	}
	select {
	case c.chunks <- tail:
	default:
		c.logger.Debug("portaudio: tail frame dropped, consumer gone")
	}
}

// Ensure Capture implements audio.Capture at compile time.
var _ audio.Capture = (*Capture)(nil)
