// Package session drives one recording session end to end: it connects the
// transcription stream, forwards captured audio, reconciles results into the
// transcript, counts elapsed time, and persists periodic snapshots.
//
// A Controller is single-use. Lifecycle:
//
//	idle -> connecting -> recording <-> paused -> stopping -> stopped
//
// with errored reachable from any active state when the stream or device
// fails. All exported methods are safe for concurrent use.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/s4nfs/mediscribe/internal/transcript"
	"github.com/s4nfs/mediscribe/pkg/audio"
	"github.com/s4nfs/mediscribe/pkg/provider/stt"
	"github.com/s4nfs/mediscribe/pkg/store"
)

// ErrNotRecording is returned by Pause and Resume when the controller is not
// in a state that allows the transition.
var ErrNotRecording = errors.New("session: not recording")

// State is the controller lifecycle state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateRecording
	StatePaused
	StateStopping
	StateStopped
	StateErrored
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateRecording:
		return "recording"
	case StatePaused:
		return "paused"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// RecordStore is the slice of the consultation store the controller needs.
// *postgres.ConsultationsImpl satisfies it.
type RecordStore interface {
	Create(ctx context.Context, userID, patientID, ctype string) (string, error)
	Save(ctx context.Context, id string, snap store.Snapshot) error
	Complete(ctx context.Context, id string, snap store.Snapshot) error
}

// Config describes one recording session.
type Config struct {
	UserID           string
	PatientID        string
	ConsultationType string

	// ResumeID, when set, continues an existing consultation instead of
	// creating a new record. ResumeTranscript seeds the finalized
	// transcript and ResumeDuration the elapsed counter.
	ResumeID         string
	ResumeTranscript string
	ResumeDuration   int

	// AutosaveInterval is how often the transcript snapshot is persisted
	// while recording. Default: 30s.
	AutosaveInterval time.Duration

	// Live configures the transcription stream.
	Live stt.LiveConfig
}

// Controller runs one recording session.
type Controller struct {
	cfg     Config
	stt     stt.Provider
	capture audio.Capture
	records RecordStore
	logger  *slog.Logger

	mu       sync.Mutex
	state    State
	rec      transcript.Reconciler
	elapsed  int
	recordID string
	lastSave string
	err      error

	sess    stt.LiveSession
	done    chan struct{}
	runDone chan struct{}
	stopped sync.Once
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

// New creates a Controller. Nothing happens until Start.
func New(cfg Config, provider stt.Provider, capture audio.Capture, records RecordStore, opts ...Option) *Controller {
	if cfg.AutosaveInterval <= 0 {
		cfg.AutosaveInterval = 30 * time.Second
	}
	c := &Controller{
		cfg:     cfg,
		stt:     provider,
		capture: capture,
		records: records,
		logger:  slog.Default(),
		state:   StateIdle,
		done:    make(chan struct{}),
		runDone: make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	if cfg.ResumeID != "" {
		c.recordID = cfg.ResumeID
		c.elapsed = cfg.ResumeDuration
		c.rec.Seed(cfg.ResumeTranscript)
		c.lastSave = c.rec.DisplayText()
	}
	return c
}

// Start connects the transcription stream and begins the session. On
// connection failure the controller returns to idle and the error is
// returned; a failed Start may be retried on a fresh Controller.
//
// Audio capture does not begin until the stream reports it is ready, so no
// audio is recorded that the transcriber never sees.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return fmt.Errorf("session: start in state %s", c.state)
	}
	c.state = StateConnecting
	c.mu.Unlock()

	sess, err := c.stt.StartLive(ctx, c.cfg.Live)
	if err != nil {
		c.mu.Lock()
		c.state = StateIdle
		c.mu.Unlock()
		return fmt.Errorf("session: connect: %w", err)
	}

	c.mu.Lock()
	c.sess = sess
	c.mu.Unlock()

	go c.run(ctx)
	return nil
}

// run is the session loop. It owns all state transitions after Start and
// exits when the event stream terminates or Stop is called.
func (c *Controller) run(ctx context.Context) {
	defer close(c.runDone)

	secTick := time.NewTicker(time.Second)
	defer secTick.Stop()
	saveTick := time.NewTicker(c.cfg.AutosaveInterval)
	defer saveTick.Stop()

	var chunks <-chan []byte

	for {
		select {
		case ev, ok := <-c.sess.Events():
			if !ok {
				return
			}
			switch ev := ev.(type) {
			case stt.Opened:
				ch, err := c.capture.Start(ctx)
				if err != nil {
					c.fail(fmt.Errorf("session: start capture: %w", err))
					_ = c.sess.Close(ctx)
					return
				}
				chunks = ch
				c.mu.Lock()
				if c.state == StateConnecting {
					c.state = StateRecording
				}
				c.mu.Unlock()
				if err := c.ensureRecord(ctx); err != nil {
					// Autosave retries creation, so recording continues.
					c.logger.Warn("record create failed", "error", err)
				}
				c.logger.Info("session recording", "record", c.RecordID())

			case stt.Result:
				c.mu.Lock()
				c.rec.Apply(ev)
				c.mu.Unlock()

			case stt.StreamError:
				c.logger.Warn("transcription stream error", "message", ev.Message)

			case stt.Closed:
				if ev.Normal() {
					c.logger.Debug("transcription stream closed")
					return
				}
				c.fail(fmt.Errorf("session: stream closed: %d %s", ev.Code, ev.Reason))
				return
			}

		case chunk, ok := <-chunks:
			if !ok {
				// The device stream ended. During Stop that is expected;
				// otherwise the device went away under us. Either way keep
				// draining events so buffered audio still becomes transcript.
				chunks = nil
				if c.State() != StateStopping {
					c.fail(errors.New("session: audio capture ended"))
					_ = c.sess.Close(ctx)
				}
				continue
			}
			if c.State() != StateRecording {
				continue
			}
			if err := c.sess.SendChunk(chunk); err != nil {
				if !errors.Is(err, stt.ErrSessionClosed) {
					c.logger.Warn("send chunk failed", "error", err)
				}
			}

		case <-secTick.C:
			c.mu.Lock()
			if c.state == StateRecording {
				c.elapsed++
			}
			c.mu.Unlock()

		case <-saveTick.C:
			if c.State() == StateRecording {
				if err := c.SaveNow(ctx); err != nil {
					c.logger.Warn("autosave failed", "error", err)
				}
			}

		case <-c.done:
			// Stop already closed the stream. Finals buffered before the
			// terminal event still count, so drain before exiting.
			c.drainEvents()
			return

		case <-ctx.Done():
			return
		}
	}
}

// drainEvents applies remaining results from an already-closing event
// stream, bounded so a misbehaving stream cannot wedge shutdown.
func (c *Controller) drainEvents() {
	limit := time.NewTimer(time.Second)
	defer limit.Stop()
	for {
		select {
		case ev, ok := <-c.sess.Events():
			if !ok {
				return
			}
			if res, ok := ev.(stt.Result); ok {
				c.mu.Lock()
				c.rec.Apply(res)
				c.mu.Unlock()
			}
		case <-limit.C:
			return
		}
	}
}

// fail moves the controller to errored, keeping the first error.
func (c *Controller) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateStopping || c.state == StateStopped {
		return
	}
	c.state = StateErrored
	if c.err == nil {
		c.err = err
	}
	c.logger.Error("session failed", "error", err)
}

// Pause suspends audio capture and the elapsed counter. The stream stays
// connected so Resume is instant.
func (c *Controller) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateRecording {
		return fmt.Errorf("%w: state %s", ErrNotRecording, c.state)
	}
	if err := c.capture.Pause(); err != nil {
		return fmt.Errorf("session: pause: %w", err)
	}
	c.state = StatePaused
	c.logger.Info("session paused", "record", c.recordID)
	return nil
}

// Resume restarts audio capture after a Pause.
func (c *Controller) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StatePaused {
		return fmt.Errorf("%w: state %s", ErrNotRecording, c.state)
	}
	if err := c.capture.Resume(); err != nil {
		return fmt.Errorf("session: resume: %w", err)
	}
	c.state = StateRecording
	c.logger.Info("session resumed", "record", c.recordID)
	return nil
}

// ensureRecord creates the backing consultation record if it does not exist
// yet. The record is created once the stream reports it is ready, never
// before, so sessions that fail to connect leave nothing behind.
func (c *Controller) ensureRecord(ctx context.Context) error {
	c.mu.Lock()
	existing := c.recordID
	c.mu.Unlock()
	if existing != "" {
		return nil
	}

	id, err := c.records.Create(ctx, c.cfg.UserID, c.cfg.PatientID, c.cfg.ConsultationType)
	if err != nil {
		return fmt.Errorf("session: create record: %w", err)
	}
	c.mu.Lock()
	c.recordID = id
	c.mu.Unlock()
	c.logger.Info("consultation record created", "record", id)
	return nil
}

// SaveNow persists the current snapshot immediately. Snapshots carry the
// display transcript, pending interim included, so a crash never loses the
// line the clinician was watching. Empty transcripts and saves with no
// change since the last one are skipped. Record creation is retried here
// when it failed at connect time.
func (c *Controller) SaveNow(ctx context.Context) error {
	c.mu.Lock()
	text := c.rec.DisplayText()
	elapsed := c.elapsed
	recordID := c.recordID
	unchanged := text == c.lastSave && recordID != ""
	c.mu.Unlock()

	if unchanged || text == "" {
		return nil
	}

	if recordID == "" {
		if err := c.ensureRecord(ctx); err != nil {
			return err
		}
		recordID = c.RecordID()
	}

	if err := c.records.Save(ctx, recordID, store.Snapshot{Transcript: text, DurationSeconds: elapsed}); err != nil {
		return fmt.Errorf("session: save: %w", err)
	}

	c.mu.Lock()
	c.lastSave = text
	c.mu.Unlock()
	return nil
}

// Stop ends the session: it releases the audio device, drains the
// transcription stream so buffered audio becomes a last final result, and
// persists the completed consultation. Stop is idempotent; repeated calls
// return the first outcome.
func (c *Controller) Stop(ctx context.Context) error {
	var stopErr error
	c.stopped.Do(func() {
		c.mu.Lock()
		prev := c.state
		c.state = StateStopping
		sess := c.sess
		c.mu.Unlock()

		if prev == StateIdle {
			c.mu.Lock()
			c.state = StateStopped
			c.mu.Unlock()
			return
		}

		if err := c.capture.Stop(); err != nil {
			c.logger.Warn("capture stop failed", "error", err)
		}
		if sess != nil {
			// Close flushes buffered audio; the run loop keeps applying
			// results until the terminal event arrives.
			if err := sess.Close(ctx); err != nil {
				c.logger.Warn("stream close failed", "error", err)
			}
		}
		close(c.done)
		select {
		case <-c.runDone:
		case <-ctx.Done():
		}

		stopErr = c.finalize(ctx)

		c.mu.Lock()
		c.state = StateStopped
		c.mu.Unlock()
		c.logger.Info("session stopped",
			"record", c.RecordID(),
			"duration", time.Duration(c.ElapsedSeconds())*time.Second,
		)
	})
	return stopErr
}

// finalize persists the completed consultation. A session that never got a
// record and produced no transcript completes without creating one.
func (c *Controller) finalize(ctx context.Context) error {
	c.mu.Lock()
	text := c.rec.DisplayText()
	elapsed := c.elapsed
	recordID := c.recordID
	c.mu.Unlock()

	if recordID == "" {
		if text == "" {
			return nil
		}
		if err := c.ensureRecord(ctx); err != nil {
			return err
		}
		recordID = c.RecordID()
	}

	err := c.records.Complete(ctx, recordID, store.Snapshot{Transcript: text, DurationSeconds: elapsed})
	if err != nil {
		return fmt.Errorf("session: complete: %w", err)
	}
	return nil
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the error that moved the controller to errored, if any.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// RecordID returns the consultation record ID, or "" before the record is
// created.
func (c *Controller) RecordID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recordID
}

// ElapsedSeconds returns the whole seconds spent recording, excluding
// paused time.
func (c *Controller) ElapsedSeconds() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.elapsed
}

// DisplayText returns the current transcript rendered for display,
// including the pending interim line.
func (c *Controller) DisplayText() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rec.DisplayText()
}

// FinalText returns the committed transcript, excluding the pending interim.
func (c *Controller) FinalText() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rec.FinalText()
}
