// Package deepgram provides a Deepgram-backed STT provider using the Deepgram
// streaming WebSocket API. It implements the stt.Provider interface.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/s4nfs/mediscribe/pkg/provider/stt"
)

const (
	deepgramEndpoint  = "wss://api.deepgram.com/v1/listen"
	defaultModel      = "nova-2-medical"
	defaultLanguage   = "en-US"
	defaultSampleRate = 48000

	// defaultCloseTimeout bounds how long Close waits for Deepgram to flush
	// buffered audio after a CloseStream frame.
	defaultCloseTimeout = 5 * time.Second
)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-2-medical", "nova-3").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the BCP-47 language code for recognition (e.g., "en-US").
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithLogger sets the logger used for session lifecycle events.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) {
		p.logger = logger
	}
}

// Provider implements stt.Provider backed by the Deepgram streaming API.
type Provider struct {
	apiKey   string
	model    string
	language string
	logger   *slog.Logger
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:   apiKey,
		model:    defaultModel,
		language: defaultLanguage,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StartLive opens a streaming transcription session with Deepgram.
func (p *Provider) StartLive(ctx context.Context, cfg stt.LiveConfig) (stt.LiveSession, error) {
	wsURL, err := p.buildURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("deepgram: dial: %w: %v", stt.ErrAuth, err)
		}
		return nil, fmt.Errorf("deepgram: dial: %w: %v", stt.ErrConnection, err)
	}

	closeTimeout := cfg.CloseTimeout
	if closeTimeout <= 0 {
		closeTimeout = defaultCloseTimeout
	}

	sess := &session{
		conn:         conn,
		logger:       p.logger,
		events:       make(chan stt.Event, 64),
		audio:        make(chan []byte, 256),
		done:         make(chan struct{}),
		readDone:     make(chan struct{}),
		closeTimeout: closeTimeout,
	}

	// Deepgram does not send an explicit "opened" message; a successful
	// handshake means the stream is ready for audio.
	sess.events <- stt.Opened{}

	go sess.readLoop(context.WithoutCancel(ctx))
	go sess.writeLoop(context.WithoutCancel(ctx))

	return sess, nil
}

// buildURL constructs the Deepgram streaming endpoint URL for the given config.
func (p *Provider) buildURL(cfg stt.LiveConfig) (string, error) {
	u, err := url.Parse(deepgramEndpoint)
	if err != nil {
		return "", err
	}

	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	sr := cfg.SampleRate
	if sr == 0 {
		sr = defaultSampleRate
	}
	enc := cfg.Encoding
	if enc == "" {
		enc = "linear16"
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("encoding", enc)
	q.Set("sample_rate", strconv.Itoa(sr))
	q.Set("punctuate", strconv.FormatBool(cfg.Punctuate))
	q.Set("interim_results", strconv.FormatBool(cfg.InterimResults))
	q.Set("diarize", strconv.FormatBool(cfg.Diarize))
	q.Set("smart_format", strconv.FormatBool(cfg.SmartFormat))
	if cfg.Diarize {
		q.Set("utterances", "true")
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ---- session ----

// deepgramResponse is the JSON structure returned by Deepgram for a Results
// event. Utterances appear either at the top level or nested in the first
// alternative depending on the API variant.
type deepgramResponse struct {
	Type       string              `json:"type"`
	IsFinal    bool                `json:"is_final"`
	Utterances []deepgramUtterance `json:"utterances"`
	Channel    struct {
		Alternatives []struct {
			Transcript string              `json:"transcript"`
			Confidence float64             `json:"confidence"`
			Utterances []deepgramUtterance `json:"utterances"`
		} `json:"alternatives"`
	} `json:"channel"`
	Description string `json:"description"`
	Message     string `json:"message"`
}

type deepgramUtterance struct {
	Speaker    int     `json:"speaker"`
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
}

// session is a live Deepgram streaming session. It implements stt.LiveSession.
type session struct {
	conn   *websocket.Conn
	logger *slog.Logger

	events chan stt.Event
	audio  chan []byte

	done         chan struct{}
	readDone     chan struct{}
	once         sync.Once
	closeTimeout time.Duration
}

// SendChunk queues an audio chunk for delivery to Deepgram.
func (s *session) SendChunk(chunk []byte) error {
	select {
	case <-s.done:
		return fmt.Errorf("deepgram: send chunk: %w", stt.ErrSessionClosed)
	default:
	}
	select {
	case s.audio <- chunk:
		return nil
	case <-s.done:
		return fmt.Errorf("deepgram: send chunk: %w", stt.ErrSessionClosed)
	}
}

// Events returns the ordered session event stream. The channel is closed
// after the terminal Closed event.
func (s *session) Events() <-chan stt.Event { return s.events }

// Close drains the session cleanly. It sends a CloseStream frame so Deepgram
// flushes buffered audio into a last final result, then waits for the server
// close bounded by the configured close timeout or ctx.
func (s *session) Close(ctx context.Context) error {
	s.once.Do(func() {
		close(s.done)
		err := s.conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`))
		if err != nil {
			s.logger.Debug("deepgram: close stream frame failed", "error", err)
		}

		timer := time.NewTimer(s.closeTimeout)
		defer timer.Stop()
		select {
		case <-s.readDone:
		case <-timer.C:
			s.logger.Warn("deepgram: close drain timed out", "timeout", s.closeTimeout)
		case <-ctx.Done():
		}
		s.conn.Close(websocket.StatusNormalClosure, "session closed")
	})
	return nil
}

// writeLoop reads from the audio channel and sends binary messages to Deepgram.
func (s *session) writeLoop(ctx context.Context) {
	for {
		select {
		case chunk := <-s.audio:
			if err := s.conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
				return
			}
		case <-s.done:
			// Flush whatever is still queued before the CloseStream frame
			// takes effect.
			for {
				select {
				case chunk := <-s.audio:
					_ = s.conn.Write(ctx, websocket.MessageBinary, chunk)
				default:
					return
				}
			}
		}
	}
}

// readLoop receives JSON messages from Deepgram and dispatches them on the
// event stream. It owns the events channel and always terminates it with a
// Closed event.
func (s *session) readLoop(ctx context.Context) {
	defer close(s.readDone)
	defer close(s.events)

	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			closed := stt.Closed{Code: -1, Reason: err.Error()}
			status := websocket.CloseStatus(err)
			if status != -1 {
				closed.Code = int(status)
			}
			select {
			case <-s.done:
				// Intentional shutdown reads as a normal close even when the
				// server drops the socket without a close frame.
				closed = stt.Closed{Code: stt.CloseCodeNormal, Reason: "session closed"}
			default:
			}
			s.emit(closed)
			return
		}

		ev, ok := parseResponse(msg)
		if !ok {
			continue
		}
		s.emit(ev)
	}
}

// emit delivers ev on the event stream. Interim results are disposable and
// are dropped when the consumer is not draining. Finals, errors, and the
// terminal Closed event change the persisted transcript or end the session,
// so the read loop waits for those, bounded by the close timeout.
func (s *session) emit(ev stt.Event) {
	if res, ok := ev.(stt.Result); ok && !res.IsFinal {
		select {
		case s.events <- ev:
		default:
			s.logger.Debug("deepgram: dropping interim, consumer not draining")
		}
		return
	}

	timer := time.NewTimer(s.closeTimeout)
	defer timer.Stop()
	select {
	case s.events <- ev:
	case <-timer.C:
		s.logger.Warn("deepgram: event delivery timed out, consumer gone",
			"timeout", s.closeTimeout,
		)
	}
}

// parseResponse parses a raw Deepgram WebSocket message into a session event.
// Returns (nil, false) for messages that should be ignored, such as metadata
// and empty interim results.
func parseResponse(data []byte) (stt.Event, bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, false
	}

	switch resp.Type {
	case "Error":
		msg := resp.Description
		if msg == "" {
			msg = resp.Message
		}
		return stt.StreamError{Message: msg}, true
	case "Results", "FinalTranscript":
	default:
		return nil, false
	}

	result := stt.Result{
		IsFinal: resp.IsFinal || resp.Type == "FinalTranscript",
	}

	utterances := resp.Utterances
	if len(utterances) == 0 && len(resp.Channel.Alternatives) > 0 {
		utterances = resp.Channel.Alternatives[0].Utterances
	}
	for _, u := range utterances {
		result.Utterances = append(result.Utterances, stt.Utterance{
			Speaker: u.Speaker,
			Text:    u.Transcript,
		})
	}
	if len(resp.Channel.Alternatives) > 0 {
		result.Text = resp.Channel.Alternatives[0].Transcript
	}

	if len(result.Utterances) == 0 && result.Text == "" {
		return nil, false
	}
	return result, true
}
