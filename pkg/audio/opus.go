package audio

import (
	"fmt"

	"layeh.com/gopus"
)

// Streams run 48 kHz mono Opus at 20 ms frame size.
const (
	OpusSampleRate  = 48000
	OpusChannels    = 1
	opusFrameSizeMs = 20
	// OpusFrameSamples is the number of samples per channel per 20 ms frame.
	OpusFrameSamples = OpusSampleRate * opusFrameSizeMs / 1000 // 960
	// OpusFrameBytes is the PCM byte size of one mono 20 ms frame.
	OpusFrameBytes = OpusFrameSamples * 2
)

// FrameEncoder encodes one fixed-size PCM frame for upload. The input is
// little-endian int16 PCM.
type FrameEncoder interface {
	EncodeFrame(pcm []byte) ([]byte, error)
	// FrameBytes is the exact PCM byte size EncodeFrame expects.
	FrameBytes() int
}

// PCMEncoder passes PCM frames through unchanged, for streams that upload
// linear16 directly. FrameSize is the PCM byte size of one chunk.
type PCMEncoder struct {
	FrameSize int
}

func (e PCMEncoder) EncodeFrame(pcm []byte) ([]byte, error) { return pcm, nil }
func (e PCMEncoder) FrameBytes() int                        { return e.FrameSize }

// OpusEncoder compresses mono 48 kHz PCM into Opus packets. Encoder state
// carries across frames, so use one encoder per stream.
type OpusEncoder struct {
	enc *gopus.Encoder
}

// NewOpusEncoder creates an Opus encoder for the stream format.
func NewOpusEncoder() (*OpusEncoder, error) {
	enc, err := gopus.NewEncoder(OpusSampleRate, OpusChannels, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("audio: create opus encoder: %w", err)
	}
	return &OpusEncoder{enc: enc}, nil
}

// EncodeFrame encodes one 20 ms mono PCM frame into an Opus packet.
func (e *OpusEncoder) EncodeFrame(pcm []byte) ([]byte, error) {
	if len(pcm) != OpusFrameBytes {
		return nil, fmt.Errorf("audio: opus encode: frame is %d bytes, want %d", len(pcm), OpusFrameBytes)
	}
	opus, err := e.enc.Encode(BytesToInt16s(pcm), OpusFrameSamples, len(pcm))
	if err != nil {
		return nil, fmt.Errorf("audio: opus encode: %w", err)
	}
	return opus, nil
}

// FrameBytes returns the PCM byte size of one 20 ms mono frame.
func (e *OpusEncoder) FrameBytes() int { return OpusFrameBytes }
