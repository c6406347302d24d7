package audio

import "log/slog"

// Chunker reassembles arbitrarily sized PCM buffers into the fixed frames a
// FrameEncoder expects. Device callbacks rarely align with the encoder frame
// size, so the chunker buffers the remainder between pushes.
// Not safe for concurrent use.
type Chunker struct {
	enc FrameEncoder
	buf []byte
}

// NewChunker creates a Chunker feeding enc.
func NewChunker(enc FrameEncoder) *Chunker {
	return &Chunker{enc: enc}
}

// Push appends pcm to the internal buffer and returns every complete encoded
// frame now available. Frames that fail to encode are dropped with a log
// entry rather than stalling the stream.
func (c *Chunker) Push(pcm []byte) [][]byte {
	c.buf = append(c.buf, pcm...)
	size := c.enc.FrameBytes()
	if size <= 0 {
		out := [][]byte{c.buf}
		c.buf = nil
		return out
	}

	var frames [][]byte
	for len(c.buf) >= size {
		frame := make([]byte, size)
		copy(frame, c.buf[:size])
		c.buf = c.buf[size:]

		encoded, err := c.enc.EncodeFrame(frame)
		if err != nil {
			slog.Warn("audio: dropping frame", "error", err)
			continue
		}
		frames = append(frames, encoded)
	}
	return frames
}

// Flush encodes the buffered remainder, zero-padded to a full frame. Returns
// nil when nothing is buffered.
func (c *Chunker) Flush() []byte {
	if len(c.buf) == 0 {
		return nil
	}
	size := c.enc.FrameBytes()
	frame := c.buf
	if size > 0 && len(frame) < size {
		frame = append(frame, make([]byte, size-len(frame))...)
	}
	c.buf = nil

	encoded, err := c.enc.EncodeFrame(frame)
	if err != nil {
		slog.Warn("audio: dropping tail frame", "error", err)
		return nil
	}
	return encoded
}
