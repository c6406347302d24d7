// Package audio defines the microphone capture contract and the PCM
// processing helpers shared by capture implementations.
package audio

import (
	"context"
	"errors"
)

var (
	// ErrDeviceUnavailable indicates that no usable input device could be
	// acquired.
	ErrDeviceUnavailable = errors.New("audio: input device unavailable")

	// ErrInvalidState indicates a lifecycle call that is not valid in the
	// capture's current state, such as Pause before Start.
	ErrInvalidState = errors.New("audio: invalid capture state")
)

// Format describes the sample rate and channel count of a PCM stream.
// Samples are little-endian int16 throughout.
type Format struct {
	SampleRate int
	Channels   int
}

// Capture is a microphone capture device. Start acquires the device and
// begins streaming fixed-interval chunks; the returned channel is closed
// when the capture stops or the device fails.
//
// Pause keeps the device open but suspends chunk delivery, so a paused
// capture resumes without renegotiating the device. Stop releases the
// device; a stopped capture cannot be restarted.
type Capture interface {
	Start(ctx context.Context) (<-chan []byte, error)
	Pause() error
	Resume() error
	Stop() error
}
