// Package capture records one utterance at a time from an exclusively owned
// audio input device.
package capture

import (
	"context"
	"errors"
	"time"

	"github.com/ent0n29/dayroom/internal/audio"
)

var (
	ErrAlreadyRecording = errors.New("recording already active")
	ErrNotRecording     = errors.New("no active recording")
)

// DefaultDeniedMessage is surfaced when the input device cannot be acquired.
const DefaultDeniedMessage = "Microphone access denied."

// Device grants exclusive access to an audio input.
type Device interface {
	// Acquire opens the device and starts producing chunks. It may block
	// while the platform asks for permission.
	Acquire(ctx context.Context) (Stream, error)
}

// Stream is an acquired input. Chunks is closed after Stop once all pending
// audio has been flushed.
type Stream interface {
	Chunks() <-chan []byte
	Tracks() []Track
	ContentType() string
	Stop() error
}

// PCMStream is implemented by streams producing raw PCM16LE; the recorder
// wraps their output in a WAV container.
type PCMStream interface {
	Format() audio.Format
}

// Track is one underlying hardware source held by a Stream.
type Track interface {
	Stop()
}

// Payload is a finalized recording. It is consumed once by the transport.
type Payload struct {
	Data        []byte
	ContentType string
	Chunks      int
	Duration    time.Duration
}

func (p Payload) Empty() bool { return len(p.Data) == 0 }

// DeviceAccessError reports that the input device was denied or unavailable.
type DeviceAccessError struct {
	Message string
	Err     error
}

func (e *DeviceAccessError) Error() string {
	if e.Err == nil {
		return "capture: " + e.Message
	}
	return "capture: " + e.Message + ": " + e.Err.Error()
}

func (e *DeviceAccessError) Unwrap() error { return e.Err }

// UserMessage is the text shown to the user for this failure.
func (e *DeviceAccessError) UserMessage() string { return e.Message }
