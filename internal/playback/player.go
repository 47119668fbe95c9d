// Package playback plays brain replies through an exclusively owned audio
// output.
package playback

import (
	"context"
	"errors"
)

// Messages surfaced to the user for playback failures.
const (
	DefaultBlockedMessage = "Audio playback blocked."
	MessageFailed         = "Audio playback failed."
)

// ErrInterrupted is delivered on Done when a playback was stopped before it
// ended naturally.
var ErrInterrupted = errors.New("playback interrupted")

// Player starts playback of one reply.
type Player interface {
	Start(ctx context.Context, audio []byte, contentType string) (Playback, error)
}

// Playback is one live output. Done yields exactly one value, nil on natural
// end, and is then closed. Stop is idempotent and releases every resource
// the playback holds.
type Playback interface {
	Done() <-chan error
	Stop()
}

// PlaybackError reports that the output refused to start playing.
type PlaybackError struct {
	Message string
	Err     error
}

func (e *PlaybackError) Error() string {
	if e.Err == nil {
		return "playback: " + e.Message
	}
	return "playback: " + e.Message + ": " + e.Err.Error()
}

func (e *PlaybackError) Unwrap() error { return e.Err }

func (e *PlaybackError) UserMessage() string { return e.Message }
