package voice

import (
	"github.com/ent0n29/dayroom/internal/brain"
	"github.com/ent0n29/dayroom/internal/capture"
)

type eventKind int

const (
	evStartRequested eventKind = iota
	evStopRequested
	evDeviceAcquired
	evRecordingFinalized
	evBrainReplied
	evPlaybackEnded
)

func (k eventKind) String() string {
	switch k {
	case evStartRequested:
		return "start_requested"
	case evStopRequested:
		return "stop_requested"
	case evDeviceAcquired:
		return "device_acquired"
	case evRecordingFinalized:
		return "recording_finalized"
	case evBrainReplied:
		return "brain_replied"
	case evPlaybackEnded:
		return "playback_ended"
	default:
		return "unknown"
	}
}

// event is one completion delivered into the controller loop. Completions
// carry the turn they belong to so late ones can be discarded.
type event struct {
	kind    eventKind
	turnID  string
	err     error
	payload capture.Payload
	reply   brain.TurnResponse
}
