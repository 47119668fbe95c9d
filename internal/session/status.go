package session

import "fmt"

// Status is the single active stage of the voice link.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRecording Status = "recording"
	StatusThinking  Status = "thinking"
	StatusSpeaking  Status = "speaking"
	StatusError     Status = "error"
)

// transitions lists every legal edge. Error is reachable from any non-error
// stage; a new recording may start from idle or error.
var transitions = map[Status][]Status{
	StatusIdle:      {StatusRecording, StatusError},
	StatusRecording: {StatusThinking, StatusError},
	StatusThinking:  {StatusSpeaking, StatusError},
	StatusSpeaking:  {StatusIdle, StatusError},
	StatusError:     {StatusRecording},
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanStartRecording reports whether a recording may begin from s.
func (s Status) CanStartRecording() bool {
	return s == StatusIdle || s == StatusError
}

func canTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ParseStatus converts a wire value into a Status.
func ParseStatus(v string) (Status, error) {
	s := Status(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown status %q", v)
	}
	return s, nil
}
