// Package brain sends one recorded utterance plus conversation history to the
// remote inference backend and parses its spoken reply.
package brain

import (
	"errors"
	"fmt"

	"github.com/ent0n29/dayroom/internal/capture"
	"github.com/ent0n29/dayroom/internal/memory"
)

// Response headers carrying turn metadata.
const (
	HeaderUserText        = "X-User-Text"
	HeaderAIText          = "X-Ai-Text"
	HeaderComplianceScore = "X-Compliance-Score"
)

const (
	DefaultTurnPath = "/v1/turn"

	fieldAudio   = "audio"
	fieldHistory = "history"
	audioName    = "voice_input"
)

// Messages surfaced to the user for transport failures.
const (
	MessageConnectionLost = "Connection to Brain lost."
	MessageMissingAudio   = "Brain returned no audio."
)

var ErrMissingAudio = errors.New("response body contained no audio")

// TurnRequest is built fresh for every turn and not retained after sending.
type TurnRequest struct {
	TurnID  string
	Audio   capture.Payload
	History []memory.HistoryItem
}

// TurnResponse is the parsed backend reply. ComplianceScore is nil when the
// header was absent or invalid.
type TurnResponse struct {
	Audio           []byte
	ContentType     string
	UserText        string
	AIText          string
	ComplianceScore *int
	StatusCode      int
}

// BackendError is a failed turn: transport failure, non-2xx status, or a
// malformed required response.
type BackendError struct {
	StatusCode int
	Message    string
	Retryable  bool
	Err        error
}

func (e *BackendError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("brain: status %d: %s: %v", e.StatusCode, e.Message, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("brain: status %d: %s", e.StatusCode, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("brain: %s: %v", e.Message, e.Err)
	default:
		return "brain: " + e.Message
	}
}

func (e *BackendError) Unwrap() error { return e.Err }

func (e *BackendError) UserMessage() string { return e.Message }
