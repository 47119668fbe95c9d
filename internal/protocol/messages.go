package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientControl MessageType = "client_control"
	TypeLinkState     MessageType = "link_state"
	TypeSystemEvent   MessageType = "system_event"
	TypeErrorEvent    MessageType = "error_event"
)

// Client control actions.
const (
	ActionStart = "start"
	ActionStop  = "stop"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

type ClientControl struct {
	Type   MessageType `json:"type"`
	Action string      `json:"action"`
	TSMs   int64       `json:"ts_ms,omitempty"`
}

// LinkState mirrors the session state for HUD collaborators. ErrorMessage
// is null when there is no error.
type LinkState struct {
	Type            MessageType `json:"type"`
	SessionID       string      `json:"session_id"`
	Status          string      `json:"status"`
	ErrorMessage    *string     `json:"error_message"`
	ComplianceScore int         `json:"compliance_score"`
	TurnID          string      `json:"turn_id,omitempty"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

type SystemEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Detail    string      `json:"detail,omitempty"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

// NewLinkState builds a link_state message.
func NewLinkState(sessionID, status, errorMessage string, score int, turnID string, updatedAt time.Time) LinkState {
	msg := LinkState{
		Type:            TypeLinkState,
		SessionID:       sessionID,
		Status:          status,
		ComplianceScore: score,
		TurnID:          turnID,
		UpdatedAt:       updatedAt,
	}
	if errorMessage != "" {
		msg.ErrorMessage = &errorMessage
	}
	return msg
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		switch msg.Action {
		case ActionStart, ActionStop:
		case "":
			return nil, errors.New("invalid client_control: missing action")
		default:
			return nil, fmt.Errorf("invalid client_control: unknown action %q", msg.Action)
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
