package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	MinComplianceScore = 0
	MaxComplianceScore = 100
)

var ErrInvalidTransition = errors.New("invalid status transition")

// State is the observable value of one interaction session.
type State struct {
	ID              string    `json:"session_id"`
	Status          Status    `json:"status"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	ComplianceScore int       `json:"compliance_score"`
	TurnID          string    `json:"turn_id,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// HasError reports whether an error message is currently set.
func (s State) HasError() bool { return s.ErrorMessage != "" }

// Machine owns the session State. All mutation goes through its named
// transitions; readers get copies.
type Machine struct {
	mu          sync.RWMutex
	state       State
	subscribers map[int]chan State
	nextSubID   int
	onChange    func(from, to State)
}

func NewMachine(initialScore int) *Machine {
	if !ValidComplianceScore(initialScore) {
		initialScore = 50
	}
	return &Machine{
		state: State{
			ID:              uuid.NewString(),
			Status:          StatusIdle,
			ComplianceScore: initialScore,
			UpdatedAt:       time.Now().UTC(),
		},
		subscribers: make(map[int]chan State),
	}
}

// SetChangeHook registers a function invoked after every state change.
func (m *Machine) SetChangeHook(hook func(from, to State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = hook
}

func (m *Machine) Snapshot() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Machine) Status() Status {
	return m.Snapshot().Status
}

// BeginRecording moves idle or error to recording and clears the last error.
func (m *Machine) BeginRecording(turnID string) error {
	return m.update(func(s *State) error {
		if !s.Status.CanStartRecording() {
			return transitionError(s.Status, StatusRecording)
		}
		s.Status = StatusRecording
		s.ErrorMessage = ""
		s.TurnID = turnID
		return nil
	})
}

func (m *Machine) BeginThinking() error {
	return m.moveTo(StatusThinking)
}

func (m *Machine) BeginSpeaking() error {
	return m.moveTo(StatusSpeaking)
}

// Complete ends a turn after playback finished naturally.
func (m *Machine) Complete() error {
	return m.update(func(s *State) error {
		if !canTransition(s.Status, StatusIdle) {
			return transitionError(s.Status, StatusIdle)
		}
		s.Status = StatusIdle
		s.TurnID = ""
		return nil
	})
}

// Fail records message and moves to error. Failing while already in error
// only replaces the message.
func (m *Machine) Fail(message string) error {
	if message == "" {
		message = "unknown error"
	}
	return m.update(func(s *State) error {
		if s.Status != StatusError && !canTransition(s.Status, StatusError) {
			return transitionError(s.Status, StatusError)
		}
		s.Status = StatusError
		s.ErrorMessage = message
		return nil
	})
}

// SetComplianceScore stores score when it lies in [0,100]; it reports
// whether the score was applied.
func (m *Machine) SetComplianceScore(score int) bool {
	if !ValidComplianceScore(score) {
		return false
	}
	_ = m.update(func(s *State) error {
		s.ComplianceScore = score
		return nil
	})
	return true
}

// Subscribe returns a channel that receives the latest state after every
// change. Slow readers miss intermediate states, never the latest one.
func (m *Machine) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)
	m.mu.Lock()
	id := m.nextSubID
	m.nextSubID++
	m.subscribers[id] = ch
	ch <- m.state
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subscribers, id)
			m.mu.Unlock()
		})
	}
}

func ValidComplianceScore(score int) bool {
	return score >= MinComplianceScore && score <= MaxComplianceScore
}

func (m *Machine) moveTo(to Status) error {
	return m.update(func(s *State) error {
		if !canTransition(s.Status, to) {
			return transitionError(s.Status, to)
		}
		s.Status = to
		return nil
	})
}

func (m *Machine) update(fn func(*State) error) error {
	m.mu.Lock()
	prev := m.state
	next := prev
	if err := fn(&next); err != nil {
		m.mu.Unlock()
		return err
	}
	next.UpdatedAt = time.Now().UTC()
	m.state = next
	for _, ch := range m.subscribers {
		publish(ch, next)
	}
	hook := m.onChange
	m.mu.Unlock()

	if hook != nil {
		hook(prev, next)
	}
	return nil
}

// publish replaces any unread state so the channel always holds the newest.
func publish(ch chan State, s State) {
	select {
	case ch <- s:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- s:
	default:
	}
}

func transitionError(from, to Status) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
