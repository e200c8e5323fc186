package relay

import (
	"errors"
)

type EventType string

const (
	EventStart   EventType = "start"
	EventContent EventType = "content"
	EventEnd     EventType = "end"
	EventError   EventType = "error"
)

type Tokens struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

// Event is one element of a streamed turn. Fields not meaningful for a type
// are omitted on the wire.
type Event struct {
	Type      EventType `json:"type"`
	Model     string    `json:"model,omitempty"`
	Content   string    `json:"content,omitempty"`
	MessageID string    `json:"message_id,omitempty"`
	Tokens    *Tokens   `json:"tokens,omitempty"`
	Cost      *float64  `json:"cost,omitempty"`
	Error     string    `json:"error,omitempty"`
}

func (e Event) Terminal() bool {
	return e.Type == EventEnd || e.Type == EventError
}

var (
	ErrInsufficientFunds = errors.New("insufficient balance")
	ErrGatewayFailure    = errors.New("ai provider request failed")
	ErrStorageFailure    = errors.New("storage failure")
	ErrEmptyMessage      = errors.New("message content is required")
)

// userFacing turns a turn failure into the text carried by an error event.
func userFacing(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientFunds):
		return "Insufficient balance"
	case errors.Is(err, ErrStorageFailure):
		return "Failed to save the reply"
	default:
		return err.Error()
	}
}
