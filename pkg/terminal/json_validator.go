package terminal

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/antibyte/simplimath/pkg/shared"
	"github.com/antibyte/simplimath/pkg/store"
)

// Sicherheitskonstanten für Nachrichten-Validierung
const (
	MaxProgramLen = 256 * 1024 // Maximale Programmlänge in Bytes
	MaxInputLen   = 4096       // Maximale Länge einer Eingabezeile
)

var (
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrMessageTooLong     = errors.New("message content too long")
	ErrInvalidEncoding    = errors.New("message content is not valid UTF-8")
)

// MessageValidator checks frames received from terminal clients.
type MessageValidator struct {
	MaxProgramLen int
	MaxInputLen   int
}

// NewMessageValidator returns a validator with the default limits.
func NewMessageValidator() *MessageValidator {
	return &MessageValidator{
		MaxProgramLen: MaxProgramLen,
		MaxInputLen:   MaxInputLen,
	}
}

// Decode parses one client frame and validates it. Unknown fields are rejected.
func (v *MessageValidator) Decode(data []byte) (*shared.Message, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()

	var msg shared.Message
	if err := decoder.Decode(&msg); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if decoder.More() {
		return nil, fmt.Errorf("invalid JSON: trailing data")
	}
	if err := v.Validate(&msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Validate checks the fields a client may set for msg.Type.
func (v *MessageValidator) Validate(msg *shared.Message) error {
	if !utf8.ValidString(msg.Content) {
		return ErrInvalidEncoding
	}
	switch msg.Type {
	case shared.MessageTypeRun:
		if msg.Name != "" {
			if msg.Content != "" {
				return fmt.Errorf("run message needs either content or name, not both")
			}
			if !store.ValidName(msg.Name) {
				return fmt.Errorf("invalid program name %q", msg.Name)
			}
			return nil
		}
		if len(msg.Content) > v.MaxProgramLen {
			return ErrMessageTooLong
		}
	case shared.MessageTypeInput:
		if len(msg.Content) > v.MaxInputLen {
			return ErrMessageTooLong
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMessageType, msg.Type)
	}
	return nil
}
