package shared

// MessageType identifiziert eine Nachricht der WebSocket-Kommunikation.
type MessageType string

const (
	// Client -> Server
	MessageTypeRun   MessageType = "run"   // Programm ausführen (content oder name)
	MessageTypeInput MessageType = "input" // Antwort auf einen Prompt

	// Server -> Client
	MessageTypeSession MessageType = "session" // Session-ID Übermittlung
	MessageTypeText    MessageType = "text"    // Eine Ausgabezeile
	MessageTypePrompt  MessageType = "prompt"  // Eingabe anfordern
	MessageTypeDone    MessageType = "done"    // Programm beendet
	MessageTypeError   MessageType = "error"   // Programm oder Protokoll fehlgeschlagen
)

// Message is one JSON frame on the terminal websocket.
type Message struct {
	Type    MessageType `json:"type"`
	Content string      `json:"content,omitempty"`

	// Für RUN: gespeichertes Programm statt content
	Name string `json:"name,omitempty"`

	// Für SESSION und DONE
	SessionID string `json:"sessionId,omitempty"`
	RunID     string `json:"runId,omitempty"`

	// Für ERROR
	Error *ErrorInfo `json:"error,omitempty"`
}

// ErrorInfo describes a failed run. Category is empty for transport errors.
type ErrorInfo struct {
	Category string `json:"category,omitempty"`
	Message  string `json:"message"`
	Command  string `json:"command,omitempty"`
	Line     int    `json:"line,omitempty"`
}

// Text builds a text message.
func Text(content string) Message {
	return Message{Type: MessageTypeText, Content: content}
}

// Prompt builds a prompt message.
func Prompt(content string) Message {
	return Message{Type: MessageTypePrompt, Content: content}
}

// Fail builds an error message without interpreter details.
func Fail(message string) Message {
	return Message{Type: MessageTypeError, Error: &ErrorInfo{Message: message}}
}
