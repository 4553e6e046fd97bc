package ws

import "encoding/json"

// Envelope wraps every inbound WS frame.
type Envelope struct {
	Type string          `json:"type"`           // "attack" | "chat"
	Body json.RawMessage `json:"body,omitempty"` // message-specific payload
}

// ChatBody is the body for "chat".
type ChatBody struct {
	Message string `json:"message" validate:"required"`
}

// ErrorMessage is unicast to the offending connection only.
type ErrorMessage struct {
	Type    string `json:"type"` // always "error"
	Message string `json:"message"`
}

func errorMessage(msg string) ErrorMessage {
	return ErrorMessage{Type: "error", Message: msg}
}
