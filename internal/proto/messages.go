package proto

import "encoding/json"

type MessageType string

const (
	MsgAlive MessageType = "alive" // periodic presence beacon
	MsgChat  MessageType = "chat"
	MsgGame  MessageType = "game" // hosted game announcement
	MsgQuit  MessageType = "quit"
)

func (t MessageType) Known() bool {
	switch t {
	case MsgAlive, MsgChat, MsgGame, MsgQuit:
		return true
	}
	return false
}

// Envelope is the JSON object carried in every lobby datagram after the
// message id.
type Envelope struct {
	Type MessageType `json:"type"`
	// Session is random per process so a lobby can recognise its own
	// broadcasts coming back.
	Session string          `json:"session"`
	Name    string          `json:"name"`
	Body    json.RawMessage `json:"body,omitempty"`
}

// Chat is the body of a chat envelope.
type Chat struct {
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}
