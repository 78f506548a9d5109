package internal

import (
	"time"
)

// MessageType identifies the kind of line exchanged with a client.
type MessageType int

// Message types for different kinds of messages
const (
	MessageTypeBroadcast MessageType = iota
	MessageTypePrivate
	MessageTypeSent
	MessageTypeRoster
	MessageTypeError
)

func (t MessageType) String() string {
	switch t {
	case MessageTypeBroadcast:
		return "broadcast"
	case MessageTypePrivate:
		return "private"
	case MessageTypeSent:
		return "sent"
	case MessageTypeRoster:
		return "roster"
	case MessageTypeError:
		return "error"
	default:
		return "unknown"
	}
}

// Message represents a chat message. It only lives while a line is being
// built or decoded and is never stored as an object.
type Message struct {
	Type      MessageType
	From      string
	To        string // For private messages
	Content   string
	Users     []string // For roster messages
	Timestamp time.Time
}

// CommandKind classifies a line received from an active session.
type CommandKind int

const (
	CommandBroadcast CommandKind = iota
	CommandPrivate
	CommandExit
	CommandMalformed
)

// Command is a decoded client line.
type Command struct {
	Kind      CommandKind
	Recipient string
	Body      string
}
