package internal

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Wire constants of the line protocol.
const (
	CommandExitLine = "EXIT"

	PrefixPrivate = "PRIVATE:"
	PrefixSent    = "SENT:"
	PrefixUsers   = "USERS:"
	PrefixError   = "ERROR:"

	ReasonNameTaken = "Username already exists"

	TimeLayout = "15:04:05"
)

// ErrMalformed is returned when a server line does not match any known form.
var ErrMalformed = errors.New("malformed protocol line")

// ParseCommand decodes one line sent by an active session.
func ParseCommand(line string) Command {
	if line == CommandExitLine {
		return Command{Kind: CommandExit}
	}
	if !strings.HasPrefix(line, PrefixPrivate) {
		return Command{Kind: CommandBroadcast, Body: line}
	}
	parts := strings.SplitN(line, ":", 3)
	if len(parts) != 3 {
		return Command{Kind: CommandMalformed, Body: line}
	}
	return Command{Kind: CommandPrivate, Recipient: parts[1], Body: parts[2]}
}

// PrivateRequest formats the client line asking the server to deliver body to recipient.
func PrivateRequest(recipient, body string) string {
	return PrefixPrivate + recipient + ":" + body
}

// FormatMessage renders msg as a single server line without the trailing newline.
func FormatMessage(msg Message) string {
	timestamp := msg.Timestamp.Format(TimeLayout)
	switch msg.Type {
	case MessageTypePrivate:
		return fmt.Sprintf("%s%s:%s:%s", PrefixPrivate, timestamp, msg.From, msg.Content)
	case MessageTypeSent:
		return fmt.Sprintf("%s%s:%s:%s", PrefixSent, timestamp, msg.To, msg.Content)
	case MessageTypeRoster:
		return fmt.Sprintf("%s%d:%s", PrefixUsers, len(msg.Users), strings.Join(msg.Users, ","))
	case MessageTypeError:
		return PrefixError + msg.Content
	default:
		return fmt.Sprintf("[%s] %s: %s", timestamp, msg.From, msg.Content)
	}
}

// ParseServerLine decodes a line produced by FormatMessage.
// Timestamps carry only the clock, the date part is zero.
func ParseServerLine(line string) (Message, error) {
	switch {
	case strings.HasPrefix(line, PrefixUsers):
		parts := strings.SplitN(line, ":", 3)
		if len(parts) != 3 {
			return Message{}, fmt.Errorf("%w: %q", ErrMalformed, line)
		}
		count, err := strconv.Atoi(parts[1])
		if err != nil || count < 0 {
			return Message{}, fmt.Errorf("%w: bad roster count %q", ErrMalformed, parts[1])
		}
		users := []string{}
		if parts[2] != "" {
			users = strings.Split(parts[2], ",")
		}
		if count != len(users) {
			return Message{}, fmt.Errorf("%w: roster count %d for %d names", ErrMalformed, count, len(users))
		}
		return Message{Type: MessageTypeRoster, Users: users}, nil

	case strings.HasPrefix(line, PrefixError):
		return Message{Type: MessageTypeError, Content: strings.TrimPrefix(line, PrefixError)}, nil

	case strings.HasPrefix(line, PrefixPrivate), strings.HasPrefix(line, PrefixSent):
		// the clock itself contains two separators
		parts := strings.SplitN(line, ":", 6)
		if len(parts) != 6 {
			return Message{}, fmt.Errorf("%w: %q", ErrMalformed, line)
		}
		ts, err := time.Parse(TimeLayout, strings.Join(parts[1:4], ":"))
		if err != nil {
			return Message{}, fmt.Errorf("%w: bad time in %q", ErrMalformed, line)
		}
		msg := Message{Timestamp: ts, Content: parts[5]}
		if parts[0]+":" == PrefixPrivate {
			msg.Type = MessageTypePrivate
			msg.From = parts[4]
		} else {
			msg.Type = MessageTypeSent
			msg.To = parts[4]
		}
		return msg, nil

	case strings.HasPrefix(line, "["):
		closeIdx := strings.Index(line, "] ")
		if closeIdx < 0 {
			return Message{}, fmt.Errorf("%w: %q", ErrMalformed, line)
		}
		ts, err := time.Parse(TimeLayout, line[1:closeIdx])
		if err != nil {
			return Message{}, fmt.Errorf("%w: bad time in %q", ErrMalformed, line)
		}
		rest := line[closeIdx+2:]
		colonIdx := strings.Index(rest, ": ")
		if colonIdx <= 0 {
			return Message{}, fmt.Errorf("%w: %q", ErrMalformed, line)
		}
		return Message{
			Type:      MessageTypeBroadcast,
			From:      rest[:colonIdx],
			Content:   rest[colonIdx+2:],
			Timestamp: ts,
		}, nil
	}
	return Message{}, fmt.Errorf("%w: %q", ErrMalformed, line)
}
