package internal

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// CommandFunc represents a console command handler function
type CommandFunc func(s *Server, args []string) (string, error)

// ErrQuit is returned for the console quit command.
var ErrQuit = errors.New("quit requested")

const consoleHelp = `Available commands:
/help           - Show this help
/list           - List online users
/stats          - Show message and client counters
/kick <user>    - Disconnect a user
/quit           - Stop the server
Anything else is broadcast to everyone as "Server".`

var consoleCommands = map[string]CommandFunc{
	"help": func(s *Server, args []string) (string, error) {
		return consoleHelp, nil
	},

	"list": func(s *Server, args []string) (string, error) {
		var users []string
		for _, sess := range s.registry.Sessions() {
			users = append(users, fmt.Sprintf("%s (since %s)", sess.Name(), sess.JoinTime().Format(TimeLayout)))
		}
		return fmt.Sprintf("Online users (%d):\n%s", len(users), strings.Join(users, "\n")), nil
	},

	"stats": func(s *Server, args []string) (string, error) {
		messages, clients := s.router.Stats()
		return fmt.Sprintf("Messages: %d | Clients: %d", messages, clients), nil
	},

	"kick": func(s *Server, args []string) (string, error) {
		if len(args) < 1 {
			return "", fmt.Errorf("usage: /kick <user>")
		}
		if !s.Kick(args[0]) {
			return "", fmt.Errorf("user %s not found", args[0])
		}
		return fmt.Sprintf("%s kicked", args[0]), nil
	},

	"quit": func(s *Server, args []string) (string, error) {
		return "", ErrQuit
	},
}

// ExecConsole runs one line typed on the server console. Slash commands are
// dispatched to handlers, anything else is announced to all sessions.
func (s *Server) ExecConsole(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", nil
	}
	if !strings.HasPrefix(input, "/") {
		s.Announce(input)
		return "", nil
	}

	parts := strings.Fields(input)
	command := strings.TrimPrefix(parts[0], "/")
	handler, exists := consoleCommands[command]
	if !exists {
		return "", fmt.Errorf("unknown command %q, type /help for available commands", command)
	}
	return handler(s, parts[1:])
}

func consoleTime() string {
	return time.Now().Format(TimeLayout)
}
