package main

import (
	"fmt"
	"strings"

	"github.com/horgh/irc"
	"github.com/pkg/errors"
)

// Command is a parsed, arity-checked IRC client command. It is a tagged
// union implemented as a small interface with an unexported marker method
// and one struct per wire command, the idiomatic substitute for a sum type.
type Command interface {
	isCommand()
}

// Nick is the NICK command: the client proposing (or changing to) a
// nickname.
type Nick struct {
	Nick string
}

func (Nick) isCommand() {}

// User is the USER command: the client's login name, mode, and real name.
//
// The third wire parameter (intended by RFC 2812 to be a hostname) is
// dropped. This matches the behavior of the source this project descends
// from, which reads only parameters 1, 2, and 4.
type User struct {
	User     string
	Mode     string
	RealName string
}

func (User) isCommand() {}

// Quit is the QUIT command. Message defaults to "Client Quit" if the client
// did not supply one.
type Quit struct {
	Message string
}

func (Quit) isCommand() {}

// Privmsg is the PRIVMSG command.
type Privmsg struct {
	Target string
	Text   string
}

func (Privmsg) isCommand() {}

// Notice is the NOTICE command. Unlike PRIVMSG, a missing target never
// generates a reply.
type Notice struct {
	Target string
	Text   string
}

func (Notice) isCommand() {}

// Ping is the PING command.
type Ping struct{}

func (Ping) isCommand() {}

// Pong is the PONG command. We never act on it: there is no liveness
// accounting in this server.
type Pong struct{}

func (Pong) isCommand() {}

// Motd is the MOTD command.
type Motd struct{}

func (Motd) isCommand() {}

// Lusers is the LUSERS command.
type Lusers struct{}

func (Lusers) isCommand() {}

// Whois is the WHOIS command. We only support a single nickname target, no
// mask and no server target.
type Whois struct {
	Target string
}

func (Whois) isCommand() {}

// Unknown is any command token we don't recognize.
type Unknown struct {
	Command string
}

func (Unknown) isCommand() {}

// Parse parses one wire protocol line into a Command.
//
// It leans on github.com/horgh/irc's ParseMessage to do the RFC 2812
// grammar-level work (optional prefix, command token, middle/trailing
// parameter splitting, CRLF normalization including tolerating a bare LF).
// On top of that this function applies the fixed arity table this project
// cares about and produces the tagged Command values above.
//
// A parameter-count mismatch on an exact-arity command is a parse error:
// the caller should log it and discard the line without replying to the
// client.
func Parse(line string) (Command, error) {
	m, err := irc.ParseMessage(normalizeLineEnding(line))
	if err != nil {
		return nil, errors.Wrap(err, "malformed message")
	}

	switch m.Command {
	case "NICK":
		if len(m.Params) != 1 {
			return nil, fmt.Errorf("NICK needs exactly 1 parameter, got %d", len(m.Params))
		}
		return Nick{Nick: m.Params[0]}, nil

	case "USER":
		if len(m.Params) != 4 {
			return nil, fmt.Errorf("USER needs exactly 4 parameters, got %d", len(m.Params))
		}
		return User{
			User:     m.Params[0],
			Mode:     m.Params[1],
			RealName: m.Params[3],
		}, nil

	case "QUIT":
		if len(m.Params) == 0 {
			return Quit{Message: "Client Quit"}, nil
		}
		if len(m.Params) != 1 {
			return nil, fmt.Errorf("QUIT takes 0 or 1 parameters, got %d", len(m.Params))
		}
		return Quit{Message: m.Params[0]}, nil

	case "PRIVMSG":
		if len(m.Params) != 2 {
			return nil, fmt.Errorf("PRIVMSG needs exactly 2 parameters, got %d", len(m.Params))
		}
		return Privmsg{Target: m.Params[0], Text: m.Params[1]}, nil

	case "NOTICE":
		if len(m.Params) != 2 {
			return nil, fmt.Errorf("NOTICE needs exactly 2 parameters, got %d", len(m.Params))
		}
		return Notice{Target: m.Params[0], Text: m.Params[1]}, nil

	case "PING":
		return Ping{}, nil

	case "PONG":
		return Pong{}, nil

	case "MOTD":
		return Motd{}, nil

	case "LUSERS":
		return Lusers{}, nil

	case "WHOIS":
		if len(m.Params) != 1 {
			return nil, fmt.Errorf("WHOIS needs exactly 1 parameter, got %d", len(m.Params))
		}
		return Whois{Target: m.Params[0]}, nil

	default:
		return Unknown{Command: m.Command}, nil
	}
}

// normalizeLineEnding ensures the line ends in CRLF, which is what
// irc.ParseMessage expects. The wire reader (Conn.ReadLine) hands us lines
// with whatever terminator the client sent, a bare LF or CRLF, and a partial
// line read just before EOF has none; any of these is trimmed and a CRLF
// put back.
func normalizeLineEnding(line string) string {
	line = strings.TrimRight(line, "\r\n")
	return line + "\r\n"
}
