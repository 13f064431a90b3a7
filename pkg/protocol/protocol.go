// Package protocol implements the autocomplete wire format.
//
// A client sends one command per flush and waits for one response:
//
//	get <prefix>   ranked matches for prefix, answered as "w1,w2,w3"
//	-closed        the client is about to disconnect; no answer is sent
//
// Anything else is answered with a single space, which is also the answer to
// a get with no matches. Messages carry no length prefix or terminator: a
// message is whatever the receiver can drain from the socket before it goes
// idle (see ReadFrame).
package protocol

import "strings"

const (
	// ClosedSentinel announces an intentional disconnect.
	ClosedSentinel = "-closed"
	// GetCommand requests ranked matches for a prefix.
	GetCommand = "get"
	// EmptyResponse answers a get without matches and any malformed command.
	EmptyResponse = " "
)

// Kind classifies a received frame.
type Kind int

const (
	Malformed Kind = iota
	Get
	Closed
)

func (k Kind) String() string {
	switch k {
	case Get:
		return "get"
	case Closed:
		return "closed"
	default:
		return "malformed"
	}
}

// Command is a parsed client frame.
type Command struct {
	Kind   Kind
	Prefix string
}

// ParseCommand recognises the two commands. Tokens are separated by any
// whitespace, so a trailing newline from line-oriented clients is tolerated.
func ParseCommand(frame string) Command {
	if strings.TrimSpace(frame) == ClosedSentinel {
		return Command{Kind: Closed}
	}
	fields := strings.Fields(frame)
	if len(fields) == 2 && fields[0] == GetCommand {
		return Command{Kind: Get, Prefix: fields[1]}
	}
	return Command{Kind: Malformed}
}

// FormatGet builds the get command for prefix.
func FormatGet(prefix string) string {
	return GetCommand + " " + prefix
}

// FormatResponse joins matches with commas, or returns EmptyResponse when
// there are none.
func FormatResponse(matches []string) string {
	if len(matches) == 0 {
		return EmptyResponse
	}
	return strings.Join(matches, ",")
}

// ParseResponse is the inverse of FormatResponse.
func ParseResponse(resp string) []string {
	if resp == EmptyResponse || resp == "" {
		return nil
	}
	return strings.Split(resp, ",")
}
