// Package command defines the values an application submits to a peer:
// start a call, hang up, send media, measure lag, shut down.
package command

import "fmt"

// Type tags a Command.
type Type int

const (
	TypeUnknown Type = iota
	// TypeNew originates a call; the payload is an iax2: URI.
	TypeNew
	// TypeHangup tears down a call.
	TypeHangup
	// TypeAudio sends an audio payload as a MINI frame.
	TypeAudio
	// TypeVideo sends a video payload as a META-VIDEO frame.
	TypeVideo
	// TypeText sends a text message as a FULL TEXT frame.
	TypeText
	// TypeLagRq starts a lag measurement; the payload is an iax2: URI.
	TypeLagRq
	// TypeShutdown stops the peer's run loop.
	TypeShutdown
)

func (t Type) String() string {
	switch t {
	case TypeNew:
		return "NEW"
	case TypeHangup:
		return "HANGUP"
	case TypeAudio:
		return "AUDIO"
	case TypeVideo:
		return "VIDEO"
	case TypeText:
		return "TEXT"
	case TypeLagRq:
		return "LAGRQ"
	case TypeShutdown:
		return "SHUTDOWN"
	}
	return "UNKNOWN"
}

// Command is one unit of work submitted by the application, addressed to a
// dialog by call number (0 for peer-level commands such as shutdown).
// At most one of the payload fields is set, per the command type; commands
// built with New carry none.
type Command struct {
	typ     Type
	callNum uint16

	str string
	raw []byte
}

// New builds a command carrying no payload.
func New(t Type, callNum uint16) *Command {
	return &Command{typ: t, callNum: callNum}
}

// NewString builds a command carrying a string payload (URIs, text).
func NewString(t Type, callNum uint16, s string) *Command {
	return &Command{typ: t, callNum: callNum, str: s}
}

// NewRaw builds a command carrying a raw media payload.
func NewRaw(t Type, callNum uint16, data []byte) *Command {
	return &Command{typ: t, callNum: callNum, raw: append([]byte(nil), data...)}
}

func (c *Command) Type() Type      { return c.typ }
func (c *Command) CallNum() uint16 { return c.callNum }

// Str returns the string payload, empty when the command carries none.
func (c *Command) Str() string { return c.str }

// Raw returns the raw payload, nil when the command carries none.
func (c *Command) Raw() []byte { return c.raw }

func (c *Command) String() string {
	switch {
	case c.str != "":
		return fmt.Sprintf("[IAX2-Command] Type: %s  Call: %d  Payload: %s", c.typ, c.callNum, c.str)
	case c.raw != nil:
		return fmt.Sprintf("[IAX2-Command] Type: %s  Call: %d  Payload: %d bytes", c.typ, c.callNum, len(c.raw))
	}
	return fmt.Sprintf("[IAX2-Command] Type: %s  Call: %d", c.typ, c.callNum)
}
