// Package event defines the values a peer delivers to application
// handlers: registration lifecycle, call lifecycle, media, lag results.
package event

import "fmt"

// Type tags an Event.
type Type int

const (
	TypeUndefined Type = iota
	// TypeRegistrationNew: a peer completed an inbound registration.
	// Payload: username.
	TypeRegistrationNew
	// TypeRegistrationExpired: a registration aged out without a refresh.
	// Payload: username.
	TypeRegistrationExpired
	// TypeRegistrationRetransmitted: an outbound REGREQ was re-sent
	// because no REGACK arrived in time.
	TypeRegistrationRetransmitted
	// TypeCallEstablished: a call reached the Up state. Payload: the
	// remote IP address in dotted-quad form.
	TypeCallEstablished
	// TypeCallHangup: the remote side hung up. Payload: remote IP.
	TypeCallHangup
	// TypeAudio: audio media arrived. Payload: raw bytes + timestamp.
	TypeAudio
	// TypeVideo: video media arrived. Payload: raw bytes + timestamp.
	TypeVideo
	// TypeText: a text frame arrived. Payload: the text.
	TypeText
	// TypeLag: a lag measurement completed. Payload: round-trip ms.
	TypeLag
)

func (t Type) String() string {
	switch t {
	case TypeRegistrationNew:
		return "REGISTRATION_NEW"
	case TypeRegistrationExpired:
		return "REGISTRATION_EXPIRED"
	case TypeRegistrationRetransmitted:
		return "REGISTRATION_RETRANSMITTED"
	case TypeCallEstablished:
		return "CALL_ESTABLISHED"
	case TypeCallHangup:
		return "CALL_HANGUP"
	case TypeAudio:
		return "AUDIO"
	case TypeVideo:
		return "VIDEO"
	case TypeText:
		return "TEXT"
	case TypeLag:
		return "LAG"
	}
	return "UNDEFINED"
}

// Payload is the tagged value an event carries. Concrete types: Str, Uint,
// Raw, Media. Events without a payload have a nil Payload.
type Payload interface {
	isPayload()
}

// Str is a string payload (usernames, peer addresses, text).
type Str string

// Uint is a numeric payload (lag milliseconds).
type Uint uint32

// Raw is an opaque byte payload.
type Raw []byte

// Media is a media payload with its 16-bit relative timestamp.
type Media struct {
	Data      []byte
	Timestamp uint16
}

func (Str) isPayload()    {}
func (Uint) isPayload()   {}
func (Raw) isPayload()    {}
func (*Media) isPayload() {}

// Event is one notification from the library to the application.
type Event struct {
	typ     Type
	callNum uint16
	payload Payload
}

// New builds an event; payload may be nil.
func New(t Type, callNum uint16, payload Payload) *Event {
	return &Event{typ: t, callNum: callNum, payload: payload}
}

func (e *Event) Type() Type       { return e.typ }
func (e *Event) CallNum() uint16  { return e.callNum }
func (e *Event) Payload() Payload { return e.payload }

// Str returns the string payload, empty for other payload kinds.
func (e *Event) Str() string {
	if s, ok := e.payload.(Str); ok {
		return string(s)
	}
	return ""
}

// Uint returns the numeric payload, zero for other payload kinds.
func (e *Event) Uint() uint32 {
	if u, ok := e.payload.(Uint); ok {
		return uint32(u)
	}
	return 0
}

// Media returns the media payload, nil for other payload kinds.
func (e *Event) Media() *Media {
	if m, ok := e.payload.(*Media); ok {
		return m
	}
	return nil
}

func (e *Event) String() string {
	switch p := e.payload.(type) {
	case nil:
		return fmt.Sprintf("[IAX2-Event] Type: %s  Call: %d", e.typ, e.callNum)
	case Str:
		return fmt.Sprintf("[IAX2-Event] Type: %s  Call: %d  Payload: %s", e.typ, e.callNum, string(p))
	case Uint:
		return fmt.Sprintf("[IAX2-Event] Type: %s  Call: %d  Payload: %d", e.typ, e.callNum, uint32(p))
	case Raw:
		return fmt.Sprintf("[IAX2-Event] Type: %s  Call: %d  Payload: %d bytes", e.typ, e.callNum, len(p))
	case *Media:
		return fmt.Sprintf("[IAX2-Event] Type: %s  Call: %d  Payload: %d bytes, Ts: %d",
			e.typ, e.callNum, len(p.Data), p.Timestamp)
	}
	return fmt.Sprintf("[IAX2-Event] Type: %s  Call: %d", e.typ, e.callNum)
}

// Handler receives events from a peer's dispatch worker. Handlers run
// serialised, in registration order.
type Handler func(*Event)
