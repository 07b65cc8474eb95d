package call

import (
	"context"

	"github.com/yoockh/hiready/internal/transcript"
)

type State int

const (
	StateIdle State = iota
	StateConnecting
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type EventKind int

const (
	EventStart EventKind = iota + 1
	EventDialed
	EventReady
	EventConversation
	EventFragment
	EventAudio
	EventPlayback
	EventMute
	EventHeartbeat
	EventDisconnect
	EventClosed
)

var eventNames = map[EventKind]string{
	EventStart:        "start",
	EventDialed:       "dialed",
	EventReady:        "ready",
	EventConversation: "conversation",
	EventFragment:     "fragment",
	EventAudio:        "audio",
	EventPlayback:     "playback",
	EventMute:         "mute",
	EventHeartbeat:    "heartbeat",
	EventDisconnect:   "disconnect",
	EventClosed:       "closed",
}

func (k EventKind) String() string {
	if n, ok := eventNames[k]; ok {
		return n
	}
	return "unknown"
}

// Event is one input to the machine. Only the fields relevant to Kind are set.
type Event struct {
	Kind           EventKind
	ConversationID string
	Fragment       transcript.Fragment
	Audio          []byte
	Muted          bool
	Err            error

	transport Transport
}

// Transport is a live voice connection. Events emits Ready, Conversation,
// Fragment, Playback and Closed, and is closed when the connection ends.
// Close may be called more than once.
type Transport interface {
	Events() <-chan Event
	SendAudio(ctx context.Context, pcm []byte) error
	SetMuted(ctx context.Context, muted bool) error
	Close() error
}

type DialFunc func(ctx context.Context) (Transport, error)

// Admission is the outcome of asking for a new session.
type Admission struct {
	Allowed   bool
	SessionID string
	Message   string
}

type Admitter interface {
	Admit(ctx context.Context) (Admission, error)
}

type AdmitterFunc func(ctx context.Context) (Admission, error)

func (f AdmitterFunc) Admit(ctx context.Context) (Admission, error) { return f(ctx) }

// FragmentSink stores transcript fragments as they arrive.
type FragmentSink interface {
	Record(ctx context.Context, sessionID, conversationID string, seq int64, f transcript.Fragment) error
}

// ConversationAttacher is implemented by sinks that can tag fragments stored
// before the conversation id was known.
type ConversationAttacher interface {
	AttachConversation(ctx context.Context, sessionID, conversationID string) error
}

// FeedbackQueue schedules review generation for a finished session.
type FeedbackQueue interface {
	Enqueue(ctx context.Context, sessionID string) error
}
