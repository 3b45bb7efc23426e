package hub

import (
	"time"

	"github.com/eapache/queue"
)

// SessionState tracks where a session is in its lifecycle.
type SessionState int

const (
	// StateListening means the session is registered and waiting for a caller
	StateListening SessionState = iota
	// StateConnected means a caller holds the session
	StateConnected
	// StateEnded means the session terminated; no further mutation is permitted
	StateEnded
)

// String returns the state name
func (s SessionState) String() string {
	switch s {
	case StateListening:
		return "listening"
	case StateConnected:
		return "connected"
	case StateEnded:
		return "ended"
	}
	return "unknown"
}

// MessageKind classifies one unit of conversation content.
type MessageKind string

const (
	KindQuestion MessageKind = "question"
	KindResponse MessageKind = "response"
	KindRefocus  MessageKind = "refocus"
	KindControl  MessageKind = "control-notice"
)

// Message is one unit of conversation content relayed through the hub.
type Message struct {
	ID        string
	Sender    string
	Session   string
	Body      string
	Kind      MessageKind
	Timestamp time.Time
}

// EndReason records why a session terminated.
type EndReason int

const (
	// ReasonExplicit means one party issued end_session
	ReasonExplicit EndReason = iota
	// ReasonTimeout means the idle supervisor reclaimed the session
	ReasonTimeout
	// ReasonDisconnect means a party's connection dropped
	ReasonDisconnect
)

// err maps the end reason to the result a released waiter observes.
func (r EndReason) err() error {
	switch r {
	case ReasonTimeout:
		return ErrTimeout
	case ReasonDisconnect:
		return ErrConnectionLost
	}
	return ErrSessionEnded
}

// Session is one registered listener's slot. All fields are guarded by the
// owning Registry's mutex; the notify channels are the only pieces touched
// outside it, and only via select.
type Session struct {
	Name        string
	Description string

	state      SessionState
	intent     string
	callerName string

	// FIFO queues: inbound flows toward the listener, outbound toward the caller.
	inbound  *queue.Queue
	outbound *queue.Queue

	// Buffered(1) notify channels; pushers signal, waiters re-check under lock.
	inboundReady  chan struct{}
	outboundReady chan struct{}

	// Closed exactly once when the session ends.
	ended        chan struct{}
	endReason    EndReason
	endInitiator string

	lastActivity time.Time
	greeted      bool

	// Connection IDs, for disconnect cleanup.
	ownerConn  string
	callerConn string
}

func newSession(name, description, ownerConn string, now time.Time) *Session {
	return &Session{
		Name:          name,
		Description:   description,
		state:         StateListening,
		inbound:       queue.New(),
		outbound:      queue.New(),
		inboundReady:  make(chan struct{}, 1),
		outboundReady: make(chan struct{}, 1),
		ended:         make(chan struct{}),
		lastActivity:  now,
		ownerConn:     ownerConn,
	}
}

// notify signals a buffered channel without blocking when a wakeup is
// already pending.
func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// Info is a point-in-time snapshot of a session for list_sessions.
type Info struct {
	Name        string
	Description string
	State       string
	Busy        bool
}

// Delivery is what a released listen or wait_response call receives.
type Delivery struct {
	Message Message
	Intent  string
	Caller  string
}
