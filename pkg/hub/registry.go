package hub

import (
	"sort"
	"sync"
	"time"

	"github.com/parleyhub/parley/internal/observability"
	"github.com/rs/zerolog/log"
)

// Registry owns all session state. One coarse mutex guards the session table,
// the caller index, and every field of every Session; operations on one
// session never wait on another beyond that critical section.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	callers  map[string]string // caller name -> session name

	clock func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	observability.EnsureRegistered()

	return &Registry{
		sessions: make(map[string]*Session),
		callers:  make(map[string]string),
		clock:    time.Now,
	}
}

// Register creates a Listening session, or re-enters an existing one when the
// same connection listens again after responding. A different connection
// asking for an active name fails with ErrNameTaken.
func (r *Registry) Register(name, description, ownerConn string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, exists := r.sessions[name]; exists {
		if s.ownerConn != ownerConn {
			return nil, ErrNameTaken
		}
		// Re-entry keeps the session state; only the protocol-level wait
		// resumes. The description is refreshed so repeat listens can update it.
		s.Description = description
		s.lastActivity = r.clock()
		return s, nil
	}

	s := newSession(name, description, ownerConn, r.clock())
	r.sessions[name] = s
	observability.SetActiveSessions(len(r.sessions))

	log.Info().
		Str("session", name).
		Str("description", description).
		Msg("Session registered")

	return s, nil
}

// List returns a consistent snapshot of all non-ended sessions, sorted by
// name so output is stable.
func (r *Registry) List() []Info {
	r.mu.Lock()
	infos := make([]Info, 0, len(r.sessions))
	for _, s := range r.sessions {
		infos = append(infos, Info{
			Name:        s.Name,
			Description: s.Description,
			State:       s.state.String(),
			Busy:        s.callerName != "",
		})
	}
	r.mu.Unlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Connect attaches a caller to a Listening session. The check-and-set is
// atomic: when two connects race, exactly one wins and the loser observes
// ErrNotListening.
func (r *Registry) Connect(name, intent, callerName, callerConn string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, exists := r.sessions[name]
	if !exists {
		return ErrNotFound
	}
	if s.state != StateListening {
		return ErrNotListening
	}

	s.state = StateConnected
	s.intent = intent
	s.callerName = callerName
	s.callerConn = callerConn
	s.lastActivity = r.clock()
	r.callers[callerName] = name

	log.Info().
		Str("session", name).
		Str("caller", callerName).
		Str("intent", truncate(intent, 50)).
		Msg("Caller connected")

	return nil
}

// Refocus updates the intent of a connected session. The key may be the
// session name or the caller's name. The caller is notified through its
// outbound queue so a pending wait_response surfaces the new focus.
func (r *Registry) Refocus(key, newIntent string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, exists := r.sessions[key]
	if !exists {
		if name, ok := r.callers[key]; ok {
			s, exists = r.sessions[name]
		}
	}
	if !exists || s == nil {
		return "", ErrNotFound
	}
	if s.state != StateConnected {
		return "", ErrNotConnected
	}

	oldIntent := s.intent
	s.intent = newIntent
	s.lastActivity = r.clock()

	s.outbound.Add(r.newMessage(s.Name, s.Name, newIntent, KindRefocus))
	notify(s.outboundReady)

	log.Info().Str("session", s.Name).Msg("Session refocused")

	return oldIntent, nil
}

// End terminates a session. It is idempotent: ending an unknown or already
// ended name is a no-op. The party that did not initiate the end receives a
// control notice so any blocked wait releases with a termination result.
func (r *Registry) End(name, initiator string, reason EndReason) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endLocked(name, initiator, reason)
}

// endLocked performs the terminal transition. Callers must hold r.mu.
func (r *Registry) endLocked(name, initiator string, reason EndReason) {
	s, exists := r.sessions[name]
	if !exists {
		return
	}

	s.state = StateEnded
	s.endReason = reason
	s.endInitiator = initiator

	notice := r.newMessage(initiator, name, "session ended by "+initiator, KindControl)
	switch initiator {
	case s.callerName:
		s.inbound.Add(notice)
		notify(s.inboundReady)
	case s.Name:
		s.outbound.Add(notice)
		notify(s.outboundReady)
	default:
		// System-initiated: both parties get the notice.
		s.inbound.Add(notice)
		s.outbound.Add(notice)
		notify(s.inboundReady)
		notify(s.outboundReady)
	}

	delete(r.sessions, name)
	if s.callerName != "" {
		delete(r.callers, s.callerName)
	}
	close(s.ended)

	observability.SetActiveSessions(len(r.sessions))
	observability.IncSessionsEnded(reasonLabel(reason))

	log.Info().
		Str("session", name).
		Str("initiator", initiator).
		Str("reason", reasonLabel(reason)).
		Msg("Session ended")
}

// ReleaseConn ends every session the given connection participates in,
// treating the disconnect as an implicit end_session. Sessions the
// connection listens on end from the listener side; sessions it called into
// end from the caller side.
func (r *Registry) ReleaseConn(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, s := range r.sessions {
		switch connID {
		case s.ownerConn:
			r.endLocked(name, s.Name, ReasonDisconnect)
		case s.callerConn:
			r.endLocked(name, s.callerName, ReasonDisconnect)
		}
	}
}

// EndBy terminates a session on behalf of a connection, attributing the end
// to whichever side of the conversation that connection holds.
func (r *Registry) EndBy(name, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, exists := r.sessions[name]
	if !exists {
		return
	}

	initiator := s.Name
	if connID != "" && connID == s.callerConn {
		initiator = s.callerName
	}
	r.endLocked(name, initiator, ReasonExplicit)
}

// firstContact reports whether this is the first delivery to the listener
// for the current conversation, flipping the greeted flag as a side effect.
// The intent banner includes the conversation guidelines only on first
// contact.
func (r *Registry) firstContact(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s.greeted {
		return false
	}
	s.greeted = true
	return true
}

// Count returns the number of active sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func reasonLabel(reason EndReason) string {
	switch reason {
	case ReasonTimeout:
		return "timeout"
	case ReasonDisconnect:
		return "disconnect"
	}
	return "explicit"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
