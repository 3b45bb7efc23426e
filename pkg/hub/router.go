package hub

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/parleyhub/parley/internal/observability"
)

// newMessage builds a Message stamped with the registry clock. Callers must
// hold r.mu.
func (r *Registry) newMessage(sender, session, body string, kind MessageKind) Message {
	return Message{
		ID:        uuid.NewString(),
		Sender:    sender,
		Session:   session,
		Body:      body,
		Kind:      kind,
		Timestamp: r.clock(),
	}
}

// Send appends a message to the target session's inbound queue and wakes any
// connection blocked in listen on it. The sender must be the connected
// caller.
func (r *Registry) Send(target, body, sender string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, exists := r.sessions[target]
	if !exists {
		return ErrNotFound
	}
	if s.state != StateConnected || s.callerName != sender {
		return ErrNotConnected
	}

	s.inbound.Add(r.newMessage(sender, target, body, KindQuestion))
	s.lastActivity = r.clock()
	notify(s.inboundReady)

	observability.IncMessagesRelayed(string(KindQuestion))

	return nil
}

// Respond appends a message to the session's outbound queue and wakes any
// connection blocked in wait_response for its caller. Returns the caller
// name the response is destined for.
func (r *Registry) Respond(name, body string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, exists := r.sessions[name]
	if !exists {
		return "", ErrNotFound
	}
	if s.callerName == "" {
		return "", ErrNoCaller
	}

	s.outbound.Add(r.newMessage(name, name, body, KindResponse))
	s.lastActivity = r.clock()
	notify(s.outboundReady)

	observability.IncMessagesRelayed(string(KindResponse))

	return s.callerName, nil
}

// WaitInbound blocks until the session's inbound queue yields a message, the
// session ends, the timeout elapses, or ctx is canceled (peer disconnect).
// Exactly one waiter consumes each message: the queue pop happens under the
// registry lock after every wakeup.
func (r *Registry) WaitInbound(ctx context.Context, s *Session, timeout time.Duration) (*Delivery, error) {
	start := time.Now()
	defer func() {
		observability.ObserveWaitDuration("listen", time.Since(start))
	}()
	return r.wait(ctx, s, s.inbound, s.inboundReady, timeout)
}

// WaitOutbound blocks until a response for the named caller arrives, the
// session ends, the timeout elapses, or ctx is canceled.
func (r *Registry) WaitOutbound(ctx context.Context, callerName string, timeout time.Duration) (*Delivery, error) {
	r.mu.Lock()
	name, ok := r.callers[callerName]
	if !ok {
		r.mu.Unlock()
		return nil, ErrNotFound
	}
	s := r.sessions[name]
	s.lastActivity = r.clock()
	r.mu.Unlock()

	start := time.Now()
	defer func() {
		observability.ObserveWaitDuration("wait_response", time.Since(start))
	}()
	return r.wait(ctx, s, s.outbound, s.outboundReady, timeout)
}

// wait is the three-way select at the heart of the blocking protocol. It
// parks the requesting connection's goroutine only; the registry lock is
// never held while parked.
func (r *Registry) wait(ctx context.Context, s *Session, q interface {
	Length() int
	Remove() interface{}
}, ready chan struct{}, timeout time.Duration) (*Delivery, error) {
	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	for {
		r.mu.Lock()
		if q.Length() > 0 {
			msg := q.Remove().(Message)
			if msg.Kind == KindControl {
				reason := s.endReason
				r.mu.Unlock()
				return nil, reason.err()
			}
			d := &Delivery{
				Message: msg,
				Intent:  s.intent,
				Caller:  s.callerName,
			}
			r.mu.Unlock()
			return d, nil
		}
		if s.state == StateEnded {
			reason := s.endReason
			r.mu.Unlock()
			return nil, reason.err()
		}
		r.mu.Unlock()

		select {
		case <-ready:
		case <-s.ended:
		case <-timeoutCh:
			return nil, ErrTimeout
		case <-ctx.Done():
			return nil, ErrConnectionLost
		}
	}
}
