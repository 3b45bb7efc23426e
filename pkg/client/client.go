// Package client is a typed Go client for the parley hub wire protocol.
// One client holds one persistent connection; calls are serialized so at
// most one request is in flight, matching the hub's no-pipelining contract.
package client

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/parleyhub/parley/pkg/protocol"
)

// Client talks to a hub over a long-lived TCP connection.
type Client struct {
	mu   sync.Mutex
	conn net.Conn
	dec  *protocol.Decoder
	enc  *protocol.Encoder
}

// Dial connects to the hub at addr (host:port).
func Dial(addr string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial hub: %w", err)
	}

	return &Client{
		conn: conn,
		dec:  protocol.NewDecoder(conn),
		enc:  protocol.NewEncoder(conn),
	}, nil
}

// Close closes the connection. The hub treats this as an implicit
// end_session for every session this connection is party to.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Close()
}

// roundTrip sends one request and reads one response frame.
func (c *Client) roundTrip(action protocol.Action, params protocol.Params) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roundTripLocked(action, params)
}

func (c *Client) roundTripLocked(action protocol.Action, params protocol.Params) (json.RawMessage, error) {
	if err := c.enc.Encode(protocol.Request{Action: action, Params: params}); err != nil {
		return nil, err
	}
	return c.readFrameLocked()
}

func (c *Client) readFrameLocked() (json.RawMessage, error) {
	raw, err := c.dec.DecodeRaw()
	if err != nil {
		return nil, fmt.Errorf("failed to read hub response: %w", err)
	}

	var er protocol.ErrorResponse
	if err := json.Unmarshal(raw, &er); err == nil && er.Error != nil {
		return nil, er.Error
	}
	return raw, nil
}

// Listen registers (or re-enters) a named listener and blocks until a
// message arrives, the session ends, or the wait times out. A zero timeout
// leaves the limit to the hub.
func (c *Client) Listen(sessionName, description string, timeout time.Duration) (*protocol.Delivery, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, err := c.roundTripLocked(protocol.ActionListen, protocol.Params{
		SessionName: sessionName,
		Description: description,
		TimeoutMS:   timeout.Milliseconds(),
	})
	if err != nil {
		return nil, err
	}

	// First frame is the listening ack; the delivery follows.
	var ack protocol.ListenAck
	if err := json.Unmarshal(raw, &ack); err != nil || ack.Status != "listening" {
		return nil, &protocol.Error{Code: protocol.CodeMalformedRequest, Message: "unexpected listen ack"}
	}

	raw, err = c.readFrameLocked()
	if err != nil {
		return nil, err
	}

	var delivery protocol.Delivery
	if err := json.Unmarshal(raw, &delivery); err != nil {
		return nil, fmt.Errorf("failed to parse delivery: %w", err)
	}
	return &delivery, nil
}

// ListSessions returns all active sessions.
func (c *Client) ListSessions() ([]protocol.SessionInfo, error) {
	raw, err := c.roundTrip(protocol.ActionListSessions, protocol.Params{})
	if err != nil {
		return nil, err
	}

	var list protocol.SessionList
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("failed to parse session list: %w", err)
	}
	return list.Sessions, nil
}

// Connect attaches to a listening session with a stated intent.
func (c *Client) Connect(targetSession, intent, myName string) (*protocol.ConnectAck, error) {
	raw, err := c.roundTrip(protocol.ActionConnect, protocol.Params{
		TargetSession: targetSession,
		Intent:        intent,
		MyName:        myName,
	})
	if err != nil {
		return nil, err
	}

	var ack protocol.ConnectAck
	if err := json.Unmarshal(raw, &ack); err != nil {
		return nil, fmt.Errorf("failed to parse connect ack: %w", err)
	}
	return &ack, nil
}

// Send delivers a message to a session's listener.
func (c *Client) Send(targetSession, message, myName string) error {
	_, err := c.roundTrip(protocol.ActionSend, protocol.Params{
		TargetSession: targetSession,
		Message:       message,
		MyName:        myName,
	})
	return err
}

// WaitResponse blocks until the listener responds, the session ends, or the
// wait times out.
func (c *Client) WaitResponse(myName string, timeout time.Duration) (*protocol.Delivery, error) {
	raw, err := c.roundTrip(protocol.ActionWaitResponse, protocol.Params{
		MyName:    myName,
		TimeoutMS: timeout.Milliseconds(),
	})
	if err != nil {
		return nil, err
	}

	var delivery protocol.Delivery
	if err := json.Unmarshal(raw, &delivery); err != nil {
		return nil, fmt.Errorf("failed to parse delivery: %w", err)
	}
	return &delivery, nil
}

// Respond sends a reply from the listener back to the connected caller.
func (c *Client) Respond(sessionName, message string) error {
	_, err := c.roundTrip(protocol.ActionRespond, protocol.Params{
		SessionName: sessionName,
		Message:     message,
	})
	return err
}

// Refocus updates the conversation intent. Key is the session name (from
// the listener side) or the caller name (from the caller side).
func (c *Client) Refocus(key, newIntent string) (*protocol.RefocusAck, error) {
	raw, err := c.roundTrip(protocol.ActionRefocus, protocol.Params{
		SessionName: key,
		Intent:      newIntent,
	})
	if err != nil {
		return nil, err
	}

	var ack protocol.RefocusAck
	if err := json.Unmarshal(raw, &ack); err != nil {
		return nil, fmt.Errorf("failed to parse refocus ack: %w", err)
	}
	return &ack, nil
}

// EndSession terminates a session. Ending an unknown name is not an error.
func (c *Client) EndSession(sessionName string) error {
	_, err := c.roundTrip(protocol.ActionEndSession, protocol.Params{
		SessionName: sessionName,
	})
	return err
}
