package protocol

// Action identifies a hub operation carried by a request frame.
type Action string

const (
	ActionListen       Action = "listen"
	ActionListSessions Action = "list_sessions"
	ActionConnect      Action = "connect"
	ActionSend         Action = "send"
	ActionWaitResponse Action = "wait_response"
	ActionRespond      Action = "respond"
	ActionRefocus      Action = "refocus"
	ActionEndSession   Action = "end_session"
)

// Request is one frame sent by a client over the wire.
type Request struct {
	Action Action `json:"action"`
	Params Params `json:"params"`
}

// Params carries the union of all action-specific fields. Which fields are
// required depends on the action; see Validate.
type Params struct {
	SessionName   string `json:"session_name,omitempty"`
	Description   string `json:"description,omitempty"`
	TargetSession string `json:"target_session,omitempty"`
	Intent        string `json:"intent,omitempty"`
	Message       string `json:"message,omitempty"`
	MyName        string `json:"my_name,omitempty"`
	TimeoutMS     int64  `json:"timeout_ms,omitempty"`
}

// ErrorCode is a typed wire error code.
type ErrorCode string

const (
	CodeNameTaken        ErrorCode = "name_taken"
	CodeNotFound         ErrorCode = "not_found"
	CodeNotListening     ErrorCode = "not_listening"
	CodeNotConnected     ErrorCode = "not_connected"
	CodeNoCaller         ErrorCode = "no_caller"
	CodeTimeout          ErrorCode = "timeout"
	CodeSessionEnded     ErrorCode = "session_ended"
	CodeConnectionLost   ErrorCode = "connection_lost"
	CodeMalformedRequest ErrorCode = "malformed_request"
)

// Error is the failure half of a response frame.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// Error implements the error interface
func (e *Error) Error() string {
	return e.Message
}

// ErrorResponse wraps an Error for serialization.
type ErrorResponse struct {
	Error *Error `json:"error"`
}

// MessageType distinguishes hub-delivered payload frames.
type MessageType string

const (
	TypeMessage  MessageType = "message"
	TypeResponse MessageType = "response"
	TypeRefocus  MessageType = "refocus"
)

// ListenAck confirms a listener registration before delivery begins.
type ListenAck struct {
	Status  string `json:"status"`
	Session string `json:"session"`
}

// Delivery is a message handed to a blocked listen or wait_response call.
type Delivery struct {
	Type         MessageType `json:"type"`
	From         string      `json:"from"`
	Message      string      `json:"message"`
	MessageID    string      `json:"message_id,omitempty"`
	Intent       string      `json:"intent,omitempty"`
	IntentBanner string      `json:"intent_banner,omitempty"`
}

// SessionInfo is one entry in a list_sessions payload.
type SessionInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	State       string `json:"state"`
	Busy        bool   `json:"busy"`
}

// SessionList is the list_sessions payload.
type SessionList struct {
	Sessions []SessionInfo `json:"sessions"`
}

// ConnectAck confirms a successful connect.
type ConnectAck struct {
	Connected    bool   `json:"connected"`
	Target       string `json:"target"`
	Intent       string `json:"intent"`
	IntentBanner string `json:"intent_banner,omitempty"`
}

// SendAck confirms a delivered send or respond.
type SendAck struct {
	Sent bool   `json:"sent"`
	To   string `json:"to"`
}

// RefocusAck confirms an intent update.
type RefocusAck struct {
	Updated      bool   `json:"updated"`
	OldIntent    string `json:"old_intent"`
	NewIntent    string `json:"new_intent"`
	IntentBanner string `json:"intent_banner,omitempty"`
}

// EndAck confirms a session end.
type EndAck struct {
	Closed  bool   `json:"closed"`
	Session string `json:"session"`
}

// requiredFields maps each action to the params it cannot do without.
var requiredFields = map[Action][]string{
	ActionListen:       {"session_name", "description"},
	ActionListSessions: {},
	ActionConnect:      {"target_session", "intent", "my_name"},
	ActionSend:         {"target_session", "message", "my_name"},
	ActionWaitResponse: {"my_name"},
	ActionRespond:      {"session_name", "message"},
	ActionRefocus:      {"intent"},
	ActionEndSession:   {"session_name"},
}

func (p *Params) field(name string) string {
	switch name {
	case "session_name":
		return p.SessionName
	case "description":
		return p.Description
	case "target_session":
		return p.TargetSession
	case "intent":
		return p.Intent
	case "message":
		return p.Message
	case "my_name":
		return p.MyName
	}
	return ""
}

// Validate checks that the action is known and every required field for it
// is present. Refocus additionally needs one of session_name or my_name to
// identify the conversation.
func (r *Request) Validate() error {
	fields, ok := requiredFields[r.Action]
	if !ok {
		return &Error{Code: CodeMalformedRequest, Message: "unknown action: " + string(r.Action)}
	}
	for _, f := range fields {
		if r.Params.field(f) == "" {
			return &Error{Code: CodeMalformedRequest, Message: "missing required field: " + f}
		}
	}
	if r.Action == ActionRefocus && r.Params.SessionName == "" && r.Params.MyName == "" {
		return &Error{Code: CodeMalformedRequest, Message: "refocus requires session_name or my_name"}
	}
	return nil
}
