// Package protocol implements the header-delimited JSON-RPC framing used to
// exchange requests, responses and notifications with a language server over
// a child process's standard streams.
package protocol

import (
	"encoding/json"
)

// Version is the JSON-RPC protocol version spoken on the wire
const Version = "2.0"

// Well-known JSON-RPC error codes
const (
	CodeParseError     = -32700
	CodeMethodNotFound = -32601
	CodeInternalError  = -32603
)

// Error represents a JSON-RPC error object
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

// Request is an outgoing JSON-RPC request carrying a caller-allocated id
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// Notification is an outgoing fire-and-forget JSON-RPC message
type Notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// Response is an outgoing reply to a server-initiated request. The id is
// echoed verbatim, preserving string ids some servers use.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// NewRequest builds a request for the given id, method and params
func NewRequest(id int64, method string, params any) *Request {
	return &Request{JSONRPC: Version, ID: id, Method: method, Params: params}
}

// NewNotification builds a notification for the given method and params
func NewNotification(method string, params any) *Notification {
	return &Notification{JSONRPC: Version, Method: method, Params: params}
}

// Kind classifies a decoded wire message
type Kind int

const (
	// KindRequest has both an id and a method
	KindRequest Kind = iota
	// KindResponse has an id and no method
	KindResponse
	// KindNotification has a method and no id
	KindNotification
	// KindInvalid has neither
	KindInvalid
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindResponse:
		return "response"
	case KindNotification:
		return "notification"
	default:
		return "invalid"
	}
}

// Message is one decoded unit of the wire protocol. Fields are left raw so
// callers can unmarshal params/results into method-specific shapes.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Kind classifies the message by the presence of its id and method fields
func (m *Message) Kind() Kind {
	hasID := len(m.ID) > 0 && string(m.ID) != "null"
	switch {
	case hasID && m.Method != "":
		return KindRequest
	case hasID:
		return KindResponse
	case m.Method != "":
		return KindNotification
	default:
		return KindInvalid
	}
}

// ResponseID extracts the message id as an int64 for correlation with
// outgoing requests. Returns false for string or absent ids, which can only
// belong to server-initiated traffic since this client allocates integers.
func (m *Message) ResponseID() (int64, bool) {
	var id int64
	if err := json.Unmarshal(m.ID, &id); err != nil {
		return 0, false
	}
	return id, true
}
