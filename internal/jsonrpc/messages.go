package jsonrpc

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ProtocolVersion is the supported JSON-RPC protocol version.
const ProtocolVersion = "2.0"

// ErrorCode is a JSON-RPC 2.0 error code.
type ErrorCode int

const (
	ErrorCodeParseError     ErrorCode = -32700
	ErrorCodeInvalidRequest ErrorCode = -32600
	ErrorCodeMethodNotFound ErrorCode = -32601
	ErrorCodeInvalidParams  ErrorCode = -32602
	ErrorCodeInternalError  ErrorCode = -32603
	// ErrorCodeSessionInvalid is an application code for a connection whose
	// session failed validation.
	ErrorCodeSessionInvalid ErrorCode = -32001
)

// ErrInvalidMessage is wrapped by Decode for structurally invalid frames.
var ErrInvalidMessage = errors.New("jsonrpc: invalid message")

// ErrParse is additionally wrapped when the frame is not valid JSON.
var ErrParse = errors.New("jsonrpc: parse error")

// Request is an inbound call (with an ID) or notification (without one).
type Request struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Method         string          `json:"method"`
	Params         json.RawMessage `json:"params,omitempty"`
	ID             *RequestID      `json:"id,omitempty"`
}

// IsNotification reports whether the caller expects no response.
func (r *Request) IsNotification() bool { return r.ID.IsNil() }

// BindParams decodes Params into ref. Absent params leave ref untouched.
func (r *Request) BindParams(ref any) error {
	if len(r.Params) == 0 || string(r.Params) == "null" {
		return nil
	}
	if err := json.Unmarshal(r.Params, ref); err != nil {
		return fmt.Errorf("invalid params for %s: %w", r.Method, err)
	}
	return nil
}

// Response is the reply to a Request carrying an ID.
type Response struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          *Error          `json:"error,omitempty"`
	ID             *RequestID      `json:"id"`
}

// Notification is a server-initiated message that expects no reply.
type Notification struct {
	JSONRPCVersion string `json:"jsonrpc"`
	Method         string `json:"method"`
	Params         any    `json:"params,omitempty"`
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Data    any       `json:"data,omitempty"`
}

func (e *Error) Error() string { return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message) }

// Decode parses a single inbound frame. Only requests and notifications are
// accepted; clients never answer server notifications.
func Decode(data []byte) (*Request, error) {
	var raw struct {
		JSONRPCVersion string          `json:"jsonrpc"`
		Method         string          `json:"method"`
		Params         json.RawMessage `json:"params,omitempty"`
		Result         json.RawMessage `json:"result,omitempty"`
		Error          *Error          `json:"error,omitempty"`
		ID             *RequestID      `json:"id,omitempty"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w: %v", ErrInvalidMessage, ErrParse, err)
	}
	if raw.JSONRPCVersion != ProtocolVersion {
		return &Request{ID: raw.ID}, fmt.Errorf("%w: expected jsonrpc %q, got %q", ErrInvalidMessage, ProtocolVersion, raw.JSONRPCVersion)
	}
	if raw.Method == "" {
		return &Request{ID: raw.ID}, fmt.Errorf("%w: missing method", ErrInvalidMessage)
	}
	if len(raw.Result) > 0 || raw.Error != nil {
		return &Request{ID: raw.ID}, fmt.Errorf("%w: request cannot carry result or error", ErrInvalidMessage)
	}
	return &Request{
		JSONRPCVersion: raw.JSONRPCVersion,
		Method:         raw.Method,
		Params:         raw.Params,
		ID:             raw.ID,
	}, nil
}

// NewNotification builds an outbound notification.
func NewNotification(method string, params any) *Notification {
	return &Notification{JSONRPCVersion: ProtocolVersion, Method: method, Params: params}
}

// NewResultResponse builds a successful JSON-RPC response object.
func NewResultResponse(id *RequestID, result any) (*Response, error) {
	b, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return &Response{JSONRPCVersion: ProtocolVersion, Result: b, ID: id}, nil
}

// NewErrorResponse builds an error JSON-RPC response with the given code.
func NewErrorResponse(id *RequestID, code ErrorCode, message string, data any) *Response {
	return &Response{
		JSONRPCVersion: ProtocolVersion,
		Error:          &Error{Code: code, Message: message, Data: data},
		ID:             id,
	}
}
