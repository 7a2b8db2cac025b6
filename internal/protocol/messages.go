// Package protocol defines the line-framed JSON messages exchanged over the
// daemon's named pipes. Every message is a single JSON object terminated by a
// newline; requests carry a client-generated ID that the matching response
// echoes back, and events are pushed without an ID to subscribed clients.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Version is the protocol version carried in every message.
const Version = 1

// ErrorCode identifies a failure category in a response.
type ErrorCode string

const (
	// IO errors
	CodeFileNotFound     ErrorCode = "FILE_NOT_FOUND"
	CodePermissionDenied ErrorCode = "PERMISSION_DENIED"

	// Playback errors
	CodeInvalidFormat ErrorCode = "INVALID_FORMAT"
	CodeDecodeError   ErrorCode = "DECODE_ERROR"
	CodeDeviceError   ErrorCode = "DEVICE_ERROR"

	// Protocol errors
	CodeInvalidMessage ErrorCode = "INVALID_MESSAGE"
	CodeUnknownCommand ErrorCode = "UNKNOWN_COMMAND"
	CodeInvalidArgs    ErrorCode = "INVALID_ARGS"

	// Queue errors
	CodeQueueEmpty   ErrorCode = "QUEUE_EMPTY"
	CodeInvalidIndex ErrorCode = "INVALID_INDEX"

	// Catch-all for faults that fit no other category.
	CodeInternal ErrorCode = "INTERNAL"
)

// ErrorInfo describes a failed request.
type ErrorInfo struct {
	Code     ErrorCode `json:"code"`
	Category string    `json:"category"`
	Message  string    `json:"message"`
}

// Request is a command sent from a client to the daemon.
type Request struct {
	V    int                    `json:"v"`
	ID   string                 `json:"id"`
	Cmd  string                 `json:"cmd"`
	Args map[string]interface{} `json:"args,omitempty"`
}

// NewRequest creates a request with a fresh ID for the given command.
func NewRequest(cmd string, args map[string]interface{}) Request {
	return Request{
		V:    Version,
		ID:   uuid.NewString(),
		Cmd:  cmd,
		Args: args,
	}
}

// Response answers exactly one request, matched by ID.
type Response struct {
	V     int                    `json:"v"`
	ID    string                 `json:"id"`
	OK    bool                   `json:"ok"`
	Data  map[string]interface{} `json:"data,omitempty"`
	Error *ErrorInfo             `json:"error,omitempty"`
}

// Success builds an OK response for the given request ID.
func Success(requestID string, data map[string]interface{}) Response {
	if data == nil {
		data = map[string]interface{}{}
	}
	return Response{V: Version, ID: requestID, OK: true, Data: data}
}

// Failure builds an error response for the given request ID.
func Failure(requestID string, code ErrorCode, category, message string) Response {
	return Response{
		V:  Version,
		ID: requestID,
		OK: false,
		Error: &ErrorInfo{
			Code:     code,
			Category: category,
			Message:  message,
		},
	}
}

// Event is a notification pushed to subscribers on state transitions.
type Event struct {
	V     int                    `json:"v"`
	Event string                 `json:"event"`
	Data  map[string]interface{} `json:"data,omitempty"`
}

// Message wraps one decoded protocol message. Exactly one field is non-nil.
type Message struct {
	Request  *Request
	Response *Response
	Event    *Event
}

// Parse decodes a single JSON line into a Request, Response or Event, keyed
// on which discriminating field is present.
func Parse(line []byte) (Message, error) {
	var probe struct {
		Cmd   *string `json:"cmd"`
		Event *string `json:"event"`
		OK    *bool   `json:"ok"`
	}
	if err := json.Unmarshal(line, &probe); err != nil {
		return Message{}, fmt.Errorf("malformed message: %w", err)
	}

	switch {
	case probe.Cmd != nil:
		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			return Message{}, fmt.Errorf("malformed request: %w", err)
		}
		if req.ID == "" {
			req.ID = uuid.NewString()
		}
		return Message{Request: &req}, nil

	case probe.Event != nil:
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			return Message{}, fmt.Errorf("malformed event: %w", err)
		}
		return Message{Event: &ev}, nil

	case probe.OK != nil:
		var resp Response
		if err := json.Unmarshal(line, &resp); err != nil {
			return Message{}, fmt.Errorf("malformed response: %w", err)
		}
		return Message{Response: &resp}, nil

	default:
		return Message{}, fmt.Errorf("unknown message type: %s", line)
	}
}

// Encode serializes any protocol message to a single JSON line without the
// trailing newline.
func Encode(msg interface{}) ([]byte, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return b, nil
}
