// Package wire defines the JSON messages exchanged between the host bridge and
// its clients, and the string channel they travel over.
//
// Four message shapes exist:
//
//	{"callId": "...", "method": "Service.Method", "args": [...]}   call request
//	{"cancel": "<callId>"}                                         cancel request
//	{"callId": "...", "result": ...}                               call response (success)
//	{"callId": "...", "error": {"message": "...", "type": "..."}}  call response (failure)
//	{"event": "...", "data": ...}                                  event push
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MethodSeparator separates the service name from the method name in
// Request.Method.
const MethodSeparator = "."

// Kind identifies which of the wire message shapes a decoded message is.
type Kind int

const (
	KindInvalid Kind = iota
	KindRequest
	KindCancel
	KindResponse
	KindEvent
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindCancel:
		return "cancel"
	case KindResponse:
		return "response"
	case KindEvent:
		return "event"
	default:
		return "invalid"
	}
}

// Request asks the host to invoke Method with positional Args.
type Request struct {
	CallID string            `json:"callId"`
	Method string            `json:"method"`
	Args   []json.RawMessage `json:"args"`
}

// SplitMethod splits "Service.Method" on the first separator.
func (r *Request) SplitMethod() (service, method string, ok bool) {
	service, method, ok = strings.Cut(r.Method, MethodSeparator)
	if !ok || service == "" || method == "" {
		return "", "", false
	}
	return service, method, true
}

// Cancel asks the host to cancel an in-flight call.
type Cancel struct {
	Cancel string `json:"cancel"`
}

// Response carries the outcome of one call. Exactly one of Result or Error is
// meaningful; a nil Result with a nil Error is a void success.
type Response struct {
	CallID string          `json:"callId"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *Error          `json:"error,omitempty"`
}

// Event is a host-initiated push.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Error is the failure payload of a Response.
type Error struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func (e *Error) Error() string {
	if e.Type == "" {
		return e.Message
	}
	return e.Type + ": " + e.Message
}

// Message is a decoded wire message. Only the field matching Kind is set.
type Message struct {
	Kind     Kind
	Request  *Request
	Cancel   *Cancel
	Response *Response
	Event    *Event
}

// ErrMalformed is returned by Decode for input that is not a recognizable
// wire message. Malformed input never produces a reply.
var ErrMalformed = errors.New("malformed wire message")

// ArgumentsError is returned by Decode for a request whose args field is not
// an array. Unlike other malformed input it identifies a call, so the host can
// answer it.
type ArgumentsError struct {
	// Request carries the call id and method; Args is nil.
	Request *Request
	Err     error
}

func (e *ArgumentsError) Error() string {
	return fmt.Sprintf("request %s: args: %v", e.Request.CallID, e.Err)
}

func (e *ArgumentsError) Unwrap() error { return e.Err }

// envelope is the union of every field any message shape may carry.
type envelope struct {
	Cancel *string         `json:"cancel"`
	CallID *string         `json:"callId"`
	Method *string         `json:"method"`
	Args   json.RawMessage `json:"args"`
	Result json.RawMessage `json:"result"`
	Error  *Error          `json:"error"`
	Event  *string         `json:"event"`
	Data   json.RawMessage `json:"data"`
}

// Decode parses one wire message and classifies it.
//
// A message carrying a cancel field is always a cancel request, whatever else
// it contains. A message with a method is a request and must carry a non-empty
// callId. A message with a callId and no method is a response. A message with
// an event name is an event push.
func Decode(raw string) (Message, error) {
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch {
	case env.Cancel != nil:
		if *env.Cancel == "" {
			return Message{}, fmt.Errorf("%w: empty cancel id", ErrMalformed)
		}
		return Message{Kind: KindCancel, Cancel: &Cancel{Cancel: *env.Cancel}}, nil

	case env.Method != nil:
		if env.CallID == nil || *env.CallID == "" {
			return Message{}, fmt.Errorf("%w: request without callId", ErrMalformed)
		}
		req := &Request{CallID: *env.CallID, Method: *env.Method}
		if raw := nullToNil(env.Args); raw != nil {
			var args []json.RawMessage
			if err := json.Unmarshal(raw, &args); err != nil {
				return Message{}, &ArgumentsError{Request: req, Err: errors.New("must be an array")}
			}
			req.Args = args
		}
		return Message{Kind: KindRequest, Request: req}, nil

	case env.CallID != nil:
		if *env.CallID == "" {
			return Message{}, fmt.Errorf("%w: response without callId", ErrMalformed)
		}
		return Message{Kind: KindResponse, Response: &Response{
			CallID: *env.CallID,
			Result: nullToNil(env.Result),
			Error:  env.Error,
		}}, nil

	case env.Event != nil:
		return Message{Kind: KindEvent, Event: &Event{
			Event: *env.Event,
			Data:  nullToNil(env.Data),
		}}, nil
	}

	return Message{}, fmt.Errorf("%w: unrecognized shape", ErrMalformed)
}

// Encode marshals any of the message shapes into its wire string.
func Encode(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func nullToNil(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return raw
}
