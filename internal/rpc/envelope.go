// ABOUTME: JSON-RPC 2.0 request and response envelopes with standard error codes.
// ABOUTME: Responses encode through the ordered wire codec to keep field order stable.

package rpc

import (
	"fmt"

	"github.com/uaxd/mcp-gateway/internal/jsonwire"
)

// Version is the only JSON-RPC version accepted.
const Version = "2.0"

// Standard JSON-RPC error codes plus the application range used by the gateway.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeUnauthorized   = -32001
)

// Request is a structurally valid JSON-RPC request.
type Request struct {
	// ID is nil when the request carried no id (or a null id).
	ID     any
	Method string
	// Params is nil when the request carried no params object.
	Params *jsonwire.Object
	Raw    []byte
}

// IsNotification reports whether the request expects no response.
func (r *Request) IsNotification() bool {
	return r.ID == nil
}

// Error is the error member of a JSON-RPC response.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Response is a JSON-RPC response carrying either a result or an error.
type Response struct {
	ID     any
	Result any
	Error  *Error
}

// NewResult builds a success response.
func NewResult(id, result any) *Response {
	return &Response{ID: id, Result: result}
}

// NewError builds an error response.
func NewError(id any, code int, message string) *Response {
	return &Response{ID: id, Error: &Error{Code: code, Message: message}}
}

// ParseError is the response for input that is not a JSON object.
func ParseError() *Response {
	return NewError(nil, CodeParseError, "Parse error")
}

// InvalidRequest is the response for envelopes with a bad version or method.
func InvalidRequest(id any) *Response {
	return NewError(id, CodeInvalidRequest, "Invalid Request")
}

// MethodNotFound is the response when no handler claims a method.
func MethodNotFound(id any, method string) *Response {
	return NewError(id, CodeMethodNotFound, "Method not found: "+method)
}

// InvalidParams is the response for missing or malformed params.
func InvalidParams(id any, detail string) *Response {
	return NewError(id, CodeInvalidParams, "Invalid params: "+detail)
}

// InternalError is the response for handler failures.
func InternalError(id any, detail string) *Response {
	return NewError(id, CodeInternalError, "Internal error: "+detail)
}

// Object renders the response as an ordered envelope object.
func (r *Response) Object() *jsonwire.Object {
	obj := jsonwire.NewObject().
		Set("jsonrpc", Version).
		Set("id", r.ID)
	if r.Error != nil {
		obj.Set("error", jsonwire.NewObject().
			Set("code", r.Error.Code).
			Set("message", r.Error.Message))
		return obj
	}
	result := r.Result
	if result == nil {
		result = jsonwire.NewObject()
	}
	return obj.Set("result", result)
}

// Encode serializes the response as compact JSON.
func (r *Response) Encode() ([]byte, error) {
	return jsonwire.Marshal(r.Object())
}
