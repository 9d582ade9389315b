package protocol

import (
	"encoding/json"
	"fmt"
)

// Request is a correlated JSON-RPC 2.0 request envelope
type Request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
	ID      interface{} `json:"id,omitempty"`
}

// Response is a correlated JSON-RPC 2.0 response envelope
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
	ID      interface{}     `json:"id"`
}

// Notification is a server-initiated envelope with no ID. Progress and
// cancellation acknowledgements arrive this way.
type Notification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// RPCError is a JSON-RPC 2.0 error object
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Error implements the error interface
func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// NewRequest builds a request envelope with the given correlation ID
func NewRequest(id interface{}, method string, params interface{}) Request {
	// MCP expects params to exist for most methods, even if empty
	if params == nil {
		params = map[string]interface{}{}
	}
	return Request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      id,
	}
}

// NewNotificationRequest builds a request envelope with no correlation ID,
// used for fire-and-forget notifications such as notifications/initialized.
func NewNotificationRequest(method string, params interface{}) Request {
	if params == nil {
		params = map[string]interface{}{}
	}
	return Request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
	}
}

// ResponseID normalizes the envelope ID to a string. JSON numbers arrive as
// float64 after unmarshalling.
func (r *Response) ResponseID() (string, bool) {
	switch v := r.ID.(type) {
	case string:
		return v, v != ""
	case float64:
		return fmt.Sprintf("%.0f", v), true
	default:
		return "", false
	}
}

// DecodeFrame classifies a raw inbound frame as a response or a notification.
// A frame with an ID is a response; one with a method and no ID is a
// notification.
func DecodeFrame(data []byte) (*Response, *Notification, error) {
	var probe struct {
		ID     interface{} `json:"id"`
		Method string      `json:"method"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, nil, fmt.Errorf("malformed frame: %w", err)
	}

	if probe.ID != nil {
		var resp Response
		if err := json.Unmarshal(data, &resp); err != nil {
			return nil, nil, fmt.Errorf("malformed response: %w", err)
		}
		return &resp, nil, nil
	}

	if probe.Method != "" {
		var note Notification
		if err := json.Unmarshal(data, &note); err != nil {
			return nil, nil, fmt.Errorf("malformed notification: %w", err)
		}
		return nil, &note, nil
	}

	return nil, nil, fmt.Errorf("frame is neither response nor notification")
}
