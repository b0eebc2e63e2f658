package gateway

import "encoding/json"

// Frame types. Clients send events and requests; the server sends events
// and responses.
const (
	FrameTypeRequest  = "req"
	FrameTypeResponse = "res"
	FrameTypeEvent    = "event"
)

// Frame is the envelope of every socket message. Events carry Event,
// Payload and, outbound, Seq. Requests carry ID, Method and Params, and are
// answered by a response with the same ID, OK and Payload or Error.
type Frame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	OK      *bool           `json:"ok,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Event   string          `json:"event,omitempty"`
	Seq     int64           `json:"seq,omitempty"`
	Error   *ErrorShape     `json:"error,omitempty"`
}

// ErrorShape is the error body of a failed response.
type ErrorShape struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Hello is the first event sent on every accepted connection.
type Hello struct {
	ConnID   string `json:"connId"`
	Role     string `json:"role"`
	Protocol int    `json:"protocol"`
}

// JoinPayload asks to enter the room of a thread.
type JoinPayload struct {
	Phone string `json:"phone"`
}

// MessagePayload is an inbound chat message. Any sender field a client
// adds is ignored; the sender is the connection's role.
type MessagePayload struct {
	Phone   string `json:"phone"`
	Content string `json:"content"`
	Type    string `json:"type,omitempty"`
	ReplyTo *int64 `json:"reply_to,omitempty"`
}

// RecallPayload retracts a message.
type RecallPayload struct {
	Phone string `json:"phone"`
	ID    int64  `json:"id"`
}

// SeenPayload marks a thread as seen.
type SeenPayload struct {
	Phone string `json:"phone"`
}

// NewResponse answers request id with payload.
func NewResponse(id string, payload any) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: FrameTypeResponse, ID: id, OK: boolPtr(true), Payload: raw}, nil
}

// NewErrorResponse answers request id with a failure.
func NewErrorResponse(id string, e ErrorShape) Frame {
	return Frame{Type: FrameTypeResponse, ID: id, OK: boolPtr(false), Error: &e}
}

// NewEvent builds an outbound event with sequence number seq.
func NewEvent(event string, payload any, seq int64) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: FrameTypeEvent, Event: event, Payload: raw, Seq: seq}, nil
}

func boolPtr(b bool) *bool { return &b }

// decodePayload unmarshals an event payload. A missing payload leaves target untouched.
func decodePayload(f Frame, target any) error {
	if len(f.Payload) == 0 {
		return nil
	}
	return decodeJSONRaw(f.Payload, target)
}

func decodeJSONRaw(raw json.RawMessage, target any) error {
	return json.Unmarshal(raw, target)
}
