package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Wire message types. The inbound set is closed: anything else parses to
// a typed error, never to a best-effort partial message.
const (
	MsgSubscribe   = "subscribe"
	MsgUnsubscribe = "unsubscribe"
	MsgPing        = "ping"
	MsgData        = "data"
	MsgHeartbeat   = "heartbeat"
	MsgPong        = "pong"
	MsgError       = "error"
)

// SubscribeRequest is the payload of an inbound subscribe message.
type SubscribeRequest struct {
	Symbols          []string             `json:"symbols"`
	SubscriptionType SubscriptionCategory `json:"subscriptionType"`
	StoreID          string               `json:"storeId,omitempty"`
	Frequency        string               `json:"frequency,omitempty"`
}

// UnsubscribeRequest is the payload of an inbound unsubscribe message.
type UnsubscribeRequest struct {
	Symbols          []string             `json:"symbols,omitempty"`
	SubscriptionType SubscriptionCategory `json:"subscriptionType,omitempty"`
	All              bool                 `json:"all,omitempty"`
}

// PingMessage carries the client's clock for RTT estimation.
type PingMessage struct {
	Timestamp int64 `json:"timestamp"`
}

// InboundMessage is the closed variant set a client may send. Exactly one
// of the payload fields is populated, matching Type.
type InboundMessage struct {
	Type        string
	Subscribe   *SubscribeRequest
	Unsubscribe *UnsubscribeRequest
	Ping        *PingMessage
}

// ParseError is returned for malformed or unrecognized inbound frames.
// Code is machine-readable and goes back to the client verbatim.
type ParseError struct {
	Code string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return e.Code
}

func (e *ParseError) Unwrap() error { return e.Err }

type rawInbound struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// ParseInbound decodes one client frame into its typed variant.
func ParseInbound(b []byte) (*InboundMessage, error) {
	var raw rawInbound
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, &ParseError{Code: "ERR_MALFORMED_JSON", Err: err}
	}

	switch raw.Type {
	case MsgSubscribe:
		var req SubscribeRequest
		if err := json.Unmarshal(raw.Data, &req); err != nil {
			return nil, &ParseError{Code: "ERR_MALFORMED_SUBSCRIBE", Err: err}
		}
		if req.SubscriptionType == "" {
			req.SubscriptionType = CategoryRates
		}
		if !ValidCategory(req.SubscriptionType) {
			return nil, &ParseError{Code: "ERR_UNKNOWN_CATEGORY", Err: fmt.Errorf("category %q", req.SubscriptionType)}
		}
		return &InboundMessage{Type: MsgSubscribe, Subscribe: &req}, nil

	case MsgUnsubscribe:
		var req UnsubscribeRequest
		if len(raw.Data) > 0 {
			if err := json.Unmarshal(raw.Data, &req); err != nil {
				return nil, &ParseError{Code: "ERR_MALFORMED_UNSUBSCRIBE", Err: err}
			}
		}
		return &InboundMessage{Type: MsgUnsubscribe, Unsubscribe: &req}, nil

	case MsgPing:
		return &InboundMessage{Type: MsgPing, Ping: &PingMessage{Timestamp: raw.Timestamp}}, nil

	case "":
		return nil, &ParseError{Code: "ERR_MISSING_TYPE"}

	default:
		return nil, &ParseError{Code: "ERR_UNKNOWN_TYPE", Err: fmt.Errorf("type %q", raw.Type)}
	}
}

// Outbound frames. Constructors keep the envelope shape in one place.

// DataPayload is the body of an outbound data frame.
type DataPayload struct {
	Type  string         `json:"type"`
	Rates []ExchangeRate `json:"rates,omitempty"`
	Alert *RateAlert     `json:"alert,omitempty"`
}

// HeartbeatPayload reports server liveness and aggregate counts.
type HeartbeatPayload struct {
	ServerTime          time.Time `json:"serverTime"`
	ActiveConnections   int       `json:"activeConnections"`
	ActiveSubscriptions int       `json:"activeSubscriptions"`
}

// OutboundMessage is one frame written to a client connection.
type OutboundMessage struct {
	Type      string `json:"type"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	Code      string `json:"code,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// NewRateUpdate builds an outbound data frame carrying rate updates.
func NewRateUpdate(rates []ExchangeRate) *OutboundMessage {
	return &OutboundMessage{Type: MsgData, Data: &DataPayload{Type: "rate_update", Rates: rates}}
}

// NewAlertMessage builds an outbound data frame carrying one alert.
func NewAlertMessage(alert *RateAlert) *OutboundMessage {
	return &OutboundMessage{Type: MsgData, Data: &DataPayload{Type: "alert", Alert: alert}}
}

// NewHeartbeat builds a heartbeat frame.
func NewHeartbeat(now time.Time, conns, subs int) *OutboundMessage {
	return &OutboundMessage{Type: MsgHeartbeat, Data: &HeartbeatPayload{
		ServerTime:          now,
		ActiveConnections:   conns,
		ActiveSubscriptions: subs,
	}}
}

// NewPong answers a ping, echoing the client timestamp.
func NewPong(ts int64) *OutboundMessage {
	return &OutboundMessage{Type: MsgPong, Timestamp: ts}
}

// NewErrorMessage builds a typed error frame.
func NewErrorMessage(code, msg string) *OutboundMessage {
	return &OutboundMessage{Type: MsgError, Error: msg, Code: code}
}
