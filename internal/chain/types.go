package chain

import (
	"encoding/json"
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected  = errors.New("not connected")
	ErrAlreadyClosed = errors.New("already closed")
)

// LogBundle is the per-transaction unit handed to the event decoder.
// Bundles for failed transactions are filtered out before this point.
type LogBundle struct {
	Signature  string    // Transaction signature
	Slot       uint64    // Slot the transaction landed in
	Program    string    // Subscribed program address this bundle matched
	Logs       []string  // Raw program log lines
	ReceivedAt time.Time // Local timestamp when the notification arrived
}

// rpcRequest is an outbound JSON-RPC frame.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

// rpcEnvelope covers both responses (ID set) and notifications (Method set).
type rpcEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// logsMentionsFilter is the first logsSubscribe parameter.
type logsMentionsFilter struct {
	Mentions []string `json:"mentions"`
}

// commitmentOption is the second logsSubscribe parameter.
type commitmentOption struct {
	Commitment string `json:"commitment"`
}

// logsNotificationParams is the payload of a logsNotification frame.
type logsNotificationParams struct {
	Subscription uint64 `json:"subscription"`
	Result       struct {
		Context struct {
			Slot uint64 `json:"slot"`
		} `json:"context"`
		Value struct {
			Signature string          `json:"signature"`
			Err       json.RawMessage `json:"err"`
			Logs      []string        `json:"logs"`
		} `json:"value"`
	} `json:"result"`
}

// txFailed reports whether the notification's err field is non-null.
func (p *logsNotificationParams) txFailed() bool {
	raw := p.Result.Value.Err
	return len(raw) > 0 && string(raw) != "null"
}
