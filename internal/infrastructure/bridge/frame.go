// Package bridge carries protocol messages between the running background
// and out-of-process contexts (CLI, terminal popup) over a websocket.
package bridge

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/felixgeelhaar/truthguard/pkg/domain/protocol"
	"github.com/felixgeelhaar/truthguard/pkg/messaging"
)

var (
	// ErrDisconnected is returned for requests pending when the connection drops.
	ErrDisconnected = errors.New("bridge disconnected")
	// ErrUnavailable is returned by Dial when no background is listening.
	ErrUnavailable = errors.New("bridge unavailable")
)

// frame is one request sent by a client.
type frame struct {
	ID      string          `json:"id"`
	To      string          `json:"to,omitempty"`
	Post    bool            `json:"post,omitempty"`
	Request json.RawMessage `json:"request"`
}

// reply answers exactly one frame.
type reply struct {
	ID       string          `json:"id"`
	Response json.RawMessage `json:"response,omitempty"`
	Code     string          `json:"code,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// Error codes let the client rebuild the bus sentinels.
const (
	codeNoReceiver    = "no_receiver"
	codeUnknownAction = "unknown_action"
	codeContextClosed = "context_closed"
	codeInvalid       = "invalid"
	codeRemote        = "remote"
)

func errorCode(err error) string {
	var schema *protocol.SchemaError
	switch {
	case errors.Is(err, messaging.ErrNoReceiver):
		return codeNoReceiver
	case errors.Is(err, messaging.ErrUnknownAction):
		return codeUnknownAction
	case errors.Is(err, messaging.ErrContextClosed):
		return codeContextClosed
	case errors.As(err, &schema), errors.Is(err, protocol.ErrMissingAction):
		return codeInvalid
	default:
		return codeRemote
	}
}

// RemoteError is a failure reported by the other side of the bridge.
type RemoteError struct {
	Code    string
	Message string
}

func (e *RemoteError) Error() string { return e.Message }

func (e *RemoteError) Unwrap() error {
	switch e.Code {
	case codeNoReceiver:
		return messaging.ErrNoReceiver
	case codeUnknownAction:
		return messaging.ErrUnknownAction
	case codeContextClosed:
		return messaging.ErrContextClosed
	default:
		return nil
	}
}

func (r reply) err() error {
	if r.Code == "" && r.Error == "" {
		return nil
	}
	return &RemoteError{Code: r.Code, Message: fmt.Sprintf("bridge: %s", r.Error)}
}
