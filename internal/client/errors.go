package client

import (
	"errors"
	"fmt"
)

// Kind classifies a failed backend call.
type Kind int

const (
	// KindTransport means the backend could not be reached or the exchange
	// broke off: dial errors, timeouts, truncated bodies.
	KindTransport Kind = iota + 1
	// KindAuth means the credentials or the session token were rejected, or
	// no token was available to send.
	KindAuth
	// KindServer means the backend answered with a failure.
	KindServer
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindAuth:
		return "auth"
	case KindServer:
		return "server"
	default:
		return "unknown"
	}
}

// Error is returned by every Client method.
type Error struct {
	Kind    Kind
	Op      string // "login", "fetch", "update"
	Status  int    // HTTP status, 0 when no response was received
	Message string // message reported by the backend, if any
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s error", e.Op, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrNoSession is wrapped by auth errors raised before any request is sent.
var ErrNoSession = errors.New("not logged in")

// KindOf returns the kind of err, or 0 when err is not a client error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// IsAuth reports whether err means the user has to log in again.
func IsAuth(err error) bool { return KindOf(err) == KindAuth }

// IsTransport reports whether err is a network-level failure.
func IsTransport(err error) bool { return KindOf(err) == KindTransport }

// IsServer reports whether the backend answered with a failure.
func IsServer(err error) bool { return KindOf(err) == KindServer }
