package services

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// GatewayAuthError means the gateway refused or failed to issue a session token.
type GatewayAuthError struct {
	Op  string
	Err error
}

func (e *GatewayAuthError) Error() string {
	return fmt.Sprintf("gateway auth failed (%s): %v", e.Op, e.Err)
}

func (e *GatewayAuthError) Unwrap() error { return e.Err }

// GatewayRequestError is a transport or remote failure on a gateway call.
// StatusCode is the HTTP status when one was received.
type GatewayRequestError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *GatewayRequestError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("gateway request %s failed: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("gateway request %s failed: %v", e.Op, e.Err)
}

func (e *GatewayRequestError) Unwrap() error { return e.Err }

// Timeout reports whether the failure was the call running out of time.
func (e *GatewayRequestError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// NotFoundError reports an unknown transaction or user.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// ValidationError reports malformed caller input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// IsNotFound reports whether err is, or wraps, a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
