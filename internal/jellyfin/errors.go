package jellyfin

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Kind classifies a failed client operation. Timeout and SSL are
// refinements of Connection: IsConnection matches all three.
type Kind int

const (
	KindConnection Kind = iota + 1
	KindTimeout
	KindSSL
	KindAuth
	KindNotFound
	KindServer
)

func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindTimeout:
		return "timeout"
	case KindSSL:
		return "ssl"
	case KindAuth:
		return "authentication"
	case KindNotFound:
		return "not found"
	case KindServer:
		return "server"
	default:
		return "unknown"
	}
}

// Error is the only error type returned by client operations. Status is
// set when the failure came from an HTTP response, zero otherwise.
type Error struct {
	Kind   Kind
	Op     string
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Op, e.Kind, e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func kindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return 0
}

// IsAuth reports whether err is an authentication failure (401/403).
func IsAuth(err error) bool { return kindOf(err) == KindAuth }

// IsNotFound reports whether err is a 404.
func IsNotFound(err error) bool { return kindOf(err) == KindNotFound }

// IsConnection reports whether err is any transport-level failure,
// including the timeout and TLS refinements.
func IsConnection(err error) bool {
	switch kindOf(err) {
	case KindConnection, KindTimeout, KindSSL:
		return true
	}
	return false
}

// IsTimeout reports whether err is the timeout refinement.
func IsTimeout(err error) bool { return kindOf(err) == KindTimeout }

// IsSSL reports whether err is the TLS-validation refinement.
func IsSSL(err error) bool { return kindOf(err) == KindSSL }

// IsServer reports whether err is a 5xx from the remote.
func IsServer(err error) bool { return kindOf(err) == KindServer }

// IsTransient reports whether the failure is worth retrying later, as
// opposed to one that needs new credentials or a different request.
func IsTransient(err error) bool {
	return IsConnection(err) || IsServer(err)
}

// statusError maps an HTTP response status to the taxonomy.
func statusError(op string, status int) *Error {
	var kind Kind
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = KindAuth
	case status == http.StatusNotFound:
		kind = KindNotFound
	case status >= 500:
		kind = KindServer
	default:
		kind = KindServer
	}
	return &Error{Kind: kind, Op: op, Status: status}
}

// transportError maps a failure from the HTTP transport (DNS, connect,
// TLS, timeout) to the taxonomy. Raw transport errors never reach callers.
func transportError(op string, err error) *Error {
	kind := KindConnection

	var certVerify *tls.CertificateVerificationError
	var unknownCA x509.UnknownAuthorityError
	var hostname x509.HostnameError
	var certInvalid x509.CertificateInvalidError
	var netErr net.Error

	switch {
	case errors.As(err, &certVerify),
		errors.As(err, &unknownCA),
		errors.As(err, &hostname),
		errors.As(err, &certInvalid):
		kind = KindSSL
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = KindTimeout
	}

	return &Error{Kind: kind, Op: op, Err: err}
}
