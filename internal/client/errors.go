package client

import (
	"errors"
	"fmt"
)

// Sentinel errors matched with errors.Is.
var (
	// ErrConnect matches transport errors of KindConnect.
	ErrConnect = errors.New("connection failed")

	// ErrTimeout matches transport errors of KindTimeout.
	ErrTimeout = errors.New("request timed out")

	// ErrTLS matches transport errors of KindTLS.
	ErrTLS = errors.New("TLS error")

	// ErrTransport matches every transport error, whatever its kind.
	ErrTransport = errors.New("transport error")

	// ErrBadStatus matches every *StatusError.
	ErrBadStatus = errors.New("bad response status")

	// ErrNilRequest is returned by Fetch for a nil request.
	ErrNilRequest = errors.New("request is nil")
)

// Kind classifies transport failures.
type Kind int

const (
	// KindOther is any failure that is not one of the kinds below.
	KindOther Kind = iota
	// KindConnect is a failure to establish a connection.
	KindConnect
	// KindTimeout is a request that exceeded its deadline.
	KindTimeout
	// KindTLS is a failed TLS handshake or certificate check.
	KindTLS
)

// Kinds lists every Kind in display order.
var Kinds = []Kind{KindConnect, KindTimeout, KindTLS, KindOther}

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindConnect:
		return "connect"
	case KindTimeout:
		return "timeout"
	case KindTLS:
		return "tls"
	default:
		return "other"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindConnect:
		return ErrConnect
	case KindTimeout:
		return ErrTimeout
	case KindTLS:
		return ErrTLS
	default:
		return nil
	}
}

// TransportError is a failure below the HTTP layer.
type TransportError struct {
	Kind Kind
	URL  string
	Err  error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Kind, e.URL, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is matches ErrTransport and the sentinel of the error's kind.
func (e *TransportError) Is(target error) bool {
	if target == ErrTransport {
		return true
	}
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// StatusError reports a response status at or above the client threshold.
type StatusError struct {
	Status int
	URL    string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("bad status %d for %s", e.Status, e.URL)
}

// Is matches ErrBadStatus.
func (e *StatusError) Is(target error) bool {
	return target == ErrBadStatus
}

// ConfigError reports a request that cannot be sent as configured. It is
// returned before any network activity.
type ConfigError struct {
	URL string
	Err error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid request %s: %v", e.URL, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of a transport error in err's chain, and false
// when err is not a transport error.
func KindOf(err error) (Kind, bool) {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Kind, true
	}
	return KindOther, false
}
