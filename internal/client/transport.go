package client

import (
	"context"
	"net/http"
	"time"
)

// Transport executes a single HTTP exchange.
//
// Implementations return a *TransportError for every failure so the client
// can classify it. Non-2xx statuses are not errors at this level.
type Transport interface {
	Execute(ctx context.Context, call Call) (*Result, error)
}

// Call is one outgoing HTTP exchange.
type Call struct {
	Method  string
	URL     string
	Header  http.Header
	Cookies map[string]string
	Timeout time.Duration
	Body    []byte
}

// Result is the raw outcome of a Call.
type Result struct {
	Status   int
	Header   http.Header
	Body     []byte
	FinalURL string
}

// TransportFunc adapts a function to a Transport.
type TransportFunc func(ctx context.Context, call Call) (*Result, error)

// Execute implements Transport.
func (f TransportFunc) Execute(ctx context.Context, call Call) (*Result, error) {
	return f(ctx, call)
}
