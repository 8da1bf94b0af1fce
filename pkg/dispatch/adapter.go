package dispatch

import (
	"context"
	"time"

	"github.com/pushkit/pushkit/pkg/device"
	"github.com/pushkit/pushkit/pkg/notification"
)

// Error codes surfaced in Response.ErrorCode. Adapters map provider-specific
// failures onto these so callers can react uniformly.
const (
	ErrCodeUnsupported  = "unsupported_provider"
	ErrCodeInvalidToken = "invalid_token"
	ErrCodeBlacklisted  = "token_blacklisted"
	ErrCodeRateLimited  = "rate_limited"
	ErrCodeNetwork      = "network_error"
	ErrCodeProvider     = "provider_error"
)

// Request is the provider-agnostic wire contract handed to adapters.
type Request struct {
	Token    string
	Title    string
	Body     string
	Data     map[string]string
	Priority device.Priority
	TTL      time.Duration
	MediaURL string
	Actions  []notification.Action
	Badge    *int
	Sound    string
}

// Response is the uniform delivery outcome. Adapters never return a Go
// error; every provider failure is captured here so the caller can keep
// dispatching to the remaining devices.
type Response struct {
	Accepted     bool
	ProviderID   string
	ErrorCode    string
	ErrorMessage string
	Retryable    bool
}

// failure builds a rejected response.
func failure(code, message string, retryable bool) Response {
	return Response{ErrorCode: code, ErrorMessage: message, Retryable: retryable}
}

// Adapter delivers a request through one provider family. Implementations
// must be safe for concurrent use and must enforce their own network
// timeouts; the engine does not abort in-flight provider calls.
type Adapter interface {
	Provider() device.Provider
	Send(ctx context.Context, req Request) Response
}

// AdapterFunc adapts a function to the Adapter interface, mostly for tests.
type AdapterFunc struct {
	ProviderFamily device.Provider
	Fn             func(ctx context.Context, req Request) Response
}

func (a AdapterFunc) Provider() device.Provider { return a.ProviderFamily }

func (a AdapterFunc) Send(ctx context.Context, req Request) Response { return a.Fn(ctx, req) }
