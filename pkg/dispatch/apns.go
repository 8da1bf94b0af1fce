package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/pushkit/pushkit/pkg/device"
)

// APNS hosts.
const (
	APNSHostProduction  = "https://api.push.apple.com"
	APNSHostDevelopment = "https://api.sandbox.push.apple.com"
)

// BearerTokenSource supplies provider authentication tokens. For APNs this
// is the ES256 provider token; keeping it behind an interface keeps vendor
// signing machinery out of the adapter.
type BearerTokenSource interface {
	BearerToken(ctx context.Context) (string, error)
}

// BearerTokenFunc adapts a function to BearerTokenSource.
type BearerTokenFunc func(ctx context.Context) (string, error)

func (f BearerTokenFunc) BearerToken(ctx context.Context) (string, error) { return f(ctx) }

// APNSConfig configures the APNs adapter.
type APNSConfig struct {
	Host        string        `env:"APNS_HOST" envDefault:"https://api.push.apple.com"`
	BundleTopic string        `env:"APNS_TOPIC"`
	Timeout     time.Duration `env:"APNS_TIMEOUT" envDefault:"30s"`
}

// APNSAdapter delivers through the Apple Push Notification service HTTP/2
// API with token-based authentication.
type APNSAdapter struct {
	host        string
	topic       string
	httpClient  *http.Client
	tokenSource BearerTokenSource
}

// NewAPNSAdapter creates the adapter. The token source is required; the
// host defaults to production.
func NewAPNSAdapter(cfg APNSConfig, tokens BearerTokenSource) (*APNSAdapter, error) {
	if tokens == nil {
		return nil, fmt.Errorf("apns adapter requires a token source")
	}
	host := cfg.Host
	if host == "" {
		host = APNSHostProduction
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &APNSAdapter{
		host:        host,
		topic:       cfg.BundleTopic,
		httpClient:  &http.Client{Timeout: timeout},
		tokenSource: tokens,
	}, nil
}

func (a *APNSAdapter) Provider() device.Provider { return device.ProviderAPNS }

type apnsPayload struct {
	APS  apnsAPS           `json:"aps"`
	Data map[string]string `json:"data,omitempty"`
}

type apnsAPS struct {
	Alert    apnsAlert `json:"alert"`
	Badge    *int      `json:"badge,omitempty"`
	Sound    string    `json:"sound,omitempty"`
	Category string    `json:"category,omitempty"`
}

type apnsAlert struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type apnsError struct {
	Reason string `json:"reason"`
}

func (a *APNSAdapter) Send(ctx context.Context, req Request) Response {
	tok, err := a.tokenSource.BearerToken(ctx)
	if err != nil {
		return failure(ErrCodeProvider, fmt.Sprintf("apns token source: %v", err), true)
	}

	payload := apnsPayload{
		APS: apnsAPS{
			Alert: apnsAlert{Title: req.Title, Body: req.Body},
			Badge: req.Badge,
			Sound: req.Sound,
		},
		Data: req.Data,
	}
	if len(req.Actions) > 0 {
		payload.APS.Category = req.Actions[0].ID
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return failure(ErrCodeProvider, fmt.Sprintf("apns payload encode: %v", err), false)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.host+"/3/device/"+req.Token, bytes.NewReader(body))
	if err != nil {
		return failure(ErrCodeProvider, err.Error(), false)
	}
	httpReq.Header.Set("Authorization", "bearer "+tok)
	if a.topic != "" {
		httpReq.Header.Set("apns-topic", a.topic)
	}
	httpReq.Header.Set("apns-priority", apnsPriority(req.Priority))
	if req.TTL > 0 {
		httpReq.Header.Set("apns-expiration",
			strconv.FormatInt(time.Now().Add(req.TTL).Unix(), 10))
	}

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return failure(ErrCodeNetwork, err.Error(), true)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return Response{Accepted: true, ProviderID: resp.Header.Get("apns-id")}
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var apnsErr apnsError
	_ = json.Unmarshal(raw, &apnsErr)

	code := ErrCodeProvider
	retryable := resp.StatusCode >= 500
	switch apnsErr.Reason {
	case "BadDeviceToken", "Unregistered", "DeviceTokenNotForTopic":
		code = ErrCodeInvalidToken
		retryable = false
	case "TooManyRequests":
		code = ErrCodeRateLimited
		retryable = true
	}
	message := apnsErr.Reason
	if message == "" {
		message = resp.Status
	}
	return failure(code, message, retryable)
}

// apnsPriority maps the abstract priority onto apns-priority header values:
// 10 for immediate delivery, 5 for power-considerate delivery.
func apnsPriority(p device.Priority) string {
	if p == device.PriorityHigh || p == device.PriorityCritical {
		return "10"
	}
	return "5"
}
