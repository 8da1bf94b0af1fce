package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pushkit/pushkit/pkg/device"
)

// WebPushConfig configures the browser push adapter.
type WebPushConfig struct {
	Subscriber string        `env:"WEBPUSH_SUBSCRIBER"` // mailto: contact for the push service
	Timeout    time.Duration `env:"WEBPUSH_TIMEOUT" envDefault:"30s"`
}

// WebPushAdapter delivers to browser push endpoints. The device token is the
// subscription endpoint URL; VAPID authorization headers come from the
// caller-supplied token source, which receives the endpoint origin as its
// audience context.
type WebPushAdapter struct {
	subscriber  string
	httpClient  *http.Client
	tokenSource BearerTokenSource
}

// NewWebPushAdapter creates the adapter.
func NewWebPushAdapter(cfg WebPushConfig, tokens BearerTokenSource) (*WebPushAdapter, error) {
	if tokens == nil {
		return nil, fmt.Errorf("webpush adapter requires a token source")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &WebPushAdapter{
		subscriber:  cfg.Subscriber,
		httpClient:  &http.Client{Timeout: timeout},
		tokenSource: tokens,
	}, nil
}

func (a *WebPushAdapter) Provider() device.Provider { return device.ProviderWebPush }

type webPushBody struct {
	Title   string            `json:"title"`
	Body    string            `json:"body"`
	Icon    string            `json:"icon,omitempty"`
	Data    map[string]string `json:"data,omitempty"`
	Actions []webPushAction   `json:"actions,omitempty"`
}

type webPushAction struct {
	Action string `json:"action"`
	Title  string `json:"title"`
}

func (a *WebPushAdapter) Send(ctx context.Context, req Request) Response {
	if u, err := url.Parse(req.Token); err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
		return failure(ErrCodeInvalidToken, "webpush token is not a subscription endpoint URL", false)
	}

	tok, err := a.tokenSource.BearerToken(ctx)
	if err != nil {
		return failure(ErrCodeProvider, fmt.Sprintf("webpush token source: %v", err), true)
	}

	payload := webPushBody{
		Title: req.Title,
		Body:  req.Body,
		Icon:  req.MediaURL,
		Data:  req.Data,
	}
	for _, act := range req.Actions {
		payload.Actions = append(payload.Actions, webPushAction{Action: act.ID, Title: act.Label})
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return failure(ErrCodeProvider, fmt.Sprintf("webpush payload encode: %v", err), false)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.Token, strings.NewReader(string(body)))
	if err != nil {
		return failure(ErrCodeProvider, err.Error(), false)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "vapid "+tok)
	httpReq.Header.Set("Urgency", webPushUrgency(req.Priority))
	ttl := req.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	httpReq.Header.Set("TTL", strconv.FormatInt(int64(ttl.Seconds()), 10))

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return failure(ErrCodeNetwork, err.Error(), true)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusOK:
		return Response{Accepted: true, ProviderID: resp.Header.Get("Location")}
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		// Subscription expired or was revoked by the browser.
		return failure(ErrCodeInvalidToken, resp.Status, false)
	case resp.StatusCode == http.StatusTooManyRequests:
		return failure(ErrCodeRateLimited, resp.Status, true)
	default:
		return failure(ErrCodeProvider, resp.Status, resp.StatusCode >= 500)
	}
}

// webPushUrgency maps the abstract priority onto the Web Push Urgency
// header.
func webPushUrgency(p device.Priority) string {
	switch p {
	case device.PriorityLow:
		return "low"
	case device.PriorityHigh, device.PriorityCritical:
		return "high"
	default:
		return "normal"
	}
}
