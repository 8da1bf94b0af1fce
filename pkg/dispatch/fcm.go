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

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/pushkit/pushkit/pkg/device"
)

const (
	fcmEndpointTemplate = "https://fcm.googleapis.com/v1/projects/%s/messages:send"
	fcmScope            = "https://www.googleapis.com/auth/firebase.messaging"
)

// FCMConfig configures the FCM HTTP v1 adapter.
type FCMConfig struct {
	ProjectID          string        `env:"FCM_PROJECT_ID"`
	ServiceAccountJSON string        `env:"FCM_SERVICE_ACCOUNT_JSON"`
	Timeout            time.Duration `env:"FCM_TIMEOUT" envDefault:"30s"`
}

// FCMAdapter delivers through Firebase Cloud Messaging's HTTP v1 API using a
// service-account token source.
type FCMAdapter struct {
	endpoint    string
	httpClient  *http.Client
	tokenSource oauth2.TokenSource
}

// NewFCMAdapter creates the adapter from a service-account credential.
func NewFCMAdapter(ctx context.Context, cfg FCMConfig) (*FCMAdapter, error) {
	creds, err := google.CredentialsFromJSON(ctx, []byte(cfg.ServiceAccountJSON), fcmScope)
	if err != nil {
		return nil, fmt.Errorf("failed to load fcm credentials: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &FCMAdapter{
		endpoint:    fmt.Sprintf(fcmEndpointTemplate, cfg.ProjectID),
		httpClient:  &http.Client{Timeout: timeout},
		tokenSource: creds.TokenSource,
	}, nil
}

func (a *FCMAdapter) Provider() device.Provider { return device.ProviderFCM }

type fcmMessage struct {
	Message fcmPayload `json:"message"`
}

type fcmPayload struct {
	Token        string            `json:"token"`
	Notification *fcmNotification  `json:"notification,omitempty"`
	Data         map[string]string `json:"data,omitempty"`
	Android      *fcmAndroid       `json:"android,omitempty"`
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Image string `json:"image,omitempty"`
}

type fcmAndroid struct {
	Priority     string           `json:"priority,omitempty"`
	TTL          string           `json:"ttl,omitempty"`
	Notification *fcmAndroidNotif `json:"notification,omitempty"`
}

type fcmAndroidNotif struct {
	Sound       string `json:"sound,omitempty"`
	ClickAction string `json:"click_action,omitempty"`
}

type fcmResponse struct {
	Name  string `json:"name"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

func (a *FCMAdapter) Send(ctx context.Context, req Request) Response {
	tok, err := a.tokenSource.Token()
	if err != nil {
		return failure(ErrCodeProvider, fmt.Sprintf("fcm token source: %v", err), true)
	}

	msg := fcmMessage{Message: fcmPayload{
		Token: req.Token,
		Notification: &fcmNotification{
			Title: req.Title,
			Body:  req.Body,
			Image: req.MediaURL,
		},
		Data:    req.Data,
		Android: androidConfig(req),
	}}
	body, err := json.Marshal(msg)
	if err != nil {
		return failure(ErrCodeProvider, fmt.Sprintf("fcm payload encode: %v", err), false)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return failure(ErrCodeProvider, err.Error(), false)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+tok.AccessToken)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return failure(ErrCodeNetwork, err.Error(), true)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return failure(ErrCodeNetwork, err.Error(), true)
	}

	var parsed fcmResponse
	if err := json.Unmarshal(raw, &parsed); err != nil && resp.StatusCode < 300 {
		return failure(ErrCodeProvider, fmt.Sprintf("fcm response decode: %v", err), false)
	}

	if resp.StatusCode >= 300 {
		code := ErrCodeProvider
		retryable := resp.StatusCode >= 500
		message := resp.Status
		if parsed.Error != nil {
			message = parsed.Error.Message
			switch parsed.Error.Status {
			case "UNREGISTERED", "NOT_FOUND", "INVALID_ARGUMENT":
				code = ErrCodeInvalidToken
				retryable = false
			case "UNAVAILABLE", "INTERNAL":
				retryable = true
			case "QUOTA_EXCEEDED", "RESOURCE_EXHAUSTED":
				code = ErrCodeRateLimited
				retryable = true
			}
		} else if resp.StatusCode == http.StatusTooManyRequests {
			code = ErrCodeRateLimited
			retryable = true
		}
		return failure(code, message, retryable)
	}

	return Response{Accepted: true, ProviderID: parsed.Name}
}

// androidConfig maps the abstract priority and TTL into FCM's android
// urgency semantics. FCM only distinguishes normal and high; critical rides
// as high.
func androidConfig(req Request) *fcmAndroid {
	cfg := &fcmAndroid{Priority: "normal"}
	if req.Priority == device.PriorityHigh || req.Priority == device.PriorityCritical {
		cfg.Priority = "high"
	}
	if req.TTL > 0 {
		cfg.TTL = strconv.FormatInt(int64(req.TTL.Seconds()), 10) + "s"
	}
	if req.Sound != "" || len(req.Actions) > 0 {
		n := &fcmAndroidNotif{Sound: req.Sound}
		if len(req.Actions) > 0 {
			n.ClickAction = req.Actions[0].ID
		}
		cfg.Notification = n
	}
	return cfg
}
