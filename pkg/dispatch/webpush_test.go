package dispatch_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pushkit/pushkit/pkg/device"
	"github.com/pushkit/pushkit/pkg/dispatch"
	"github.com/pushkit/pushkit/pkg/notification"
)

func TestWebPushAdapter_Send(t *testing.T) {
	t.Parallel()

	var (
		urgency string
		ttl     string
		auth    string
		body    map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		urgency = r.Header.Get("Urgency")
		ttl = r.Header.Get("TTL")
		auth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.Header().Set("Location", "sub/123")
		w.WriteHeader(http.StatusCreated)
	}))
	t.Cleanup(srv.Close)

	adapter, err := dispatch.NewWebPushAdapter(dispatch.WebPushConfig{}, staticToken)
	require.NoError(t, err)

	resp := adapter.Send(context.Background(), dispatch.Request{
		Token:    srv.URL + "/push/sub-1",
		Title:    "Hello",
		Body:     "World",
		Priority: device.PriorityHigh,
		Actions:  []notification.Action{{ID: "open", Label: "Open"}},
	})

	assert.True(t, resp.Accepted)
	assert.Equal(t, "sub/123", resp.ProviderID)
	assert.Equal(t, "high", urgency)
	assert.Equal(t, "3600", ttl, "TTL defaults to one hour")
	assert.Equal(t, "vapid test-token", auth)
	assert.Equal(t, "Hello", body["title"])
}

func TestWebPushAdapter_RejectsNonURLToken(t *testing.T) {
	t.Parallel()

	adapter, err := dispatch.NewWebPushAdapter(dispatch.WebPushConfig{}, staticToken)
	require.NoError(t, err)

	resp := adapter.Send(context.Background(), dispatch.Request{Token: "raw-fcm-style-token"})
	assert.False(t, resp.Accepted)
	assert.Equal(t, dispatch.ErrCodeInvalidToken, resp.ErrorCode)
}

func TestWebPushAdapter_GoneSubscription(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))
	t.Cleanup(srv.Close)

	adapter, err := dispatch.NewWebPushAdapter(dispatch.WebPushConfig{}, staticToken)
	require.NoError(t, err)

	resp := adapter.Send(context.Background(), dispatch.Request{Token: srv.URL + "/push/old"})
	assert.Equal(t, dispatch.ErrCodeInvalidToken, resp.ErrorCode)
	assert.False(t, resp.Retryable)
}

func TestMemoryBlacklist(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	bl := dispatch.NewMemoryBlacklist()

	ok, err := bl.Contains(ctx, "tok-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, bl.Add(ctx, "tok-1"))

	ok, err = bl.Contains(ctx, "tok-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = bl.Contains(ctx, "tok-2")
	require.NoError(t, err)
	assert.False(t, ok)
}
