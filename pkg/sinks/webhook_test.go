package sinks

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aluminyoom/kubesee/pkg/kube"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookRequiresURL(t *testing.T) {
	_, err := NewWebhook(&WebhookConfig{})
	assert.Error(t, err)
}

func TestWebhookSendSuccess(t *testing.T) {
	var gotBody atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf, _ := io.ReadAll(r.Body)
		gotBody.Store(string(buf))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s, err := NewWebhook(&WebhookConfig{URL: srv.URL})
	require.NoError(t, err)
	defer s.Close()

	ev := &kube.EnhancedEvent{}
	ev.Reason = "Pulled"
	require.NoError(t, s.Send(context.Background(), ev))
	assert.Contains(t, gotBody.Load().(string), "Pulled")
}

func TestWebhookDefaultsRetryTwiceBeforeSucceeding(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	// No MaxRetries/MinBackoff set: out of the box this must still retry,
	// per spec, up to 3 attempts starting at a 100ms backoff.
	s, err := NewWebhook(&WebhookConfig{URL: srv.URL})
	require.NoError(t, err)
	defer s.Close()

	start := time.Now()
	require.NoError(t, s.Send(context.Background(), &kube.EnhancedEvent{}))
	assert.EqualValues(t, 3, attempts.Load())
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
}

func TestWebhookNonRetryableStatusStopsImmediately(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	s, err := NewWebhook(&WebhookConfig{URL: srv.URL, MaxRetries: 5, MinBackoff: time.Millisecond, MaxBackoff: time.Millisecond})
	require.NoError(t, err)
	defer s.Close()

	err = s.Send(context.Background(), &kube.EnhancedEvent{})
	assert.Error(t, err)
	assert.EqualValues(t, 1, attempts.Load())

	var statusErr *HTTPStatusError
	assert.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
}

func TestWebhookRetryableStatusRetriesUntilMaxRetries(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s, err := NewWebhook(&WebhookConfig{URL: srv.URL, MaxRetries: 2, MinBackoff: time.Millisecond, MaxBackoff: time.Millisecond})
	require.NoError(t, err)
	defer s.Close()

	err = s.Send(context.Background(), &kube.EnhancedEvent{})
	assert.Error(t, err)
	assert.EqualValues(t, 3, attempts.Load()) // initial attempt + 2 retries
}

func TestWebhookHeaderTemplating(t *testing.T) {
	var gotHeader atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader.Store(r.Header.Get("X-Reason"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s, err := NewWebhook(&WebhookConfig{
		URL:     srv.URL,
		Headers: map[string]string{"X-Reason": "{{.Reason}}"},
	})
	require.NoError(t, err)
	defer s.Close()

	ev := &kube.EnhancedEvent{}
	ev.Reason = "Evicted"
	require.NoError(t, s.Send(context.Background(), ev))
	assert.Equal(t, "Evicted", gotHeader.Load().(string))
}
