package sinks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/aluminyoom/kubesee/pkg/kube"
	"github.com/jpillora/backoff"
	"github.com/rs/zerolog/log"
)

// WebhookConfig configures the webhook sink. Retry/backoff fields follow
// the jpillora/backoff exponential model, with ±20% jitter applied to each
// step; unset (zero-value)
// MaxRetries/MinBackoff fall back to the spec's defaults of 2 retries (3
// attempts total) starting at a 100ms backoff.
type WebhookConfig struct {
	URL        string            `yaml:"url"`
	Method     string            `yaml:"method"`
	Headers    map[string]string `yaml:"headers"`
	Layout     map[string]any    `yaml:"layout"`
	DeDot      bool              `yaml:"deDot"`
	TLS        TLS               `yaml:"tls"`
	Timeout    time.Duration     `yaml:"timeout"`
	MaxRetries int               `yaml:"maxRetries"`
	MinBackoff time.Duration     `yaml:"minBackoff"`
	MaxBackoff time.Duration     `yaml:"maxBackoff"`
}

// Webhook POSTs (by default) the serialized event to a configured URL,
// retrying on transient failures (429, 500, 502, 503, 504, network errors) with
// exponential backoff and jitter.
type Webhook struct {
	cfg       *WebhookConfig
	transport *http.Transport
	client    *http.Client
}

// NewWebhook constructs the webhook sink.
func NewWebhook(cfg *WebhookConfig) (Sink, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("webhook: url is required")
	}
	if cfg.Method == "" {
		cfg.Method = http.MethodPost
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}

	tlsClientConfig, err := setupTLS(&cfg.TLS)
	if err != nil {
		return nil, fmt.Errorf("webhook: failed to setup TLS: %w", err)
	}

	transport := &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		TLSClientConfig: tlsClientConfig,
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Webhook{
		cfg:       cfg,
		transport: transport,
		client:    &http.Client{Transport: transport, Timeout: timeout},
	}, nil
}

func (w *Webhook) Send(ctx context.Context, ev *kube.EnhancedEvent) error {
	body, err := serialize(ev, w.cfg.DeDot, w.cfg.Layout)
	if err != nil {
		return err
	}

	b := &backoff.Backoff{
		Min: w.cfg.MinBackoff,
		Max: w.cfg.MaxBackoff,
	}
	if b.Min <= 0 {
		b.Min = 100 * time.Millisecond
	}
	if b.Max <= 0 {
		b.Max = 30 * time.Second
	}

	var lastErr error
	for attempt := 0; attempt <= w.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := b.Duration()
			// ±20% jitter around the exponential step.
			wait = time.Duration(float64(wait) * (0.8 + 0.4*rand.Float64()))
			log.Debug().Int("attempt", attempt).Dur("backoff", wait).Str("url", w.cfg.URL).Msg("retrying webhook send")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		lastErr = w.attempt(ctx, body, ev)
		if lastErr == nil {
			return nil
		}

		var statusErr *HTTPStatusError
		if errors.As(lastErr, &statusErr) && !statusErr.Retryable() {
			return lastErr
		}
	}
	return lastErr
}

func (w *Webhook) attempt(ctx context.Context, body []byte, ev *kube.EnhancedEvent) error {
	req, err := http.NewRequestWithContext(ctx, w.cfg.Method, w.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.cfg.Headers {
		req.Header.Add(k, renderHeaderValue(ev, v))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			log.Error().Err(cerr).Msg("failed to close webhook response body")
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 300 || resp.StatusCode < 200 {
		return &HTTPStatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	return nil
}

func (w *Webhook) Close() {
	w.transport.CloseIdleConnections()
}
