package kube

import (
	"fmt"
	"testing"
	"time"

	"github.com/aluminyoom/kubesee/pkg/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetricsStore(t *testing.T) *metrics.Store {
	prefix := fmt.Sprintf("%s_%d_", t.Name(), time.Now().UnixNano())
	ms := metrics.NewMetricsStore(prefix)
	t.Cleanup(func() {
		metrics.DestroyMetricsStore(ms)
	})
	return ms
}

func TestNewEventWatcherRequiredRejectsMissingCollaborators(t *testing.T) {
	cases := []struct {
		name string
		opts []EventWatcherOption
	}{
		{"nil handler", []EventWatcherOption{WithOnEventHandler(nil)}},
		{"nil metrics store", []EventWatcherOption{WithMetricsStore(nil)}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewEventWatcherRequired(tc.opts...)
			assert.Error(t, err)
		})
	}
}

func TestNewEventWatcherRequiredAcceptsValidCollaborators(t *testing.T) {
	opts := []EventWatcherOption{
		WithMetricsStore(newTestMetricsStore(t)),
		WithOnEventHandler(func(*EnhancedEvent) {}),
	}
	_, err := NewEventWatcherRequired(opts...)
	assert.NoError(t, err)
}

func TestEventWatcherOptionsRejectNonPositiveValues(t *testing.T) {
	cases := []struct {
		name string
		opt  EventWatcherOption
	}{
		{"maxEventAgeSeconds=0", WithMaxEventAgeSeconds(0)},
		{"maxEventAgeSeconds<0", WithMaxEventAgeSeconds(-30)},
		{"cacheSize=0", WithCacheSize(0)},
		{"mappingCacheSize=0", WithMappingCacheSize(0)},
		{"cacheTTL=0", WithCacheTTL(0)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewEventWatcherRequired(tc.opt)
			assert.Error(t, err)
		})
	}
}

func TestEventWatcherOptionsPopulateRequiredConfig(t *testing.T) {
	ms := newTestMetricsStore(t)

	req, err := NewEventWatcherRequired(
		WithMetricsStore(ms),
		WithOnEventHandler(func(*EnhancedEvent) {}),
		WithMaxEventAgeSeconds(180),
		WithCacheSize(512),
		WithMappingCacheSize(64),
		WithCacheTTL(10*time.Minute),
		WithNamespace("kube-system"),
		WithOmitLookup(true),
	)
	require.NoError(t, err)

	assert.Same(t, ms, req.metricsStore)
	assert.EqualValues(t, 180, req.maxEventAgeSeconds)
	assert.Equal(t, 512, req.cacheSize)
	assert.Equal(t, 64, req.mappingCacheSize)
	assert.Equal(t, 10*time.Minute, req.cacheTTL)
	assert.Equal(t, "kube-system", req.namespace)
	assert.True(t, req.omitLookup)
}
