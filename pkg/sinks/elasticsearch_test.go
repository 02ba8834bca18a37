package sinks

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/aluminyoom/kubesee/pkg/kube"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestElasticsearchRequiresHosts(t *testing.T) {
	_, err := NewElasticsearch(&ElasticsearchConfig{Index: "kube-events"}, false)
	assert.Error(t, err)
}

func TestElasticsearchRequiresIndex(t *testing.T) {
	_, err := NewElasticsearch(&ElasticsearchConfig{Hosts: []string{"http://localhost:9200"}}, false)
	assert.Error(t, err)
}

func TestElasticsearchSendIndexesDocument(t *testing.T) {
	var gotPath atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath.Store(r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	}))
	defer srv.Close()

	s, err := NewElasticsearch(&ElasticsearchConfig{
		Hosts: []string{srv.URL},
		Index: "kube-events",
	}, false)
	require.NoError(t, err)

	ev := &kube.EnhancedEvent{}
	ev.Reason = "Pulled"
	require.NoError(t, s.Send(context.Background(), ev))
	assert.Contains(t, gotPath.Load().(string), "kube-events")
}

func TestElasticsearchUseEventIDPutsByInvolvedObjectUID(t *testing.T) {
	var gotMethod, gotPath atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod.Store(r.Method)
		gotPath.Store(r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"result":"updated"}`))
	}))
	defer srv.Close()

	s, err := NewElasticsearch(&ElasticsearchConfig{
		Hosts:      []string{srv.URL},
		Index:      "kube-events",
		Type:       "doc",
		UseEventID: true,
	}, false)
	require.NoError(t, err)

	ev := &kube.EnhancedEvent{}
	ev.InvolvedObject.UID = "abc-123"
	require.NoError(t, s.Send(context.Background(), ev))
	assert.Equal(t, http.MethodPut, gotMethod.Load().(string))
	assert.Contains(t, gotPath.Load().(string), "/doc/")
	assert.Contains(t, gotPath.Load().(string), "abc-123")
}

func TestOpensearchSendIndexesDocument(t *testing.T) {
	var gotPath atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath.Store(r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	}))
	defer srv.Close()

	s, err := NewElasticsearch(&ElasticsearchConfig{
		Hosts:       []string{srv.URL},
		IndexFormat: "kube-events-{2006}",
	}, true)
	require.NoError(t, err)

	require.NoError(t, s.Send(context.Background(), &kube.EnhancedEvent{}))
	assert.Contains(t, gotPath.Load().(string), "kube-events-")
}
