package sinks

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aluminyoom/kubesee/pkg/kube"
	elasticsearch "github.com/elastic/go-elasticsearch/v7"
	esapi "github.com/elastic/go-elasticsearch/v7/esapi"
	opensearch "github.com/opensearch-project/opensearch-go"
	opensearchapi "github.com/opensearch-project/opensearch-go/opensearchapi"
	"github.com/rs/zerolog/log"
)

// ElasticsearchConfig configures both the elasticsearch and opensearch
// sinks; the two products share a wire-compatible bulk/index API, so one
// config shape and one implementation (gated by useOpenSearch) covers both.
type ElasticsearchConfig struct {
	Hosts       []string       `yaml:"hosts"`
	Username    string         `yaml:"username"`
	Password    string         `yaml:"password"`
	APIKey      string         `yaml:"apiKey"`
	Index       string         `yaml:"index"`
	IndexFormat string         `yaml:"indexFormat"`
	Layout      map[string]any `yaml:"layout"`
	DeDot       bool           `yaml:"deDot"`
	TLS         TLS            `yaml:"tls"`

	// Type sets the legacy mapping type segment of the document path
	// (/{index}/{type}/_doc/...). Most clusters no longer need it; it
	// exists for talking to older Elasticsearch deployments.
	Type string `yaml:"type,omitempty"`

	// UseEventID indexes each event under a document ID derived from the
	// involved object's UID instead of letting Elasticsearch generate one,
	// so the same recurring event overwrites its own document (PUT) rather
	// than multiplying into a new one (POST) on every re-send.
	UseEventID bool `yaml:"useEventID,omitempty"`
}

// Elasticsearch indexes one document per event, either into go-elasticsearch
// (useOpenSearch=false) or opensearch-go (useOpenSearch=true).
type Elasticsearch struct {
	cfg           *ElasticsearchConfig
	useOpenSearch bool

	es *elasticsearch.Client
	os *opensearch.Client
}

// NewElasticsearch constructs the elasticsearch/opensearch sink.
func NewElasticsearch(cfg *ElasticsearchConfig, useOpenSearch bool) (Sink, error) {
	if len(cfg.Hosts) == 0 {
		return nil, fmt.Errorf("elasticsearch: at least one host is required")
	}
	if cfg.Index == "" && cfg.IndexFormat == "" {
		return nil, fmt.Errorf("elasticsearch: index or indexFormat is required")
	}

	tlsClientConfig, err := setupTLS(&cfg.TLS)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: failed to setup TLS: %w", err)
	}
	transport := &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		TLSClientConfig: tlsClientConfig,
	}

	e := &Elasticsearch{cfg: cfg, useOpenSearch: useOpenSearch}

	if useOpenSearch {
		client, err := opensearch.NewClient(opensearch.Config{
			Addresses: cfg.Hosts,
			Username:  cfg.Username,
			Password:  cfg.Password,
			Transport: transport,
		})
		if err != nil {
			return nil, fmt.Errorf("opensearch: failed to build client: %w", err)
		}
		e.os = client
		return e, nil
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Hosts,
		Username:  cfg.Username,
		Password:  cfg.Password,
		APIKey:    cfg.APIKey,
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: failed to build client: %w", err)
	}
	e.es = client
	return e, nil
}

func (e *Elasticsearch) indexName() string {
	if e.cfg.IndexFormat != "" {
		return renderIndexFormat(e.cfg.IndexFormat, time.Now())
	}
	return e.cfg.Index
}

// documentID returns the document ID to index ev under when UseEventID is
// set: the involved object's UID. An empty return means "let the store
// generate one" (POST), matching a plain Elasticsearch/OpenSearch index
// call with no ID.
func (e *Elasticsearch) documentID(ev *kube.EnhancedEvent) string {
	if !e.cfg.UseEventID {
		return ""
	}
	return string(ev.InvolvedObject.UID)
}

func (e *Elasticsearch) Send(ctx context.Context, ev *kube.EnhancedEvent) error {
	body, err := serialize(ev, e.cfg.DeDot, e.cfg.Layout)
	if err != nil {
		return err
	}
	index := e.indexName()
	docID := e.documentID(ev)

	var resp *esapi.Response
	if e.useOpenSearch {
		req := opensearchapi.IndexRequest{
			Index:        index,
			DocumentID:   docID,
			DocumentType: e.cfg.Type,
			Body:         bytes.NewReader(body),
		}
		osResp, err := req.Do(ctx, e.os)
		if err != nil {
			return err
		}
		defer closeAndLog(osResp.Body)
		if osResp.IsError() {
			b, _ := io.ReadAll(osResp.Body)
			return &HTTPStatusError{StatusCode: osResp.StatusCode, Body: string(b)}
		}
		return nil
	}

	req := esapi.IndexRequest{
		Index:        index,
		DocumentID:   docID,
		DocumentType: e.cfg.Type,
		Body:         bytes.NewReader(body),
	}
	resp, err = req.Do(ctx, e.es)
	if err != nil {
		return err
	}
	defer closeAndLog(resp.Body)
	if resp.IsError() {
		b, _ := io.ReadAll(resp.Body)
		return &HTTPStatusError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	return nil
}

func closeAndLog(c io.Closer) {
	if err := c.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close elasticsearch response body")
	}
}

func (e *Elasticsearch) Close() {
	// go-elasticsearch and opensearch-go clients own no long-lived
	// connection beyond the shared transport's idle pool; nothing to do.
}
