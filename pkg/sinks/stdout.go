package sinks

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/aluminyoom/kubesee/pkg/kube"
)

// StdoutConfig configures the stdout sink.
type StdoutConfig struct {
	Layout map[string]any `yaml:"layout"`
	DeDot  bool           `yaml:"deDot"`
}

// Stdout writes one JSON line per event to os.Stdout.
type Stdout struct {
	cfg *StdoutConfig
	mu  sync.Mutex
	out io.Writer
}

// NewStdout constructs the stdout sink.
func NewStdout(cfg *StdoutConfig) (Sink, error) {
	return &Stdout{cfg: cfg, out: os.Stdout}, nil
}

func (s *Stdout) Send(_ context.Context, ev *kube.EnhancedEvent) error {
	body, err := serialize(ev, s.cfg.DeDot, s.cfg.Layout)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = fmt.Fprintln(s.out, string(body))
	return err
}

func (s *Stdout) Close() {
	// No-op: os.Stdout is not ours to close.
}
