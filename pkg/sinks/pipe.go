package sinks

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/aluminyoom/kubesee/pkg/kube"
)

// PipeConfig configures the named-pipe (FIFO) sink.
type PipeConfig struct {
	Path   string         `yaml:"path"`
	Layout map[string]any `yaml:"layout"`
	DeDot  bool           `yaml:"deDot"`
}

// Pipe writes one JSON line per event to an already-existing named pipe.
// Opening blocks until a reader attaches, so it happens lazily on the
// first Send rather than at construction time.
type Pipe struct {
	cfg  *PipeConfig
	mu   sync.Mutex
	file *os.File
}

// NewPipe constructs the pipe sink. It does not open cfg.Path itself: the
// operator is responsible for creating the FIFO (mkfifo) ahead of time.
func NewPipe(cfg *PipeConfig) (Sink, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("pipe: path is required")
	}
	return &Pipe{cfg: cfg}, nil
}

func (p *Pipe) open() (*os.File, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.file != nil {
		return p.file, nil
	}
	f, err := os.OpenFile(p.cfg.Path, os.O_WRONLY, os.ModeNamedPipe)
	if err != nil {
		return nil, fmt.Errorf("pipe: open %s: %w", p.cfg.Path, err)
	}
	p.file = f
	return f, nil
}

func (p *Pipe) Send(_ context.Context, ev *kube.EnhancedEvent) error {
	body, err := serialize(ev, p.cfg.DeDot, p.cfg.Layout)
	if err != nil {
		return err
	}

	f, err := p.open()
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	_, err = f.Write(append(body, '\n'))
	return err
}

func (p *Pipe) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.file != nil {
		_ = p.file.Close()
		p.file = nil
	}
}
