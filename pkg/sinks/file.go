package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/aluminyoom/kubesee/pkg/kube"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileConfig configures the rotating-file sink.
type FileConfig struct {
	Path       string         `yaml:"path"`
	Layout     map[string]any `yaml:"layout"`
	DeDot      bool           `yaml:"deDot"`
	MaxSizeMB  int            `yaml:"maxSizeMegabytes"`
	MaxBackups int            `yaml:"maxBackups"`
	MaxAgeDays int            `yaml:"maxAgeDays"`
	Compress   bool           `yaml:"compress"`
}

// File writes one JSON line per event to a local file, rotated by
// lumberjack once it crosses MaxSizeMB.
type File struct {
	cfg    *FileConfig
	mu     sync.Mutex
	logger *lumberjack.Logger
}

// NewFile constructs the file sink.
func NewFile(cfg *FileConfig) (Sink, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("file: path is required")
	}

	maxSize := cfg.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 100
	}

	return &File{
		cfg: cfg,
		logger: &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    maxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		},
	}, nil
}

func (f *File) Send(_ context.Context, ev *kube.EnhancedEvent) error {
	body, err := serialize(ev, f.cfg.DeDot, f.cfg.Layout)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	_, err = f.logger.Write(append(body, '\n'))
	return err
}

func (f *File) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	_ = f.logger.Close()
}
