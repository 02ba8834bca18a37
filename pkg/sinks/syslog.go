package sinks

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/aluminyoom/kubesee/pkg/kube"
)

// SyslogConfig configures the syslog sink. Network is "tcp", "udp", or
// "tcp+tls"; Facility/Severity follow RFC 3164 numbering and default to
// local0/info (<134>).
type SyslogConfig struct {
	Network  string         `yaml:"network"`
	Address  string         `yaml:"address"`
	Tag      string         `yaml:"tag"`
	Facility int            `yaml:"facility"`
	Severity int            `yaml:"severity"`
	Layout   map[string]any `yaml:"layout"`
	DeDot    bool           `yaml:"deDot"`
	TLS      TLS            `yaml:"tls"`
}

// Syslog writes one "<PRI>tag: payload" line per event over a
// long-lived TCP/UDP connection, reconnecting lazily on send failure.
type Syslog struct {
	cfg      *SyslogConfig
	priority int

	mu   sync.Mutex
	conn net.Conn
}

const (
	defaultSyslogFacility = 16 // local0
	defaultSyslogSeverity = 6  // info
)

// NewSyslog constructs the syslog sink.
func NewSyslog(cfg *SyslogConfig) (Sink, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("syslog: address is required")
	}
	if cfg.Network == "" {
		cfg.Network = "udp"
	}
	facility := cfg.Facility
	if facility == 0 {
		facility = defaultSyslogFacility
	}
	severity := cfg.Severity
	if severity == 0 {
		severity = defaultSyslogSeverity
	}
	return &Syslog{cfg: cfg, priority: facility*8 + severity}, nil
}

func (s *Syslog) dial() (net.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return s.conn, nil
	}

	var conn net.Conn
	var err error
	switch s.cfg.Network {
	case "tcp+tls":
		tlsConf, terr := setupTLS(&s.cfg.TLS)
		if terr != nil {
			return nil, fmt.Errorf("syslog: failed to setup TLS: %w", terr)
		}
		conn, err = tls.Dial("tcp", s.cfg.Address, tlsConf)
	default:
		conn, err = net.DialTimeout(s.cfg.Network, s.cfg.Address, 10*time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("syslog: dial %s: %w", s.cfg.Address, err)
	}
	s.conn = conn
	return conn, nil
}

func (s *Syslog) Send(_ context.Context, ev *kube.EnhancedEvent) error {
	body, err := serialize(ev, s.cfg.DeDot, s.cfg.Layout)
	if err != nil {
		return err
	}

	tag := s.cfg.Tag
	if tag == "" {
		tag = "kubesee"
	}
	msg := fmt.Sprintf("<%d>%s: %s\n", s.priority, tag, string(body))

	conn, err := s.dial()
	if err != nil {
		return err
	}

	if _, err := conn.Write([]byte(msg)); err != nil {
		s.mu.Lock()
		_ = s.conn.Close()
		s.conn = nil
		s.mu.Unlock()
		return fmt.Errorf("syslog: write: %w", err)
	}
	return nil
}

func (s *Syslog) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
}
