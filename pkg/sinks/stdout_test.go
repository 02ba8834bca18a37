package sinks

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/aluminyoom/kubesee/pkg/kube"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStdoutSendWritesOneJSONLine(t *testing.T) {
	s, err := NewStdout(&StdoutConfig{})
	require.NoError(t, err)

	out := &bytes.Buffer{}
	s.(*Stdout).out = out

	ev := &kube.EnhancedEvent{}
	ev.Reason = "Killing"

	require.NoError(t, s.Send(context.Background(), ev))
	assert.Equal(t, 1, strings.Count(out.String(), "\n"))
	assert.Contains(t, out.String(), "Killing")
}

func TestStdoutSendAppliesLayout(t *testing.T) {
	s, err := NewStdout(&StdoutConfig{Layout: map[string]any{"reason": "{{ .Reason }}"}})
	require.NoError(t, err)

	out := &bytes.Buffer{}
	s.(*Stdout).out = out

	ev := &kube.EnhancedEvent{}
	ev.Reason = "Killing"

	require.NoError(t, s.Send(context.Background(), ev))
	assert.JSONEq(t, `{"reason":"Killing"}`, strings.TrimSpace(out.String()))
}
