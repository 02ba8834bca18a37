package sinks

import (
	"strings"
	"time"
)

// renderIndexFormat expands a small set of date placeholders in an index
// name pattern, e.g. "kube-events-{2006.01.02}" -> "kube-events-2024.03.07".
// The braces wrap a Go reference-time layout, evaluated against t; anything
// outside braces passes through unchanged. This is deliberately a
// placeholder-chaining tokenizer rather than a regex: index patterns are
// short and only ever contain one or two {layout} spans.
func renderIndexFormat(pattern string, t time.Time) string {
	var sb strings.Builder
	rest := pattern
	for {
		start := strings.IndexByte(rest, '{')
		if start < 0 {
			sb.WriteString(rest)
			break
		}
		end := strings.IndexByte(rest[start:], '}')
		if end < 0 {
			sb.WriteString(rest)
			break
		}
		end += start

		sb.WriteString(rest[:start])
		layout := rest[start+1 : end]
		sb.WriteString(t.UTC().Format(layout))
		rest = rest[end+1:]
	}
	return sb.String()
}
