package sinks

import (
	"encoding/json"

	"github.com/aluminyoom/kubesee/pkg/kube"
	"github.com/aluminyoom/kubesee/pkg/template"
	"github.com/rs/zerolog/log"
)

// serialize implements the shared §4.7 policy: dedot the event if
// requested, then either render the layout to JSON or JSON-encode the
// event verbatim.
func serialize(ev *kube.EnhancedEvent, deDot bool, layout map[string]any) ([]byte, error) {
	if deDot {
		ev = ev.DeDot()
	}

	if layout == nil {
		return ev.ToJSON(), nil
	}

	rendered, err := template.RenderLayout(any(layout), ev.Context())
	if err != nil {
		return nil, err
	}
	return json.Marshal(rendered)
}

// GetString renders a template string against an event's context. Sinks
// use it for header values, where a template error is not fatal: the
// caller falls back to the raw string.
func GetString(ev *kube.EnhancedEvent, tpl string) (string, error) {
	return template.Render(tpl, ev.Context())
}

// renderHeaderValue implements the one place the engine tolerates a
// template error silently: if rendering fails, the raw template string is
// used as the header value and a debug message is logged.
func renderHeaderValue(ev *kube.EnhancedEvent, raw string) string {
	rendered, err := GetString(ev, raw)
	if err != nil {
		log.Debug().Err(err).Str("template", raw).Msg("header template failed, using raw value")
		return raw
	}
	return rendered
}
