package exporter

import (
	"github.com/rs/zerolog/log"

	"github.com/aluminyoom/kubesee/pkg/kube"
	"github.com/aluminyoom/kubesee/pkg/sinks"
)

// ReceiverRegistry is what the route evaluator depends on to actually
// deliver events. The production implementation is pkg/registry.Registry;
// tests use a recording stub.
type ReceiverRegistry interface {
	Register(name string, s sinks.Sink)
	SendEvent(name string, event *kube.EnhancedEvent)
	Close()
}

// Route allows using rules to drop events or match events to specific
// receivers. Routes nest recursively so complex routing trees can be built
// out of small drop/match sets.
type Route struct {
	Drop   []Rule  `yaml:"drop"`
	Match  []Rule  `yaml:"match"`
	Routes []Route `yaml:"routes"`
}

// ProcessEvent walks the route tree for a single event: drop rules abort
// the subtree, match rules gate descent into sub-routes and optionally emit
// to a receiver, and only when every match rule matched (or there were
// none) does the event continue into the sub-routes.
func (r *Route) ProcessEvent(ev *kube.EnhancedEvent, registry ReceiverRegistry) {
	for _, v := range r.Drop {
		if v.MatchesEvent(ev) {
			return
		}
	}

	matchesAll := true
	for _, rule := range r.Match {
		if rule.MatchesEvent(ev) {
			if rule.Receiver != "" {
				log.Debug().
					Str("receiver", rule.Receiver).
					Str("kind", ev.InvolvedObject.Kind).
					Str("name", ev.InvolvedObject.Name).
					Str("namespace", ev.Namespace).
					Str("reason", ev.Reason).
					Msg("forwarding event to receiver")
				registry.SendEvent(rule.Receiver, ev)
			}
		} else {
			matchesAll = false
		}
	}

	if matchesAll {
		for _, subRoute := range r.Routes {
			subRoute.ProcessEvent(ev, registry)
		}
	}
}
