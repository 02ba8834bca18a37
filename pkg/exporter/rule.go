package exporter

import (
	"regexp"

	"github.com/rs/zerolog/log"

	"github.com/aluminyoom/kubesee/pkg/kube"
)

// matchString compiles pattern and matches it against s in one step. It is
// only reached when a rule wasn't precompiled (see PreCompilePatterns); the
// error is ignorable because by the time a rule is evaluated its patterns
// have already been validated once.
//
//nolint:errcheck
func matchString(pattern, s string) bool {
	matched, _ := regexp.MatchString(pattern, s)
	return matched
}

// Rule is one leaf of a route tree: a set of regex conditions an event's
// fields must all satisfy for the rule to apply, whether the rule sits in a
// route's drop list or its match list.
type Rule struct {
	Labels      map[string]string
	Annotations map[string]string

	// Precompiled patterns. Populated by Config.PreCompilePatterns.
	labelsPatterns      map[string]*regexp.Regexp
	annotationsPatterns map[string]*regexp.Regexp
	apiVersionPattern   *regexp.Regexp
	kindPattern         *regexp.Regexp
	namespacePattern    *regexp.Regexp
	reasonPattern       *regexp.Regexp
	typePattern         *regexp.Regexp
	componentPattern    *regexp.Regexp
	hostPattern         *regexp.Regexp
	messagePattern      *regexp.Regexp
	receiverPattern     *regexp.Regexp

	// Fields to match against
	Message    string
	APIVersion string `yaml:"apiVersion"`
	Kind       string
	Namespace  string
	Reason     string
	Type       string
	Component  string
	Host       string
	Receiver   string
	MinCount   int32 `yaml:"minCount"`
}

type fieldMatcher struct {
	pattern   *regexp.Regexp
	ruleName  string
	eventName string
}

// MatchesEvent reports whether ev satisfies every non-empty field set on
// the rule: a set field that is empty on the rule is skipped, not treated
// as a match-nothing filter. Every field is a regular expression, whether
// precompiled (the normal path, via PreCompilePatterns during Validate) or
// compiled on the spot as a fallback.
//
//nolint:gocyclo
func (r *Rule) MatchesEvent(ev *kube.EnhancedEvent) bool {
	// These matchers are just basic comparison matchers, if one of them fails, it means the event does not match the rule
	matchers := []fieldMatcher{
		{pattern: r.messagePattern, ruleName: r.Message, eventName: ev.Message},
		{pattern: r.apiVersionPattern, ruleName: r.APIVersion, eventName: ev.InvolvedObject.APIVersion},
		{pattern: r.kindPattern, ruleName: r.Kind, eventName: ev.InvolvedObject.Kind},
		{pattern: r.namespacePattern, ruleName: r.Namespace, eventName: ev.Namespace},
		{pattern: r.reasonPattern, ruleName: r.Reason, eventName: ev.Reason},
		{pattern: r.typePattern, ruleName: r.Type, eventName: ev.Type},
		{pattern: r.componentPattern, ruleName: r.Component, eventName: ev.Source.Component},
		{pattern: r.hostPattern, ruleName: r.Host, eventName: ev.Source.Host},
	}

	for _, m := range matchers {
		if m.ruleName == "" {
			continue
		}

		if m.pattern != nil {
			if !m.pattern.MatchString(m.eventName) {
				return false
			}
		} else {
			log.Debug().Msgf("Rule field '%s' is not precompiled, falling back to runtime compilation", m.ruleName)
			if !matchString(m.ruleName, m.eventName) {
				return false
			}
		}
	}

	if !matchesKeyValues(r.Labels, r.labelsPatterns, ev.InvolvedObject.Labels, "label") {
		return false
	}
	if !matchesKeyValues(r.Annotations, r.annotationsPatterns, ev.InvolvedObject.Annotations, "annotation") {
		return false
	}

	// If minCount is not given via a config, it's already 0 and the count is already 1 and this passes.
	if ev.Count < r.MinCount {
		return false
	}

	// If it failed every step, it must match because our matchers are limiting
	return true
}

// matchesKeyValues checks that every key in want has a matching value in
// have, using the precompiled pattern for that key when available and
// falling back to runtime compilation otherwise. kind is only used for the
// fallback's debug log (e.g. "label", "annotation").
func matchesKeyValues(want map[string]string, patterns map[string]*regexp.Regexp, have map[string]string, kind string) bool {
	for k, v := range want {
		val, ok := have[k]
		if !ok {
			return false
		}

		if pattern := patterns[k]; pattern != nil {
			if !pattern.MatchString(val) {
				return false
			}
			continue
		}

		log.Debug().Msgf("rule %s '%s' is not precompiled, falling back to runtime compilation", kind, k)
		if !matchString(v, val) {
			return false
		}
	}
	return true
}
