package kube

import (
	"encoding/json"
	"strings"
	"time"

	v1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// InvolvedObjectRef is the involved object reference carried by an event,
// enriched by the watcher's metadata lookup (labels, annotations, owner
// references) unless omitLookup is set.
type InvolvedObjectRef struct {
	v1.ObjectReference `json:",inline"`
	Labels             map[string]string        `json:"labels,omitempty"`
	Annotations        map[string]string         `json:"annotations,omitempty"`
	OwnerReferences    []metav1.OwnerReference   `json:"ownerReferences,omitempty"`
	Deleted            bool                      `json:"deleted,omitempty"`
}

// EnhancedEvent is the engine's in-memory representation of a Kubernetes
// Event: the raw event plus an enriched involved-object reference and the
// cluster name the engine stamps onto it.
type EnhancedEvent struct {
	v1.Event       `json:",inline"`
	InvolvedObject InvolvedObjectRef `json:"involvedObject"`
	ClusterName    string            `json:"cluster_name,omitempty"`
}

// ToJSON marshals the event verbatim. json.Marshal cannot fail for this
// type (no channels, funcs, or cyclic values reach the encoder), so the
// error is discarded.
func (e *EnhancedEvent) ToJSON() []byte {
	b, _ := json.Marshal(e)
	return b
}

// Clone returns a shallow copy of the event. Used anywhere the event needs
// to be handed to a later stage (cluster-name stamping, dedotting) without
// mutating the caller's copy.
func (e *EnhancedEvent) Clone() *EnhancedEvent {
	cp := *e
	return &cp
}

// WithClusterName returns a copy of the event stamped with the given
// cluster name. The engine is the only caller: cluster_name never comes
// from the watch API.
func (e *EnhancedEvent) WithClusterName(name string) *EnhancedEvent {
	cp := e.Clone()
	cp.ClusterName = name
	return cp
}

func dedotMap(m map[string]string) map[string]string {
	if len(m) == 0 {
		return m
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[strings.ReplaceAll(k, ".", "_")] = v
	}
	return out
}

// DeDot returns a copy of the event with every "." in label/annotation keys
// (both the event's own and its involved object's) replaced by "_". Some
// downstream systems, classically Elasticsearch, reject dotted field names.
// DeDot is idempotent: dedotting an already-dedotted event is a no-op.
func (e *EnhancedEvent) DeDot() *EnhancedEvent {
	cp := e.Clone()
	cp.Labels = dedotMap(e.Labels)
	cp.Annotations = dedotMap(e.Annotations)
	cp.InvolvedObject.Labels = dedotMap(e.InvolvedObject.Labels)
	cp.InvolvedObject.Annotations = dedotMap(e.InvolvedObject.Annotations)
	return cp
}

// formatTimestamp renders a timestamp the way the template context does:
// millisecond-precision ISO-8601 UTC, or "" if the timestamp is unset.
func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// resolvedTimestamp picks the timestamp the template's GetTimestamp*
// helpers use: LastTimestamp if present, otherwise EventTime. The watcher's
// age filter does its own lookup (see eventWatcher.isEventDiscarded).
func (e *EnhancedEvent) resolvedTimestamp() time.Time {
	if !e.LastTimestamp.Time.IsZero() {
		return e.LastTimestamp.Time
	}
	return e.EventTime.Time
}

// Context builds the template rendering context for this event: a map with
// PascalCase keys mirroring the event, plus two callable leaves.
func (e *EnhancedEvent) Context() map[string]any {
	involved := map[string]any{
		"Kind":            e.InvolvedObject.Kind,
		"Namespace":       e.InvolvedObject.Namespace,
		"Name":            e.InvolvedObject.Name,
		"UID":             string(e.InvolvedObject.UID),
		"APIVersion":      e.InvolvedObject.APIVersion,
		"ResourceVersion": e.InvolvedObject.ResourceVersion,
		"FieldPath":       e.InvolvedObject.FieldPath,
		"Labels":          stringMapToAny(e.InvolvedObject.Labels),
		"Annotations":     stringMapToAny(e.InvolvedObject.Annotations),
		"Deleted":         e.InvolvedObject.Deleted,
	}

	source := map[string]any{
		"Component": e.Source.Component,
		"Host":      e.Source.Host,
	}

	ts := e.resolvedTimestamp()

	return map[string]any{
		"Name":                e.Name,
		"Namespace":           e.Namespace,
		"UID":                 string(e.UID),
		"ResourceVersion":     e.ResourceVersion,
		"CreationTimestamp":   formatTimestamp(e.CreationTimestamp.Time),
		"Labels":              stringMapToAny(e.Labels),
		"Annotations":         stringMapToAny(e.Annotations),
		"Message":             e.Message,
		"Reason":              e.Reason,
		"Type":                e.Type,
		"Count":               e.Count,
		"Action":              e.Action,
		"ReportingController": e.ReportingController,
		"ReportingInstance":   e.ReportingInstance,
		"FirstTimestamp":      formatTimestamp(e.FirstTimestamp.Time),
		"LastTimestamp":       formatTimestamp(e.LastTimestamp.Time),
		"EventTime":           formatTimestamp(e.EventTime.Time),
		"ClusterName":         e.ClusterName,
		"InvolvedObject":      involved,
		"Source":              source,
		"GetTimestampMs": func() any {
			if ts.IsZero() {
				return int64(0)
			}
			return ts.UnixMilli()
		},
		"GetTimestampISO8601": func() any {
			return formatTimestamp(ts)
		},
	}
}

func stringMapToAny(m map[string]string) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
