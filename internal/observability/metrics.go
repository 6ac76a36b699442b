package observability

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

type MetricPoint struct {
	Name   string            `json:"name"`
	Labels map[string]string `json:"labels,omitempty"`
	Value  float64           `json:"value"`
}

type Snapshot struct {
	Counters []MetricPoint `json:"counters"`
	Gauges   []MetricPoint `json:"gauges"`
}

// Registry is a process-local metrics store. The agent exposes it over
// the read-only API as JSON and Prometheus text; there is no push path.
type Registry struct {
	mu       sync.Mutex
	counters map[string]MetricPoint
	gauges   map[string]MetricPoint
}

var Default = NewRegistry()

func NewRegistry() *Registry {
	return &Registry{
		counters: make(map[string]MetricPoint),
		gauges:   make(map[string]MetricPoint),
	}
}

func (r *Registry) IncCounter(name string, labels map[string]string, delta float64) {
	if delta == 0 {
		return
	}
	key, lcopy := seriesKey(name, labels)
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.counters[key]
	if !ok {
		p = MetricPoint{Name: name, Labels: lcopy}
	}
	p.Value += delta
	r.counters[key] = p
}

func (r *Registry) SetGauge(name string, labels map[string]string, value float64) {
	key, lcopy := seriesKey(name, labels)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gauges[key] = MetricPoint{Name: name, Labels: lcopy, Value: value}
}

func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := Snapshot{
		Counters: make([]MetricPoint, 0, len(r.counters)),
		Gauges:   make([]MetricPoint, 0, len(r.gauges)),
	}
	for _, p := range r.counters {
		out.Counters = append(out.Counters, MetricPoint{Name: p.Name, Labels: cloneLabels(p.Labels), Value: p.Value})
	}
	for _, p := range r.gauges {
		out.Gauges = append(out.Gauges, MetricPoint{Name: p.Name, Labels: cloneLabels(p.Labels), Value: p.Value})
	}
	sort.Slice(out.Counters, func(i, j int) bool { return pointLess(out.Counters[i], out.Counters[j]) })
	sort.Slice(out.Gauges, func(i, j int) bool { return pointLess(out.Gauges[i], out.Gauges[j]) })
	return out
}

func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters = make(map[string]MetricPoint)
	r.gauges = make(map[string]MetricPoint)
}

func (r *Registry) RenderPrometheus() string {
	s := r.Snapshot()
	lines := make([]string, 0, len(s.Counters)+len(s.Gauges))
	for _, p := range s.Counters {
		lines = append(lines, promLine(p))
	}
	for _, p := range s.Gauges {
		lines = append(lines, promLine(p))
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n") + "\n"
}

func promLine(p MetricPoint) string {
	name := sanitizeMetricName(p.Name)
	if len(p.Labels) == 0 {
		return fmt.Sprintf("%s %g", name, p.Value)
	}
	keys := make([]string, 0, len(p.Labels))
	for k := range p.Labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%q", sanitizeMetricName(k), p.Labels[k]))
	}
	return fmt.Sprintf("%s{%s} %g", name, strings.Join(pairs, ","), p.Value)
}

func sanitizeMetricName(name string) string {
	var b strings.Builder
	for i, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '_':
			b.WriteRune(c)
		case c >= '0' && c <= '9' && i > 0:
			b.WriteRune(c)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

func seriesKey(name string, labels map[string]string) (string, map[string]string) {
	if len(labels) == 0 {
		return name, nil
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys)+1)
	parts = append(parts, name)
	lcopy := make(map[string]string, len(labels))
	for _, k := range keys {
		lcopy[k] = labels[k]
		parts = append(parts, k+"="+labels[k])
	}
	return strings.Join(parts, "|"), lcopy
}

func cloneLabels(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func pointLess(a, b MetricPoint) bool {
	if a.Name != b.Name {
		return a.Name < b.Name
	}
	return promLine(a) < promLine(b)
}
