// Package metrics keeps process counters and gauges and renders them in the
// Prometheus text exposition format.
package metrics

import (
	"io"
	"sort"
	"strings"
	"sync"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

const namespace = "hostwatch_"

// Series names.
const (
	ProbesTotal               = namespace + "probes_total"
	EscalationsTotal          = namespace + "escalations_total"
	DeliveryFailuresTotal     = namespace + "alert_delivery_failures_total"
	SendRoundsTotal           = namespace + "alert_send_rounds_total"
	ResolutionsTotal          = namespace + "resolutions_total"
	OpenAlerts                = namespace + "open_alerts"
	CommandsTotal             = namespace + "commands_total"
	EventPublishFailuresTotal = namespace + "event_publish_failures_total"
)

var help = map[string]string{
	ProbesTotal:               "Probes run, by target and outcome.",
	EscalationsTotal:          "Alert escalations, by target.",
	DeliveryFailuresTotal:     "Failed alert deliveries, by recipient.",
	SendRoundsTotal:           "Fan-out rounds run by the alert manager.",
	ResolutionsTotal:          "Alert resolution attempts, by target and result.",
	OpenAlerts:                "Currently open alert messages, by target.",
	CommandsTotal:             "Bot commands accepted, by kind.",
	EventPublishFailuresTotal: "Lifecycle events that could not be published.",
}

var gauges = map[string]bool{OpenAlerts: true}

type series struct {
	labels []*dto.LabelPair
	value  float64
}

// Registry is safe for concurrent use. A nil *Registry ignores all updates,
// so components can run without metrics.
type Registry struct {
	mu       sync.Mutex
	families map[string]map[string]*series
}

func New() *Registry {
	return &Registry{families: make(map[string]map[string]*series)}
}

// Inc adds 1 to a counter. labels are name/value pairs.
func (r *Registry) Inc(name string, labels ...string) {
	r.Add(name, 1, labels...)
}

func (r *Registry) Add(name string, delta float64, labels ...string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.get(name, labels).value += delta
}

// Set assigns a gauge value.
func (r *Registry) Set(name string, v float64, labels ...string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.get(name, labels).value = v
}

// Value returns the current value of one series, or 0 if absent.
func (r *Registry) Value(name string, labels ...string) float64 {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.families[name][key(labels)]; ok {
		return s.value
	}
	return 0
}

func (r *Registry) get(name string, labels []string) *series {
	fam, ok := r.families[name]
	if !ok {
		fam = make(map[string]*series)
		r.families[name] = fam
	}
	k := key(labels)
	s, ok := fam[k]
	if !ok {
		s = &series{labels: pairs(labels)}
		fam[k] = s
	}
	return s
}

// Write encodes every series in the text format, families and series sorted.
func (r *Registry) Write(w io.Writer) error {
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range r.gather() {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) gather() []*dto.MetricFamily {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.families))
	for n := range r.families {
		names = append(names, n)
	}
	sort.Strings(names)

	out := make([]*dto.MetricFamily, 0, len(names))
	for _, n := range names {
		fam := r.families[n]
		keys := make([]string, 0, len(fam))
		for k := range fam {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		name, h := n, help[n]
		mf := &dto.MetricFamily{Name: &name, Help: &h}
		if gauges[n] {
			mf.Type = dto.MetricType_GAUGE.Enum()
		} else {
			mf.Type = dto.MetricType_COUNTER.Enum()
		}
		for _, k := range keys {
			s := fam[k]
			v := s.value
			m := &dto.Metric{Label: s.labels}
			if gauges[n] {
				m.Gauge = &dto.Gauge{Value: &v}
			} else {
				m.Counter = &dto.Counter{Value: &v}
			}
			mf.Metric = append(mf.Metric, m)
		}
		out = append(out, mf)
	}
	return out
}

func key(labels []string) string {
	return strings.Join(labels, "\xff")
}

func pairs(labels []string) []*dto.LabelPair {
	out := make([]*dto.LabelPair, 0, len(labels)/2)
	for i := 0; i+1 < len(labels); i += 2 {
		n, v := labels[i], labels[i+1]
		out = append(out, &dto.LabelPair{Name: &n, Value: &v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GetName() < out[j].GetName() })
	return out
}
