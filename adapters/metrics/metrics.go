// Package metrics provides Prometheus metrics collection for state objects.
package metrics

import (
	"fmt"
	"io"
	"time"

	"github.com/artpar/statekit/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

const namespace = "statekit"

// Collector holds all Prometheus metrics for state objects. It implements
// ports.Observer.
type Collector struct {
	// Set metrics
	SetsTotal         *prometheus.CounterVec
	ChangedProperties *prometheus.CounterVec

	// Validation metrics
	ValidationFailures *prometheus.CounterVec

	// Notification metrics
	Notifications *prometheus.CounterVec

	// Schema metrics
	SchemaResolutions  *prometheus.CounterVec
	DeclaredProperties *prometheus.GaugeVec

	// Config metrics
	ConfigReloads      prometheus.Counter
	ConfigReloadErrors prometheus.Counter
	ConfigLastReload   prometheus.Gauge
}

// New creates a collector registered on the default Prometheus registry.
func New() *Collector {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new metrics collector with a custom registry.
// Useful for testing to avoid global state.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		SetsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sets_total",
				Help:      "Total number of set operations by outcome",
			},
			[]string{"type", "result"},
		),
		ChangedProperties: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "changed_properties_total",
				Help:      "Total number of property values changed by set operations",
			},
			[]string{"type"},
		),
		ValidationFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "validation_failures_total",
				Help:      "Total number of rejected property values",
			},
			[]string{"type", "property", "constraint"},
		),
		Notifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_total",
				Help:      "Total number of change events emitted",
			},
			[]string{"type", "event"},
		),
		SchemaResolutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "schema_resolutions_total",
				Help:      "Total number of type schemas resolved",
			},
			[]string{"type"},
		),
		DeclaredProperties: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "declared_properties",
				Help:      "Number of properties declared by a resolved type",
			},
			[]string{"type"},
		),
		ConfigReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reloads_total",
				Help:      "Total number of successful config reloads",
			},
		),
		ConfigReloadErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reload_errors_total",
				Help:      "Total number of config reload errors",
			},
		),
		ConfigLastReload: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "config_last_reload_timestamp",
				Help:      "Unix timestamp of last successful config reload",
			},
		),
	}
}

// SchemaResolved implements ports.Observer.
func (c *Collector) SchemaResolved(typeName string, properties int) {
	c.SchemaResolutions.WithLabelValues(label(typeName)).Inc()
	c.DeclaredProperties.WithLabelValues(label(typeName)).Set(float64(properties))
}

// SetApplied implements ports.Observer.
func (c *Collector) SetApplied(typeName string, changed int) {
	c.SetsTotal.WithLabelValues(label(typeName), "applied").Inc()
	c.ChangedProperties.WithLabelValues(label(typeName)).Add(float64(changed))
}

// SetRejected implements ports.Observer.
func (c *Collector) SetRejected(typeName string) {
	c.SetsTotal.WithLabelValues(label(typeName), "rejected").Inc()
}

// ValidationFailed implements ports.Observer.
func (c *Collector) ValidationFailed(typeName, property, constraint string) {
	c.SetsTotal.WithLabelValues(label(typeName), "invalid").Inc()
	c.ValidationFailures.WithLabelValues(label(typeName), property, constraint).Inc()
}

// Notified implements ports.Observer.
func (c *Collector) Notified(typeName, event string) {
	c.Notifications.WithLabelValues(label(typeName), event).Inc()
}

// ConfigReloaded records the outcome of a config reload.
func (c *Collector) ConfigReloaded(err error) {
	if err != nil {
		c.ConfigReloadErrors.Inc()
		return
	}
	c.ConfigReloads.Inc()
	c.ConfigLastReload.Set(float64(time.Now().Unix()))
}

// WriteText writes every metric family of g in the Prometheus text format.
func WriteText(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("write metric %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// Value returns the value of the first counter or gauge series of the named
// family whose labels include every pair in labels. Missing series read as 0.
func Value(g prometheus.Gatherer, name string, labels map[string]string) (float64, error) {
	families, err := g.Gather()
	if err != nil {
		return 0, fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if matches(m, labels) {
				return sampleValue(m), nil
			}
		}
	}
	return 0, nil
}

func matches(m *dto.Metric, labels map[string]string) bool {
	for _, lp := range m.GetLabel() {
		if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
			return false
		}
	}
	return true
}

func sampleValue(m *dto.Metric) float64 {
	switch {
	case m.GetCounter() != nil:
		return m.GetCounter().GetValue()
	case m.GetGauge() != nil:
		return m.GetGauge().GetValue()
	}
	return 0
}

// label maps the anonymous type to a stable label value.
func label(typeName string) string {
	if typeName == "" {
		return "anonymous"
	}
	return typeName
}

var _ ports.Observer = (*Collector)(nil)
