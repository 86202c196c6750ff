// Package metrics exposes Prometheus counters for datastore change notifications.
package metrics

import (
	"net/http"

	"github.com/MarcoPoloResearchLab/gravity/datastore/internal/datastore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "datastore"

	labelType   = "type"
	labelSchema = "schema"
)

// Collector counts committed, undone and redone changes on its own registry.
type Collector struct {
	registry     *prometheus.Registry
	changes      *prometheus.CounterVec
	fieldChanges *prometheus.CounterVec
	autoClosed   prometheus.Counter
}

// NewCollector registers the datastore counters on a fresh registry.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	collector := &Collector{
		registry: registry,
		changes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "changes_total",
			Help:      "Change notifications emitted, by change type.",
		}, []string{labelType}),
		fieldChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "field_changes_total",
			Help:      "Field changes carried by change notifications, by schema id.",
		}, []string{labelSchema}),
		autoClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auto_closed_total",
			Help:      "Transactions closed automatically at a scheduling boundary.",
		}),
	}
	registry.MustRegister(collector.changes, collector.fieldChanges, collector.autoClosed)
	return collector
}

// Observe records one change notification. It has the shape of a
// datastore.ChangeHandler so it can be connected directly.
func (c *Collector) Observe(event datastore.ChangeEvent) {
	c.changes.WithLabelValues(string(event.Type)).Inc()
	for schemaID, count := range event.FieldCount() {
		c.fieldChanges.WithLabelValues(schemaID).Add(float64(count))
	}
}

// ObserveAutoClose records a force-closed transaction.
func (c *Collector) ObserveAutoClose(string) {
	c.autoClosed.Inc()
}

// Registry returns the registry the counters live on.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
