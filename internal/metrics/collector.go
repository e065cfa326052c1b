// Package metrics exports job lifecycle counters for Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/talkvault/talkvault/internal/eventbus"
)

type Collector struct {
	events *prometheus.CounterVec
	active *prometheus.GaugeVec
}

func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "talkvault",
			Subsystem: "jobs",
			Name:      "events_total",
			Help:      "Job lifecycle events by kind and task name.",
		}, []string{"kind", "name"}),
		active: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "talkvault",
			Subsystem: "jobs",
			Name:      "active",
			Help:      "Jobs currently running, by task name.",
		}, []string{"name"}),
	}

	for _, col := range []prometheus.Collector{c.events, c.active} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Attach starts counting events from bus. The returned func detaches the collector.
func (c *Collector) Attach(bus *eventbus.Bus) func() {
	ids := make(map[eventbus.Kind]eventbus.ListenerID, len(eventbus.AllKinds))
	for _, kind := range eventbus.AllKinds {
		ids[kind] = bus.On(kind, c.observe)
	}
	return func() {
		for kind, id := range ids {
			bus.Off(kind, id)
		}
	}
}

func (c *Collector) observe(e eventbus.Event) {
	name := e.Job.Name
	c.events.WithLabelValues(e.Kind.String(), name).Inc()

	switch e.Kind {
	case eventbus.Processing:
		c.active.WithLabelValues(name).Inc()
	case eventbus.Completed, eventbus.Failed:
		c.active.WithLabelValues(name).Dec()
	}
}

// Handler serves the metrics of gatherer in the Prometheus text format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
