// Package metrics exports tracker counters and gauges for Prometheus.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"addonhost/internal/multipet"
)

var (
	registerOnce sync.Once

	events = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "addonhost",
			Subsystem: "multipet",
			Name:      "events_total",
			Help:      "Tracking transitions by kind.",
		},
		[]string{"kind"},
	)
	pets = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "addonhost",
			Subsystem: "multipet",
			Name:      "pets",
			Help:      "Tracked secondary pets by state.",
		},
		[]string{"state"},
	)
	directorySize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "addonhost",
		Subsystem: "multipet",
		Name:      "directory_size",
		Help:      "Spawns known to the spawn directory.",
	})
	hostTick = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "addonhost",
		Subsystem: "host",
		Name:      "tick",
		Help:      "Last host pulse seen by the tracker.",
	})
	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "addonhost",
			Subsystem: "sink",
			Name:      "queue_depth",
			Help:      "Pending items in asynchronous sinks.",
		},
		[]string{"sink"},
	)
	dropped = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "addonhost",
			Subsystem: "sink",
			Name:      "dropped_total",
			Help:      "Items a sink dropped because it fell behind.",
		},
		[]string{"sink"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(events, pets, directorySize, hostTick, queueDepth, dropped)
	})
}

func Handler() http.Handler {
	RegisterMetrics()
	return promhttp.Handler()
}

// Sink counts events. It is a multipet.EventSink.
type Sink struct{}

func (Sink) Emit(e multipet.Event) {
	RegisterMetrics()
	events.WithLabelValues(string(e.Kind)).Inc()
}

// Observe updates the gauges from a state copy.
func Observe(st multipet.State) {
	RegisterMetrics()
	var slotted, resolved, unresolved int
	for _, p := range st.Pets {
		switch {
		case p.HasSlot():
			slotted++
		case p.Resolved():
			resolved++
		default:
			unresolved++
		}
	}
	pets.WithLabelValues("published").Set(float64(slotted))
	pets.WithLabelValues("resolved").Set(float64(resolved))
	pets.WithLabelValues("unresolved").Set(float64(unresolved))
	directorySize.Set(float64(st.DirectorySize))
	hostTick.Set(float64(st.Tick))
}

// RecordSink reports the backlog of an asynchronous sink.
func RecordSink(name string, depth int, drops uint64) {
	RegisterMetrics()
	queueDepth.WithLabelValues(name).Set(float64(depth))
	dropped.WithLabelValues(name).Set(float64(drops))
}
