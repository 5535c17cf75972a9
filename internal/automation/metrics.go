package automation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "curabot_automation_events_received_total",
		Help: "Automation stream events received, by event type.",
	}, []string{"type"})

	stepsPersisted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "curabot_automation_steps_persisted_total",
		Help: "Step patches folded into the store by the watcher.",
	})

	streamDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "curabot_automation_stream_drops_total",
		Help: "Event stream disconnects before run completion.",
	})

	streamConnected = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "curabot_automation_stream_connected",
		Help: "Whether the watcher holds an acknowledged stream for the project (1 or 0).",
	}, []string{"project"})
)
