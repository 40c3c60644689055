package service

import (
	"github.com/hust/bookingclient/core"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts what the request pipeline does. A nil *Metrics records nothing.
type Metrics struct {
	episodes    *prometheus.CounterVec
	followers   prometheus.Counter
	replays     *prometheus.CounterVec
	transitions *prometheus.CounterVec
}

// NewMetrics registers the pipeline collectors on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		episodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bookingclient",
			Name:      "refresh_episodes_total",
			Help:      "Credential refresh episodes by outcome.",
		}, []string{"outcome"}),
		followers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bookingclient",
			Name:      "refresh_followers_total",
			Help:      "Callers that joined an in-flight refresh episode instead of leading one.",
		}),
		replays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bookingclient",
			Name:      "request_replays_total",
			Help:      "Requests replayed after a refresh, by result.",
		}, []string{"result"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bookingclient",
			Name:      "session_transitions_total",
			Help:      "Session state transitions.",
		}, []string{"from", "to"}),
	}

	reg.MustRegister(m.episodes, m.followers, m.replays, m.transitions)
	return m
}

func (m *Metrics) episode(outcome string) {
	if m == nil {
		return
	}
	m.episodes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) follower() {
	if m == nil {
		return
	}
	m.followers.Inc()
}

func (m *Metrics) replay(result string) {
	if m == nil {
		return
	}
	m.replays.WithLabelValues(result).Inc()
}

func (m *Metrics) transition(from, to core.State) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from.String(), to.String()).Inc()
}
