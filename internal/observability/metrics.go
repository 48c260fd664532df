package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects core counters for the submission and tracking paths.
type Metrics struct {
	submissions *prometheus.CounterVec
	rejections  *prometheus.CounterVec
	pollTicks   *prometheus.CounterVec
	fallbacks   *prometheus.CounterVec
}

func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	submissions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "farmctl_submissions_total",
		Help: "Total job submissions by platform and outcome.",
	}, []string{"platform", "outcome"})
	rejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "farmctl_rejections_total",
		Help: "Total server rejections by error code.",
	}, []string{"code"})
	pollTicks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "farmctl_poll_ticks_total",
		Help: "Total completion poll ticks by result.",
	}, []string{"result"})
	fallbacks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "farmctl_resolver_fallbacks_total",
		Help: "Total interactive fallbacks by originating intent.",
	}, []string{"from"})

	submissions = registerCounterVec(registerer, submissions)
	rejections = registerCounterVec(registerer, rejections)
	pollTicks = registerCounterVec(registerer, pollTicks)
	fallbacks = registerCounterVec(registerer, fallbacks)

	return &Metrics{
		submissions: submissions,
		rejections:  rejections,
		pollTicks:   pollTicks,
		fallbacks:   fallbacks,
	}
}

func (m *Metrics) IncSubmission(platform, outcome string) {
	if m == nil || m.submissions == nil {
		return
	}
	m.submissions.WithLabelValues(platform, outcome).Inc()
}

func (m *Metrics) IncRejection(code string) {
	if m == nil || m.rejections == nil {
		return
	}
	m.rejections.WithLabelValues(code).Inc()
}

func (m *Metrics) IncPollTick(result string) {
	if m == nil || m.pollTicks == nil {
		return
	}
	m.pollTicks.WithLabelValues(result).Inc()
}

func (m *Metrics) IncFallback(from string) {
	if m == nil || m.fallbacks == nil {
		return
	}
	m.fallbacks.WithLabelValues(from).Inc()
}

func registerCounterVec(registerer prometheus.Registerer, counter *prometheus.CounterVec) *prometheus.CounterVec {
	if err := registerer.Register(counter); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
	}
	return counter
}
