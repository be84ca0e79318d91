package metrics

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dealtrail"

// PrometheusSink implements IMetrics on the Prometheus client. Collectors
// that fail to register are logged and keep counting unexported.
type PrometheusSink struct {
	eventsAppended      *prometheus.CounterVec
	eventsRejected      *prometheus.CounterVec
	appendDuration      prometheus.Histogram
	subscriptionsActive prometheus.Gauge

	automationActions *prometheus.CounterVec

	changesFetched *prometheus.CounterVec
	fetchErrors    *prometheus.CounterVec
	changesPushed  *prometheus.CounterVec
	pushErrors     *prometheus.CounterVec
	deadLetters    *prometheus.CounterVec
}

func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{}
	s.initEventLogMetrics(reg)
	s.initChangeFeedMetrics(reg)
	return s
}

func (s *PrometheusSink) initEventLogMetrics(reg prometheus.Registerer) {
	s.eventsAppended = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_appended_total",
		Help:      "Events accepted into the log.",
	}, []string{"type"})
	s.eventsRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_rejected_total",
		Help:      "Appends refused by the validator or failed in storage.",
	}, []string{"reason"})
	s.appendDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "append_duration_seconds",
		Help:      "Latency of a successful append including subscriber fan-out.",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	})
	s.subscriptionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "subscriptions_active",
		Help:      "Live event log subscriptions.",
	})
	s.automationActions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "automation_actions_total",
		Help:      "Automation actions persisted, by kind and outcome.",
	}, []string{"kind", "ok"})

	s.register(reg, s.eventsAppended, "events_appended_total")
	s.register(reg, s.eventsRejected, "events_rejected_total")
	s.register(reg, s.appendDuration, "append_duration_seconds")
	s.register(reg, s.subscriptionsActive, "subscriptions_active")
	s.register(reg, s.automationActions, "automation_actions_total")
}

func (s *PrometheusSink) initChangeFeedMetrics(reg prometheus.Registerer) {
	s.changesFetched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "feed",
		Name:      "changes_fetched_total",
		Help:      "Changelog ids handed to consumers.",
	}, []string{"table"})
	s.fetchErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "feed",
		Name:      "fetch_errors_total",
		Help:      "Failed changelog polls.",
	}, []string{"table"})
	s.changesPushed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "feed",
		Name:      "changes_pushed_total",
		Help:      "Changes delivered to the output.",
	}, []string{"table"})
	s.pushErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "feed",
		Name:      "push_errors_total",
		Help:      "Changes the output refused.",
	}, []string{"table"})
	s.deadLetters = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "feed",
		Name:      "dead_letters_total",
		Help:      "Changes moved to the dead letter table.",
	}, []string{"table"})

	s.register(reg, s.changesFetched, "feed_changes_fetched_total")
	s.register(reg, s.fetchErrors, "feed_fetch_errors_total")
	s.register(reg, s.changesPushed, "feed_changes_pushed_total")
	s.register(reg, s.pushErrors, "feed_push_errors_total")
	s.register(reg, s.deadLetters, "feed_dead_letters_total")
}

func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		slog.Warn("metrics: failed to register collector", "name", name, "error", err)
	}
}

func (s *PrometheusSink) EventAppended(eventType string) {
	s.eventsAppended.WithLabelValues(eventType).Inc()
}

func (s *PrometheusSink) EventRejected(reason string) {
	s.eventsRejected.WithLabelValues(reason).Inc()
}

func (s *PrometheusSink) AppendDuration(d time.Duration) {
	s.appendDuration.Observe(d.Seconds())
}

func (s *PrometheusSink) SubscriptionsActive(n int) {
	s.subscriptionsActive.Set(float64(n))
}

func (s *PrometheusSink) AutomationAction(kind string, ok bool) {
	s.automationActions.WithLabelValues(kind, strconv.FormatBool(ok)).Inc()
}

func (s *PrometheusSink) SuccessFetchChanges(table string, n int) {
	s.changesFetched.WithLabelValues(table).Add(float64(n))
}

func (s *PrometheusSink) FailedFetchChanges(table string) {
	s.fetchErrors.WithLabelValues(table).Inc()
}

func (s *PrometheusSink) SuccessPushChange(table string) {
	s.changesPushed.WithLabelValues(table).Inc()
}

func (s *PrometheusSink) FailedPushChange(table string) {
	s.pushErrors.WithLabelValues(table).Inc()
}

func (s *PrometheusSink) DeadLetter(table string) {
	s.deadLetters.WithLabelValues(table).Inc()
}
