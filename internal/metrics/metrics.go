package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus instruments shared by the rule engine, the
// data generator and the time-series client. A nil *Metrics disables
// instrumentation; all Inc helpers are nil-safe.
type Metrics struct {
	EventsProcessed   prometheus.Counter
	RulesTriggered    prometheus.Counter
	RuleResets        prometheus.Counter
	DepthLimitReached prometheus.Counter
	CascadeDepth      prometheus.Histogram

	ReadingsGenerated prometheus.Counter
	PacketsDropped    prometheus.Counter
	DelayedEmissions  prometheus.Counter

	TimeSeriesErrors prometheus.Counter
}

// New creates and registers the instrument set on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "iotsim",
			Subsystem: "engine",
			Name:      "events_processed_total",
			Help:      "Device-state-change events fed into the rule engine.",
		}),
		RulesTriggered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "iotsim",
			Subsystem: "engine",
			Name:      "rules_triggered_total",
			Help:      "Rule actions executed on rising edges.",
		}),
		RuleResets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "iotsim",
			Subsystem: "engine",
			Name:      "rule_resets_total",
			Help:      "Rules reset to inactive on falling edges.",
		}),
		DepthLimitReached: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "iotsim",
			Subsystem: "engine",
			Name:      "depth_limit_reached_total",
			Help:      "Cascades halted by the recursion depth bound.",
		}),
		CascadeDepth: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "iotsim",
			Subsystem: "engine",
			Name:      "cascade_depth",
			Help:      "Recursion depth reached per action execution.",
			Buckets:   prometheus.LinearBuckets(0, 1, 11),
		}),
		ReadingsGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "iotsim",
			Subsystem: "generator",
			Name:      "readings_generated_total",
			Help:      "Synthetic readings emitted by the data generator.",
		}),
		PacketsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "iotsim",
			Subsystem: "generator",
			Name:      "packets_dropped_total",
			Help:      "Readings dropped by the packet-loss emulation.",
		}),
		DelayedEmissions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "iotsim",
			Subsystem: "generator",
			Name:      "delayed_emissions_total",
			Help:      "Readings deferred by the latency emulation.",
		}),
		TimeSeriesErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "iotsim",
			Subsystem: "timeseries",
			Name:      "errors_total",
			Help:      "Time-series read/write failures swallowed at the boundary.",
		}),
	}

	reg.MustRegister(
		m.EventsProcessed,
		m.RulesTriggered,
		m.RuleResets,
		m.DepthLimitReached,
		m.CascadeDepth,
		m.ReadingsGenerated,
		m.PacketsDropped,
		m.DelayedEmissions,
		m.TimeSeriesErrors,
	)
	return m
}

// IncEventsProcessed and friends are nil-safe wrappers so callers can carry
// a nil *Metrics in tests.

func (m *Metrics) IncEventsProcessed() {
	if m != nil {
		m.EventsProcessed.Inc()
	}
}

func (m *Metrics) IncRulesTriggered() {
	if m != nil {
		m.RulesTriggered.Inc()
	}
}

func (m *Metrics) IncRuleResets() {
	if m != nil {
		m.RuleResets.Inc()
	}
}

func (m *Metrics) IncDepthLimitReached() {
	if m != nil {
		m.DepthLimitReached.Inc()
	}
}

func (m *Metrics) ObserveCascadeDepth(depth int) {
	if m != nil {
		m.CascadeDepth.Observe(float64(depth))
	}
}

func (m *Metrics) IncReadingsGenerated() {
	if m != nil {
		m.ReadingsGenerated.Inc()
	}
}

func (m *Metrics) IncPacketsDropped() {
	if m != nil {
		m.PacketsDropped.Inc()
	}
}

func (m *Metrics) IncDelayedEmissions() {
	if m != nil {
		m.DelayedEmissions.Inc()
	}
}

func (m *Metrics) IncTimeSeriesErrors() {
	if m != nil {
		m.TimeSeriesErrors.Inc()
	}
}
