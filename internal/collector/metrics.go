package collector

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once
	mc   *MetricsCollector
)

// MetricsCollector holds every Prometheus series siteguard exports.
type MetricsCollector struct {
	rulePasses        *prometheus.CounterVec // passes by trigger source and outcome
	rulePassDuration  prometheus.Histogram
	rulesInstalled    prometheus.Gauge
	triggersCoalesced prometheus.Counter
	hostRejections    *prometheus.CounterVec

	sweeps          prometheus.Counter
	autoToggles     prometheus.Counter
	pendingSnoozes  prometheus.Gauge
	elementsHidden  *prometheus.CounterVec
	selectorErrors  *prometheus.CounterVec
	broadcasts      *prometheus.CounterVec
	connectedPeers  *prometheus.GaugeVec
	gatewayRequests *prometheus.CounterVec
}

// Get returns the process-wide collector, registering it on first use.
func Get() *MetricsCollector {
	once.Do(func() {
		mc = &MetricsCollector{
			rulePasses: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "siteguard_rule_passes_total",
				Help: "Rule applier passes by trigger source and outcome.",
			}, []string{"source", "outcome"}),

			rulePassDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "siteguard_rule_pass_duration_seconds",
				Help:    "Duration of rule applier passes.",
				Buckets: prometheus.DefBuckets,
			}),

			rulesInstalled: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "siteguard_rules_installed",
				Help: "Rules installed in the host rule table after the last pass.",
			}),

			triggersCoalesced: promauto.NewCounter(prometheus.CounterOpts{
				Name: "siteguard_rule_triggers_coalesced_total",
				Help: "Rule applier triggers folded into an already queued pass.",
			}),

			hostRejections: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "siteguard_host_rejections_total",
				Help: "Rule table updates refused by the host, by step.",
			}, []string{"step"}),

			sweeps: promauto.NewCounter(prometheus.CounterOpts{
				Name: "siteguard_snooze_sweeps_total",
				Help: "Snooze scheduler sweeps executed.",
			}),

			autoToggles: promauto.NewCounter(prometheus.CounterOpts{
				Name: "siteguard_snooze_auto_toggles_total",
				Help: "Sites re-enabled because their snooze expired.",
			}),

			pendingSnoozes: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "siteguard_snooze_pending",
				Help: "Snooze schedule entries still pending after the last sweep.",
			}),

			elementsHidden: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "siteguard_elements_hidden_total",
				Help: "Page elements hidden by the element hider, by domain.",
			}, []string{"domain"}),

			selectorErrors: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "siteguard_selector_errors_total",
				Help: "Blocked element entries skipped, by reason.",
			}, []string{"reason"}),

			broadcasts: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "siteguard_broadcasts_total",
				Help: "Messages fanned out to connected clients, by action and result.",
			}, []string{"action", "result"}),

			connectedPeers: promauto.NewGaugeVec(prometheus.GaugeOpts{
				Name: "siteguard_connected_clients",
				Help: "WebSocket clients currently connected, by role.",
			}, []string{"role"}),

			gatewayRequests: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "siteguard_gateway_requests_total",
				Help: "Requests seen by the filtering gateway, by verdict.",
			}, []string{"verdict"}),
		}
	})

	return mc
}

func (mc *MetricsCollector) RulePassSucceeded(source string, installed int, duration time.Duration) {
	mc.rulePasses.With(prometheus.Labels{"source": source, "outcome": "success"}).Inc()
	mc.rulePassDuration.Observe(duration.Seconds())
	mc.rulesInstalled.Set(float64(installed))
}

func (mc *MetricsCollector) RulePassFailed(source, step string, duration time.Duration) {
	mc.rulePasses.With(prometheus.Labels{"source": source, "outcome": "failed"}).Inc()
	mc.rulePassDuration.Observe(duration.Seconds())
	mc.hostRejections.With(prometheus.Labels{"step": step}).Inc()
}

func (mc *MetricsCollector) TriggerCoalesced() {
	mc.triggersCoalesced.Inc()
}

// SweepCompleted records one sweep, the sites it flipped and what is left pending.
func (mc *MetricsCollector) SweepCompleted(flipped, pending int) {
	mc.sweeps.Inc()
	mc.autoToggles.Add(float64(flipped))
	mc.pendingSnoozes.Set(float64(pending))
}

func (mc *MetricsCollector) ElementsHidden(domain string, count int) {
	mc.elementsHidden.With(prometheus.Labels{"domain": domain}).Add(float64(count))
}

func (mc *MetricsCollector) SelectorError(reason string) {
	mc.selectorErrors.With(prometheus.Labels{"reason": reason}).Inc()
}

func (mc *MetricsCollector) Broadcast(action, result string) {
	mc.broadcasts.With(prometheus.Labels{"action": action, "result": result}).Inc()
}

func (mc *MetricsCollector) ClientConnected(role string) {
	mc.connectedPeers.With(prometheus.Labels{"role": role}).Inc()
}

func (mc *MetricsCollector) ClientDisconnected(role string) {
	mc.connectedPeers.With(prometheus.Labels{"role": role}).Dec()
}

func (mc *MetricsCollector) GatewayRequest(verdict string) {
	mc.gatewayRequests.With(prometheus.Labels{"verdict": verdict}).Inc()
}
