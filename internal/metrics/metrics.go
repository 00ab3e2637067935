package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	bookingDecisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nailbook_booking_decisions_total",
		Help: "Total number of booking requests evaluated by the risk engine, by outcome code",
	}, []string{"code"})
	guardBlockedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nailbook_ip_guard_blocked_total",
		Help: "Total number of requests blocked by the IP guard",
	})
	ruleCacheReloadsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nailbook_ip_rule_cache_reloads_total",
		Help: "Total number of IP rule snapshot reloads",
	})
)

// Register registers Prometheus collectors. Call once at startup.
func Register(registry *prometheus.Registry) {
	registry.MustRegister(bookingDecisionsTotal, guardBlockedTotal, ruleCacheReloadsTotal)
}

// IncBookingDecision increments the decision counter for an outcome code.
// Allowed decisions use the code "ALLOWED".
func IncBookingDecision(code string) { bookingDecisionsTotal.WithLabelValues(code).Inc() }

// IncGuardBlocked increments the blocked requests counter.
func IncGuardBlocked() { guardBlockedTotal.Inc() }

// IncRuleCacheReload increments the rule snapshot reload counter.
func IncRuleCacheReload() { ruleCacheReloadsTotal.Inc() }
