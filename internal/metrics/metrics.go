package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus instruments. Services accept a nil
// *Metrics and skip instrumentation, which keeps tests quiet.
type Metrics struct {
	PermissionChecks      *prometheus.CounterVec
	PermissionCacheHits   prometheus.Counter
	EditingSessionsActive prometheus.Gauge
	LoginSessionsActive   prometheus.Gauge
	SessionsEvicted       prometheus.Counter
	SessionsExpired       prometheus.Counter
	registry              *prometheus.Registry
}

func New() *Metrics {
	m := &Metrics{
		PermissionChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authz_permission_checks_total",
			Help: "Permission evaluations by outcome and source.",
		}, []string{"result", "source"}),
		PermissionCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authz_permission_cache_hits_total",
			Help: "Permission evaluations answered from the result cache.",
		}),
		EditingSessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "authz_editing_sessions_active",
			Help: "Currently active editing sessions.",
		}),
		LoginSessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "authz_login_sessions_active",
			Help: "Currently active login sessions.",
		}),
		SessionsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authz_login_sessions_evicted_total",
			Help: "Login sessions evicted by the per-user concurrency cap.",
		}),
		SessionsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authz_login_sessions_expired_total",
			Help: "Login sessions deactivated by the expiry sweep.",
		}),
		registry: prometheus.NewRegistry(),
	}
	m.registry.MustRegister(
		m.PermissionChecks,
		m.PermissionCacheHits,
		m.EditingSessionsActive,
		m.LoginSessionsActive,
		m.SessionsEvicted,
		m.SessionsExpired,
	)
	return m
}

// Handler serves the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
