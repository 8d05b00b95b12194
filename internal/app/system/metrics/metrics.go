// Package metrics exposes Prometheus counters for engine operations and
// scrape-time gauges for collection totals.
//
// All recording methods are nil-safe so services can be built without
// metrics in tests.
package metrics

import (
	"context"
	"net/http"
	"time"

	metricsstore "github.com/dalemusser/cadence/internal/app/store/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cadence"

// Metrics holds the registry and the engine's collectors.
type Metrics struct {
	Registry *prometheus.Registry

	usersCreated     prometheus.Counter
	teamsCreated     prometheus.Counter
	teamJoins        *prometheus.CounterVec
	membershipsEnded prometheus.Counter
	assignments      *prometheus.CounterVec
	declarations     *prometheus.CounterVec
	errors           *prometheus.CounterVec
	sessions         *prometheus.CounterVec
}

// New builds a fresh registry with process and Go collectors plus the
// engine counters.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		usersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "users_created_total",
			Help: "Users created on first authentication.",
		}),
		teamsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "teams_created_total",
			Help: "Teams created.",
		}),
		teamJoins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "team_joins_total",
			Help: "Join attempts by outcome.",
		}, []string{"result"}),
		membershipsEnded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "memberships_ended_total",
			Help: "Memberships deactivated by leave or removal.",
		}),
		assignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "assignments_written_total",
			Help: "Assignment writes by operation.",
		}, []string{"op"}),
		declarations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "presence_declarations_total",
			Help: "Presence writes by status and source.",
		}, []string{"status", "source"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "errors_total",
			Help: "Errors returned to API callers by kind.",
		}, []string{"kind"}),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "session_changes_total",
			Help: "Session logins and logouts.",
		}, []string{"kind"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.usersCreated, m.teamsCreated, m.teamJoins, m.membershipsEnded,
		m.assignments, m.declarations, m.errors, m.sessions,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

func (m *Metrics) UserCreated() {
	if m != nil {
		m.usersCreated.Inc()
	}
}

func (m *Metrics) TeamCreated() {
	if m != nil {
		m.teamsCreated.Inc()
	}
}

// TeamJoin records a join attempt; result is "joined", "not_found" or
// "already_member".
func (m *Metrics) TeamJoin(result string) {
	if m != nil {
		m.teamJoins.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) MembershipEnded() {
	if m != nil {
		m.membershipsEnded.Inc()
	}
}

// AssignmentWritten records op "create" or "update".
func (m *Metrics) AssignmentWritten(op string) {
	if m != nil {
		m.assignments.WithLabelValues(op).Inc()
	}
}

// PresenceWritten records source "self" or "override".
func (m *Metrics) PresenceWritten(status, source string) {
	if m != nil {
		m.declarations.WithLabelValues(status, source).Inc()
	}
}

func (m *Metrics) Error(kind string) {
	if m != nil {
		m.errors.WithLabelValues(kind).Inc()
	}
}

// SessionChanged records kind "login" or "logout".
func (m *Metrics) SessionChanged(kind string) {
	if m != nil {
		m.sessions.WithLabelValues(kind).Inc()
	}
}

// CountsFunc returns current collection totals.
type CountsFunc func(ctx context.Context) metricsstore.Counts

// RegisterCounts adds gauges evaluated at scrape time from fetch. Each
// scrape runs one fetch bounded by timeout.
func (m *Metrics) RegisterCounts(fetch CountsFunc, timeout time.Duration) {
	m.Registry.MustRegister(&countsCollector{fetch: fetch, timeout: timeout})
}

var (
	usersDesc       = prometheus.NewDesc(namespace+"_users", "Users stored.", nil, nil)
	teamsDesc       = prometheus.NewDesc(namespace+"_teams", "Teams stored.", nil, nil)
	membershipsDesc = prometheus.NewDesc(namespace+"_active_memberships", "Active memberships.", nil, nil)
	assignmentsDesc = prometheus.NewDesc(namespace+"_assignments", "Assignments stored.", nil, nil)
	presencesDesc   = prometheus.NewDesc(namespace+"_presences", "Presence records stored.", nil, nil)
	overridesDesc   = prometheus.NewDesc(namespace+"_presence_overrides", "Presence records under admin override.", nil, nil)
)

type countsCollector struct {
	fetch   CountsFunc
	timeout time.Duration
}

func (c *countsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- usersDesc
	ch <- teamsDesc
	ch <- membershipsDesc
	ch <- assignmentsDesc
	ch <- presencesDesc
	ch <- overridesDesc
}

func (c *countsCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	n := c.fetch(ctx)

	gauge := func(d *prometheus.Desc, v int64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, float64(v))
	}
	gauge(usersDesc, n.Users)
	gauge(teamsDesc, n.Teams)
	gauge(membershipsDesc, n.ActiveMemberships)
	gauge(assignmentsDesc, n.Assignments)
	gauge(presencesDesc, n.Presences)
	gauge(overridesDesc, n.Overrides)
}
