package sqlite

import (
	"errors"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts engine activity for one ConnectionManager.
type Metrics struct {
	Statements *prometheus.CounterVec
	Errors     *prometheus.CounterVec
	Retries    prometheus.Counter
	Opens      prometheus.Counter
	QueueWait  prometheus.Histogram
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// leaves them unregistered. Collectors already registered on reg are reused
// so several managers can share one registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Statements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "browserdb",
			Subsystem: "sqlite",
			Name:      "statements_total",
			Help:      "Statements executed, by kind (ddl, change, query, pragma, tx, other).",
		}, []string{"kind"}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "browserdb",
			Subsystem: "sqlite",
			Name:      "errors_total",
			Help:      "Failed engine calls, by error class.",
		}, []string{"type"}),
		Retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "browserdb",
			Subsystem: "sqlite",
			Name:      "busy_retries_total",
			Help:      "Statements retried after SQLITE_BUSY or SQLITE_LOCKED.",
		}),
		Opens: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "browserdb",
			Subsystem: "sqlite",
			Name:      "connections_opened_total",
			Help:      "Connections opened by the connection manager.",
		}),
		QueueWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "browserdb",
			Subsystem: "sqlite",
			Name:      "queue_wait_seconds",
			Help:      "Time a unit of work waited for the connection manager.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
	}
	if reg == nil {
		return m
	}
	m.Statements = register(reg, m.Statements)
	m.Errors = register(reg, m.Errors)
	m.Retries = register(reg, m.Retries)
	m.Opens = register(reg, m.Opens)
	m.QueueWait = register(reg, m.QueueWait)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

func (m *Metrics) statement(query string) {
	if m == nil {
		return
	}
	m.Statements.WithLabelValues(statementKind(query)).Inc()
}

func (m *Metrics) failure(err error) {
	if m == nil || err == nil {
		return
	}
	m.Errors.WithLabelValues(errorLabel(err)).Inc()
}

// statementKind classifies a statement by its leading keyword.
func statementKind(query string) string {
	q := strings.TrimSpace(query)
	end := strings.IndexFunc(q, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z')
	})
	if end >= 0 {
		q = q[:end]
	}
	switch strings.ToUpper(q) {
	case "CREATE", "ALTER", "DROP":
		return "ddl"
	case "INSERT", "UPDATE", "DELETE", "REPLACE":
		return "change"
	case "SELECT", "WITH", "VALUES":
		return "query"
	case "PRAGMA":
		return "pragma"
	case "BEGIN", "COMMIT", "ROLLBACK", "SAVEPOINT", "RELEASE", "END":
		return "tx"
	default:
		return "other"
	}
}
