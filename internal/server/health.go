// Package server exposes the pipeline over HTTP: diagnostics, metrics and a
// forward proxy to the backend.
package server

import "github.com/vietddude/relay/internal/client"

// SystemStatus represents the overall health state of the relay.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// HealthReport is the body of the health endpoint.
type HealthReport struct {
	Status     SystemStatus `json:"status"`
	Circuit    string       `json:"circuit"`
	Online     bool         `json:"online"`
	QueueDepth int          `json:"queue_depth"`

	// Checks holds "ok" or the error of each dependency check.
	Checks map[string]string `json:"checks,omitempty"`
}

// Evaluate derives the health of the relay from a pipeline snapshot and the
// results of dependency checks. An open circuit is critical; probing,
// offline, a backlog or a failing dependency is degraded.
func Evaluate(st client.Status, checks map[string]error) HealthReport {
	r := HealthReport{
		Status:     StatusHealthy,
		Circuit:    st.State,
		Online:     st.IsOnline,
		QueueDepth: st.QueueDepth,
	}
	failing := false
	if len(checks) > 0 {
		r.Checks = make(map[string]string, len(checks))
	}
	for name, err := range checks {
		if err != nil {
			r.Checks[name] = err.Error()
			failing = true
		} else {
			r.Checks[name] = "ok"
		}
	}

	switch {
	case st.State == "OPEN":
		r.Status = StatusCritical
	case st.State == "HALF_OPEN", !st.IsOnline, st.QueueDepth > 0, failing:
		r.Status = StatusDegraded
	}
	return r
}
