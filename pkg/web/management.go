package web

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"

	"github.com/atlassian/netstatsd"
	"github.com/atlassian/netstatsd/pkg/healthcheck"
	"github.com/atlassian/netstatsd/pkg/statsd"
)

// Management is the query interface served over HTTP.
type Management interface {
	Stats() statsd.StatsReport
	Counters() netstatsd.Counters
	Gauges() map[string]float64
	Sets() map[string][]string
	Timers() map[string][]float64
	Delete(key string, types ...netstatsd.MetricType) []netstatsd.MetricType
}

var metricTypes = map[string]netstatsd.MetricType{
	netstatsd.COUNTER.String(): netstatsd.COUNTER,
	netstatsd.GAUGE.String():   netstatsd.GAUGE,
	netstatsd.SET.String():     netstatsd.SET,
	netstatsd.TIMER.String():   netstatsd.TIMER,
}

type errorResponse struct {
	Error string `json:"error"`
}

type deleteResponse struct {
	Key     string   `json:"key"`
	Deleted []string `json:"deleted"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := jsoniter.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Debug("Failed to write response")
	}
}

type managementAPI struct {
	mgmt Management
}

func (a *managementAPI) stats(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, a.mgmt.Stats())
}

func (a *managementAPI) counters(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, a.mgmt.Counters())
}

func (a *managementAPI) timers(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, a.mgmt.Timers())
}

func (a *managementAPI) gauges(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, a.mgmt.Gauges())
}

func (a *managementAPI) sets(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, a.mgmt.Sets())
}

// deleteKey removes a key. Repeated type query parameters limit the metric types it is removed from.
func (a *managementAPI) deleteKey(w http.ResponseWriter, req *http.Request) {
	key := mux.Vars(req)["key"]
	var types []netstatsd.MetricType
	for _, name := range req.URL.Query()["type"] {
		t, ok := metricTypes[name]
		if !ok {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("unknown metric type %q", name)})
			return
		}
		types = append(types, t)
	}
	deleted := a.mgmt.Delete(key, types...)
	if len(deleted) == 0 {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: fmt.Sprintf("metric %s not found", key)})
		return
	}
	resp := deleteResponse{Key: key, Deleted: make([]string, 0, len(deleted))}
	for _, t := range deleted {
		resp.Deleted = append(resp.Deleted, t.String())
	}
	logrus.WithField("key", key).WithField("types", resp.Deleted).Info("Deleted metric")
	writeJSON(w, http.StatusOK, resp)
}

type healthChecker struct {
	healthChecks []healthcheck.HealthcheckFunc
	deepChecks   []healthcheck.HealthcheckFunc
}

func respondToHealthChecks(w http.ResponseWriter, checks []healthcheck.HealthcheckFunc) {
	good, bad := healthcheck.Run(checks)
	status := http.StatusOK
	if len(bad) > 0 {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, map[string][]string{
		"ok":     good,
		"failed": bad,
	})
}

// healthCheck reports if the server is ready to process traffic.
func (hc *healthChecker) healthCheck(w http.ResponseWriter, req *http.Request) {
	respondToHealthChecks(w, hc.healthChecks)
}

// deepCheck reports on the status of downstream dependencies.
func (hc *healthChecker) deepCheck(w http.ResponseWriter, req *http.Request) {
	respondToHealthChecks(w, hc.deepChecks)
}
