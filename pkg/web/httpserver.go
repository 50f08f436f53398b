package web

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/atlassian/netstatsd"
	internalutil "github.com/atlassian/netstatsd/internal/util"
	"github.com/atlassian/netstatsd/pkg/healthcheck"
	"github.com/atlassian/netstatsd/pkg/ready"
)

// HttpServer serves the management API.
type HttpServer struct {
	address string
	Router  *mux.Router
}

type route struct {
	path    string
	handler http.HandlerFunc
	method  string
	name    string
}

var done = struct{}{}

// NewHttpServerFromViper creates the management HTTP API listening on web-address. The
// web sub tree may set enable-prof. Health checks are taken from mgmt when it provides them.
func NewHttpServerFromViper(v *viper.Viper, mgmt Management, gatherer prometheus.Gatherer) (*HttpServer, error) {
	vSub := internalutil.GetSubViper(v, "web")
	vSub.SetDefault("enable-prof", false)
	healthChecks, deepChecks := healthcheck.MaybeAppendHealthChecks(nil, nil, mgmt)
	return NewHttpServer(
		v.GetString(netstatsd.ParamWebAddr),
		mgmt,
		gatherer,
		healthChecks,
		deepChecks,
		vSub.GetBool("enable-prof"),
	)
}

// NewHttpServer creates the management HTTP API. gatherer may be nil to not serve /metrics.
func NewHttpServer(
	address string,
	mgmt Management,
	gatherer prometheus.Gatherer,
	healthChecks []healthcheck.HealthcheckFunc,
	deepChecks []healthcheck.HealthcheckFunc,
	enableProf bool,
) (*HttpServer, error) {
	if address == "" {
		return nil, fmt.Errorf("address is required")
	}
	server := &HttpServer{
		address: address,
	}

	api := &managementAPI{mgmt: mgmt}
	hc := &healthChecker{healthChecks: healthChecks, deepChecks: deepChecks}
	routes := []route{
		{path: "/stats", handler: api.stats, method: "GET", name: "stats_get"},
		{path: "/counters", handler: api.counters, method: "GET", name: "counters_get"},
		{path: "/timers", handler: api.timers, method: "GET", name: "timers_get"},
		{path: "/gauges", handler: api.gauges, method: "GET", name: "gauges_get"},
		{path: "/sets", handler: api.sets, method: "GET", name: "sets_get"},
		{path: "/keys/{key}", handler: api.deleteKey, method: "DELETE", name: "keys_delete"},
		{path: "/healthcheck", handler: hc.healthCheck, method: "GET", name: "healthcheck_get"},
		{path: "/deepcheck", handler: hc.deepCheck, method: "GET", name: "deepcheck_get"},
	}

	if gatherer != nil {
		routes = append(routes,
			route{path: "/metrics", handler: promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}).ServeHTTP, method: "GET", name: "metrics_get"},
		)
	}

	if enableProf {
		profiler := &traceProfiler{}
		routes = append(routes,
			route{path: "/memprof", handler: profiler.MemProf, method: "POST", name: "profmem_post"},
			route{path: "/pprof", handler: profiler.PProf, method: "POST", name: "profpprof_post"},
			route{path: "/trace", handler: profiler.Trace, method: "POST", name: "proftrace_post"},
		)
	}

	router, err := createRoutes(routes)
	if err != nil {
		return nil, err
	}
	router.NotFoundHandler = server.logRequest(http.HandlerFunc(server.notFound))
	router.Use(server.logRequest)
	server.Router = router

	logrus.WithFields(logrus.Fields{
		"address":     address,
		"enable-prof": enableProf,
		"metrics":     gatherer != nil,
	}).Info("Created web server")

	return server, nil
}

func (hs *HttpServer) notFound(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
}

func createRoutes(routes []route) (*mux.Router, error) {
	router := mux.NewRouter()

	for _, route := range routes {
		r := router.HandleFunc(route.path, route.handler).Methods(route.method).Name(route.name)
		if err := r.GetError(); err != nil {
			return nil, fmt.Errorf("error creating route %s: %w", route.name, err)
		}
	}

	return router, nil
}

func (hs *HttpServer) logRequest(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		logFields := logrus.Fields{
			"path": req.URL.Path,
		}
		if host, _, err := net.SplitHostPort(req.RemoteAddr); err == nil {
			logFields["srcip"] = host
		}
		if route := mux.CurrentRoute(req); route == nil {
			logFields["method"] = req.Method
		} else {
			logFields["route"] = route.GetName()
		}
		if source := req.Header.Get("X-Forwarded-For"); source != "" {
			logFields["forwarded_for"] = strings.TrimSpace(strings.Split(source, ",")[0])
		}

		start := time.Now()
		handler.ServeHTTP(w, req)
		dur := time.Since(start)

		logFields["duration"] = float64(dur) / float64(time.Millisecond)
		logrus.WithFields(logFields).Debug("request")
	})
}

// Run serves until the context is done, then shuts down gracefully.
func (hs *HttpServer) Run(ctx context.Context) {
	l, err := net.Listen("tcp", hs.address)
	if err != nil {
		logrus.WithError(err).WithField("address", hs.address).Error("web server failed to listen")
		return
	}
	ready.SignalReady(ctx)
	hs.Serve(ctx, l)
}

// Serve serves on l until the context is done. l is closed on return.
func (hs *HttpServer) Serve(ctx context.Context, l net.Listener) {
	server := &http.Server{
		Handler: hs.Router,
	}

	chStopped := make(chan struct{}, 1)
	go hs.waitAndStop(ctx, server, chStopped)

	logrus.WithField("address", l.Addr().String()).Info("web server listening")

	err := server.Serve(l)
	if err != http.ErrServerClosed {
		logrus.WithError(err).Error("web server failed")
		return
	}

	// Wait for graceful shutdown of existing connections
	select {
	case <-chStopped:
		// happy
	case <-time.After(6 * time.Second):
		logrus.Info("timeout waiting for web server to stop")
	}
}

// waitAndStop will gracefully shut down the Server when the Context passed is cancelled.  It signals
// on chStopped when it is done.  There is no guarantee that it will actually signal, if the server
// does not shutdown.
func (hs *HttpServer) waitAndStop(ctx context.Context, server *http.Server, chStopped chan<- struct{}) {
	<-ctx.Done()

	logrus.Info("shutting down web server")
	timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := server.Shutdown(timeoutCtx)
	if err != nil {
		logrus.WithError(err).Warn("failed to stop web server")
	}
	chStopped <- done
}
