package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Sign-in outcomes.
const (
	OutcomeSuccess            = "success"
	OutcomeAccountNotFound    = "account_not_found"
	OutcomeInvalidCredentials = "invalid_credentials"
)

var (
	SignInAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "oxedro", Name: "sign_in_attempts_total", Help: "Sign-in attempts by outcome",
	}, []string{"outcome"})
	SessionLookupFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "oxedro", Name: "session_lookup_failures_total", Help: "Current-profile lookups that failed",
	})
	SignOutFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "oxedro", Name: "sign_out_failures_total", Help: "Remote sign-outs that failed",
	})
	HTTPRequests = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "oxedro", Name: "http_request_duration_seconds", Help: "Bridge request latency",
		Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"route", "status"})
)

func init() {
	prometheus.MustRegister(SignInAttempts, SessionLookupFailures, SignOutFailures, HTTPRequests)
}

func Handler() http.Handler { return promhttp.Handler() }

func ObserveSignIn(outcome string) { SignInAttempts.WithLabelValues(outcome).Inc() }

func ObserveRequest(route string, status int, d time.Duration) {
	HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Observe(d.Seconds())
}
