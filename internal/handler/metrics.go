package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/quorumledger/internal/chain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ledgerRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	ledgerRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	ledgerProposalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_proposals_total",
		Help: "Total proposals by outcome.",
	}, []string{"result"})

	ledgerEntriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_entries_appended_total",
		Help: "Total entries appended to the held ledger.",
	})

	ledgerParticipantsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_participants_registered_total",
		Help: "Total participants registered.",
	})

	ledgerWinnerVotes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_consensus_winner_votes",
		Help: "Submissions of the ledger currently winning consensus.",
	})

	ledgerDistinctProposals = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_consensus_distinct_proposals",
		Help: "Distinct ledgers among recorded proposals.",
	})

	ledgerHealthProbesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_health_probes_total",
		Help: "Total health probe runs by probe and result.",
	}, []string{"probe", "result"})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		ledgerRequestsTotal.WithLabelValues(method, path, status).Inc()
		ledgerRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordProposal records an accepted or rejected proposal.
func RecordProposal(accepted bool) {
	if accepted {
		ledgerProposalsTotal.WithLabelValues("accepted").Inc()
	} else {
		ledgerProposalsTotal.WithLabelValues("rejected").Inc()
	}
}

// RecordLedgerAppend records an entry appended to the held ledger.
func RecordLedgerAppend() {
	ledgerEntriesTotal.Inc()
}

// RecordParticipantRegistered records a participant registration.
func RecordParticipantRegistered() {
	ledgerParticipantsTotal.Inc()
}

// RecordResolution publishes the outcome of the latest consensus run.
func RecordResolution(res chain.Resolution) {
	ledgerWinnerVotes.Set(float64(res.Votes))
	ledgerDistinctProposals.Set(float64(res.Distinct))
}

// RecordHealthProbe records the result of one health probe run.
func RecordHealthProbe(probe string, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	ledgerHealthProbesTotal.WithLabelValues(probe, result).Inc()
}
