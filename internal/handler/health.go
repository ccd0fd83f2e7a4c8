package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/quorumledger/internal/health"
)

// HealthReporter is satisfied by *health.Checker.
type HealthReporter interface {
	Report() health.Report
}

// Health serves the checker's report, with 503 while any probe is degraded.
func Health(r HealthReporter) gin.HandlerFunc {
	return func(c *gin.Context) {
		report := r.Report()
		status := http.StatusOK
		if !report.Healthy() {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, report)
	}
}
