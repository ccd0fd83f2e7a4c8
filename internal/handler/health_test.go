package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/quorumledger/internal/handler"
	"github.com/jmerrifield20/quorumledger/internal/health"
	"go.uber.org/zap"
)

func TestHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)

	healthy := true
	checker := health.New(health.Config{FailThreshold: 1}, zap.NewNop())
	checker.Add("held_ledger", func(context.Context) error {
		if healthy {
			return nil
		}
		return errors.New("invalid chain")
	})

	r := gin.New()
	r.GET("/healthz", handler.Health(checker))

	get := func() (int, health.Report) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		var rep health.Report
		if err := json.Unmarshal(w.Body.Bytes(), &rep); err != nil {
			t.Fatal(err)
		}
		return w.Code, rep
	}

	checker.CheckAll(context.Background())
	if code, rep := get(); code != http.StatusOK || rep.Status != health.StatusHealthy {
		t.Errorf("healthy: got %d %+v", code, rep)
	}

	healthy = false
	checker.CheckAll(context.Background())
	code, rep := get()
	if code != http.StatusServiceUnavailable {
		t.Errorf("degraded: got %d, want 503", code)
	}
	if rep.Probes["held_ledger"].LastError != "invalid chain" {
		t.Errorf("unexpected probe report %+v", rep.Probes["held_ledger"])
	}
}
