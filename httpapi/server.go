// Package httpapi exposes the dispatch controller's operational status over
// HTTP: health, readiness, and a status snapshot, per spec.md §4.6's ops
// surface. Grounded on the teacher's scheduler/health.go (the /health,
// /ready, /status endpoint set and the Start/Stop(ctx)/nil-safe-when-disabled
// discipline), rebuilt on gin and rs/cors the way
// brianmickel-battery-backtest's cmd/api/main.go wires its own router:
// gin.Default(), a CORS-wrapped http.Handler, and JSON responses via c.JSON.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"

	"github.com/devskill-org/bess-bidder/dispatch"
	"github.com/devskill-org/bess-bidder/ephemeris"
	"github.com/devskill-org/bess-bidder/strategy"
)

// Server serves the dispatch controller's status over HTTP. A nil *Server
// (constructed with port <= 0) is a valid no-op, mirroring the teacher's
// NewHealthServer(port<=0) => nil convention.
type Server struct {
	controller *dispatch.Controller
	strat      *strategy.Strategy
	httpServer *http.Server
	port       int
	startedAt  time.Time
	lat, lon   float64
}

// StatusResponse is the payload served at /status.
type StatusResponse struct {
	Status               string    `json:"status"`
	Timestamp            string    `json:"timestamp"`
	DispatchState        string    `json:"dispatch_state"`
	CurrentSOC           float64   `json:"current_soc"`
	EquivalentFullCycles float64   `json:"equivalent_full_cycles"`
	LedgerLen            int       `json:"ledger_len"`
	LastDispatchTS       time.Time `json:"last_dispatch_ts,omitempty"`
	UptimeSeconds        float64   `json:"uptime_seconds"`
	Goroutines           int       `json:"goroutines"`
	IsDaylight           bool      `json:"is_daylight"`
}

// New builds a status server bound to the given controller and strategy. If
// port <= 0 the ops surface is disabled and New returns nil, the way the
// teacher disables its health server. lat/lon feed the status payload's
// is_daylight field (see ephemeris.IsDaylight).
func New(ctrl *dispatch.Controller, strat *strategy.Strategy, port int, lat, lon float64) *Server {
	if port <= 0 {
		return nil
	}

	router := gin.Default()
	s := &Server{controller: ctrl, strat: strat, port: port, startedAt: time.Now(), lat: lat, lon: lon}

	router.GET("/health", s.healthHandler)
	router.GET("/ready", s.readinessHandler)
	router.GET("/status", s.statusHandler)

	handler := cors.Default().Handler(router)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start launches the HTTP listener in the background. A nil *Server is a
// no-op, matching callers that unconditionally invoke Start/Stop regardless
// of whether the ops surface was configured.
func (s *Server) Start() error {
	if s == nil {
		return nil
	}
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("httpapi: server error: %v\n", err)
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP listener.
func (s *Server) Stop(ctx context.Context) error {
	if s == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) snapshot() StatusResponse {
	now := time.Now()
	return StatusResponse{
		Timestamp:            now.UTC().Format(time.RFC3339),
		DispatchState:        s.controller.State().String(),
		CurrentSOC:           s.strat.CurrentSOC(),
		EquivalentFullCycles: s.strat.EquivalentFullCycles(),
		LedgerLen:            s.strat.LedgerLen(),
		LastDispatchTS:       s.strat.LastDispatchTS(),
		UptimeSeconds:        time.Since(s.startedAt).Seconds(),
		Goroutines:           runtime.NumGoroutine(),
		IsDaylight:           ephemeris.IsDaylight(now, s.lat, s.lon),
	}
}

func (s *Server) healthHandler(c *gin.Context) {
	snap := s.snapshot()
	snap.Status = "healthy"
	status := http.StatusOK
	if !s.controller.IsRunning() {
		snap.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, snap)
}

func (s *Server) readinessHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ready":     s.controller.IsRunning(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) statusHandler(c *gin.Context) {
	snap := s.snapshot()
	snap.Status = "ok"
	c.JSON(http.StatusOK, snap)
}
