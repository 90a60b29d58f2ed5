// control/status.go
// Author: momentics <momentics@gmail.com>
//
// HTTP status endpoint exposing health, metrics and debug probes.

package control

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// StatusServer serves GET /healthz and GET /stats.
type StatusServer struct {
	metrics *MetricsRegistry
	probes  *DebugProbes
	logger  *log.Logger
	started time.Time

	engine *gin.Engine

	mu  sync.Mutex
	srv *http.Server
	ln  net.Listener
}

// NewStatusServer builds the router; probes and logger may be nil.
func NewStatusServer(metrics *MetricsRegistry, probes *DebugProbes, logger *log.Logger) *StatusServer {
	if metrics == nil {
		metrics = NewMetricsRegistry()
	}
	if probes == nil {
		probes = NewDebugProbes()
	}
	if logger == nil {
		logger = log.Default()
	}
	gin.SetMode(gin.ReleaseMode)
	s := &StatusServer{
		metrics: metrics,
		probes:  probes,
		logger:  logger,
		started: time.Now(),
		engine:  gin.New(),
	}
	s.engine.Use(gin.Recovery())
	s.engine.GET("/healthz", s.health)
	s.engine.GET("/stats", s.stats)
	return s
}

// Handler exposes the router, mainly for tests.
func (s *StatusServer) Handler() http.Handler { return s.engine }

func (s *StatusServer) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *StatusServer) stats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"metrics": s.metrics.GetSnapshot(),
		"probes":  s.probes.DumpState(),
	})
}

// Start binds addr and serves in the background.
func (s *StatusServer) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: s.engine, ReadHeaderTimeout: 5 * time.Second}

	s.mu.Lock()
	s.srv, s.ln = srv, ln
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("status server: %v", err)
		}
	}()
	s.logger.Printf("status endpoint on http://%s", ln.Addr())
	return nil
}

// Addr returns the bound address, empty before Start.
func (s *StatusServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Shutdown stops the HTTP server.
func (s *StatusServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
