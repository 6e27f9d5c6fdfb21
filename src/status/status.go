// Package status serves liveness, run progress and prometheus metrics while
// a run is in flight.
package status

import (
	"context"
	"errors"
	"net/http"
	"time"

	"mxshs/h2hcrawler/src/parser"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// ProgressSource reports the counters of the running job.
type ProgressSource interface {
	Snapshot() parser.Snapshot
}

type progressResponse struct {
	RunID string `json:"run_id"`
	parser.Snapshot
	Elapsed string `json:"elapsed"`
	Memory  string `json:"memory"`
}

// NewRouter builds the status routes.
func NewRouter(runID string, progress ProgressSource, gatherer prometheus.Gatherer) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "run_id": runID})
	})

	router.GET("/progress", func(c *gin.Context) {
		s := progress.Snapshot()
		c.JSON(http.StatusOK, progressResponse{
			RunID:    runID,
			Snapshot: s,
			Elapsed:  s.Elapsed.Round(time.Second).String(),
			Memory:   humanize.Bytes(s.MemoryBytes),
		})
	})

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return router
}

// Server runs the status router in the background.
type Server struct {
	srv *http.Server
	log *zap.Logger
}

func NewServer(addr string, handler http.Handler, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: log,
	}
}

// Start listens in a new goroutine. Listen errors are logged.
func (s *Server) Start() {
	go func() {
		s.log.Info("status server listening", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("status server failed", zap.Error(err))
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
