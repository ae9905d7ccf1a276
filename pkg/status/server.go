package status

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"logferry/pkg/engine"
	"logferry/pkg/ingest"
)

// JobSource exposes the ingestor's view of the current and last job.
type JobSource interface {
	State() ingest.State
	Current() (engine.Report, bool)
	Last() (ingest.JobResult, bool)
}

// Server serves health, job progress and Prometheus metrics over HTTP.
type Server struct {
	engine  *gin.Engine
	jobs    JobSource
	started time.Time
	srv     *http.Server
}

func New(jobs JobSource, gatherer prometheus.Gatherer) *Server {
	gin.SetMode(gin.ReleaseMode)
	e := gin.New()
	e.Use(gin.Recovery())

	s := &Server{engine: e, jobs: jobs, started: time.Now()}
	s.setupRoutes(gatherer)
	return s
}

func (s *Server) setupRoutes(gatherer prometheus.Gatherer) {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"state":  s.jobs.State().String(),
			"uptime": time.Since(s.started).Round(time.Second).String(),
		})
	})

	s.engine.GET("/api/job", func(c *gin.Context) {
		resp := gin.H{"state": s.jobs.State().String()}
		if cur, ok := s.jobs.Current(); ok {
			resp["current"] = cur
		}
		if last, ok := s.jobs.Last(); ok {
			resp["last"] = gin.H{
				"state":    last.State.String(),
				"report":   last.Report,
				"error":    last.Err,
				"finished": last.Finished,
			}
		}
		c.JSON(http.StatusOK, resp)
	})

	if gatherer != nil {
		s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Serve blocks until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.srv = &http.Server{Handler: s.engine, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- s.srv.Serve(ln) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Start listens on addr and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}
