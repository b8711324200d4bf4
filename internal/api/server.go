package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/verseclip/verseclip/internal/jobs"
	"github.com/verseclip/verseclip/internal/lyrics"
)

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// LyricsSearcher is the lyric lookup surface the API exposes.
type LyricsSearcher interface {
	Search(ctx context.Context, query string) (string, error)
	Suggestions(ctx context.Context, query string, limit int) ([]lyrics.Track, error)
}

type ServerConfig struct {
	Port           int
	MediaDir       string
	JobService     *jobs.Service
	Repository     jobs.Repository
	Runner         *jobs.Runner
	Lyrics         LyricsSearcher
	MediaAvailable func() error
	Logger         *slog.Logger
	StartTime      time.Time
	DeviceID       string
	Version        string
}

func NewServer(cfg ServerConfig) *Server {
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("127.0.0.1:%d", cfg.Port),
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}
