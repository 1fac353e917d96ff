// Package web serves the optional status interface: a session-protected
// dashboard showing the loaded configuration (passwords redacted) and live
// pass statistics, plus the same data as JSON under /status.json.
package web

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/meko-christian/mail-courier/internal/config"
	"github.com/meko-christian/mail-courier/internal/courier"
)

type Server struct {
	cfg   config.Web
	conf  *config.Config
	stats *courier.Stats
	auth  *AuthManager
}

func NewServer(conf *config.Config, stats *courier.Stats) (*Server, error) {
	auth, err := NewAuthManager(conf.Web.Username, conf.Web.Password)
	if err != nil {
		return nil, err
	}

	return &Server{
		cfg:   conf.Web,
		conf:  conf,
		stats: stats,
		auth:  auth,
	}, nil
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.cfg.Bind, s.cfg.Port),
		Handler:      s.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("Status server listening", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	prune := time.NewTicker(time.Hour)
	defer prune.Stop()

	for {
		select {
		case err := <-errc:
			return fmt.Errorf("status server failed: %w", err)
		case <-prune.C:
			s.auth.PruneExpired()
		case <-ctx.Done():
			slog.Info("Shutting down status server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		}
	}
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/login", s.handleLogin)
	mux.HandleFunc("/logout", s.handleLogout)

	mux.Handle("/status.json", s.auth.RequireAuth(http.HandlerFunc(s.handleStatusJSON)))
	mux.Handle("/", s.auth.RequireAuth(http.HandlerFunc(s.handleDashboard)))

	return mux
}
