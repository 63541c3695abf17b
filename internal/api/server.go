package api

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"rollback-duel/internal/config"
	"rollback-duel/internal/host"
)

const shutdownTimeout = 5 * time.Second

// Server is the HTTP API server with WebSocket support.
// It combines the HTTP router with the WebSocket hub for real-time updates.
type Server struct {
	cfg         config.ServerConfig
	router      *chi.Mux
	wsHub       *WebSocketHub
	rateLimiter *IPRateLimiter
}

// NewServer creates the API server for h and subscribes the hub to its
// snapshots and relayed actions.
//
// Background workers do NOT start until Run or Serve is called.
func NewServer(h *host.Host, cfg config.ServerConfig) *Server {
	s := &Server{
		cfg: cfg,
		wsHub: NewWebSocketHub(h, HubOptions{
			AllowedOrigins: cfg.AllowedOrigins,
			MaxClients:     cfg.MaxWSClients,
		}),
		rateLimiter: NewIPRateLimiter(RateLimitConfig{
			RequestsPerSecond: cfg.RequestsPerSec,
			Burst:             cfg.RequestBurst,
		}),
	}

	s.router = NewRouter(RouterConfig{
		Host:        h,
		RateLimiter: s.rateLimiter,
		CORSOrigins: cfg.AllowedOrigins,
	})
	s.router.Get("/ws", s.wsHub.HandleWebSocket)

	h.OnSnapshot(s.wsHub.BroadcastSnapshot)
	h.OnAction(s.wsHub.BroadcastAction)
	return s
}

// Router returns the HTTP handler for use with httptest.
func (s *Server) Router() http.Handler {
	return s.router
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *WebSocketHub {
	return s.wsHub
}

// Run listens on the configured port and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	addr := ":" + strconv.Itoa(s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	log.Printf("🌐 API server starting on %s", addr)
	return s.Serve(ctx, ln)
}

// Serve starts the background workers and serves on ln until ctx is done,
// then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.wsHub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		s.rateLimiter.RunCleanup(gctx)
		return nil
	})
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	log.Println("🌐 API server stopped")
	return err
}
