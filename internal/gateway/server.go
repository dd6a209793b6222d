// Package gateway exposes a device session over HTTP and WebSocket.
package gateway

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/danmuck/spinelctl/internal/ncp"
	"github.com/danmuck/spinelctl/internal/observability"
	"github.com/danmuck/spinelctl/internal/protocol"
	"github.com/danmuck/spinelctl/internal/protocol/schema"
	"github.com/danmuck/spinelctl/internal/protocol/session"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Device is the session surface the gateway serves.
type Device interface {
	Lookup(ref string) (schema.Descriptor, error)
	Registry() *schema.Registry
	Get(ctx context.Context, prop protocol.PropertyID) (any, error)
	Set(ctx context.Context, prop protocol.PropertyID, value any) error
	Insert(ctx context.Context, prop protocol.PropertyID, value any) error
	Remove(ctx context.Context, prop protocol.PropertyID, value any) error
	Reset(ctx context.Context) (protocol.Status, error)
	Identify(ctx context.Context) (ncp.Info, error)
	Subscribe(props ...protocol.PropertyID) *ncp.Subscription
	Stats() session.Stats
	Negotiated() (major, minor uint32, ok bool)
}

type Config struct {
	Name           string
	Addr           string
	CORSOrigins    []string
	RequestTimeout time.Duration
	PingInterval   time.Duration
	// Token, when set, is required as a bearer token on mutating routes.
	Token string
	// TLSCertFile and TLSKeyFile switch Serve to HTTPS when both are set.
	TLSCertFile string
	TLSKeyFile  string
}

func DefaultConfig() Config {
	return Config{
		Name:           "spinelctl",
		Addr:           ":8080",
		RequestTimeout: 5 * time.Second,
		PingInterval:   20 * time.Second,
	}
}

type Server struct {
	cfg      Config
	dev      Device
	router   *gin.Engine
	appeared time.Time
}

func New(cfg Config, dev Device) *Server {
	d := DefaultConfig()
	if cfg.Name == "" {
		cfg.Name = d.Name
	}
	if cfg.Addr == "" {
		cfg.Addr = d.Addr
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = d.RequestTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = d.PingInterval
	}
	cfg.CORSOrigins = normalizeOrigins(cfg.CORSOrigins)

	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(cfg.Name))
	r.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{"GET", "PUT", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		cfg:      cfg,
		dev:      dev,
		router:   r,
		appeared: time.Now(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) HTTPRouter() *gin.Engine {
	return s.router
}

// Serve listens on cfg.Addr until ctx ends.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("gateway listen %s: %w", s.cfg.Addr, err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener serves on ln until ctx ends, then shuts down gracefully.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	useTLS := s.cfg.TLSCertFile != "" && s.cfg.TLSKeyFile != ""
	errc := make(chan error, 1)
	go func() {
		log.Info().Msgf("gateway.Serve listening addr=%s tls=%t", ln.Addr(), useTLS)
		if useTLS {
			errc <- srv.ServeTLS(ln, s.cfg.TLSCertFile, s.cfg.TLSKeyFile)
			return
		}
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
