// ABOUTME: Gateway hosts the Flickr client behind an HTTP server
// ABOUTME: Wires config, storage backends, session middleware and the chi router

package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/2389/flickr-gateway/internal/auth"
	"github.com/2389/flickr-gateway/internal/config"
	"github.com/2389/flickr-gateway/internal/flickr"
	"github.com/2389/flickr-gateway/internal/store"
)

// Gateway is the hosting HTTP server in front of a flickr.Gateway.
type Gateway struct {
	config     *config.Config
	flickr     *flickr.Gateway
	backends   io.Closer
	signer     *auth.SessionSigner
	router     chi.Router
	httpServer *http.Server
	logger     *slog.Logger
}

// OpenFlickr opens the configured storage backends and builds the Flickr
// client on top of them. The caller owns the returned backends.
func OpenFlickr(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*flickr.Gateway, *store.Backends, error) {
	backends, err := store.Open(ctx, store.Options{
		CacheAdapter:   cfg.Cache.Adapter,
		SessionAdapter: cfg.Session.Adapter,
		SQLitePath:     cfg.Database.Path,
		RedisAddr:      cfg.Redis.Addr,
		RedisPassword:  cfg.Redis.Password,
		RedisDB:        cfg.Redis.DB,
		SessionMaxAge:  cfg.Session.MaxAge,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("opening storage: %w", err)
	}

	fl, err := flickr.New(ctx, flickrOptions(cfg, backends, flickr.NewHTTPTransport(cfg.Flickr.Timeout), logger))
	if err != nil {
		backends.Close()
		return nil, nil, fmt.Errorf("creating flickr client: %w", err)
	}
	return fl, backends, nil
}

// flickrOptions maps the flickr config section onto client options.
func flickrOptions(cfg *config.Config, backends *store.Backends, transport flickr.Transport, logger *slog.Logger) flickr.Options {
	format, _ := flickr.ParseFormat(cfg.Flickr.Format)
	mode, _ := flickr.ParseDiscoveryMode(cfg.Flickr.Discovery)
	return flickr.Options{
		APIKey:         cfg.Flickr.APIKey,
		APISecret:      cfg.Flickr.APISecret,
		Scheme:         cfg.Flickr.Scheme,
		Hosts:          cfg.Flickr.Hosts,
		APIService:     cfg.Flickr.APIService,
		AuthPath:       cfg.Flickr.AuthPath,
		Format:         format,
		Discovery:      mode,
		Preload:        cfg.Flickr.Preload,
		PermissionCode: cfg.Flickr.PermissionCode,
		CacheTTL:       cfg.Cache.TTL,
		HistorySize:    cfg.Flickr.HistorySize,
		Transport:      transport,
		Cache:          backends.Cache,
		Sessions:       backends.Sessions,
		Logger:         logger,
	}
}

// New creates a Gateway with storage and a Flickr client built from cfg.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	fl, backends, err := OpenFlickr(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	gw, err := newGateway(cfg, fl, backends, logger)
	if err != nil {
		backends.Close()
		return nil, err
	}
	return gw, nil
}

func newGateway(cfg *config.Config, fl *flickr.Gateway, backends io.Closer, logger *slog.Logger) (*Gateway, error) {
	signer, err := auth.NewSessionSigner([]byte(cfg.Session.Secret))
	if err != nil {
		return nil, fmt.Errorf("creating session signer: %w", err)
	}

	gw := &Gateway{
		config:   cfg,
		flickr:   fl,
		backends: backends,
		signer:   signer,
		logger:   logger.With("component", "gateway"),
	}
	gw.router = gw.routes(logger)
	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           gw.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return gw, nil
}

// routes builds the chi router. Health checks skip the session middleware.
func (g *Gateway) routes(logger *slog.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", g.handleHealth)

	cookie := auth.CookieOptions{
		Name:   g.config.Session.CookieName,
		MaxAge: g.config.Session.MaxAge,
		Secure: strings.HasPrefix(g.config.Server.BaseURL, "https://"),
	}

	r.Group(func(r chi.Router) {
		r.Use(auth.SessionMiddleware(g.signer, cookie, logger))
		r.Use(auth.FrobMiddleware(g.flickr, logger))

		r.Route("/auth", func(r chi.Router) {
			r.Get("/flickr", g.handleAuthRedirect)
			r.Get("/flickr/callback", g.handleAuthCallback)
			r.Get("/flickr/{perms}", g.handleAuthRedirect)
			r.Get("/session", g.handleGetSession)
			r.Delete("/session", g.handleClearSession)
			r.Post("/check", g.handleCheckToken)
			r.Post("/token", g.handleIssueToken)
		})

		r.Route("/api", func(r chi.Router) {
			r.Get("/call/{method}", g.handleCall)
			r.Post("/call/{method}", g.handleCall)
			r.With(g.requireAuthorized).Get("/calls", g.handleListCalls)
			r.With(g.requireAuthorized).Get("/calls/last", g.handleLastCall)
		})

		r.Route("/methods", func(r chi.Router) {
			r.Get("/", g.handleListMethods)
			r.With(g.requireAuthorized).Delete("/", g.handleInvalidateMethods)
			r.Get("/{name}", g.handleDescribeMethod)
		})
	})

	return r
}

// requireAuthorized rejects requests whose session has not completed the
// Flickr token exchange.
func (g *Gateway) requireAuthorized(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, err := g.flickr.Sessions().Load(r.Context(), auth.SessionIDFromContext(r.Context()))
		if err != nil {
			g.logger.Error("loading session", "error", err)
			g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if session.State() != flickr.StateAuthorized {
			g.sendJSONError(w, http.StatusForbidden, "authorized session required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Handler returns the HTTP handler serving all routes.
func (g *Gateway) Handler() http.Handler { return g.router }

// Flickr returns the underlying Flickr client.
func (g *Gateway) Flickr() *flickr.Gateway { return g.flickr }

// Run serves HTTP until ctx is canceled or the server fails, then shuts down.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", g.config.Server.HTTPAddr, err)
	}
	return g.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (g *Gateway) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	serverErr := g.waitForShutdownSignal(ctx, errCh)
	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// waitForShutdownSignal waits for context cancellation or server error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		return err
	}
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops the HTTP server and releases the storage backends.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))
	if g.backends != nil {
		errs = appendCloseError(errs, "store close", g.backends.Close())
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
