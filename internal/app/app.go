// Package app wires the catalog server together: configuration, the default
// catalog document, health probes, middleware, and graceful shutdown.
package app

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/amberlow/catalink/internal/catalog"
	"github.com/amberlow/catalink/internal/codec"
	"github.com/amberlow/catalink/internal/httpapi"
	"github.com/amberlow/catalink/internal/seed"
	"github.com/amberlow/catalink/pkg/health"
	"github.com/amberlow/catalink/pkg/httpmiddleware"
)

// loadBaseCatalog returns the catalog document the server will stamp and
// serve: the file at path when set, the embedded default otherwise. Either
// way the document passes full codec validation before the server starts.
func loadBaseCatalog(path string) (*catalog.Payload, error) {
	doc := seed.DefaultCatalog
	if path != "" {
		var err error
		doc, err = os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "read catalog file")
		}
	}

	p, err := codec.DecodeDocument(doc)
	if err != nil {
		return nil, errors.Wrap(err, "decode base catalog")
	}
	return p, nil
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	base, err := loadBaseCatalog(cfg.CatalogPath)
	if err != nil {
		return errors.Wrap(err, "load base catalog")
	}
	lg.Info("Base catalog loaded",
		zap.String("company", base.Company.Name),
		zap.Int("products", len(base.Products)),
	)

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.SetReady(true)

	h := httpapi.NewHandler(httpapi.Config{CatalogTTL: cfg.CatalogTTL}, base)

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	h.Register(mux)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("catalink", m),
			httpmiddleware.LogRequests(),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
