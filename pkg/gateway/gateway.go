package gateway

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/peergramhq/peergram/pkg/app"
	"github.com/peergramhq/peergram/pkg/logging"
)

// Gateway is the render boundary: it projects the application state over
// HTTP and a websocket stream, and translates HTTP requests into the
// application's intents.
type Gateway struct {
	app        *app.App
	logger     *logging.ColoredLogger
	router     chi.Router
	server     *http.Server
	listenAddr string
}

// New creates the gateway and configures its routes
func New(application *app.App, listenAddr string, logger *logging.ColoredLogger) (*Gateway, error) {
	if application == nil {
		return nil, fmt.Errorf("application is required")
	}
	if logger == nil {
		var err error
		logger, err = logging.NewColoredLogger(logging.ComponentGateway, true)
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
	}

	g := &Gateway{
		app:        application,
		logger:     logger,
		router:     chi.NewRouter(),
		listenAddr: listenAddr,
	}

	g.router.Use(middleware.RequestID)
	g.router.Use(middleware.Recoverer)

	g.router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Get("/health", g.healthHandler)
		r.Get("/v1/state", g.stateHandler)
		r.Get("/v1/entries", g.entriesHandler)
		r.Post("/v1/media", g.mediaHandler)
		r.Get("/v1/media/{cid}", g.mediaFetchHandler)
		r.Post("/v1/publish", g.publishHandler)
		r.Post("/v1/entries/{id}/tip", g.tipHandler)
		r.Post("/v1/catalog/reload", g.reloadHandler)
	})

	// The websocket stream stays open indefinitely; no timeout middleware
	g.router.Get("/v1/state/ws", g.stateWebsocketHandler)

	return g, nil
}

// Router returns the router for testing or extension
func (g *Gateway) Router() chi.Router {
	return g.router
}

// Start serves HTTP until the context is cancelled, then shuts down
// gracefully
func (g *Gateway) Start(ctx context.Context) error {
	g.server = &http.Server{
		Addr:    g.listenAddr,
		Handler: g.router,
	}

	listener, err := net.Listen("tcp", g.listenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", g.listenAddr, err)
	}

	g.logger.ComponentInfo(logging.ComponentGateway, "gateway listening",
		zap.String("listen_addr", g.listenAddr),
	)

	go func() {
		if err := g.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			g.logger.ComponentError(logging.ComponentGateway, "gateway server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	return g.Stop()
}

// Stop gracefully stops the gateway server
func (g *Gateway) Stop() error {
	if g.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	g.logger.ComponentInfo(logging.ComponentGateway, "gateway shutting down")
	if err := g.server.Shutdown(ctx); err != nil {
		g.logger.ComponentError(logging.ComponentGateway, "gateway shutdown error", zap.Error(err))
		return err
	}
	return nil
}
