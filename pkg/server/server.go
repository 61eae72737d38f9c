package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	handlers "github.com/sec-tools/iac-sentinel/pkg/handlers/review"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/sec-tools/iac-sentinel/pkg/guard"
	sentinelmiddleware "github.com/sec-tools/iac-sentinel/pkg/server/middleware"
	services "github.com/sec-tools/iac-sentinel/pkg/services/review"
	storereview "github.com/sec-tools/iac-sentinel/pkg/store/review"
)

// webhookRateLimit caps webhook deliveries per client per minute.
const webhookRateLimit = 100

const defaultShutdownTimeout = 10 * time.Second

type WebAPI struct {
	router          *chi.Mux
	logger          *zerolog.Logger
	server          *http.Server
	shutdownTimeout time.Duration
}

type Dependencies struct {
	Reviewer      services.Orchestrator
	Archive       storereview.Store
	WebhookSecret string
	Logger        zerolog.Logger
}

type Config struct {
	Addr            string
	ShutdownTimeout time.Duration
	Dependencies    Dependencies
}

func ConfigureRouter(config Config) *chi.Mux {
	deps := config.Dependencies
	handler := handlers.NewHandler(deps.Reviewer, deps.Archive, deps.WebhookSecret)
	logger := deps.Logger

	router := chi.NewRouter()

	router.Use(sentinelmiddleware.Logger(&logger))
	router.Use(middleware.Recoverer)

	router.Get("/", handler.Health)
	router.Get("/status/{id}", handler.GetStatus)
	router.Get("/api/reviews", handler.ListReviews)
	router.With(sentinelmiddleware.Limit(guard.NewKeyedLimiter(webhookRateLimit))).
		Post("/webhook/github", handler.GithubWebhook)

	return router
}

func NewWebAPI(config Config) *WebAPI {
	router := ConfigureRouter(config)
	logger := config.Dependencies.Logger

	shutdownTimeout := config.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}

	return &WebAPI{
		router: router,
		logger: &logger,
		server: &http.Server{
			Addr:    config.Addr,
			Handler: router,
		},
		shutdownTimeout: shutdownTimeout,
	}
}

func (w *WebAPI) Start() error {
	serverErrors := make(chan error, 1)
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	go func() {
		w.logger.Info().Str("addr", w.server.Addr).Msg("starting server")
		serverErrors <- w.server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-shutdown:
		w.logger.Info().Msg("shutdown initiated")

		// Give outstanding requests a deadline for completion.
		ctx, cancel := context.WithTimeout(context.Background(), w.shutdownTimeout)
		defer cancel()

		err := w.server.Shutdown(ctx)
		if err != nil {
			w.logger.Error().Err(err).Msg("graceful shutdown failed")
			err = w.server.Close()
		}

		if err != nil {
			return err
		}
	}

	return nil
}
