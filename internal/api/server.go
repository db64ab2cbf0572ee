package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"staysense/internal/engine"
	"staysense/internal/signals"
	"staysense/internal/storage"
)

type Scorer interface {
	Score(ctx context.Context, lat, lon float64, at time.Time) (engine.Result, error)
}

type Submitter interface {
	Submit(ctx context.Context, sub signals.Submission) (signals.Decision, error)
}

type SourceLister interface {
	SourceStates(ctx context.Context) ([]storage.SourceState, error)
}

type Options struct {
	CORSOrigins    []string
	RequestTimeout time.Duration
	Now            func() time.Time
}

// NewRouter mounts the score, signal and health endpoints.
func NewRouter(scorer Scorer, submitter Submitter, sources SourceLister, opts Options) http.Handler {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 15 * time.Second
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(opts.RequestTimeout))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	scores := &ScoreHandler{Scorer: scorer}
	sigs := &SignalHandler{Submitter: submitter}
	health := &HealthHandler{Sources: sources, Now: opts.Now}

	router.Get("/healthz", health.ServeHTTP)
	router.Route("/api", func(r chi.Router) {
		r.Get("/score", scores.ServeHTTP)
		r.Post("/signal", sigs.ServeHTTP)
	})
	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found")
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed")
	})
	return router
}
