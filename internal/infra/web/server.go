package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"thought-pipeline/internal/domain/model"
)

// StatusReader is the read side of the status store.
type StatusReader interface {
	Summary(ctx context.Context, ownerID string) (*model.StatusSummary, error)
	ListByThought(ctx context.Context, thoughtID string) ([]*model.ProcessingItem, error)
}

type Reprocessor interface {
	Reprocess(ctx context.Context, ownerID, thoughtID string) (*model.ProcessingItem, error)
}

type Server struct {
	status    StatusReader
	reprocess Reprocessor
	auth      *AuthManager
	log       *zerolog.Logger
}

// NewServer builds the ops API. reprocess may be nil, which leaves the route unmounted.
func NewServer(status StatusReader, reprocess Reprocessor, auth *AuthManager, logger *zerolog.Logger) *Server {
	l := logger.With().Str("component", "web").Logger()
	return &Server{status: status, reprocess: reprocess, auth: auth, log: &l}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(traceID, requestLog(s.log), recoverer(s.log))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/pipeline", func(r chi.Router) {
		r.Use(timeout(10*time.Second), s.requireAuth)
		r.Get("/summary/{ownerID}", s.handleSummary)
		r.Get("/thoughts/{thoughtID}/items", s.handleItems)
		if s.reprocess != nil {
			r.Post("/thoughts/{thoughtID}/reprocess", s.handleReprocess)
		}
	})
	return r
}

// ListenAndServe serves h on addr until ctx is cancelled, then drains for up to grace.
func ListenAndServe(ctx context.Context, addr string, h http.Handler, grace time.Duration, logger *zerolog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("ops api listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), grace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
