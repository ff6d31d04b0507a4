package worker

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"thought-pipeline/internal/domain/model"
	"thought-pipeline/internal/domain/ports/adapter"
	"thought-pipeline/internal/domain/ports/usecase"
)

type binding struct {
	stage       model.Stage
	concurrency int
	handler     adapter.JobHandler
}

// Manager owns the queue and one consumer pool per registered stage. It is built once
// at startup and handed to whatever needs to enqueue or query status.
type Manager struct {
	queue    *Queue
	status   usecase.StatusStore
	bindings []binding
	log      *zerolog.Logger
}

func NewManager(queue *Queue, status usecase.StatusStore, logger *zerolog.Logger) *Manager {
	l := logger.With().Str("component", "worker_manager").Logger()
	return &Manager{queue: queue, status: status, log: &l}
}

func (m *Manager) Queue() *Queue { return m.queue }

func (m *Manager) Status() usecase.StatusStore { return m.status }

// Register binds handler to stage. Registering a stage twice is an error.
func (m *Manager) Register(stage model.Stage, concurrency int, handler adapter.JobHandler) error {
	if !stage.Valid() || handler == nil {
		return fmt.Errorf("register %q: invalid stage or nil handler", stage)
	}
	for _, b := range m.bindings {
		if b.stage == stage {
			return fmt.Errorf("stage %s already registered", stage)
		}
	}
	m.bindings = append(m.bindings, binding{stage: stage, concurrency: concurrency, handler: handler})
	return nil
}

// Run consumes every registered stage until ctx is cancelled, then waits for in-flight
// jobs of all stages to finish.
func (m *Manager) Run(ctx context.Context) error {
	if len(m.bindings) == 0 {
		return fmt.Errorf("no stages registered")
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, b := range m.bindings {
		g.Go(func() error {
			return m.queue.Consume(gctx, b.stage, b.concurrency, b.handler)
		})
	}
	m.log.Info().Int("stages", len(m.bindings)).Msg("worker manager running")
	err := g.Wait()
	m.log.Info().Msg("worker manager stopped")
	return err
}
