package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"thought-pipeline/internal/domain"
	"thought-pipeline/internal/domain/model"
	"thought-pipeline/internal/domain/ports/adapter"
	"thought-pipeline/internal/domain/ports/repository"
	"thought-pipeline/internal/domain/ports/usecase"
	"thought-pipeline/internal/infra/metrics"
)

var _ adapter.JobQueue = (*Queue)(nil)

// FailureHook is called once per item that reaches terminal failed.
type FailureHook func(ctx context.Context, item *model.ProcessingItem)

type QueueConfig struct {
	PollInterval time.Duration
}

// Queue is the durable job queue over the processing item table. Delivery is
// at-least-once: an item is done only when its handler returns nil.
type Queue struct {
	status    usecase.StatusStore
	poll      time.Duration
	wake      map[model.Stage]chan struct{}
	onFailure FailureHook
	log       *zerolog.Logger
}

func NewQueue(status usecase.StatusStore, cfg QueueConfig, logger *zerolog.Logger) *Queue {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	wake := make(map[model.Stage]chan struct{}, len(model.Stages))
	for _, s := range model.Stages {
		wake[s] = make(chan struct{}, 1)
	}
	l := logger.With().Str("component", "queue").Logger()
	return &Queue{status: status, poll: cfg.PollInterval, wake: wake, log: &l}
}

// OnTerminalFailure installs hook. Call before Consume.
func (q *Queue) OnTerminalFailure(hook FailureHook) { q.onFailure = hook }

func (q *Queue) Enqueue(ctx context.Context, tx repository.Tx, stage model.Stage, thoughtID, ownerID string, payload any) (*model.ProcessingItem, bool, error) {
	b, err := encodePayload(payload)
	if err != nil {
		return nil, false, err
	}
	item, created, err := q.status.CreateOrGetPending(ctx, tx, thoughtID, ownerID, stage, b)
	if err != nil {
		return nil, false, err
	}
	if created {
		q.signal(stage)
	}
	return item, created, nil
}

// signal is a hint; a claim that races the enqueue commit is caught by the next poll.
func (q *Queue) signal(stage model.Stage) {
	if ch, ok := q.wake[stage]; ok {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (q *Queue) signalAll() {
	for s := range q.wake {
		q.signal(s)
	}
}

// Consume runs handler on stage jobs with at most concurrency invocations in flight.
// It returns after ctx is cancelled and every in-flight job has finished. In-flight
// jobs are not cancelled with ctx.
func (q *Queue) Consume(ctx context.Context, stage model.Stage, concurrency int, handler adapter.JobHandler) error {
	if !stage.Valid() {
		return domain.ErrInvalidArgument
	}
	pool := NewPool(string(stage), concurrency, q.log)
	jobCtx := context.WithoutCancel(ctx)
	log := q.log.With().Str("stage", string(stage)).Int("concurrency", pool.Size()).Logger()
	log.Info().Msg("stage consumer started")

	timer := time.NewTimer(q.poll)
	defer timer.Stop()

	for {
		if err := pool.Acquire(ctx); err != nil {
			break
		}
		item, err := q.status.ClaimNext(ctx, stage)
		if err != nil {
			pool.Release()
			if ctx.Err() != nil {
				break
			}
			if !errors.Is(err, domain.ErrNotFound) {
				log.Error().Err(err).Msg("claim failed")
			}
			if !q.idle(ctx, stage, timer) {
				break
			}
			continue
		}
		pool.Go(jobCtx, func(ctx context.Context) error {
			q.run(ctx, item, handler)
			return nil
		})
	}

	log.Info().Int("in_flight", pool.InFlight()).Msg("stage consumer draining")
	pool.Wait()
	log.Info().Msg("stage consumer stopped")
	return nil
}

// idle waits for a wake signal or the poll interval. Returns false once ctx is done.
func (q *Queue) idle(ctx context.Context, stage model.Stage, timer *time.Timer) bool {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	timer.Reset(q.poll)
	select {
	case <-ctx.Done():
		return false
	case <-q.wake[stage]:
		return true
	case <-timer.C:
		return true
	}
}

func (q *Queue) run(ctx context.Context, item *model.ProcessingItem, handler adapter.JobHandler) {
	stage := string(item.Stage)
	log := q.log.With().
		Str("job_id", item.ID).
		Str("thought_id", item.ThoughtID).
		Str("owner_id", item.OwnerID).
		Str("stage", stage).
		Int("attempt", item.Attempts+1).
		Logger()

	metrics.AddInFlight(stage, 1)
	defer metrics.AddInFlight(stage, -1)
	start := time.Now()

	job := &Job{item: item, status: q.status}
	err := runSafe(ctx, func(ctx context.Context) error { return handler.Handle(ctx, job) })
	metrics.ObserveStage(stage, time.Since(start))

	if err == nil {
		if job.completed == nil {
			if _, cerr := q.status.MarkCompleted(ctx, repository.NoTX, item, model.ResultDone); cerr != nil {
				log.Error().Err(cerr).Msg("could not mark job completed")
				return
			}
		}
		metrics.IncJob(stage, "completed")
		log.Info().Dur("duration", time.Since(start)).Msg("job completed")
		q.signalAll()
		return
	}

	next, ferr := q.status.MarkFailed(ctx, repository.NoTX, item, err)
	if ferr != nil {
		// left in processing; the stale-claim reaper returns it to the queue
		log.Error().Err(ferr).AnErr("cause", err).Msg("could not record job failure")
		return
	}
	if next.Status == model.ItemStatusFailed {
		metrics.IncJob(stage, "failed")
		log.Error().Err(err).Int("attempts", next.Attempts).Bool("retryable", domain.IsRetryable(err)).Msg("job failed permanently")
		if q.onFailure != nil {
			q.onFailure(ctx, next)
		}
		return
	}
	if next.Attempts == item.Attempts {
		metrics.IncJob(stage, "deferred")
		log.Info().Err(err).Time("retry_at", next.AvailableAt).Msg("job deferred")
		return
	}
	metrics.IncJob(stage, "retried")
	log.Warn().Err(err).Time("retry_at", next.AvailableAt).Msg("job failed, will retry")
	if !next.AvailableAt.After(time.Now()) {
		q.signal(item.Stage)
	}
}
