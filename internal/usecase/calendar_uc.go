package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"thought-pipeline/internal/domain"
	"thought-pipeline/internal/domain/model"
	"thought-pipeline/internal/domain/ports/adapter"
	"thought-pipeline/internal/domain/ports/repository"
	"thought-pipeline/internal/domain/ports/usecase"
)

var _ adapter.JobHandler = (*CalendarUseCase)(nil)

// persistAttempts bounds how often a created event's write-back is retried in place.
// Redelivering the whole job instead would create the event a second time.
const persistAttempts = 3

// RateLimiter is a fixed-window counter keyed per owner.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type CalendarConfig struct {
	ConfidenceThreshold float64
	// PerUserPerMinute caps event creation per owner when a limiter is set.
	PerUserPerMinute int
}

// CalendarUseCase turns event candidates into calendar events. Every gate that can
// reject the job runs before the provider is called.
type CalendarUseCase struct {
	detector adapter.EventDetector
	creator  adapter.CalendarCreator
	settings repository.SettingsRepository
	thoughts repository.ThoughtRepository
	tm       repository.TransactionManager
	notifier usecase.Notifier
	limiter  RateLimiter
	cfg      CalendarConfig
	now      func() time.Time
	retryGap time.Duration
	log      *zerolog.Logger
}

func NewCalendarUseCase(
	detector adapter.EventDetector,
	creator adapter.CalendarCreator,
	settings repository.SettingsRepository,
	thoughts repository.ThoughtRepository,
	tm repository.TransactionManager,
	notifier usecase.Notifier,
	limiter RateLimiter, // optional
	cfg CalendarConfig,
	logger *zerolog.Logger,
) *CalendarUseCase {
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = model.EventConfidenceThreshold
	}
	if cfg.PerUserPerMinute <= 0 {
		cfg.PerUserPerMinute = 10
	}
	l := logger.With().Str("component", "calendar").Logger()
	return &CalendarUseCase{
		detector: detector,
		creator:  creator,
		settings: settings,
		thoughts: thoughts,
		tm:       tm,
		notifier: notifier,
		limiter:  limiter,
		cfg:      cfg,
		now:      time.Now,
		retryGap: 100 * time.Millisecond,
		log:      &l,
	}
}

func (uc *CalendarUseCase) Handle(ctx context.Context, job adapter.Job) error {
	var p model.CalendarPayload
	if err := job.Decode(&p); err != nil {
		return err
	}
	log := uc.log.With().Str("thought_id", p.ThoughtID).Str("owner_id", p.OwnerID).Logger()

	th, err := uc.thoughts.FindByID(ctx, repository.NoTX, p.ThoughtID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Permanent(fmt.Errorf("thought %s: %w", p.ThoughtID, err))
	}
	if err != nil {
		return fmt.Errorf("load thought: %w", err)
	}
	if th.Event != nil {
		// an earlier delivery already wrote the event back
		log.Info().Str("event_id", th.Event.EventID).Msg("calendar event already recorded")
		return job.Complete(ctx, repository.NoTX, model.ResultEventCreated)
	}

	st, err := uc.settings.Get(ctx, p.OwnerID)
	if errors.Is(err, domain.ErrNotFound) {
		st, err = model.DefaultSettings(p.OwnerID), nil
	}
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if !st.CalendarIntegrationEnabled {
		return uc.skip(ctx, job, log, model.ResultSkipIntegrationOff)
	}
	if !st.AutoCalendarEventsEnabled {
		return uc.skip(ctx, job, log, model.ResultSkipAutoEventsOff)
	}

	sug, err := uc.detector.DetectEvent(ctx, p.Content, adapter.EventReference{Now: uc.now(), Timezone: st.Timezone})
	if err != nil {
		return fmt.Errorf("detect event: %w", err)
	}
	sug.Confidence = model.ClampConfidence(sug.Confidence)
	sug.NaturalLanguageText = strings.TrimSpace(sug.NaturalLanguageText)
	if !sug.HasEvent || sug.NaturalLanguageText == "" {
		return uc.skip(ctx, job, log, model.ResultSkipNoEvent)
	}
	if sug.Confidence < uc.cfg.ConfidenceThreshold {
		log.Debug().Float64("confidence", sug.Confidence).Str("reason", sug.Reason).Msg("event below confidence gate")
		return uc.skip(ctx, job, log, model.ResultSkipLowConfidence)
	}

	if !st.Credentials.Present() {
		// integration is on but nothing to authenticate with: the user has to reconnect
		return fmt.Errorf("owner %s has no calendar credentials: %w", p.OwnerID, domain.ErrAuthorizationExpired)
	}
	if err := uc.checkQuota(ctx, log, p.OwnerID); err != nil {
		return err
	}

	ev, err := uc.creator.CreateFromNaturalLanguage(ctx, st.Credentials, st.CalendarID(), st.Timezone, sug.NaturalLanguageText)
	if err != nil {
		return fmt.Errorf("create event: %w", err)
	}

	ref := model.EventRef{EventID: ev.EventID, EventLink: ev.EventLink, CreatedAt: uc.now()}
	if err := uc.persistEvent(ctx, job, log, p.ThoughtID, ref, ev.StartsAt); err != nil {
		log.Error().Err(err).Str("event_id", ev.EventID).Str("event_link", ev.EventLink).
			Msg("calendar event created but not recorded")
		return err
	}

	log.Info().Str("event_id", ev.EventID).Float64("confidence", sug.Confidence).Msg("calendar event created")
	data := map[string]any{
		"event_id":   ev.EventID,
		"event_link": ev.EventLink,
	}
	if ev.StartsAt != nil {
		data["starts_at"] = ev.StartsAt.UTC()
	}
	uc.notifier.Send(ctx, p.OwnerID, p.ThoughtID, adapter.EventCalendarEventCreated, model.StageCalendar, data)
	return nil
}

// persistEvent records the created event and completes the job in one transaction,
// retrying the transaction itself on transient store errors.
func (uc *CalendarUseCase) persistEvent(ctx context.Context, job adapter.Job, log zerolog.Logger, thoughtID string, ref model.EventRef, startsAt *time.Time) error {
	var err error
	for attempt := 1; attempt <= persistAttempts; attempt++ {
		err = uc.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			if err := uc.thoughts.SetEvent(ctx, tx, thoughtID, ref, startsAt); err != nil {
				return fmt.Errorf("save event: %w", err)
			}
			return job.Complete(ctx, tx, model.ResultEventCreated)
		})
		if err == nil || errors.Is(err, domain.ErrStaleTransition) || attempt == persistAttempts {
			return err
		}
		log.Warn().Err(err).Int("attempt", attempt).Msg("recording calendar event failed, retrying")
		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(uc.retryGap * time.Duration(attempt)):
		}
	}
	return err
}

// skip completes the job without creating anything. Skips are silent.
func (uc *CalendarUseCase) skip(ctx context.Context, job adapter.Job, log zerolog.Logger, result string) error {
	log.Debug().Str("result", result).Msg("calendar stage skipped")
	return job.Complete(ctx, repository.NoTX, result)
}

// checkQuota fails open when the limiter itself is down.
func (uc *CalendarUseCase) checkQuota(ctx context.Context, log zerolog.Logger, ownerID string) error {
	if uc.limiter == nil {
		return nil
	}
	ok, err := uc.limiter.Allow(ctx, CalendarQuotaKey(ownerID), uc.cfg.PerUserPerMinute, time.Minute)
	if err != nil {
		log.Warn().Err(err).Msg("calendar rate limiter unavailable")
		return nil
	}
	if !ok {
		// deferred to the next window, not counted against the attempt budget
		return domain.Defer(fmt.Errorf("calendar quota for owner %s: %w", ownerID, domain.ErrRateLimited), time.Minute)
	}
	return nil
}

func CalendarQuotaKey(ownerID string) string { return "rate_limit:calendar:" + ownerID }
