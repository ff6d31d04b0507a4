package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"thought-pipeline/internal/domain"
	"thought-pipeline/internal/domain/model"
	"thought-pipeline/internal/domain/ports/adapter"
	"thought-pipeline/internal/domain/ports/repository"
	"thought-pipeline/internal/domain/ports/usecase"
)

var _ adapter.JobHandler = (*EnrichUseCase)(nil)

const DefaultRecentContextSize = 5

type EnrichConfig struct {
	RecentContextSize int
}

// EnrichUseCase classifies a thought and decides whether it goes on to the calendar stage.
type EnrichUseCase struct {
	classifier adapter.Classifier
	thoughts   repository.ThoughtRepository
	settings   repository.SettingsRepository
	tm         repository.TransactionManager
	next       Transitions
	notifier   usecase.Notifier
	cfg        EnrichConfig
	now        func() time.Time
	log        *zerolog.Logger
}

func NewEnrichUseCase(
	classifier adapter.Classifier,
	thoughts repository.ThoughtRepository,
	settings repository.SettingsRepository,
	tm repository.TransactionManager,
	queue adapter.JobQueue,
	notifier usecase.Notifier,
	cfg EnrichConfig,
	logger *zerolog.Logger,
) *EnrichUseCase {
	if cfg.RecentContextSize <= 0 {
		cfg.RecentContextSize = DefaultRecentContextSize
	}
	l := logger.With().Str("component", "enrich").Logger()
	return &EnrichUseCase{
		classifier: classifier,
		thoughts:   thoughts,
		settings:   settings,
		tm:         tm,
		next:       NewTransitions(queue),
		notifier:   notifier,
		cfg:        cfg,
		now:        time.Now,
		log:        &l,
	}
}

func (uc *EnrichUseCase) Handle(ctx context.Context, job adapter.Job) error {
	var p model.EnrichPayload
	if err := job.Decode(&p); err != nil {
		return err
	}
	if p.Content == "" {
		return domain.Permanent(fmt.Errorf("thought %s: %w", p.ThoughtID, domain.ErrNoContent))
	}

	cctx, err := uc.classificationContext(ctx, p)
	if err != nil {
		return err
	}
	cls, err := uc.classifier.Categorize(ctx, p.Content, cctx)
	if err != nil {
		return fmt.Errorf("categorize: %w", err)
	}
	// candidacy is decided on the raw content, never on classifier confidence
	candidate := IsEventCandidate(p.Content)

	category := cls.Category
	if _, err := model.ParseMainCategory(string(category.Main)); err != nil {
		category = model.NewCategory(string(model.CategoryNote), category.Subcategory)
	}
	e := model.Enrichment{
		Category:    category,
		Tags:        cls.Tags,
		Confidence:  cls.Confidence,
		Suggestions: cls.Suggestions,
		ProcessedAt: uc.now(),
	}
	var cal *model.ProcessingItem
	err = uc.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := uc.thoughts.ApplyEnrichment(ctx, tx, p.ThoughtID, e); err != nil {
			return fmt.Errorf("save enrichment: %w", err)
		}
		if cal, err = uc.next.OnEnrichSuccess(ctx, tx, p, candidate); err != nil {
			return fmt.Errorf("enqueue calendar: %w", err)
		}
		result := model.ResultDone
		if cal != nil {
			result = model.ResultCalendarQueued
		}
		return job.Complete(ctx, tx, result)
	})
	if err != nil {
		return err
	}

	uc.log.Debug().
		Str("thought_id", p.ThoughtID).
		Str("category", string(category.Main)).
		Bool("event_candidate", candidate).
		Msg("thought enriched")
	uc.notifier.Send(ctx, p.OwnerID, p.ThoughtID, adapter.EventEnriched, model.StageEnrich, map[string]any{
		"category":        string(category.Main),
		"tags":            model.NormalizeTags(cls.Tags),
		"confidence":      model.ClampConfidence(cls.Confidence),
		"calendar_queued": cal != nil,
	})
	return nil
}

// classificationContext is best-effort for preferences: a missing settings row means
// defaults, a settings outage just drops them.
func (uc *EnrichUseCase) classificationContext(ctx context.Context, p model.EnrichPayload) (adapter.ClassificationContext, error) {
	var cctx adapter.ClassificationContext

	recent, err := uc.thoughts.ListRecentProcessed(ctx, repository.NoTX, p.OwnerID, uc.cfg.RecentContextSize+1)
	if err != nil {
		return cctx, fmt.Errorf("load recent thoughts: %w", err)
	}
	for _, t := range recent {
		if t.ID == p.ThoughtID || len(cctx.Recent) == uc.cfg.RecentContextSize {
			continue
		}
		cctx.Recent = append(cctx.Recent, adapter.RecentThought{Content: t.Text(), Category: t.Category.Main, Tags: t.Tags})
	}

	st, err := uc.settings.Get(ctx, p.OwnerID)
	switch {
	case err == nil:
		cctx.Preferences = st.Preferences
	case errors.Is(err, domain.ErrNotFound):
		cctx.Preferences = model.DefaultSettings(p.OwnerID).Preferences
	default:
		uc.log.Warn().Err(err).Str("owner_id", p.OwnerID).Msg("settings unavailable, classifying without preferences")
	}
	return cctx, nil
}
