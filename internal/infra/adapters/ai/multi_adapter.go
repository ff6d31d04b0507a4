package ai

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"thought-pipeline/internal/domain/model"
	"thought-pipeline/internal/domain/ports/adapter"
)

// Provider is a model backend that can both classify and detect events.
type Provider interface {
	adapter.Classifier
	adapter.EventDetector
}

var _ Provider = (*MultiAdapter)(nil)

// MultiAdapter tries the default provider first and falls through the rest in order on
// any error. The last error is returned when every provider failed.
type MultiAdapter struct {
	order      []string
	byProvider map[string]Provider
	log        *zerolog.Logger
}

// NewMultiAdapter orders providers with defaultProvider first, then the rest by name.
func NewMultiAdapter(defaultProvider string, byProvider map[string]Provider, logger *zerolog.Logger) *MultiAdapter {
	def := strings.ToLower(defaultProvider)
	order := make([]string, 0, len(byProvider))
	if _, ok := byProvider[def]; ok {
		order = append(order, def)
	}
	rest := make([]string, 0, len(byProvider))
	for name, p := range byProvider {
		if name != def && p != nil {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	l := logger.With().Str("component", "ai_multi").Logger()
	return &MultiAdapter{order: append(order, rest...), byProvider: byProvider, log: &l}
}

func (m *MultiAdapter) Providers() []string { return append([]string(nil), m.order...) }

func (m *MultiAdapter) Categorize(ctx context.Context, content string, cctx adapter.ClassificationContext) (adapter.Classification, error) {
	var lastErr error
	for _, name := range m.order {
		out, err := m.byProvider[name].Categorize(ctx, content, cctx)
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return adapter.Classification{}, err
		}
		m.log.Warn().Err(err).Str("provider", name).Msg("classification failed, trying next provider")
		lastErr = err
	}
	return adapter.Classification{}, m.exhausted(lastErr)
}

func (m *MultiAdapter) DetectEvent(ctx context.Context, content string, ref adapter.EventReference) (model.CalendarEventSuggestion, error) {
	var lastErr error
	for _, name := range m.order {
		out, err := m.byProvider[name].DetectEvent(ctx, content, ref)
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return model.CalendarEventSuggestion{}, err
		}
		m.log.Warn().Err(err).Str("provider", name).Msg("event detection failed, trying next provider")
		lastErr = err
	}
	return model.CalendarEventSuggestion{}, m.exhausted(lastErr)
}

func (m *MultiAdapter) exhausted(last error) error {
	if last == nil {
		return errors.New("ai: no providers configured")
	}
	return fmt.Errorf("ai: all %d providers failed: %w", len(m.order), last)
}
