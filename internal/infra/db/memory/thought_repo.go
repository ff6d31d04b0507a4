package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"thought-pipeline/internal/domain"
	"thought-pipeline/internal/domain/model"
	"thought-pipeline/internal/domain/ports/repository"
)

var _ repository.ThoughtRepository = (*ThoughtRepo)(nil)

type ThoughtRepo struct {
	s *Store
}

func NewThoughtRepo(s *Store) *ThoughtRepo { return &ThoughtRepo{s: s} }

func (r *ThoughtRepo) Save(ctx context.Context, tx repository.Tx, t *model.Thought) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	prev, existed := r.s.thoughts[t.ID]
	r.s.thoughts[t.ID] = cloneThought(t)
	addUndo(tx, func() {
		if existed {
			r.s.thoughts[t.ID] = prev
		} else {
			delete(r.s.thoughts, t.ID)
		}
	})
	return nil
}

func (r *ThoughtRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Thought, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.thoughts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneThought(t), nil
}

// update applies fn to the stored thought and registers the undo step.
func (r *ThoughtRepo) update(tx repository.Tx, id string, fn func(t *model.Thought)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.thoughts[id]
	if !ok {
		return fmt.Errorf("thought %s: %w", id, domain.ErrNotFound)
	}
	prev := cloneThought(cur)
	fn(cur)
	addUndo(tx, func() { r.s.thoughts[id] = prev })
	return nil
}

func (r *ThoughtRepo) SetTranscription(ctx context.Context, tx repository.Tx, thoughtID, text string) error {
	return r.update(tx, thoughtID, func(t *model.Thought) {
		t.TranscribedText = &text
		t.UpdatedAt = time.Now()
	})
}

func (r *ThoughtRepo) ApplyEnrichment(ctx context.Context, tx repository.Tx, thoughtID string, e model.Enrichment) error {
	return r.update(tx, thoughtID, func(t *model.Thought) { t.ApplyEnrichment(e) })
}

func (r *ThoughtRepo) SetEvent(ctx context.Context, tx repository.Tx, thoughtID string, ev model.EventRef, reminderAt *time.Time) error {
	return r.update(tx, thoughtID, func(t *model.Thought) {
		t.Event = &ev
		if reminderAt != nil {
			at := *reminderAt
			t.ReminderAt = &at
		}
		t.UpdatedAt = ev.CreatedAt
	})
}

func (r *ThoughtRepo) ListRecentProcessed(ctx context.Context, tx repository.Tx, ownerID string, limit int) ([]*model.Thought, error) {
	if limit <= 0 {
		return nil, nil
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.Thought
	for _, t := range r.s.thoughts {
		if t.OwnerID == ownerID && t.Processed && t.ProcessedAt != nil {
			out = append(out, cloneThought(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProcessedAt.After(*out[j].ProcessedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
