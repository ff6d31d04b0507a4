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

var _ repository.ProcessingItemRepository = (*ProcessingItemRepo)(nil)

type ProcessingItemRepo struct {
	s *Store
}

func NewProcessingItemRepo(s *Store) *ProcessingItemRepo { return &ProcessingItemRepo{s: s} }

func (r *ProcessingItemRepo) CreateOrGetPending(ctx context.Context, tx repository.Tx, item *model.ProcessingItem) (*model.ProcessingItem, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var completed *model.ProcessingItem
	for _, id := range r.s.order {
		it := r.s.items[id]
		if it.ThoughtID != item.ThoughtID || it.Stage != item.Stage {
			continue
		}
		switch it.Status {
		case model.ItemStatusPending, model.ItemStatusProcessing:
			return cloneItem(it), false, nil
		case model.ItemStatusCompleted:
			completed = it
		}
	}
	if completed != nil {
		return cloneItem(completed), false, nil
	}
	if _, dup := r.s.items[item.ID]; dup {
		return nil, false, fmt.Errorf("item %s: %w", item.ID, domain.ErrAlreadyExists)
	}

	stored := cloneItem(item)
	r.s.items[stored.ID] = stored
	r.s.order = append(r.s.order, stored.ID)
	r.s.record(stored, "")
	r.s.hideUntilCommit(tx, stored.ID)
	addUndo(tx, func() {
		delete(r.s.items, stored.ID)
		for i, id := range r.s.order {
			if id == stored.ID {
				r.s.order = append(r.s.order[:i], r.s.order[i+1:]...)
				break
			}
		}
	})
	return cloneItem(stored), true, nil
}

func (r *ProcessingItemRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.ProcessingItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	it, ok := r.s.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneItem(it), nil
}

func (r *ProcessingItemRepo) ListByThought(ctx context.Context, tx repository.Tx, thoughtID string) ([]*model.ProcessingItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.ProcessingItem
	for _, id := range r.s.order {
		if it := r.s.items[id]; it.ThoughtID == thoughtID {
			out = append(out, cloneItem(it))
		}
	}
	return out, nil
}

func (r *ProcessingItemRepo) ClaimNext(ctx context.Context, stage model.Stage, now time.Time) (*model.ProcessingItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var ready []*model.ProcessingItem
	for _, it := range r.s.items {
		if _, open := r.s.uncommitted[it.ID]; open {
			continue
		}
		if it.Stage == stage && it.Status == model.ItemStatusPending && !it.AvailableAt.After(now) {
			ready = append(ready, it)
		}
	}
	if len(ready) == 0 {
		return nil, domain.ErrNotFound
	}
	sort.Slice(ready, func(i, j int) bool {
		if !ready[i].AvailableAt.Equal(ready[j].AvailableAt) {
			return ready[i].AvailableAt.Before(ready[j].AvailableAt)
		}
		return ready[i].CreatedAt.Before(ready[j].CreatedAt)
	})
	it := ready[0]
	if err := it.Claim(now); err != nil {
		return nil, err
	}
	r.s.record(it, model.ItemStatusPending)
	return cloneItem(it), nil
}

func (r *ProcessingItemRepo) Transition(ctx context.Context, tx repository.Tx, item *model.ProcessingItem, expected model.ItemStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.items[item.ID]
	if !ok {
		return fmt.Errorf("transition %s: %w", item.ID, domain.ErrNotFound)
	}
	if cur.Status != expected {
		return fmt.Errorf("transition %s from %s: %w", item.ID, expected, domain.ErrStaleTransition)
	}
	prev := cloneItem(cur)
	cur.Status = item.Status
	cur.Attempts = item.Attempts
	cur.LastError = item.LastError
	cur.Result = item.Result
	cur.AvailableAt = item.AvailableAt
	cur.UpdatedAt = item.UpdatedAt
	r.s.record(cur, expected)
	addUndo(tx, func() { r.s.items[prev.ID] = prev })
	return nil
}

func (r *ProcessingItemRepo) ListStale(ctx context.Context, olderThan time.Time, limit int) ([]*model.ProcessingItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.ProcessingItem
	for _, id := range r.s.order {
		it := r.s.items[id]
		if it.Status == model.ItemStatusProcessing && it.UpdatedAt.Before(olderThan) {
			out = append(out, cloneItem(it))
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *ProcessingItemRepo) Summary(ctx context.Context, ownerID string) (*model.StatusSummary, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	s := model.NewStatusSummary(ownerID)
	for _, it := range r.s.items {
		if it.OwnerID == ownerID {
			s.Add(it.Stage, it.Status, 1)
		}
	}
	return s, nil
}

func (r *ProcessingItemRepo) CountByStageStatus(ctx context.Context) (map[model.Stage]map[model.ItemStatus]int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make(map[model.Stage]map[model.ItemStatus]int)
	for _, it := range r.s.items {
		if out[it.Stage] == nil {
			out[it.Stage] = make(map[model.ItemStatus]int)
		}
		out[it.Stage][it.Status]++
	}
	return out, nil
}
