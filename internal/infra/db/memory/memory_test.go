package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thought-pipeline/internal/domain"
	"thought-pipeline/internal/domain/model"
	"thought-pipeline/internal/domain/ports/repository"
)

func newItem(t *testing.T, thoughtID string, stage model.Stage) *model.ProcessingItem {
	t.Helper()
	it, err := model.NewProcessingItem(thoughtID, "owner-1", stage, []byte(`{}`), 3)
	require.NoError(t, err)
	return it
}

func TestProcessingItemRepo_ConcurrentAdmissionIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := NewProcessingItemRepo(NewStore())

	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	ids := map[string]struct{}{}
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stored, ok, err := repo.CreateOrGetPending(ctx, nil, newItem(t, "t-1", model.StageEnrich))
			assert.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			if ok {
				created++
			}
			ids[stored.ID] = struct{}{}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Len(t, ids, 1)
	items, _ := repo.ListByThought(ctx, nil, "t-1")
	assert.Len(t, items, 1)
}

func TestProcessingItemRepo_ReadmitAfterTerminal(t *testing.T) {
	ctx := context.Background()
	repo := NewProcessingItemRepo(NewStore())
	now := time.Now().Add(time.Second) // claims run slightly in the future of every AvailableAt

	first, _, _ := repo.CreateOrGetPending(ctx, nil, newItem(t, "t-1", model.StageCalendar))
	claimed, err := repo.ClaimNext(ctx, model.StageCalendar, now)
	require.NoError(t, err)
	require.Equal(t, first.ID, claimed.ID)
	require.NoError(t, claimed.Fail("auth expired", false, 0, now))
	require.NoError(t, repo.Transition(ctx, nil, claimed, model.ItemStatusProcessing))

	// a failed lineage may be retried by a fresh admission
	second, ok, err := repo.CreateOrGetPending(ctx, nil, newItem(t, "t-1", model.StageCalendar))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotEqual(t, first.ID, second.ID)

	claimed, _ = repo.ClaimNext(ctx, model.StageCalendar, now)
	require.NoError(t, claimed.Complete(model.ResultEventCreated, now))
	require.NoError(t, repo.Transition(ctx, nil, claimed, model.ItemStatusProcessing))

	// a completed pair is never re-run
	third, ok, err := repo.CreateOrGetPending(ctx, nil, newItem(t, "t-1", model.StageCalendar))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, second.ID, third.ID)
	assert.Equal(t, model.ItemStatusCompleted, third.Status)
}

func TestProcessingItemRepo_ClaimRespectsAvailability(t *testing.T) {
	ctx := context.Background()
	repo := NewProcessingItemRepo(NewStore())
	now := time.Now().Add(time.Second)

	_, _, _ = repo.CreateOrGetPending(ctx, nil, newItem(t, "t-1", model.StageEnrich))
	it, err := repo.ClaimNext(ctx, model.StageEnrich, now)
	require.NoError(t, err)

	_, err = repo.ClaimNext(ctx, model.StageEnrich, now)
	assert.ErrorIs(t, err, domain.ErrNotFound, "a processing item must not be claimed twice")

	require.NoError(t, it.Fail("timeout", true, time.Minute, now))
	require.NoError(t, repo.Transition(ctx, nil, it, model.ItemStatusProcessing))

	_, err = repo.ClaimNext(ctx, model.StageEnrich, now)
	assert.ErrorIs(t, err, domain.ErrNotFound, "backoff hides the item")

	again, err := repo.ClaimNext(ctx, model.StageEnrich, now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, again.Attempts)

	_, err = repo.ClaimNext(ctx, model.StageTranscribe, now.Add(time.Hour))
	assert.ErrorIs(t, err, domain.ErrNotFound, "claims are per stage")
}

func TestProcessingItemRepo_TransitionIsCompareAndSet(t *testing.T) {
	ctx := context.Background()
	repo := NewProcessingItemRepo(NewStore())
	now := time.Now().Add(time.Second)

	_, _, _ = repo.CreateOrGetPending(ctx, nil, newItem(t, "t-1", model.StageEnrich))
	it, _ := repo.ClaimNext(ctx, model.StageEnrich, now)
	dup := *it

	require.NoError(t, it.Complete(model.ResultDone, now))
	require.NoError(t, repo.Transition(ctx, nil, it, model.ItemStatusProcessing))

	require.NoError(t, dup.Fail("late failure", true, 0, now))
	err := repo.Transition(ctx, nil, &dup, model.ItemStatusProcessing)
	assert.ErrorIs(t, err, domain.ErrStaleTransition)

	stored, _ := repo.FindByID(ctx, nil, it.ID)
	assert.Equal(t, model.ItemStatusCompleted, stored.Status, "terminal status never regresses")
}

func TestTxManager_RollsBackEveryWrite(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	items := NewProcessingItemRepo(s)
	thoughts := NewThoughtRepo(s)
	tm := NewTxManager(s)
	now := time.Now().Add(time.Second)

	th, _ := model.NewThought("t-1", "owner-1", "lunch with sam friday", nil)
	require.NoError(t, thoughts.Save(ctx, nil, th))
	_, _, _ = items.CreateOrGetPending(ctx, nil, newItem(t, "t-1", model.StageEnrich))
	claimed, _ := items.ClaimNext(ctx, model.StageEnrich, now)

	boom := errors.New("boom")
	err := tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		require.NoError(t, thoughts.ApplyEnrichment(ctx, tx, "t-1", model.Enrichment{Category: model.NewCategory("event", ""), Confidence: 0.9, ProcessedAt: now}))
		_, _, err := items.CreateOrGetPending(ctx, tx, newItem(t, "t-1", model.StageCalendar))
		require.NoError(t, err)
		c := *claimed
		require.NoError(t, c.Complete(model.ResultCalendarQueued, now))
		require.NoError(t, items.Transition(ctx, tx, &c, model.ItemStatusProcessing))
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, _ := thoughts.FindByID(ctx, nil, "t-1")
	assert.False(t, got.Processed)
	list, _ := items.ListByThought(ctx, nil, "t-1")
	require.Len(t, list, 1)
	assert.Equal(t, model.ItemStatusProcessing, list[0].Status)
}

func TestThoughtRepo_ListRecentProcessed(t *testing.T) {
	ctx := context.Background()
	repo := NewThoughtRepo(NewStore())
	base := time.Now()
	for i, id := range []string{"a", "b", "c"} {
		th, _ := model.NewThought(id, "owner-1", "note "+id, nil)
		_ = repo.Save(ctx, nil, th)
		_ = repo.ApplyEnrichment(ctx, nil, id, model.Enrichment{Category: model.NewCategory("note", ""), ProcessedAt: base.Add(time.Duration(i) * time.Minute)})
	}
	other, _ := model.NewThought("z", "owner-2", "not mine", nil)
	_ = repo.Save(ctx, nil, other)

	recent, err := repo.ListRecentProcessed(ctx, nil, "owner-1", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "c", recent[0].ID)
	assert.Equal(t, "b", recent[1].ID)
}

func TestStore_History(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	repo := NewProcessingItemRepo(s)
	now := time.Now().Add(time.Second)
	_, _, _ = repo.CreateOrGetPending(ctx, nil, newItem(t, "t-1", model.StageTranscribe))
	it, _ := repo.ClaimNext(ctx, model.StageTranscribe, now)
	_ = it.Complete(model.ResultDone, now)
	_ = repo.Transition(ctx, nil, it, model.ItemStatusProcessing)

	h := s.History("t-1")
	require.Len(t, h, 3)
	assert.Equal(t, []model.ItemStatus{model.ItemStatusPending, model.ItemStatusProcessing, model.ItemStatusCompleted},
		[]model.ItemStatus{h[0].To, h[1].To, h[2].To})
}

func TestTxManager_HidesUncommittedItems(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	items := NewProcessingItemRepo(s)
	tm := NewTxManager(s)
	now := time.Now().Add(time.Second)

	t.Run("should keep an item inserted by a rolled back tx away from workers", func(t *testing.T) {
		boom := errors.New("boom")
		err := tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			_, created, err := items.CreateOrGetPending(ctx, tx, newItem(t, "t-1", model.StageEnrich))
			require.NoError(t, err)
			require.True(t, created)

			_, err = items.ClaimNext(ctx, model.StageEnrich, now)
			assert.ErrorIs(t, err, domain.ErrNotFound, "not claimable before commit")
			return boom
		})
		require.ErrorIs(t, err, boom)

		list, _ := items.ListByThought(ctx, nil, "t-1")
		assert.Empty(t, list)
		_, err = items.ClaimNext(ctx, model.StageEnrich, now)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("should release the item on commit", func(t *testing.T) {
		err := tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			_, _, err := items.CreateOrGetPending(ctx, tx, newItem(t, "t-2", model.StageEnrich))
			return err
		})
		require.NoError(t, err)

		claimed, err := items.ClaimNext(ctx, model.StageEnrich, now)
		require.NoError(t, err)
		assert.Equal(t, "t-2", claimed.ThoughtID)
	})
}
