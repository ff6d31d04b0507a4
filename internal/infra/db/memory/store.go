// Package memory is an in-process implementation of the pipeline repositories, used by
// dev mode, the demo binary and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"thought-pipeline/internal/domain/model"
	"thought-pipeline/internal/domain/ports/repository"
)

// Transition is one recorded status change of a processing item.
type Transition struct {
	ItemID    string
	ThoughtID string
	Stage     model.Stage
	From      model.ItemStatus // empty on creation
	To        model.ItemStatus
	At        time.Time
}

// Store holds every table. Repositories share one Store.
type Store struct {
	mu       sync.Mutex
	items    map[string]*model.ProcessingItem
	order    []string // insertion order of items
	thoughts map[string]*model.Thought
	settings map[string]*model.UserIntegrationSettings
	history  []Transition

	// uncommitted holds items inserted by an open transaction; workers cannot claim them.
	uncommitted map[string]struct{}

	txMu sync.Mutex
}

func NewStore() *Store {
	return &Store{
		items:       make(map[string]*model.ProcessingItem),
		thoughts:    make(map[string]*model.Thought),
		settings:    make(map[string]*model.UserIntegrationSettings),
		uncommitted: make(map[string]struct{}),
	}
}

// History returns the recorded transitions for a thought in order.
func (s *Store) History(thoughtID string) []Transition {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Transition
	for _, t := range s.history {
		if t.ThoughtID == thoughtID {
			out = append(out, t)
		}
	}
	return out
}

func (s *Store) record(it *model.ProcessingItem, from model.ItemStatus) {
	s.history = append(s.history, Transition{
		ItemID: it.ID, ThoughtID: it.ThoughtID, Stage: it.Stage, From: from, To: it.Status, At: it.UpdatedAt,
	})
}

// Tx collects undo steps; a failed WithTx replays them newest first. Commit steps run
// once fn returns nil.
type Tx struct {
	undo   []func()
	commit []func()
}

func (t *Tx) onRollback(f func()) { t.undo = append(t.undo, f) }
func (t *Tx) onCommit(f func())   { t.commit = append(t.commit, f) }

// addUndo registers f when tx is a memory transaction. Caller holds s.mu.
func addUndo(tx repository.Tx, f func()) {
	if t, ok := tx.(*Tx); ok && t != nil {
		t.onRollback(f)
	}
}

// hideUntilCommit keeps item id out of ClaimNext while tx is open. Caller holds s.mu.
func (s *Store) hideUntilCommit(tx repository.Tx, id string) {
	t, ok := tx.(*Tx)
	if !ok || t == nil {
		return
	}
	s.uncommitted[id] = struct{}{}
	t.onCommit(func() { delete(s.uncommitted, id) })
	t.onRollback(func() { delete(s.uncommitted, id) })
}

var _ repository.TransactionManager = (*TxManager)(nil)

// TxManager serializes transactions against each other. Single statements outside a
// transaction stay atomic through the store mutex.
type TxManager struct {
	store *Store
}

func NewTxManager(s *Store) *TxManager { return &TxManager{store: s} }

func (m *TxManager) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	m.store.txMu.Lock()
	defer m.store.txMu.Unlock()

	tx := &Tx{}
	err := ctx.Err()
	if err == nil {
		err = fn(ctx, tx)
	}
	if err != nil {
		m.store.mu.Lock()
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		m.store.mu.Unlock()
		return err
	}
	m.store.mu.Lock()
	for _, f := range tx.commit {
		f()
	}
	m.store.mu.Unlock()
	return nil
}

func cloneItem(it *model.ProcessingItem) *model.ProcessingItem {
	c := *it
	if it.Payload != nil {
		c.Payload = append([]byte(nil), it.Payload...)
	}
	return &c
}

func cloneThought(t *model.Thought) *model.Thought {
	c := *t
	c.Tags = append([]string(nil), t.Tags...)
	c.Suggestions = append([]string(nil), t.Suggestions...)
	if t.TranscribedText != nil {
		v := *t.TranscribedText
		c.TranscribedText = &v
	}
	if t.AudioRef != nil {
		v := *t.AudioRef
		c.AudioRef = &v
	}
	if t.Confidence != nil {
		v := *t.Confidence
		c.Confidence = &v
	}
	if t.ProcessedAt != nil {
		v := *t.ProcessedAt
		c.ProcessedAt = &v
	}
	if t.ReminderAt != nil {
		v := *t.ReminderAt
		c.ReminderAt = &v
	}
	if t.Event != nil {
		v := *t.Event
		c.Event = &v
	}
	return &c
}
