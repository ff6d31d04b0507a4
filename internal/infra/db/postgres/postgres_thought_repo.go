package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"thought-pipeline/internal/domain"
	"thought-pipeline/internal/domain/model"
	"thought-pipeline/internal/domain/ports/repository"
)

var _ repository.ThoughtRepository = (*ThoughtRepo)(nil)

type ThoughtRepo struct {
	pool *pgxpool.Pool
}

func NewThoughtRepo(pool *pgxpool.Pool) *ThoughtRepo {
	return &ThoughtRepo{pool: pool}
}

const thoughtColumns = `id, owner_id, content, transcribed_text, audio_ref, category, tags, confidence,
  suggestions, processed, processed_at, reminder_at, event_id, event_link, event_created_at, created_at, updated_at`

func (r *ThoughtRepo) Save(ctx context.Context, tx repository.Tx, t *model.Thought) error {
	cat, err := encodeCategory(t.Category)
	if err != nil {
		return err
	}
	var evID, evLink *string
	var evAt *time.Time
	if t.Event != nil {
		evID, evLink, evAt = &t.Event.EventID, &t.Event.EventLink, &t.Event.CreatedAt
	}
	const q = `
INSERT INTO thoughts (` + thoughtColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
ON CONFLICT (id) DO UPDATE SET
  content = EXCLUDED.content,
  transcribed_text = EXCLUDED.transcribed_text,
  audio_ref = EXCLUDED.audio_ref,
  category = EXCLUDED.category,
  tags = EXCLUDED.tags,
  confidence = EXCLUDED.confidence,
  suggestions = EXCLUDED.suggestions,
  processed = EXCLUDED.processed,
  processed_at = EXCLUDED.processed_at,
  reminder_at = EXCLUDED.reminder_at,
  event_id = EXCLUDED.event_id,
  event_link = EXCLUDED.event_link,
  event_created_at = EXCLUDED.event_created_at,
  updated_at = EXCLUDED.updated_at;`
	_, err = execSQL(ctx, r.pool, tx, q,
		t.ID, t.OwnerID, t.Content, t.TranscribedText, t.AudioRef, cat, nonNil(t.Tags), t.Confidence,
		nonNil(t.Suggestions), t.Processed, t.ProcessedAt, t.ReminderAt, evID, evLink, evAt, t.CreatedAt, t.UpdatedAt)
	return err
}

func (r *ThoughtRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Thought, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+thoughtColumns+` FROM thoughts WHERE id = $1;`, id)
	if err != nil {
		return nil, err
	}
	return scanThought(row)
}

func (r *ThoughtRepo) SetTranscription(ctx context.Context, tx repository.Tx, thoughtID, text string) error {
	tag, err := execSQL(ctx, r.pool, tx,
		`UPDATE thoughts SET transcribed_text = $2, updated_at = $3 WHERE id = $1;`, thoughtID, text, time.Now())
	return affectedOne(tag.RowsAffected(), err, thoughtID)
}

// ApplyEnrichment writes every enrichment column in one statement.
func (r *ThoughtRepo) ApplyEnrichment(ctx context.Context, tx repository.Tx, thoughtID string, e model.Enrichment) error {
	var t model.Thought
	t.ApplyEnrichment(e)
	cat, err := encodeCategory(t.Category)
	if err != nil {
		return err
	}
	const q = `
UPDATE thoughts
   SET category = $2, tags = $3, confidence = $4, suggestions = $5,
       processed = TRUE, processed_at = $6, updated_at = $6
 WHERE id = $1;`
	tag, err := execSQL(ctx, r.pool, tx, q, thoughtID, cat, nonNil(t.Tags), t.Confidence, nonNil(t.Suggestions), t.ProcessedAt)
	return affectedOne(tag.RowsAffected(), err, thoughtID)
}

func (r *ThoughtRepo) SetEvent(ctx context.Context, tx repository.Tx, thoughtID string, ev model.EventRef, reminderAt *time.Time) error {
	const q = `
UPDATE thoughts
   SET event_id = $2, event_link = $3, event_created_at = $4,
       reminder_at = COALESCE($5, reminder_at), updated_at = $4
 WHERE id = $1;`
	tag, err := execSQL(ctx, r.pool, tx, q, thoughtID, ev.EventID, ev.EventLink, ev.CreatedAt, reminderAt)
	return affectedOne(tag.RowsAffected(), err, thoughtID)
}

func (r *ThoughtRepo) ListRecentProcessed(ctx context.Context, tx repository.Tx, ownerID string, limit int) ([]*model.Thought, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := queryRows(ctx, r.pool, tx, `
SELECT `+thoughtColumns+`
  FROM thoughts
 WHERE owner_id = $1 AND processed
 ORDER BY processed_at DESC
 LIMIT $2;`, ownerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Thought
	for rows.Next() {
		t, err := scanThought(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, mapPgError(rows.Err())
}

func scanThought(row pgx.Row) (*model.Thought, error) {
	var t model.Thought
	var cat []byte
	var evID, evLink *string
	var evAt *time.Time
	if err := row.Scan(
		&t.ID, &t.OwnerID, &t.Content, &t.TranscribedText, &t.AudioRef, &cat, &t.Tags, &t.Confidence,
		&t.Suggestions, &t.Processed, &t.ProcessedAt, &t.ReminderAt, &evID, &evLink, &evAt, &t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return nil, mapPgError(err)
	}
	if len(cat) > 0 {
		if err := json.Unmarshal(cat, &t.Category); err != nil {
			return nil, fmt.Errorf("decode category of %s: %w", t.ID, err)
		}
	}
	if evID != nil && *evID != "" {
		t.Event = &model.EventRef{EventID: *evID}
		if evLink != nil {
			t.Event.EventLink = *evLink
		}
		if evAt != nil {
			t.Event.CreatedAt = *evAt
		}
	}
	return &t, nil
}

func encodeCategory(c model.Category) ([]byte, error) {
	if c.IsZero() {
		return nil, nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode category: %w", err)
	}
	return b, nil
}

func affectedOne(n int64, err error, id string) error {
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("thought %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
