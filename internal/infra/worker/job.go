package worker

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"thought-pipeline/internal/domain"
	"thought-pipeline/internal/domain/model"
	"thought-pipeline/internal/domain/ports/adapter"
	"thought-pipeline/internal/domain/ports/repository"
	"thought-pipeline/internal/domain/ports/usecase"
)

var _ adapter.Job = (*Job)(nil)

type Job struct {
	item      *model.ProcessingItem
	status    usecase.StatusStore
	completed *model.ProcessingItem
}

func (j *Job) Item() *model.ProcessingItem { return j.item }

// Decode unmarshals the payload. A payload that cannot be decoded never will be,
// so the error is permanent.
func (j *Job) Decode(v any) error {
	if len(j.item.Payload) == 0 {
		return domain.Permanent(fmt.Errorf("item %s: empty payload", j.item.ID))
	}
	if err := json.Unmarshal(j.item.Payload, v); err != nil {
		return domain.Permanent(fmt.Errorf("item %s: decode payload: %w", j.item.ID, err))
	}
	return nil
}

func (j *Job) Complete(ctx context.Context, tx repository.Tx, result string) error {
	done, err := j.status.MarkCompleted(ctx, tx, j.item, result)
	if err != nil {
		return err
	}
	j.completed = done
	return nil
}

func encodePayload(payload any) ([]byte, error) {
	switch p := payload.(type) {
	case nil:
		return nil, nil
	case []byte:
		return p, nil
	case json.RawMessage:
		return p, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return b, nil
}
