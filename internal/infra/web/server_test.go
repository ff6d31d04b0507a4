package web_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thought-pipeline/internal/domain"
	"thought-pipeline/internal/domain/model"
	"thought-pipeline/internal/infra/web"
)

type fakeStatus struct {
	SummaryFunc       func(ctx context.Context, ownerID string) (*model.StatusSummary, error)
	ListByThoughtFunc func(ctx context.Context, thoughtID string) ([]*model.ProcessingItem, error)
}

func (f *fakeStatus) Summary(ctx context.Context, ownerID string) (*model.StatusSummary, error) {
	return f.SummaryFunc(ctx, ownerID)
}

func (f *fakeStatus) ListByThought(ctx context.Context, thoughtID string) ([]*model.ProcessingItem, error) {
	return f.ListByThoughtFunc(ctx, thoughtID)
}

type fakeReprocessor struct {
	gotOwner string
	err      error
}

func (f *fakeReprocessor) Reprocess(ctx context.Context, ownerID, thoughtID string) (*model.ProcessingItem, error) {
	f.gotOwner = ownerID
	if f.err != nil {
		return nil, f.err
	}
	return &model.ProcessingItem{ID: "it-9", ThoughtID: thoughtID, OwnerID: ownerID, Stage: model.StageEnrich, Status: model.ItemStatusPending}, nil
}

func newStatus() *fakeStatus {
	return &fakeStatus{
		SummaryFunc: func(ctx context.Context, ownerID string) (*model.StatusSummary, error) {
			s := model.NewStatusSummary(ownerID)
			s.Add(model.StageEnrich, model.ItemStatusCompleted, 2)
			s.Add(model.StageCalendar, model.ItemStatusFailed, 1)
			return s, nil
		},
		ListByThoughtFunc: func(ctx context.Context, thoughtID string) ([]*model.ProcessingItem, error) {
			if thoughtID != "t-1" {
				return nil, nil
			}
			return []*model.ProcessingItem{
				{ID: "a", ThoughtID: "t-1", OwnerID: "alice", Stage: model.StageEnrich, Status: model.ItemStatusCompleted, Attempts: 0, MaxAttempts: 3, Result: "calendar_queued"},
				{ID: "b", ThoughtID: "t-1", OwnerID: "alice", Stage: model.StageCalendar, Status: model.ItemStatusPending, MaxAttempts: 3},
			}, nil
		},
	}
}

func do(t *testing.T, h http.Handler, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func mint(t *testing.T, a *web.AuthManager, sub, role string) string {
	t.Helper()
	tok, err := a.Mint(sub, role)
	require.NoError(t, err)
	return tok
}

func TestServer_Routes(t *testing.T) {
	logger := zerolog.Nop()
	auth := web.NewAuthManager("s3cret", time.Minute)
	rp := &fakeReprocessor{}
	h := web.NewServer(newStatus(), rp, auth, &logger).Router()
	alice := mint(t, auth, "alice", "")
	admin := mint(t, auth, "ops", web.RoleAdmin)

	t.Run("should serve health and metrics without auth", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health", "").Code)
		assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/metrics", "").Code)
	})

	t.Run("should reject missing and forged tokens", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/api/v1/pipeline/summary/alice", "").Code)
		forged := mint(t, web.NewAuthManager("other", time.Minute), "alice", web.RoleAdmin)
		assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/api/v1/pipeline/summary/alice", forged).Code)
	})

	t.Run("should return the owner's summary", func(t *testing.T) {
		// Act
		rec := do(t, h, http.MethodGet, "/api/v1/pipeline/summary/alice", alice)

		// Assert
		require.Equal(t, http.StatusOK, rec.Code)
		var body struct {
			OwnerID   string                    `json:"owner_id"`
			Completed int                       `json:"completed"`
			Failed    int                       `json:"failed"`
			ByStage   map[string]map[string]int `json:"by_stage"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "alice", body.OwnerID)
		assert.Equal(t, 2, body.Completed)
		assert.Equal(t, 1, body.Failed)
		assert.Equal(t, 1, body.ByStage["calendar"]["failed"])
	})

	t.Run("should forbid reading another owner unless admin", func(t *testing.T) {
		assert.Equal(t, http.StatusForbidden, do(t, h, http.MethodGet, "/api/v1/pipeline/summary/bob", alice).Code)
		assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/v1/pipeline/summary/bob", admin).Code)
	})

	t.Run("should list items and hide foreign thoughts", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/v1/pipeline/thoughts/t-1/items", alice)
		require.Equal(t, http.StatusOK, rec.Code)
		var body struct {
			Items []struct {
				Stage  string `json:"stage"`
				Status string `json:"status"`
				Result string `json:"result"`
			} `json:"items"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Len(t, body.Items, 2)
		assert.Equal(t, "calendar_queued", body.Items[0].Result)

		bob := mint(t, auth, "bob", "")
		assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/v1/pipeline/thoughts/t-1/items", bob).Code)
		assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/v1/pipeline/thoughts/nope/items", alice).Code)
	})

	t.Run("should reprocess as the token subject", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/api/v1/pipeline/thoughts/t-1/reprocess", alice)
		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Equal(t, "alice", rp.gotOwner)

		rec = do(t, h, http.MethodPost, "/api/v1/pipeline/thoughts/t-1/reprocess?owner_id=bob", admin)
		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Equal(t, "bob", rp.gotOwner)
	})

	t.Run("should map domain errors to status codes", func(t *testing.T) {
		rp.err = domain.ErrNotFound
		assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/api/v1/pipeline/thoughts/t-1/reprocess", alice).Code)
		rp.err = domain.ErrNoContent
		assert.Equal(t, http.StatusUnprocessableEntity, do(t, h, http.MethodPost, "/api/v1/pipeline/thoughts/t-1/reprocess", alice).Code)
		rp.err = errors.New("db down")
		assert.Equal(t, http.StatusInternalServerError, do(t, h, http.MethodPost, "/api/v1/pipeline/thoughts/t-1/reprocess", alice).Code)
		rp.err = nil
	})
}

func TestServer_ClosedWithoutSecret(t *testing.T) {
	logger := zerolog.Nop()
	h := web.NewServer(newStatus(), nil, web.NewAuthManager("", 0), &logger).Router()

	t.Run("should refuse api calls and leave reprocess unmounted", func(t *testing.T) {
		assert.Equal(t, http.StatusForbidden, do(t, h, http.MethodGet, "/api/v1/pipeline/summary/alice", "x").Code)
		assert.NotEqual(t, http.StatusAccepted, do(t, h, http.MethodPost, "/api/v1/pipeline/thoughts/t-1/reprocess", "x").Code)
	})
}
