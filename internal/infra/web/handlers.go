package web

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"thought-pipeline/internal/domain"
	"thought-pipeline/internal/domain/model"
)

type summaryResponse struct {
	OwnerID    string                    `json:"owner_id"`
	Pending    int                       `json:"pending"`
	Processing int                       `json:"processing"`
	Completed  int                       `json:"completed"`
	Failed     int                       `json:"failed"`
	ByStage    map[string]map[string]int `json:"by_stage"`
}

type itemResponse struct {
	ID          string    `json:"id"`
	ThoughtID   string    `json:"thought_id"`
	Stage       string    `json:"stage"`
	Status      string    `json:"status"`
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"max_attempts"`
	LastError   string    `json:"last_error,omitempty"`
	Result      string    `json:"result,omitempty"`
	AvailableAt time.Time `json:"available_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toItemResponse(it *model.ProcessingItem) itemResponse {
	return itemResponse{
		ID:          it.ID,
		ThoughtID:   it.ThoughtID,
		Stage:       string(it.Stage),
		Status:      string(it.Status),
		Attempts:    it.Attempts,
		MaxAttempts: it.MaxAttempts,
		LastError:   it.LastError,
		Result:      it.Result,
		AvailableAt: it.AvailableAt,
		CreatedAt:   it.CreatedAt,
		UpdatedAt:   it.UpdatedAt,
	}
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerID")
	if !claimsFrom(r.Context()).CanRead(ownerID) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	sum, err := s.status.Summary(r.Context(), ownerID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	resp := summaryResponse{
		OwnerID:    sum.OwnerID,
		Pending:    sum.Pending,
		Processing: sum.Processing,
		Completed:  sum.Completed,
		Failed:     sum.Failed,
		ByStage:    make(map[string]map[string]int, len(sum.ByStage)),
	}
	for stage, byStatus := range sum.ByStage {
		m := make(map[string]int, len(byStatus))
		for status, n := range byStatus {
			m[string(status)] = n
		}
		resp.ByStage[string(stage)] = m
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleItems(w http.ResponseWriter, r *http.Request) {
	items, err := s.status.ListByThought(r.Context(), chi.URLParam(r, "thoughtID"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	// foreign thoughts look the same as missing ones
	if len(items) == 0 || !claimsFrom(r.Context()).CanRead(items[0].OwnerID) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	out := make([]itemResponse, 0, len(items))
	for _, it := range items {
		out = append(out, toItemResponse(it))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

func (s *Server) handleReprocess(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	ownerID := claims.Subject
	if claims.Role == RoleAdmin && r.URL.Query().Get("owner_id") != "" {
		ownerID = r.URL.Query().Get("owner_id")
	}
	item, err := s.reprocess.Reprocess(r.Context(), ownerID, chi.URLParam(r, "thoughtID"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, toItemResponse(item))
}

func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNoContent):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
