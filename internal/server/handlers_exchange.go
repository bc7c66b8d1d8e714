package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/coderunner-dev/agentcore/pkg/types"
)

// symbolTargetInput is the wire shape callers use to address a symbol.
type symbolTargetInput struct {
	Name       string  `json:"name"`
	FsFilePath *string `json:"fsFilePath,omitempty"`
}

func (t symbolTargetInput) toIdentifier() types.SymbolIdentifier {
	return types.SymbolIdentifier{Name: t.Name, FsFilePath: t.FsFilePath}
}

// sessionChat handles POST /session/{sessionID}/chat
func (s *Server) sessionChat(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "message is required")
		return
	}

	ex, err := s.exchangeService.AppendHumanMessage(r.Context(), sessionID, req.Message)
	if err != nil && ex == nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ex)
}

// sessionPlan handles POST /session/{sessionID}/plan
func (s *Server) sessionPlan(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Query == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "query is required")
		return
	}

	// Step-level deltas (plan_title_added/plan_description_updated/
	// plan_complete_added) stream live over the session's /event SSE
	// connection; this handler only returns the final exchange.
	ex, err := s.exchangeService.AppendPlan(r.Context(), sessionID, req.Query, nil)
	if err != nil && ex == nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ex)
}

// sessionAgenticEdit handles POST /session/{sessionID}/edit
func (s *Server) sessionAgenticEdit(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req struct {
		Target     symbolTargetInput `json:"target"`
		Query      string            `json:"query"`
		FullSymbol bool              `json:"fullSymbol"`
		BigSearch  bool              `json:"bigSearch"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Target.Name == "" || req.Query == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "target and query are required")
		return
	}

	ex, err := s.exchangeService.AppendEdit(r.Context(), sessionID, req.Target.toIdentifier(), req.Query, req.FullSymbol, req.BigSearch)
	if err != nil && ex == nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ex)
}

// sessionAnchoredEdit handles POST /session/{sessionID}/anchored-edit
func (s *Server) sessionAnchoredEdit(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req struct {
		Target symbolTargetInput `json:"target"`
		Query  string            `json:"query"`
		Anchor types.Range       `json:"anchor"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Target.Name == "" || req.Query == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "target and query are required")
		return
	}

	ex, err := s.exchangeService.AppendAnchoredEdit(r.Context(), sessionID, req.Target.toIdentifier(), req.Query, &req.Anchor)
	if err != nil && ex == nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ex)
}

// reactToFeedback handles POST /session/{sessionID}/feedback/{exchangeID}
func (s *Server) reactToFeedback(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	exchangeID := chi.URLParam(r, "exchangeID")

	var req struct {
		Target    symbolTargetInput `json:"target"`
		Feedback  string            `json:"feedback"`
		Accepted  bool              `json:"accepted"`
		StepIndex *int              `json:"stepIndex,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")
		return
	}
	if req.StepIndex == nil && req.Target.Name == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "target is required")
		return
	}

	ex, err := s.exchangeService.ReactToFeedback(r.Context(), sessionID, exchangeID, req.Target.toIdentifier(), req.Feedback, req.Accepted, req.StepIndex)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ex)
}

// planRevert handles POST /session/{sessionID}/plan/revert
func (s *Server) planRevert(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req struct {
		PlanID string `json:"planId"`
		Steps  int    `json:"steps"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PlanID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "planId is required")
		return
	}

	outcome, err := s.exchangeService.PerformPlanRevert(r.Context(), sessionID, req.PlanID, req.Steps)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

// undoUntilExchange handles POST /session/{sessionID}/undo/{exchangeID}
func (s *Server) undoUntilExchange(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	exchangeID := chi.URLParam(r, "exchangeID")

	var req struct {
		ExchangeIDs []string `json:"exchangeIds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")
		return
	}

	if err := s.exchangeService.UndoUntilExchange(r.Context(), sessionID, req.ExchangeIDs, exchangeID); err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// hotStreak handles POST /session/{sessionID}/hot-streak
func (s *Server) hotStreak(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "message is required")
		return
	}

	window, err := s.exchangeService.HotStreakMessage(r.Context(), sessionID, req.Message)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"window": window})
}
