package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"quiz-attempt-service/internal/domain"
)

const userHeader = "X-User-ID"

type submitRequest struct {
	Responses []domain.ResponseInput `json:"responses" validate:"dive"`
}

type updateAttemptRequest struct {
	Status       string               `json:"status" validate:"required"`
	ScoreDetails *domain.ScoreDetails `json:"scoreDetails"`
}

func userID(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.Header.Get(userHeader))
	if id == "" {
		return "", domain.InvalidState("userId", "%s header required", userHeader)
	}
	return id, nil
}

func (h *Handler) createOrResumeAttempt(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	view, err := h.svc.Attempts.CreateOrResume(r.Context(), chi.URLParam(r, "quizID"), user)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) listAttempts(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	views, err := h.svc.Attempts.ListAttempts(r.Context(), chi.URLParam(r, "quizID"), user)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) getAttempt(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Attempts.GetAttempt(r.Context(), chi.URLParam(r, "attemptID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) updateAttempt(w http.ResponseWriter, r *http.Request) {
	var req updateAttemptRequest
	if err := h.decode(r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}
	view, err := h.svc.Attempts.UpdateAttempt(r.Context(), chi.URLParam(r, "attemptID"), req.Status, req.ScoreDetails)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) listResponses(w http.ResponseWriter, r *http.Request) {
	responses, err := h.svc.Submissions.ListResponses(r.Context(), chi.URLParam(r, "attemptID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if responses == nil {
		responses = []domain.UserResponse{}
	}
	writeJSON(w, http.StatusOK, responses)
}

func (h *Handler) recordResponse(w http.ResponseWriter, r *http.Request) {
	var req domain.ResponseInput
	if err := h.decode(r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}
	response, err := h.svc.Submissions.RecordResponse(r.Context(), chi.URLParam(r, "attemptID"), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, response)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	h.submitAs(w, r, domain.SubmissionManual)
}

func (h *Handler) timeout(w http.ResponseWriter, r *http.Request) {
	h.submitAs(w, r, domain.SubmissionAutoTimeout)
}

func (h *Handler) submitAs(w http.ResponseWriter, r *http.Request, kind domain.SubmissionType) {
	var req submitRequest
	if err := h.decode(r, &req, true); err != nil {
		h.writeError(w, r, err)
		return
	}
	result, err := h.svc.Submissions.Submit(r.Context(), chi.URLParam(r, "attemptID"), req.Responses, kind)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
