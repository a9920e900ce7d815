package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"quiz-attempt-service/internal/domain"
)

type positionRequest struct {
	Position *int `json:"position" validate:"required"`
}

func (h *Handler) listQuestions(w http.ResponseWriter, r *http.Request) {
	questions, err := h.svc.Questions.ListQuestions(r.Context(), chi.URLParam(r, "quizID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if questions == nil {
		questions = []domain.QuizQuestion{}
	}
	writeJSON(w, http.StatusOK, questions)
}

func (h *Handler) appendQuestion(w http.ResponseWriter, r *http.Request) {
	var req domain.QuestionInput
	if err := h.decode(r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}
	question, err := h.svc.Questions.AppendQuestion(r.Context(), chi.URLParam(r, "quizID"), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, question)
}

func (h *Handler) getQuestion(w http.ResponseWriter, r *http.Request) {
	question, err := h.svc.Questions.GetQuestion(r.Context(), chi.URLParam(r, "questionID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, question)
}

func (h *Handler) repositionQuestion(w http.ResponseWriter, r *http.Request) {
	var req positionRequest
	if err := h.decode(r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}
	question, err := h.svc.Questions.RepositionQuestion(r.Context(), chi.URLParam(r, "questionID"), *req.Position)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, question)
}

func (h *Handler) deleteQuestion(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Questions.DeleteQuestion(r.Context(), chi.URLParam(r, "questionID")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
