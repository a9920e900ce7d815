package http

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/logger"
)

// WSHandler runs a realtime attempt session: start or resume on connect, incremental
// answers, manual submit, and a server-side timer that times the attempt out.
type WSHandler struct {
	svc      Services
	log      *zap.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(svc Services, log *zap.Logger) *WSHandler {
	log = logger.OrNop(log)
	return &WSHandler{
		svc: svc,
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func errorMessage(err error) outboundMessage {
	return outboundMessage{Type: "error", Payload: errorPayload{Message: err.Error(), Field: domain.FieldOf(err)}}
}

// ServeWS upgrades HTTP requests to websockets and wires them into the attempt use cases.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	quizID := r.URL.Query().Get("quizId")
	userID := strings.TrimSpace(r.Header.Get(userHeader))
	if userID == "" {
		// browsers cannot set headers on the upgrade request
		userID = strings.TrimSpace(r.URL.Query().Get("userId"))
	}
	if quizID == "" || userID == "" {
		http.Error(w, "missing quizId or "+userHeader, http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx := r.Context()
	log := h.log.With(zap.String("quizId", quizID), zap.String("userId", userID))

	quiz, err := h.svc.Catalog.GetQuiz(ctx, quizID)
	if err != nil {
		_ = conn.WriteJSON(errorMessage(err))
		return
	}
	attempt, err := h.svc.Attempts.CreateOrResume(ctx, quizID, userID)
	if err != nil {
		_ = conn.WriteJSON(errorMessage(err))
		return
	}
	log = log.With(zap.String("attemptId", attempt.AttemptID))

	send := make(chan outboundMessage, 16)
	closeSignals := make(chan struct{})
	submitted := make(chan struct{})
	writerDone := make(chan struct{})
	timerDone := make(chan struct{})

	// single writer; gorilla connections do not support concurrent writes
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Debug("ws write error", zap.Error(err))
				return
			}
		}
	}()

	reply := func(msg outboundMessage) {
		select {
		case send <- msg:
		case <-writerDone:
		}
	}
	emit := func(msg outboundMessage) {
		select {
		case send <- msg:
		case <-writerDone:
		case <-closeSignals:
		}
	}

	go func() {
		defer close(timerDone)
		if quiz.TimeLimit <= 0 {
			return
		}
		timer := time.NewTimer(time.Until(attempt.StartedAt.Add(quiz.TimeLimit)))
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-submitted:
			return
		case <-closeSignals:
			return
		}
		result, err := h.svc.Submissions.SubmitOnTimeout(ctx, attempt.AttemptID, nil)
		if err != nil {
			log.Info("timeout submission rejected", zap.Error(err))
			emit(errorMessage(err))
			return
		}
		emit(outboundMessage{Type: "result", Payload: result})
	}()

	reply(outboundMessage{Type: "attempt", Payload: attempt})

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "answer":
			var payload domain.ResponseInput
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.QuestionID == "" {
				reply(outboundMessage{Type: "error", Payload: errorPayload{Message: "invalid answer payload"}})
				continue
			}
			response, err := h.svc.Submissions.RecordResponse(ctx, attempt.AttemptID, payload)
			if err != nil {
				reply(errorMessage(err))
				continue
			}
			reply(outboundMessage{Type: "answerRecorded", Payload: response})
		case "submit":
			result, err := h.svc.Submissions.Submit(ctx, attempt.AttemptID, nil, domain.SubmissionManual)
			if err != nil {
				reply(errorMessage(err))
				continue
			}
			select {
			case <-submitted:
			default:
				close(submitted)
			}
			reply(outboundMessage{Type: "result", Payload: result})
		default:
			reply(outboundMessage{Type: "error", Payload: errorPayload{Message: "unsupported message type"}})
		}
	}

	close(closeSignals)
	<-timerDone
	close(send)
	<-writerDone
}
