package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/logger"
)

// Services bundles the use cases exposed over HTTP.
type Services struct {
	Attempts    *app.AttemptService
	Submissions *app.SubmissionService
	Questions   *app.QuestionService
	Catalog     app.QuizCatalog
}

// Handler serves the REST routes and the attempt websocket.
type Handler struct {
	svc       Services
	log       *zap.Logger
	validator *validator.Validate
	ws        *WSHandler
}

func NewHandler(svc Services, log *zap.Logger) *Handler {
	log = logger.OrNop(log)
	return &Handler{
		svc:       svc,
		log:       log,
		validator: newValidator(),
		ws:        NewWSHandler(svc, log),
	}
}

// Routes builds the chi router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(h.accessLog)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", userHeader},
		ExposedHeaders: []string{"Content-Length"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/ws/attempts", h.ws.ServeWS)

	r.Route("/quizzes/{quizID}", func(r chi.Router) {
		r.Post("/attempts", h.createOrResumeAttempt)
		r.Get("/attempts", h.listAttempts)
		r.Get("/questions", h.listQuestions)
		r.Post("/questions", h.appendQuestion)
	})
	r.Route("/attempts/{attemptID}", func(r chi.Router) {
		r.Get("/", h.getAttempt)
		r.Patch("/", h.updateAttempt)
		r.Get("/responses", h.listResponses)
		r.Post("/responses", h.recordResponse)
		r.Post("/submit", h.submit)
		r.Post("/timeout", h.timeout)
	})
	r.Route("/questions/{questionID}", func(r chi.Router) {
		r.Get("/", h.getQuestion)
		r.Patch("/position", h.repositionQuestion)
		r.Delete("/", h.deleteQuestion)
	})
	return r
}

func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.log.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("requestId", middleware.GetReqID(r.Context())))
	})
}
