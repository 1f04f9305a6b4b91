package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/r0o773rm1n41/dme-backend/internal/admission"
	"github.com/r0o773rm1n41/dme-backend/internal/clock"
	"github.com/r0o773rm1n41/dme-backend/internal/ingestor"
	"github.com/r0o773rm1n41/dme-backend/internal/middleware"
	"github.com/r0o773rm1n41/dme-backend/internal/model"
	"github.com/r0o773rm1n41/dme-backend/internal/questionserver"
	"github.com/r0o773rm1n41/dme-backend/internal/repository"
	"github.com/r0o773rm1n41/dme-backend/internal/response"
	"github.com/r0o773rm1n41/dme-backend/internal/scoring"
	"github.com/r0o773rm1n41/dme-backend/internal/service"
	"github.com/r0o773rm1n41/dme-backend/internal/validator"
)

// QuizHandler exposes the participant-facing daily quiz surface: status,
// join, the current-question read path, answer submission, and the
// published leaderboard. It is a thin HTTP adapter over the Admission
// Service, Question Server, and Answer Ingestor — none of the gating
// logic lives here.
type QuizHandler struct {
	clock              *clock.Clock
	admissionService   *admission.Service
	questionServer     *questionserver.Server
	ingestor           *ingestor.Ingestor
	participantService *service.ParticipantService
	quizRepo           *repository.QuizRepository
	attemptRepo        *repository.AttemptRepository
	questionRepo       *repository.QuestionRepository
	winnerRepo         *repository.WinnerRepository
}

func NewQuizHandler(
	c *clock.Clock,
	admissionService *admission.Service,
	questionServer *questionserver.Server,
	ing *ingestor.Ingestor,
	participantService *service.ParticipantService,
	quizRepo *repository.QuizRepository,
	attemptRepo *repository.AttemptRepository,
	questionRepo *repository.QuestionRepository,
	winnerRepo *repository.WinnerRepository,
) *QuizHandler {
	return &QuizHandler{
		clock:              c,
		admissionService:   admissionService,
		questionServer:     questionServer,
		ingestor:           ing,
		participantService: participantService,
		quizRepo:           quizRepo,
		attemptRepo:        attemptRepo,
		questionRepo:       questionRepo,
		winnerRepo:         winnerRepo,
	}
}

// Today godoc
// GET /api/v1/public/quiz/today
// Returns today's quiz summary. Public: a participant decides whether to
// log in and pay based on this, so it carries no auth requirement.
func (h *QuizHandler) Today(c *gin.Context) {
	ctx := c.Request.Context()
	date := h.clock.Today()

	quiz, err := h.quizRepo.GetByDate(ctx, date)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	summary := model.QuizSummary{
		Date:           quiz.Date,
		State:          quiz.State,
		IsLive:         quiz.State == model.QuizLive,
		IsCompleted:    quiz.State == model.QuizFinalized || quiz.State == model.QuizResultPublished,
		TotalQuestions: len(quiz.QuestionIDs),
		ClassGradeTag:  quiz.ClassGradeTag,
	}

	if claims := middleware.GetClaims(c); claims != nil && claims.TokenType == service.TokenTypeParticipant {
		if _, err := h.attemptRepo.GetByUserAndDate(ctx, claims.UserID, date); err == nil {
			summary.UserParticipated = true
		}
	}

	response.Success(c, http.StatusOK, summary)
}

// Join godoc
// POST /api/v1/participant/quiz/join
func (h *QuizHandler) Join(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.JoinQuizRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	participant, err := h.participantService.GetByID(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	attempt, err := h.admissionService.Join(c.Request.Context(), *participant, req)
	if err != nil {
		switch {
		case errors.Is(err, admission.ErrQuizNotLive):
			response.Fail(c, http.StatusConflict, response.ErrQuizNotLive)
		case errors.Is(err, admission.ErrAlreadyFinalized):
			response.Fail(c, http.StatusConflict, response.ErrAlreadyFinalized)
		case errors.Is(err, admission.ErrDeviceMismatch):
			response.Fail(c, http.StatusForbidden, response.ErrDeviceMismatch)
		case errors.Is(err, admission.ErrJoinThrottled):
			response.Fail(c, http.StatusTooManyRequests, response.ErrJoinThrottled)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"attempt_id": attempt.ID,
		"eligible":   attempt.Eligibility.Eligible,
		"reason":     attempt.Eligibility.Reason,
		"started_at": attempt.QuizStartedAt,
	})
}

// Current godoc
// GET /api/v1/participant/quiz/current
func (h *QuizHandler) Current(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	date := h.clock.Today()
	q, err := h.questionServer.Current(c.Request.Context(), claims.UserID, date)
	if err != nil {
		if errors.Is(err, questionserver.ErrQuizOver) {
			response.Fail(c, http.StatusConflict, response.ErrQuizOver)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, q)
}

// Answer godoc
// POST /api/v1/participant/quiz/answer
func (h *QuizHandler) Answer(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.SubmitAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	date := h.clock.Today()
	result, err := h.ingestor.Submit(c.Request.Context(), claims.UserID, date, req)
	if err != nil {
		switch {
		case errors.Is(err, ingestor.ErrQuizNotLive):
			response.Fail(c, http.StatusConflict, response.ErrQuizNotLive)
		case errors.Is(err, ingestor.ErrAttemptHardCapped):
			response.Fail(c, http.StatusConflict, response.ErrAttemptHardCapped)
		case errors.Is(err, ingestor.ErrDeviceMismatch):
			response.Fail(c, http.StatusForbidden, response.ErrDeviceMismatch)
		case errors.Is(err, ingestor.ErrQuestionMismatch):
			response.Fail(c, http.StatusConflict, response.ErrQuestionNotInOrder)
		case errors.Is(err, ingestor.ErrAdvancedPastSlot), errors.Is(err, ingestor.ErrNotCurrentSlot):
			response.Fail(c, http.StatusConflict, response.ErrAdvancedPastSlot)
		case errors.Is(err, ingestor.ErrAnswerExpired):
			response.Fail(c, http.StatusConflict, response.ErrTimeExpired)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	// A duplicate submission (result.AlreadyAnswered) is reported here as
	// ordinary success, per spec.md §7 — the client already has the
	// outcome it's asking for, so this is not an error case.
	response.Success(c, http.StatusOK, result)
}

// Finish godoc
// POST /api/v1/participant/quiz/finish
// Reports the caller's provisional score for today's attempt without
// waiting for the Finalizer's end-of-day run. counted/isEligible mirror
// the same eligibility snapshot computed at join time — the Finalizer's
// own recomputation at ENDED is authoritative for the published
// leaderboard, this is a preview.
func (h *QuizHandler) Finish(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	ctx := c.Request.Context()
	date := h.clock.Today()

	attempt, err := h.attemptRepo.GetByUserAndDate(ctx, claims.UserID, date)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	quiz, err := h.quizRepo.GetByDate(ctx, date)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	questions, err := h.questionRepo.GetByIDs(ctx, quiz.QuestionIDs)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	score, _ := scoring.Attempt(*attempt, quiz, questions)

	response.Success(c, http.StatusOK, gin.H{
		"score":      score,
		"counted":    attempt.Eligibility.Eligible,
		"isEligible": attempt.Eligibility.Eligible,
	})
}

// QuizStatus godoc
// GET /api/v1/public/quiz/status?date=YYYY-MM-DD
// The public quiz-state polling contract: a bare lifecycle state a client
// can cheaply re-poll, with ETag/If-None-Match short-circuiting to 304
// when nothing has changed and X-Poll-Interval telling the client how
// hard to poll (the Scheduler's own 15s slot cadence while LIVE, a slower
// cadence otherwise).
func (h *QuizHandler) QuizStatus(c *gin.Context) {
	date := c.Query("date")
	if date == "" {
		date = h.clock.Today()
	}

	quiz, err := h.quizRepo.GetByDate(c.Request.Context(), date)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.Header("X-Poll-Interval", "30")
			response.Success(c, http.StatusOK, gin.H{"state": "NO_QUIZ"})
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	etag := `"` + date + "-" + string(quiz.State) + `"`
	pollInterval := "30"
	if quiz.State == model.QuizLive {
		pollInterval = "15"
	}
	c.Header("X-Poll-Interval", pollInterval)

	if match := c.GetHeader("If-None-Match"); match != "" && match == etag {
		c.Status(http.StatusNotModified)
		return
	}
	c.Header("ETag", etag)
	response.Success(c, http.StatusOK, gin.H{"state": quiz.State})
}

// Status godoc
// GET /api/v1/participant/quiz/status
// Returns the caller's own attempt progress for today, letting a client
// resume correctly after a crash or reconnect without replaying /join.
func (h *QuizHandler) Status(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	date := h.clock.Today()
	attempt, err := h.attemptRepo.GetByUserAndDate(c.Request.Context(), claims.UserID, date)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"attempt_id":     attempt.ID,
		"answered_count": attempt.AnsweredCount(),
		"completed":      attempt.CompletedAt != nil,
		"eligible":       attempt.Eligibility.Eligible,
		"reason":         attempt.Eligibility.Reason,
	})
}

// Leaderboard godoc
// GET /api/v1/public/quiz/leaderboard?date=YYYY-MM-DD
// Winners are public once the quiz is ENDED, FINALIZED or
// RESULT_PUBLISHED; before that (or with no quiz for the date), an empty
// list is returned rather than an error — there is simply nothing to show
// yet.
func (h *QuizHandler) Leaderboard(c *gin.Context) {
	date := c.Query("date")
	if date == "" {
		date = h.clock.Today()
	}

	ctx := c.Request.Context()
	quiz, err := h.quizRepo.GetByDate(ctx, date)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			response.Success(c, http.StatusOK, gin.H{"date": date, "winners": []model.Winner{}})
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	switch quiz.State {
	case model.QuizEnded, model.QuizFinalized, model.QuizResultPublished:
	default:
		response.Success(c, http.StatusOK, gin.H{"date": date, "winners": []model.Winner{}})
		return
	}

	winners, err := h.winnerRepo.ListForDate(ctx, date)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"date": date, "winners": winners})
}
