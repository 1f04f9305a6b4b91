package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/r0o773rm1n41/dme-backend/internal/clock"
	"github.com/r0o773rm1n41/dme-backend/internal/finalizer"
	"github.com/r0o773rm1n41/dme-backend/internal/fsm"
	"github.com/r0o773rm1n41/dme-backend/internal/middleware"
	"github.com/r0o773rm1n41/dme-backend/internal/model"
	"github.com/r0o773rm1n41/dme-backend/internal/repository"
	"github.com/r0o773rm1n41/dme-backend/internal/response"
	"github.com/r0o773rm1n41/dme-backend/internal/service"
	"github.com/r0o773rm1n41/dme-backend/internal/validator"
)

// FinalizeTokenResetter clears the Ephemeral Coordinator's one-shot
// finalize-token counter for a date, letting a disaster-recovery
// force-finalize actually re-run a finalize the Scheduler started but
// crashed before completing. Gated internally so only one of a concurrent
// set of callers performs the reset.
type FinalizeTokenResetter interface {
	ReclaimFinalizeToken(ctx context.Context, date string) error
}

// AdminHandler exposes the admin control surface over the Lifecycle FSM
// and Finalizer: manual transition overrides, disaster-recovery force
// finalize, the audit log, and participant session resets. The unattended
// path is the Scheduler — these endpoints exist for the operator
// intervention cases spec.md calls out explicitly (stuck transition,
// crashed finalize, a participant locked out of their own session).
type AdminHandler struct {
	clock       *clock.Clock
	authService *service.AuthService
	fsm         *fsm.FSM
	finalizer   *finalizer.Finalizer
	coordinator FinalizeTokenResetter
	quizRepo    *repository.QuizRepository
	auditRepo   *repository.AuditRepository
}

func NewAdminHandler(
	c *clock.Clock,
	authService *service.AuthService,
	f *fsm.FSM,
	fin *finalizer.Finalizer,
	coord FinalizeTokenResetter,
	quizRepo *repository.QuizRepository,
	auditRepo *repository.AuditRepository,
) *AdminHandler {
	return &AdminHandler{clock: c, authService: authService, fsm: f, finalizer: fin, coordinator: coord, quizRepo: quizRepo, auditRepo: auditRepo}
}

// TransitionRequest is the payload for a manual FSM override.
type TransitionRequest struct {
	To string `json:"to" binding:"required"`
}

// Transition godoc
// POST /api/v1/admin/quiz/:date/transition
// Drives a manual Lifecycle FSM transition, attributed to the calling
// admin in the audit log. Requires PermissionQuizTransition.
func (h *AdminHandler) Transition(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	date := c.Param("date")
	var req TransitionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	quiz, err := h.quizRepo.GetByDate(c.Request.Context(), date)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	to := model.QuizState(req.To)
	actorID := claims.UserID
	updated, err := h.fsm.Transition(c.Request.Context(), date, quiz.State, to, h.clock.Now(), model.AuditActorAdmin, &actorID)
	if err != nil {
		var invalid *fsm.ErrInvalidTransition
		if errors.As(err, &invalid) {
			response.Fail(c, http.StatusConflict, response.ErrInvalidTransition)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, updated)
}

// ForceFinalize godoc
// POST /api/v1/admin/quiz/:date/force-finalize
// Disaster recovery only: re-invokes the Finalizer for a date already in
// ENDED, in case the Scheduler's automatic run crashed before completing.
// Requires PermissionQuizForceFinalize. AcquireFinalizeToken only ever
// returns 1 to the very first caller for a date, so a stalled automatic
// run has already burned that token — this handler clears it first,
// otherwise the very recovery path this endpoint exists for could never
// fire. Finalize's own recompute-from-scratch behavior keeps a rerun safe
// even against a run that partially completed, and the reclaim is itself
// lock-gated so two concurrent force-finalize calls can't both reset the
// token and race the same day's finalize transaction.
func (h *AdminHandler) ForceFinalize(c *gin.Context) {
	date := c.Param("date")
	if err := h.coordinator.ReclaimFinalizeToken(c.Request.Context(), date); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if err := h.finalizer.Finalize(c.Request.Context(), date); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"date": date, "finalize_requested": true})
}

// AuditLog godoc
// GET /api/v1/admin/audit?target_type=quiz&target_id=2026-08-06
// Requires PermissionAuditRead.
func (h *AdminHandler) AuditLog(c *gin.Context) {
	targetType := c.Query("target_type")
	targetID := c.Query("target_id")
	if targetType == "" || targetID == "" {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
		return
	}

	records, err := h.auditRepo.ListForTarget(c.Request.Context(), targetType, targetID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"records": records})
}

// ResetParticipantSessionRequest identifies the participant to unlock.
type ResetParticipantSessionRequest struct {
	ParticipantID int `json:"participant_id" binding:"required"`
}

// ResetParticipantSession godoc
// POST /api/v1/admin/participants/reset-session
// Clears a participant's single-device session JTI so they can log in
// from a new device without the SESSION_ALREADY_ACTIVE path blocking
// them. Requires PermissionParticipantsResetSession.
func (h *AdminHandler) ResetParticipantSession(c *gin.Context) {
	var req ResetParticipantSessionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.authService.ResetParticipantSession(c.Request.Context(), req.ParticipantID); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}
