package handler

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/r0o773rm1n41/dme-backend/internal/clock"
	"github.com/r0o773rm1n41/dme-backend/internal/config"
	"github.com/r0o773rm1n41/dme-backend/internal/coordinator"
	"github.com/r0o773rm1n41/dme-backend/internal/model"
	"github.com/r0o773rm1n41/dme-backend/internal/repository"
	"github.com/r0o773rm1n41/dme-backend/internal/response"
	"github.com/r0o773rm1n41/dme-backend/internal/validator"
	"github.com/rs/zerolog"
)

// WebhookHandler processes inbound payment-gateway capture/refund events.
// Every event is fenced twice before it touches the State Store: the
// Coordinator's WebhookFirstSeen claims the event id exactly once, and a
// unique constraint on payments.event_id backs that up at the database
// layer in case two processes both pass the fence due to a Coordinator
// failover race.
type WebhookHandler struct {
	clock       *clock.Clock
	cfg         *config.Config
	coordinator *coordinator.Coordinator
	paymentRepo *repository.PaymentRepository
	log         zerolog.Logger
}

func NewWebhookHandler(c *clock.Clock, cfg *config.Config, coord *coordinator.Coordinator, paymentRepo *repository.PaymentRepository, log zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{clock: c, cfg: cfg, coordinator: coord, paymentRepo: paymentRepo, log: log.With().Str("component", "webhook_handler").Logger()}
}

// verifySignature checks the X-Webhook-Signature header against an
// HMAC-SHA256 of the raw request body, keyed by the configured webhook
// secret — the same scheme the gateway and this handler must agree on out
// of band.
func (h *WebhookHandler) verifySignature(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(h.cfg.WebhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Payment godoc
// POST /api/v1/webhooks/payment
func (h *WebhookHandler) Payment(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
		return
	}

	signature := c.GetHeader("X-Webhook-Signature")
	if signature == "" || !h.verifySignature(body, signature) {
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidWebhookSig)
		return
	}

	c.Request.Body = io.NopCloser(bytes.NewReader(body))
	var event model.PaymentWebhookEvent
	if fields := validator.Bind(c, &event); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	ctx := c.Request.Context()

	firstSeen, err := h.coordinator.WebhookFirstSeen(ctx, event.EventID)
	if err != nil {
		if errors.Is(err, coordinator.ErrCoordinatorUnavailable) {
			response.Fail(c, http.StatusServiceUnavailable, response.ErrCoordinatorUnavailable)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if !firstSeen {
		response.Fail(c, http.StatusConflict, response.ErrDuplicateWebhook)
		return
	}

	replayFirstSeen, err := h.coordinator.ReplayFirstSeen(ctx, event.OrderID, event.CreatedAt)
	if err != nil {
		response.Fail(c, http.StatusServiceUnavailable, response.ErrCoordinatorUnavailable)
		return
	}
	if !replayFirstSeen {
		response.Fail(c, http.StatusConflict, response.ErrDuplicateWebhook)
		return
	}

	switch event.Status {
	case "captured", "success":
		status := model.PaymentSuccess
		if deadlines, err := h.clock.DeadlinesFor(event.QuizDate); err == nil && event.CreatedAt.After(deadlines.PaymentCutoffAt) {
			status = model.PaymentLate
		}
		if _, err := h.paymentRepo.RecordCapture(ctx, event.UserID, event.QuizDate, status, int(event.AmountCents), event.OrderID, event.EventID, event.CreatedAt); err != nil {
			h.log.Error().Err(err).Str("event_id", event.EventID).Msg("record capture failed")
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
			return
		}
	case "refunded":
		if err := h.paymentRepo.MarkRefunded(ctx, event.UserID, event.QuizDate, event.CreatedAt); err != nil {
			h.log.Error().Err(err).Str("event_id", event.EventID).Msg("mark refunded failed")
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
			return
		}
	default:
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrPaymentNotCaptured)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"processed": true})
}
