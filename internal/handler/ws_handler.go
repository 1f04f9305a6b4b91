package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/r0o773rm1n41/dme-backend/internal/clock"
	"github.com/r0o773rm1n41/dme-backend/internal/ingestor"
	"github.com/r0o773rm1n41/dme-backend/internal/middleware"
	"github.com/r0o773rm1n41/dme-backend/internal/model"
	"github.com/r0o773rm1n41/dme-backend/internal/push"
	ws "github.com/r0o773rm1n41/dme-backend/internal/websocket"
	"github.com/rs/zerolog"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins. An empty slice
// permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams today's quiz to a connected participant over the Push
// Channel and accepts inbound answers over the same socket as an
// alternative to the REST /quiz/answer endpoint. Grounded on the
// teacher's ws_handler.go upgrade/read-loop shape, generalized from a
// single per-exam autosave stream to the Hub-registered push room plus
// inbound answer dispatch into the Answer Ingestor.
type WSHandler struct {
	clock    *clock.Clock
	hub      *push.Hub
	ingestor *ingestor.Ingestor
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(c *clock.Clock, hub *push.Hub, ing *ingestor.Ingestor, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		clock:    c,
		hub:      hub,
		ingestor: ing,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// QuizStream godoc
// WS /ws/v1/quiz
// Upgrades to WebSocket, registers the connection in today's push room,
// and accepts ActionAnswer/ActionPing frames until the client disconnects.
func (h *WSHandler) QuizStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	date := h.clock.Today()
	h.hub.Register(date, conn)
	defer h.hub.Unregister(date, conn)

	wsLog := h.log.With().Int("user_id", claims.UserID).Str("date", date).Logger()
	wsLog.Info().Msg("participant connected to quiz stream")

	for {
		conn.SetReadDeadline(time.Now().Add(5 * time.Minute))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("unexpected close")
			} else {
				wsLog.Debug().Msg("connection closed")
			}
			return
		}

		var envelope ws.RequestEnvelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			ws.WriteError(conn, "malformed frame")
			continue
		}

		switch envelope.Action {
		case ws.ActionAnswer:
			h.handleAnswer(c, conn, raw, claims.UserID, date)
		case ws.ActionPing:
			ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(envelope.Action)).Msg("unknown action")
			ws.WriteError(conn, "unknown action: "+string(envelope.Action))
		}
	}
}

// handleAnswer decodes the already-read frame bytes into an AnswerRequest,
// translates it to the REST submit-answer payload shape, and runs it
// through the same Answer Ingestor the REST path uses.
func (h *WSHandler) handleAnswer(c *gin.Context, conn *websocket.Conn, raw []byte, userID int, date string) {
	var req ws.AnswerRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		ws.WriteError(conn, "malformed answer frame")
		return
	}

	submit := model.SubmitAnswerRequest{
		QuestionID:        req.QuestionID,
		SelectedOptionIdx: req.SelectedOptionIdx,
		DeviceID:          req.DeviceID,
		DeviceFingerprint: req.DeviceFingerprint,
	}

	result, err := h.ingestor.Submit(c.Request.Context(), userID, date, submit)
	if err != nil {
		ws.WriteError(conn, answerErrorMessage(err))
		return
	}

	// A duplicate submission (result.AlreadyAnswered) is reported here as
	// ordinary success, per spec.md §7 — mirrors the REST /quiz/answer path.
	ws.WriteTyped(conn, ws.AnswerAcceptedResponse{
		Event:           ws.EventAnswerAccepted,
		IsCorrect:       result.IsCorrect,
		CountsForScore:  result.CountsForScore,
		AlreadyAnswered: result.AlreadyAnswered,
		Eligible:        result.Eligible,
	})
}

func answerErrorMessage(err error) string {
	switch {
	case errors.Is(err, ingestor.ErrQuizNotLive):
		return "quiz is not live"
	case errors.Is(err, ingestor.ErrAttemptHardCapped):
		return "attempt window expired"
	case errors.Is(err, ingestor.ErrDeviceMismatch):
		return "device mismatch"
	case errors.Is(err, ingestor.ErrQuestionMismatch):
		return "question is not part of this attempt"
	case errors.Is(err, ingestor.ErrAdvancedPastSlot), errors.Is(err, ingestor.ErrNotCurrentSlot):
		return "question is not the current slot"
	case errors.Is(err, ingestor.ErrAnswerExpired):
		return "answer window expired"
	default:
		return "internal error"
	}
}
