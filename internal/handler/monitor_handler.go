package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/r0o773rm1n41/dme-backend/internal/middleware"
	"github.com/r0o773rm1n41/dme-backend/internal/push"
	"github.com/r0o773rm1n41/dme-backend/internal/repository"
	"github.com/r0o773rm1n41/dme-backend/internal/response"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	monitorRefreshInterval   = 15 * time.Second
	monitorKeepAliveInterval = 30 * time.Second
)

// MonitorHandler streams a day's quiz progress to an attached admin over
// Server-Sent Events: an initial snapshot, then every lifecycle and
// advancement event published on the Push Channel's Redis Pub/Sub, plus a
// periodic connected-participant-count refresh. Grounded on the teacher's
// monitor_handler.go SSE-over-Pub/Sub loop, generalized from per-exam
// channels to per-quiz-date channels.
type MonitorHandler struct {
	rdb      *redis.Client
	hub      *push.Hub
	quizRepo *repository.QuizRepository
	log      zerolog.Logger
}

func NewMonitorHandler(rdb *redis.Client, hub *push.Hub, quizRepo *repository.QuizRepository, log zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{rdb: rdb, hub: hub, quizRepo: quizRepo, log: log.With().Str("component", "monitor_handler").Logger()}
}

// QuizSSE godoc
// GET /api/v1/admin/quiz/:date/monitor
// Requires PermissionQuizMonitor.
func (h *MonitorHandler) QuizSSE(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	date := c.Param("date")
	quiz, err := h.quizRepo.GetByDate(c.Request.Context(), date)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.SSEvent("message", map[string]interface{}{
		"type":  "snapshot",
		"date":  quiz.Date,
		"state": quiz.State,
		"connected_participants": h.hub.ConnectedCount(date),
	})
	c.Writer.Flush()

	channel := "quiz:events:" + date
	pubsub := h.rdb.Subscribe(reqCtx, channel)
	defer pubsub.Close()
	ch := pubsub.Channel()

	refreshTicker := time.NewTicker(monitorRefreshInterval)
	defer refreshTicker.Stop()
	keepAliveTicker := time.NewTicker(monitorKeepAliveInterval)
	defer keepAliveTicker.Stop()

	pingPayload, _ := json.Marshal(map[string]string{"type": "ping"})

	h.log.Info().Str("date", date).Msg("admin attached to quiz monitor SSE")

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("date", date).Msg("admin disconnected from quiz monitor SSE")
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}
			c.Writer.Write([]byte("data: "))
			c.Writer.Write([]byte(msg.Payload))
			c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()

		case <-refreshTicker.C:
			c.SSEvent("message", map[string]interface{}{
				"type":                    "refresh",
				"connected_participants":  h.hub.ConnectedCount(date),
			})
			c.Writer.Flush()

		case <-keepAliveTicker.C:
			c.Writer.Write([]byte("data: "))
			c.Writer.Write(pingPayload)
			c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()
		}
	}
}
