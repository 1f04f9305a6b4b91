// Package push implements the Push Channel: a per-day WebSocket room for
// participants and a Redis Pub/Sub fanout so every process in the fleet —
// not just the one that computed a state change — can broadcast it to the
// clients connected to it. The Lifecycle FSM and Finalizer publish through
// this package's Notifier; nothing downstream of them touches a
// WebSocket connection directly.
package push

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/r0o773rm1n41/dme-backend/internal/model"
	ws "github.com/r0o773rm1n41/dme-backend/internal/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const channelPrefix = "quiz:events:"

func channelFor(date string) string {
	return channelPrefix + date
}

func dateFromChannel(channel string) (string, bool) {
	if !strings.HasPrefix(channel, channelPrefix) {
		return "", false
	}
	return strings.TrimPrefix(channel, channelPrefix), true
}

// Hub tracks live WebSocket connections grouped by quiz date and
// broadcasts to every connection in a date's room.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*websocket.Conn]bool
	log   zerolog.Logger
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{rooms: make(map[string]map[*websocket.Conn]bool), log: log.With().Str("component", "push_hub").Logger()}
}

func (h *Hub) Register(date string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[date] == nil {
		h.rooms[date] = make(map[*websocket.Conn]bool)
	}
	h.rooms[date][conn] = true
}

func (h *Hub) Unregister(date string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.rooms[date], conn)
}

// broadcast sends v to every live connection in a date's room, dropping
// any connection that fails to write rather than letting one slow client
// stall the rest of the room.
func (h *Hub) broadcast(date string, v interface{}) {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.rooms[date]))
	for c := range h.rooms[date] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		if err := ws.WriteTyped(conn, v); err != nil {
			h.log.Debug().Err(err).Str("date", date).Msg("dropping unresponsive connection")
			h.Unregister(date, conn)
		}
	}
}

// ConnectedCount backs the Observability Hooks' connect/disconnect gauge.
func (h *Hub) ConnectedCount(date string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[date])
}

// Notifier publishes lifecycle and advancement events to Redis and
// implements fsm.Notifier / finalizer.Notifier / scheduler advancement
// hooks. Every process subscribes via Start and rebroadcasts to its own
// local Hub, so a multi-instance deployment stays consistent without the
// Hub itself needing cross-process awareness.
type Notifier struct {
	rdb *redis.Client
	hub *Hub
	log zerolog.Logger
}

func NewNotifier(rdb *redis.Client, hub *Hub, log zerolog.Logger) *Notifier {
	return &Notifier{rdb: rdb, hub: hub, log: log.With().Str("component", "push_notifier").Logger()}
}

func (n *Notifier) publish(ctx context.Context, date string, v interface{}) error {
	encoded, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal push event: %w", err)
	}
	if err := n.rdb.Publish(ctx, channelFor(date), encoded).Err(); err != nil {
		return fmt.Errorf("publish push event: %w", err)
	}
	return nil
}

// PublishStateChanged implements fsm.Notifier.
func (n *Notifier) PublishStateChanged(ctx context.Context, date string, from, to model.QuizState, at time.Time) error {
	return n.publish(ctx, date, ws.QuizStateChangedResponse{
		Event: ws.EventQuizStateChanged, Date: date, From: string(from), To: string(to),
	})
}

// PublishQuestionAdvanced is called by the wiring layer after each
// Scheduler advancement tick.
func (n *Notifier) PublishQuestionAdvanced(ctx context.Context, date string, slot int) error {
	return n.publish(ctx, date, ws.QuestionAdvancedResponse{Event: ws.EventQuestionAdvanced, Date: date, Slot: slot})
}

// PublishFinalized implements finalizer.Notifier.
func (n *Notifier) PublishFinalized(ctx context.Context, date string, winners []model.Winner) error {
	return n.publish(ctx, date, ws.QuizFinalizedResponse{Event: ws.EventQuizFinalized, Date: date, TopWinners: len(winners)})
}

// Start subscribes to every quiz events channel and rebroadcasts each
// message to the local Hub's matching room, bridging cross-process
// publishes into this process's live WebSocket connections. Grounded on
// the teacher's monitor_handler.go Redis Pub/Sub subscribe loop.
func (n *Notifier) Start(ctx context.Context) {
	pubsub := n.rdb.PSubscribe(ctx, channelPrefix+"*")
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			date, ok := dateFromChannel(msg.Channel)
			if !ok {
				continue
			}
			var raw json.RawMessage
			if err := json.Unmarshal([]byte(msg.Payload), &raw); err != nil {
				n.log.Error().Err(err).Msg("malformed push event payload")
				continue
			}
			n.hub.broadcast(date, raw)
		}
	}
}
