package coordinator

import "fmt"

// KeyStruct centralizes Redis key names for the Ephemeral Coordinator, the
// same singleton-builder shape the rest of this codebase's cache keys use.
type KeyStruct struct{}

func NewKeyStruct() *KeyStruct { return &KeyStruct{} }

// CurrentIndexKey holds the day's current question slot index.
func (k *KeyStruct) CurrentIndexKey(date string) string {
	return fmt.Sprintf("quiz:%s:current_index", date)
}

// QuestionStartedAtKey holds the RFC3339 timestamp the current slot began.
func (k *KeyStruct) QuestionStartedAtKey(date string) string {
	return fmt.Sprintf("quiz:%s:question_started_at", date)
}

// FinalizeTokenKey is the per-day monotonic counter admitting one finalizer.
func (k *KeyStruct) FinalizeTokenKey(date string) string {
	return fmt.Sprintf("quiz:%s:finalize_token", date)
}

// JoinSlotKey is the per-day in-flight admission counter.
func (k *KeyStruct) JoinSlotKey(date string) string {
	return fmt.Sprintf("quiz:%s:join_slots", date)
}

// ForceFinalizeLockKey gates which concurrent force-finalize call gets to
// reset the day's finalize token.
func (k *KeyStruct) ForceFinalizeLockKey(date string) string {
	return fmt.Sprintf("quiz:%s:force_finalize_lock", date)
}

// WebhookSeenKey is the per-event-id idempotency guard.
func (k *KeyStruct) WebhookSeenKey(eventID string) string {
	return fmt.Sprintf("webhook:seen:%s", eventID)
}

// WebhookReplayKey is the (orderId, createdAt) replay-window guard.
func (k *KeyStruct) WebhookReplayKey(orderID, createdAt string) string {
	return fmt.Sprintf("webhook:replay:%s:%s", orderID, createdAt)
}

var Key = NewKeyStruct()
