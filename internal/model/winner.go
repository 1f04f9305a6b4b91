package model

import "time"

// Winner is one published row of the ranked top-N leaderboard for a day.
type Winner struct {
	QuizDate             string    `json:"quiz_date"`
	Rank                 int       `json:"rank"`
	UserID               int       `json:"user_id"`
	Score                int       `json:"score"`
	TotalTimeMs          int64     `json:"total_time_ms"`
	Accuracy             float64   `json:"accuracy"`
	QuizIntegrityHash    string    `json:"quiz_integrity_hash"`
	AttemptIntegrityHash string    `json:"attempt_integrity_hash"`
	CreatedAt            time.Time `json:"created_at"`
}
