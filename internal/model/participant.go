package model

import "time"

// Participant represents a paying user of the daily quiz.
type Participant struct {
	ID                  int       `json:"id"`
	Email               string    `json:"email"`
	Phone               string    `json:"phone"`
	PasswordHash        string    `json:"-"`
	ProfileComplete     bool      `json:"profile_complete"`
	SubscriptionActive  bool      `json:"subscription_active"`
	AnswerStreak        int       `json:"answer_streak"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// ParticipantLoginRequest is the payload for participant authentication.
type ParticipantLoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6,max=128"`
}

// ParticipantLoginResponse is returned after successful participant login.
type ParticipantLoginResponse struct {
	Token       string      `json:"token"`
	Participant Participant `json:"participant"`
}
