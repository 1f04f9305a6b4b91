package model

import "time"

// Question is a single multiple-choice question. Immutable once a quiz
// references it for a given day.
type Question struct {
	ID           string    `json:"id"`
	Text         string    `json:"text"`
	Options      [4]string `json:"options"`
	CorrectIndex int       `json:"correct_index"`
	CreatedAt    time.Time `json:"created_at"`
}

// QuestionForParticipant is the answer-free payload served by the Question
// Server: options are already rotated through the per-slot permutation, so
// CorrectIndex never leaves the server.
type QuestionForParticipant struct {
	Slot         int       `json:"slot"`
	QuestionID   string    `json:"question_id"`
	Text         string    `json:"text"`
	Options      [4]string `json:"options"`
	QuestionHash string    `json:"question_hash"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// AddQuestionRequest is the payload for seeding a single question.
type AddQuestionRequest struct {
	Text         string    `json:"text" binding:"required,min=1,max=2000"`
	Options      [4]string `json:"options" binding:"required,dive,required"`
	CorrectIndex int       `json:"correct_index" binding:"min=0,max=3"`
}
