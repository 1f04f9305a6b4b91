// Package questionserver implements the Question Server: the read path
// that tells a joined participant which question to show right now. The
// current slot always comes from the Ephemeral Coordinator, never from
// anything the client sends — a client cannot advance itself past where
// the rest of the cohort is.
package questionserver

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/r0o773rm1n41/dme-backend/internal/clock"
	"github.com/r0o773rm1n41/dme-backend/internal/model"
)

// ErrQuizOver is returned once the participant's slot pointer has passed
// the last question; the caller should show a "waiting for results"
// state rather than a question.
var ErrQuizOver = errors.New("no more questions for this attempt")

type Attempts interface {
	GetByUserAndDate(ctx context.Context, userID int, date string) (*model.Attempt, error)
	StampQuestionStartedAt(ctx context.Context, attemptID string, slot int, startedAt time.Time) error
}

type Questions interface {
	GetByIDs(ctx context.Context, ids []string) (map[string]model.Question, error)
}

type Quizzes interface {
	GetByDate(ctx context.Context, date string) (*model.Quiz, error)
}

type IndexReader interface {
	CurrentIndex(ctx context.Context, date string) (int, error)
	QuestionStartedAt(ctx context.Context, date string) (time.Time, bool, error)
}

// ProgressRecorder queues a diagnostic question-sent timestamp; nil-safe
// at the call site so tests can omit it.
type ProgressRecorder interface {
	Enqueue(ctx context.Context, p model.Progress)
}

// slotWindow is how long a participant has to answer a slot once it has
// been served to them, matching the Answer Ingestor's expiry gate.
const slotWindow = 15 * time.Second

type Server struct {
	clock     *clock.Clock
	attempts  Attempts
	questions Questions
	quizzes   Quizzes
	index     IndexReader
	progress  ProgressRecorder
}

func New(c *clock.Clock, attempts Attempts, questions Questions, quizzes Quizzes, index IndexReader, progress ProgressRecorder) *Server {
	return &Server{clock: c, attempts: attempts, questions: questions, quizzes: quizzes, index: index, progress: progress}
}

// Current returns the question for the slot the cohort is currently on,
// from this participant's own shuffled perspective.
func (s *Server) Current(ctx context.Context, userID int, date string) (*model.QuestionForParticipant, error) {
	attempt, err := s.attempts.GetByUserAndDate(ctx, userID, date)
	if err != nil {
		return nil, fmt.Errorf("load attempt: %w", err)
	}

	slot, err := s.index.CurrentIndex(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("load current index: %w", err)
	}
	if slot >= model.TotalSlots {
		return nil, ErrQuizOver
	}

	quiz, err := s.quizzes.GetByDate(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("load quiz: %w", err)
	}
	questionIndex := attempt.Permutation[slot]
	if questionIndex < 0 || questionIndex >= len(quiz.QuestionIDs) {
		return nil, fmt.Errorf("attempt permutation out of range at slot %d", slot)
	}
	questionID := quiz.QuestionIDs[questionIndex]

	questions, err := s.questions.GetByIDs(ctx, []string{questionID})
	if err != nil {
		return nil, fmt.Errorf("load question %s: %w", questionID, err)
	}
	question, ok := questions[questionID]
	if !ok {
		return nil, fmt.Errorf("question %s not found", questionID)
	}

	startedAt, ok, err := s.index.QuestionStartedAt(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("load question started at: %w", err)
	}
	if !ok {
		startedAt = s.clock.Now()
	}
	if attempt.QuestionStartedAt[slot] == nil {
		if err := s.attempts.StampQuestionStartedAt(ctx, attempt.ID, slot, startedAt); err != nil {
			return nil, fmt.Errorf("stamp question started at: %w", err)
		}
		if s.progress != nil {
			s.progress.Enqueue(ctx, model.Progress{
				UserID: userID, QuizDate: date, Slot: slot, QuestionSentAt: startedAt,
			})
		}
	}

	perm := attempt.OptionPermutations[slot]
	var shuffled [4]string
	for displayIdx, originalIdx := range perm {
		shuffled[displayIdx] = question.Options[originalIdx]
	}

	return &model.QuestionForParticipant{
		Slot:          slot,
		QuestionID:    questionID,
		Text:          question.Text,
		Options:       shuffled,
		QuestionHash:  questionHash(questionID, slot),
		ExpiresAt:     startedAt.Add(slotWindow),
	}, nil
}

// questionHash binds a served question to its slot so the Answer Ingestor
// can detect a client submitting against a stale or mismatched question
// id (anti-cheat event question_id_mismatch).
func questionHash(questionID string, slot int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d", questionID, slot)))
	return hex.EncodeToString(sum[:])
}
