// Package ingestor implements the Answer Ingestor: the single write path
// for a participant's answer to the question currently being served. Every
// gate below runs in a fixed order because later gates assume earlier ones
// already hold — e.g. the expiry check only makes sense once the slot has
// been confirmed to match the cohort's current question.
package ingestor

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

// ErrAlreadyAnswered no longer applies to Submit: a duplicate submission
// is idempotent success (Result.AlreadyAnswered), not an error, per
// spec.md §7.
var (
	ErrQuizNotLive       = errors.New("quiz is not live")
	ErrAttemptHardCapped = errors.New("attempt window has closed")
	ErrDeviceMismatch    = errors.New("device does not match attempt")
	ErrQuestionMismatch  = errors.New("submitted question is not part of this attempt's permutation")
	ErrAdvancedPastSlot  = errors.New("submitted question does not match the cohort's current slot")
	ErrNotCurrentSlot    = errors.New("slot is not the cohort's current question")
	ErrAnswerExpired     = errors.New("answer window for this slot has expired")
)

// hardCap bounds total attempt duration regardless of the live window's
// own length, a defense-in-depth backstop independent of the Scheduler's
// pacing.
const hardCap = 30 * time.Minute

// slotWindow matches questionserver's serving window: a slot expires
// fifteen seconds after being stamped as started.
const slotWindow = 15 * time.Second

// rapidAnswerThreshold flags an answer submitted implausibly fast after
// the slot started, a signal fed to the Observability Hooks rather than a
// hard rejection. spec.md §4.8 gate 8 fixes this at 2s.
const rapidAnswerThreshold = 2 * time.Second

type Quizzes interface {
	GetByDate(ctx context.Context, date string) (*model.Quiz, error)
}

type Attempts interface {
	GetByUserAndDate(ctx context.Context, userID int, date string) (*model.Attempt, error)
	RecordAnswer(ctx context.Context, attemptID string, slot, selectedOptionIdx int, answeredAt time.Time) (bool, error)
	MarkCompleted(ctx context.Context, attemptID string, completedAt time.Time) error
}

// Questions is the subset of the State Store's question bank the Ingestor
// needs to compute isCorrect against the slot's answer, without pulling in
// the full question-authoring surface.
type Questions interface {
	GetByIDs(ctx context.Context, ids []string) (map[string]model.Question, error)
}

type IndexReader interface {
	CurrentIndex(ctx context.Context, date string) (int, error)
}

// CheatSink receives anti-cheat signals raised while ingesting an answer.
// Implementations must not block the answer path — the Observability
// Hooks adapter queues these rather than writing synchronously.
type CheatSink interface {
	Record(ctx context.Context, ev model.AntiCheatEvent)
}

// ProgressRecorder queues a diagnostic answered-at timestamp; nil-safe at
// the call site so tests can omit it.
type ProgressRecorder interface {
	Enqueue(ctx context.Context, p model.Progress)
}

// Result is what spec.md §4.8 and §6 require /quiz/answer and its
// WebSocket equivalent to report back on every accepted submission,
// including the idempotent re-submission case.
type Result struct {
	IsCorrect       bool `json:"isCorrect"`
	CountsForScore  bool `json:"countsForScore"`
	AlreadyAnswered bool `json:"alreadyAnswered"`
	Eligible        bool `json:"eligible"`
}

type Ingestor struct {
	clock     *clock.Clock
	quizzes   Quizzes
	attempts  Attempts
	questions Questions
	index     IndexReader
	cheatSink CheatSink
	progress  ProgressRecorder
}

func New(c *clock.Clock, quizzes Quizzes, attempts Attempts, questions Questions, index IndexReader, cheatSink CheatSink, progress ProgressRecorder) *Ingestor {
	return &Ingestor{clock: c, quizzes: quizzes, attempts: attempts, questions: questions, index: index, cheatSink: cheatSink, progress: progress}
}

func hashDevice(deviceID, fingerprint string) string {
	sum := sha256.Sum256([]byte(deviceID + "|" + fingerprint))
	return hex.EncodeToString(sum[:])
}

// resolveSlot finds which slot of attempt's committed permutation the
// submitted question id maps to. The permutation is fixed at attempt
// creation, so a miss means the id doesn't belong to this attempt at all.
func resolveSlot(attempt *model.Attempt, quiz *model.Quiz, questionID string) (int, bool) {
	for slot := 0; slot < model.TotalSlots; slot++ {
		questionIndex := attempt.Permutation[slot]
		if questionIndex < 0 || questionIndex >= len(quiz.QuestionIDs) {
			continue
		}
		if quiz.QuestionIDs[questionIndex] == questionID {
			return slot, true
		}
	}
	return 0, false
}

// resolveCorrectness fetches the question served at slot and reports
// whether originalOptionIdx matches its correct index. A lookup miss
// leaves isCorrect false rather than failing an otherwise-accepted answer.
func (ing *Ingestor) resolveCorrectness(ctx context.Context, quiz *model.Quiz, attempt *model.Attempt, slot, originalOptionIdx int) bool {
	questionIndex := attempt.Permutation[slot]
	if questionIndex < 0 || questionIndex >= len(quiz.QuestionIDs) {
		return false
	}
	questionID := quiz.QuestionIDs[questionIndex]
	questions, err := ing.questions.GetByIDs(ctx, []string{questionID})
	if err != nil {
		return false
	}
	question, ok := questions[questionID]
	if !ok {
		return false
	}
	return originalOptionIdx == question.CorrectIndex
}

// Submit runs an answer through the full gate sequence, records it, and
// reports the outcome spec.md §6 requires from /quiz/answer. Gate 7's
// duplicate-submission case is idempotent success, not an error: it
// re-reports the slot's already-recorded outcome with alreadyAnswered=true
// rather than rejecting the request.
func (ing *Ingestor) Submit(ctx context.Context, userID int, date string, req model.SubmitAnswerRequest) (Result, error) {
	quiz, err := ing.quizzes.GetByDate(ctx, date)
	if err != nil {
		return Result{}, fmt.Errorf("load quiz: %w", err)
	}
	if quiz.State != model.QuizLive {
		return Result{}, ErrQuizNotLive
	}

	attempt, err := ing.attempts.GetByUserAndDate(ctx, userID, date)
	if err != nil {
		return Result{}, fmt.Errorf("load attempt: %w", err)
	}

	now := ing.clock.Now()
	if now.Sub(attempt.QuizStartedAt) > hardCap {
		return Result{}, ErrAttemptHardCapped
	}

	if hashDevice(req.DeviceID, req.DeviceFingerprint) != attempt.DeviceHash {
		ing.cheatSink.Record(ctx, model.AntiCheatEvent{UserID: userID, QuizDate: date, Type: model.EventDeviceMismatch, At: now})
		return Result{}, ErrDeviceMismatch
	}

	currentSlot, err := ing.index.CurrentIndex(ctx, date)
	if err != nil {
		return Result{}, fmt.Errorf("load current index: %w", err)
	}
	if currentSlot >= model.TotalSlots {
		return Result{}, ErrNotCurrentSlot
	}

	// Gate 4 (spec §4.8): resolve the slot the submitted question id belongs
	// to from this attempt's own committed permutation. A miss here means
	// the id was never presented to this attempt at all — not a slot the
	// cohort passed through, but one that doesn't exist for this permutation
	// — which is a fabricated id, a genuine tampering signal.
	slot, ok := resolveSlot(attempt, quiz, req.QuestionID)
	if !ok {
		ing.cheatSink.Record(ctx, model.AntiCheatEvent{UserID: userID, QuizDate: date, Type: model.EventQuestionIDMismatch, At: now})
		return Result{}, ErrQuestionMismatch
	}

	// Gate 5: the id was legitimately shown to this attempt, just not at
	// the cohort's current slot. This is an ordinary timing race — the
	// cohort ticked forward while the request was in flight — not cheating,
	// so no anti-cheat event fires here.
	if slot != currentSlot {
		return Result{}, ErrAdvancedPastSlot
	}

	// Gate 7: a second submission for an already-answered slot is idempotent
	// success, not a failure — re-report the slot's outcome without
	// touching any state.
	if already := attempt.Answers[currentSlot]; already != nil {
		return Result{
			IsCorrect:       ing.resolveCorrectness(ctx, quiz, attempt, currentSlot, *already),
			CountsForScore:  attempt.Eligibility.Eligible,
			AlreadyAnswered: true,
			Eligible:        attempt.Eligibility.Eligible,
		}, nil
	}

	startedAt := attempt.QuestionStartedAt[currentSlot]
	if startedAt == nil {
		return Result{}, ErrNotCurrentSlot
	}
	if now.Sub(*startedAt) > slotWindow {
		return Result{}, ErrAnswerExpired
	}
	if now.Sub(*startedAt) < rapidAnswerThreshold {
		ing.cheatSink.Record(ctx, model.AntiCheatEvent{UserID: userID, QuizDate: date, Type: model.EventRapidAnswer, At: now})
	}

	// The client answers against the shuffled option order it was shown;
	// map it back through that slot's permutation to the question's
	// original option index before storing.
	perm := attempt.OptionPermutations[currentSlot]
	if req.SelectedOptionIdx < 0 || req.SelectedOptionIdx >= len(perm) {
		return Result{}, fmt.Errorf("selected option index %d out of range", req.SelectedOptionIdx)
	}
	originalOptionIdx := perm[req.SelectedOptionIdx]

	wrote, err := ing.attempts.RecordAnswer(ctx, attempt.ID, currentSlot, originalOptionIdx, now)
	if err != nil {
		return Result{}, fmt.Errorf("record answer: %w", err)
	}
	if !wrote {
		// Lost a race with a concurrent duplicate submission between the
		// read above and this write; same idempotent-success contract.
		return Result{
			IsCorrect:       ing.resolveCorrectness(ctx, quiz, attempt, currentSlot, originalOptionIdx),
			CountsForScore:  attempt.Eligibility.Eligible,
			AlreadyAnswered: true,
			Eligible:        attempt.Eligibility.Eligible,
		}, nil
	}

	if currentSlot == model.TotalSlots-1 {
		if err := ing.attempts.MarkCompleted(ctx, attempt.ID, now); err != nil {
			return Result{}, fmt.Errorf("mark completed: %w", err)
		}
	}

	if ing.progress != nil {
		answeredAt := now
		ing.progress.Enqueue(ctx, model.Progress{
			UserID: userID, QuizDate: date, Slot: currentSlot, AnsweredAt: &answeredAt,
		})
	}

	return Result{
		IsCorrect:       ing.resolveCorrectness(ctx, quiz, attempt, currentSlot, originalOptionIdx),
		CountsForScore:  attempt.Eligibility.Eligible,
		AlreadyAnswered: false,
		Eligible:        attempt.Eligibility.Eligible,
	}, nil
}
