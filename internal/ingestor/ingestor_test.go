package ingestor

import (
	"context"
	"testing"
	"time"

	"github.com/r0o773rm1n41/dme-backend/internal/clock"
	"github.com/r0o773rm1n41/dme-backend/internal/model"
	"github.com/stretchr/testify/require"
)

type fakeQuizzes struct{ quiz model.Quiz }

func (f *fakeQuizzes) GetByDate(ctx context.Context, date string) (*model.Quiz, error) {
	return &f.quiz, nil
}

type fakeAttempts struct {
	attempt *model.Attempt
}

func (f *fakeAttempts) GetByUserAndDate(ctx context.Context, userID int, date string) (*model.Attempt, error) {
	return f.attempt, nil
}

func (f *fakeAttempts) RecordAnswer(ctx context.Context, attemptID string, slot, selectedOptionIdx int, answeredAt time.Time) (bool, error) {
	if f.attempt.Answers[slot] != nil {
		return false, nil
	}
	f.attempt.Answers[slot] = &selectedOptionIdx
	f.attempt.AnswerTimestamps[slot] = &answeredAt
	return true, nil
}

func (f *fakeAttempts) MarkCompleted(ctx context.Context, attemptID string, completedAt time.Time) error {
	f.attempt.CompletedAt = &completedAt
	return nil
}

type fakeQuestions struct{ byID map[string]model.Question }

func (f *fakeQuestions) GetByIDs(ctx context.Context, ids []string) (map[string]model.Question, error) {
	return f.byID, nil
}

type fakeIndex struct{ slot int }

func (f *fakeIndex) CurrentIndex(ctx context.Context, date string) (int, error) { return f.slot, nil }

type fakeCheatSink struct{ events []model.AntiCheatEvent }

func (f *fakeCheatSink) Record(ctx context.Context, ev model.AntiCheatEvent) {
	f.events = append(f.events, ev)
}

func testClock(t *testing.T) *clock.Clock {
	t.Helper()
	c, err := clock.New("Asia/Kolkata", 18, 0)
	require.NoError(t, err)
	return c
}

func baseAttempt() *model.Attempt {
	a := &model.Attempt{ID: "a1", UserID: 1, QuizStartedAt: time.Now().Add(-time.Minute), DeviceHash: hashDevice("d1", "fp1")}
	a.Permutation[0] = 0
	a.OptionPermutations[0] = [4]int{0, 1, 2, 3}
	started := time.Now().Add(-2 * time.Second)
	a.QuestionStartedAt[0] = &started
	a.Eligibility.Eligible = true
	return a
}

func defaultQuestions() *fakeQuestions {
	return &fakeQuestions{byID: map[string]model.Question{
		"q-0": {ID: "q-0", CorrectIndex: 2},
		"q-1": {ID: "q-1", CorrectIndex: 2},
	}}
}

func newIngestor(t *testing.T, attempt *model.Attempt, slot int) (*Ingestor, *fakeCheatSink) {
	quiz := model.Quiz{State: model.QuizLive, QuestionIDs: []string{"q-0"}}
	sink := &fakeCheatSink{}
	ing := New(testClock(t), &fakeQuizzes{quiz: quiz}, &fakeAttempts{attempt: attempt}, defaultQuestions(), &fakeIndex{slot: slot}, sink, nil)
	return ing, sink
}

func TestSubmitRecordsFirstAnswer(t *testing.T) {
	attempt := baseAttempt()
	ing, _ := newIngestor(t, attempt, 0)

	result, err := ing.Submit(context.Background(), 1, "2026-08-06", model.SubmitAnswerRequest{
		QuestionID: "q-0", SelectedOptionIdx: 2, DeviceID: "d1", DeviceFingerprint: "fp1",
	})
	require.NoError(t, err)
	require.NotNil(t, attempt.Answers[0])
	require.Equal(t, 2, *attempt.Answers[0])
	require.True(t, result.IsCorrect)
	require.True(t, result.CountsForScore)
	require.True(t, result.Eligible)
	require.False(t, result.AlreadyAnswered)
}

func TestSubmitDuplicateAnswerIsIdempotentSuccess(t *testing.T) {
	attempt := baseAttempt()
	answered := 1
	attempt.Answers[0] = &answered
	ing, _ := newIngestor(t, attempt, 0)

	result, err := ing.Submit(context.Background(), 1, "2026-08-06", model.SubmitAnswerRequest{
		QuestionID: "q-0", SelectedOptionIdx: 2, DeviceID: "d1", DeviceFingerprint: "fp1",
	})
	require.NoError(t, err)
	require.True(t, result.AlreadyAnswered)
	require.False(t, result.IsCorrect)
}

func TestSubmitRejectsDeviceMismatch(t *testing.T) {
	attempt := baseAttempt()
	ing, sink := newIngestor(t, attempt, 0)

	_, err := ing.Submit(context.Background(), 1, "2026-08-06", model.SubmitAnswerRequest{
		QuestionID: "q-0", SelectedOptionIdx: 2, DeviceID: "other", DeviceFingerprint: "fp-x",
	})
	require.ErrorIs(t, err, ErrDeviceMismatch)
	require.Len(t, sink.events, 1)
	require.Equal(t, model.EventDeviceMismatch, sink.events[0].Type)
}

func TestSubmitRejectsQuestionMismatch(t *testing.T) {
	attempt := baseAttempt()
	ing, sink := newIngestor(t, attempt, 0)

	_, err := ing.Submit(context.Background(), 1, "2026-08-06", model.SubmitAnswerRequest{
		QuestionID: "wrong-question", SelectedOptionIdx: 2, DeviceID: "d1", DeviceFingerprint: "fp1",
	})
	require.ErrorIs(t, err, ErrQuestionMismatch)
	require.Len(t, sink.events, 1)
	require.Equal(t, model.EventQuestionIDMismatch, sink.events[0].Type)
}

func TestSubmitAdvancedPastSlotDoesNotFlagCheat(t *testing.T) {
	attempt := baseAttempt()
	attempt.Permutation[1] = 1
	started := time.Now().Add(-2 * time.Second)
	attempt.QuestionStartedAt[1] = &started

	quiz := model.Quiz{State: model.QuizLive, QuestionIDs: []string{"q-0", "q-1"}}
	sink := &fakeCheatSink{}
	ing := New(testClock(t), &fakeQuizzes{quiz: quiz}, &fakeAttempts{attempt: attempt}, defaultQuestions(), &fakeIndex{slot: 0}, sink, nil)

	_, err := ing.Submit(context.Background(), 1, "2026-08-06", model.SubmitAnswerRequest{
		QuestionID: "q-1", SelectedOptionIdx: 2, DeviceID: "d1", DeviceFingerprint: "fp1",
	})
	require.ErrorIs(t, err, ErrAdvancedPastSlot)
	require.Empty(t, sink.events)
}

func TestSubmitRejectsExpiredSlot(t *testing.T) {
	attempt := baseAttempt()
	longAgo := time.Now().Add(-time.Minute)
	attempt.QuestionStartedAt[0] = &longAgo
	ing, _ := newIngestor(t, attempt, 0)

	_, err := ing.Submit(context.Background(), 1, "2026-08-06", model.SubmitAnswerRequest{
		QuestionID: "q-0", SelectedOptionIdx: 2, DeviceID: "d1", DeviceFingerprint: "fp1",
	})
	require.ErrorIs(t, err, ErrAnswerExpired)
}

func TestSubmitFlagsRapidAnswer(t *testing.T) {
	attempt := baseAttempt()
	justStarted := time.Now()
	attempt.QuestionStartedAt[0] = &justStarted
	ing, sink := newIngestor(t, attempt, 0)

	result, err := ing.Submit(context.Background(), 1, "2026-08-06", model.SubmitAnswerRequest{
		QuestionID: "q-0", SelectedOptionIdx: 2, DeviceID: "d1", DeviceFingerprint: "fp1",
	})
	require.NoError(t, err)
	require.Len(t, sink.events, 1)
	require.Equal(t, model.EventRapidAnswer, sink.events[0].Type)
	require.True(t, result.IsCorrect)
}
