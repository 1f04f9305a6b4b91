package questionserver

import (
	"context"
	"testing"
	"time"

	"github.com/r0o773rm1n41/dme-backend/internal/clock"
	"github.com/r0o773rm1n41/dme-backend/internal/model"
	"github.com/stretchr/testify/require"
)

type fakeAttempts struct {
	attempt *model.Attempt
	stamped map[int]time.Time
}

func (f *fakeAttempts) GetByUserAndDate(ctx context.Context, userID int, date string) (*model.Attempt, error) {
	return f.attempt, nil
}

func (f *fakeAttempts) StampQuestionStartedAt(ctx context.Context, attemptID string, slot int, startedAt time.Time) error {
	if f.stamped == nil {
		f.stamped = map[int]time.Time{}
	}
	f.stamped[slot] = startedAt
	f.attempt.QuestionStartedAt[slot] = &startedAt
	return nil
}

type fakeQuestions struct{ byID map[string]model.Question }

func (f *fakeQuestions) GetByIDs(ctx context.Context, ids []string) (map[string]model.Question, error) {
	return f.byID, nil
}

type fakeQuizzes struct{ quiz model.Quiz }

func (f *fakeQuizzes) GetByDate(ctx context.Context, date string) (*model.Quiz, error) {
	return &f.quiz, nil
}

type fakeIndex struct {
	idx       int
	startedAt time.Time
}

func (f *fakeIndex) CurrentIndex(ctx context.Context, date string) (int, error) { return f.idx, nil }
func (f *fakeIndex) QuestionStartedAt(ctx context.Context, date string) (time.Time, bool, error) {
	return f.startedAt, true, nil
}

func TestCurrentAppliesOptionPermutation(t *testing.T) {
	attempt := &model.Attempt{ID: "a1"}
	attempt.Permutation[0] = 3
	attempt.OptionPermutations[0] = [4]int{2, 0, 3, 1}

	quiz := model.Quiz{QuestionIDs: make([]string, model.TotalSlots)}
	quiz.QuestionIDs[3] = "q-3"

	question := model.Question{ID: "q-3", Text: "2+2?", Options: [4]string{"a", "b", "c", "d"}}

	attempts := &fakeAttempts{attempt: attempt}
	questions := &fakeQuestions{byID: map[string]model.Question{"q-3": question}}
	quizzes := &fakeQuizzes{quiz: quiz}
	index := &fakeIndex{idx: 0, startedAt: time.Now()}

	c, err := clock.New("Asia/Kolkata", 18, 0)
	require.NoError(t, err)
	s := New(c, attempts, questions, quizzes, index, nil)
	out, err := s.Current(context.Background(), 1, "2026-08-06")
	require.NoError(t, err)
	require.Equal(t, "q-3", out.QuestionID)
	require.Equal(t, [4]string{"c", "a", "d", "b"}, out.Options)
}

func TestCurrentReturnsQuizOverPastLastSlot(t *testing.T) {
	attempts := &fakeAttempts{attempt: &model.Attempt{ID: "a1"}}
	quizzes := &fakeQuizzes{quiz: model.Quiz{QuestionIDs: make([]string, model.TotalSlots)}}
	index := &fakeIndex{idx: model.TotalSlots}

	c, err := clock.New("Asia/Kolkata", 18, 0)
	require.NoError(t, err)
	s := New(c, attempts, &fakeQuestions{}, quizzes, index, nil)
	_, err = s.Current(context.Background(), 1, "2026-08-06")
	require.ErrorIs(t, err, ErrQuizOver)
}
