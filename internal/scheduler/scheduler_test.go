package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/r0o773rm1n41/dme-backend/internal/clock"
	"github.com/r0o773rm1n41/dme-backend/internal/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeQuizzes struct {
	mu   sync.Mutex
	quiz model.Quiz
}

func (f *fakeQuizzes) GetByDate(ctx context.Context, date string) (*model.Quiz, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q := f.quiz
	return &q, nil
}

type fakeTransitioner struct {
	mu    sync.Mutex
	quiz  *fakeQuizzes
	calls []string
}

func (f *fakeTransitioner) Transition(ctx context.Context, date string, from, to model.QuizState, at time.Time, actor model.AuditActor, actorID *int) (*model.Quiz, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, string(from)+"->"+string(to))
	f.quiz.mu.Lock()
	f.quiz.quiz.State = to
	f.quiz.mu.Unlock()
	return &f.quiz.quiz, nil
}

type fakeIndex struct {
	mu  sync.Mutex
	idx int
}

func (f *fakeIndex) CurrentIndex(ctx context.Context, date string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.idx, nil
}

func (f *fakeIndex) AdvanceTo(ctx context.Context, date string, slot int, startedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.idx = slot
	return nil
}

type fakeFinalizer struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeFinalizer) Finalize(ctx context.Context, date string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return nil
}

func TestTickLocksWhenPastLockDeadline(t *testing.T) {
	// A live start at the top of the current UTC hour puts LockAt (T-10m)
	// behind the clock's real "now", so one tick must lock a DRAFT quiz.
	c, err := clock.New("UTC", time.Now().UTC().Hour(), 0)
	require.NoError(t, err)
	date := c.DateKey(c.Now())

	deadlines, err := c.DeadlinesFor(date)
	require.NoError(t, err)
	require.False(t, c.Now().Before(deadlines.LockAt))

	quizzes := &fakeQuizzes{quiz: model.Quiz{Date: date, State: model.QuizDraft}}
	transitioner := &fakeTransitioner{quiz: quizzes}
	index := &fakeIndex{}
	finalizer := &fakeFinalizer{}
	s := New(c, quizzes, transitioner, index, finalizer, zerolog.Nop())

	s.tick(context.Background())
	require.Equal(t, []string{"DRAFT->LOCKED"}, transitioner.calls)
}

func TestQuestionDurationIsFixedFifteenSeconds(t *testing.T) {
	require.Equal(t, 15*time.Second, questionDuration)
}

func TestAdvanceQuestionMovesIndexForwardOnly(t *testing.T) {
	c, err := clock.New("Asia/Kolkata", 18, 0)
	require.NoError(t, err)
	date := c.DateKey(c.Now())

	quizzes := &fakeQuizzes{quiz: model.Quiz{Date: date, State: model.QuizLive}}
	transitioner := &fakeTransitioner{quiz: quizzes}
	index := &fakeIndex{idx: 5}
	finalizer := &fakeFinalizer{}
	s := New(c, quizzes, transitioner, index, finalizer, zerolog.Nop())

	d := clock.Deadlines{
		LiveAt:    c.Now().Add(-10 * time.Minute),
		LiveEndAt: c.Now().Add(20 * time.Minute),
	}
	s.advanceQuestion(context.Background(), date, c.Now(), d)
	require.GreaterOrEqual(t, index.idx, 5)
}
