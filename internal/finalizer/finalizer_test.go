package finalizer

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/r0o773rm1n41/dme-backend/internal/clock"
	"github.com/r0o773rm1n41/dme-backend/internal/model"
	"github.com/r0o773rm1n41/dme-backend/internal/repository"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// fakeTx is a no-op transaction handle: the fakes below never issue real
// SQL, so Exec/Query/QueryRow/CopyFrom are unreachable in these tests —
// only Commit/Rollback bookkeeping is asserted.
type fakeTx struct {
	committed  bool
	rolledBack bool
}

func (f *fakeTx) Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (f *fakeTx) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	return nil, nil
}
func (f *fakeTx) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	return nil
}
func (f *fakeTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (f *fakeTx) Commit(ctx context.Context) error {
	f.committed = true
	return nil
}
func (f *fakeTx) Rollback(ctx context.Context) error {
	if !f.committed {
		f.rolledBack = true
	}
	return nil
}

type fakeTxBeginner struct{ tx *fakeTx }

func (f *fakeTxBeginner) Begin(ctx context.Context) (Tx, error) {
	f.tx = &fakeTx{}
	return f.tx, nil
}

type fakeQuizzes struct{ quiz model.Quiz }

func (f *fakeQuizzes) GetByDate(ctx context.Context, date string) (*model.Quiz, error) {
	return &f.quiz, nil
}

type fakeQuestions struct{ byID map[string]model.Question }

func (f *fakeQuestions) GetByIDs(ctx context.Context, ids []string) (map[string]model.Question, error) {
	return f.byID, nil
}

type fakePayments struct{}

func (f *fakePayments) GetByUserAndDate(ctx context.Context, userID int, date string) (*model.Payment, error) {
	return &model.Payment{Status: model.PaymentSuccess}, nil
}

type fakeParticipants struct{}

func (f *fakeParticipants) GetByID(ctx context.Context, userID int) (*model.Participant, error) {
	return &model.Participant{ID: userID, ProfileComplete: true, SubscriptionActive: true}, nil
}

type fakeAttempts struct {
	attempts []model.Attempt
	cleared  bool
}

func (f *fakeAttempts) ListForDate(ctx context.Context, db repository.Querier, date string) ([]model.Attempt, error) {
	return f.attempts, nil
}
func (f *fakeAttempts) FinalizeScore(ctx context.Context, db repository.Querier, attemptID string, score int, counted bool, finalizedAt time.Time, reasonCodes []string) error {
	return nil
}
func (f *fakeAttempts) ClearFinalization(ctx context.Context, db repository.Querier, date string) error {
	f.cleared = true
	return nil
}

type fakeWinners struct {
	deleted bool
	winners []model.Winner
}

func (f *fakeWinners) DeleteForDate(ctx context.Context, db repository.Querier, date string) error {
	f.deleted = true
	return nil
}
func (f *fakeWinners) InsertAll(ctx context.Context, db winnerCopier, winners []model.Winner) error {
	f.winners = winners
	return nil
}

type fakeToken struct{ val int64 }

func (f *fakeToken) AcquireFinalizeToken(ctx context.Context, date string) (int64, error) {
	f.val++
	return f.val, nil
}

type fakeTransitioner struct{ to model.QuizState }

func (f *fakeTransitioner) Transition(ctx context.Context, date string, from, to model.QuizState, at time.Time, actor model.AuditActor, actorID *int) (*model.Quiz, error) {
	f.to = to
	return &model.Quiz{Date: date, State: to}, nil
}

type fakeNotifier struct{ published bool }

func (f *fakeNotifier) PublishFinalized(ctx context.Context, date string, winners []model.Winner) error {
	f.published = true
	return nil
}

func buildAttempt(userID int, score int) model.Attempt {
	a := model.Attempt{ID: "attempt-" + string(rune('a'+userID)), UserID: userID, QuizStartedAt: time.Now().Add(-20 * time.Minute)}
	for i := 0; i < model.TotalSlots; i++ {
		a.Permutation[i] = i
	}
	completed := a.QuizStartedAt.Add(10 * time.Minute)
	a.CompletedAt = &completed
	for slot := 0; slot < score; slot++ {
		v := 0
		a.Answers[slot] = &v
	}
	return a
}

func TestFinalizeRanksByScoreThenTime(t *testing.T) {
	c, err := clock.New("Asia/Kolkata", 18, 0)
	require.NoError(t, err)
	date := c.DateKey(c.Now())

	questions := map[string]model.Question{}
	questionIDs := make([]string, model.TotalSlots)
	for i := 0; i < model.TotalSlots; i++ {
		id := "q-" + string(rune('a'+i%26))
		questionIDs[i] = id
		questions[id] = model.Question{ID: id, CorrectIndex: 0}
	}

	quizzes := &fakeQuizzes{quiz: model.Quiz{Date: date, State: model.QuizEnded, QuestionIDs: questionIDs}}
	a1 := buildAttempt(1, 10)
	a2 := buildAttempt(2, 5)
	attempts := &fakeAttempts{attempts: []model.Attempt{a1, a2}}
	winners := &fakeWinners{}
	token := &fakeToken{}
	transitioner := &fakeTransitioner{}
	notifier := &fakeNotifier{}
	beginner := &fakeTxBeginner{}

	f := New(c, beginner, quizzes, &fakeQuestions{byID: questions}, &fakePayments{}, &fakeParticipants{}, attempts, winners, token, transitioner, notifier, zerolog.Nop())

	err = f.Finalize(context.Background(), date)
	require.NoError(t, err)
	require.True(t, winners.deleted)
	require.True(t, attempts.cleared)
	require.Len(t, winners.winners, 2)
	require.Equal(t, 1, winners.winners[0].UserID)
	require.Equal(t, 2, winners.winners[1].UserID)
	require.Equal(t, model.QuizFinalized, transitioner.to)
	require.True(t, notifier.published)
	require.True(t, beginner.tx.committed)
	require.False(t, beginner.tx.rolledBack)
}

func TestFinalizeIsNoopForSecondCaller(t *testing.T) {
	c, err := clock.New("Asia/Kolkata", 18, 0)
	require.NoError(t, err)
	date := c.DateKey(c.Now())

	quizzes := &fakeQuizzes{quiz: model.Quiz{Date: date, State: model.QuizEnded}}
	winners := &fakeWinners{}
	attempts := &fakeAttempts{}
	token := &fakeToken{val: 1} // next Acquire returns 2
	transitioner := &fakeTransitioner{}
	beginner := &fakeTxBeginner{}

	f := New(c, beginner, quizzes, &fakeQuestions{byID: map[string]model.Question{}}, &fakePayments{}, &fakeParticipants{}, attempts, winners, token, transitioner, &fakeNotifier{}, zerolog.Nop())

	err = f.Finalize(context.Background(), date)
	require.NoError(t, err)
	require.False(t, winners.deleted)
}
