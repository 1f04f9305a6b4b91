package admission

import (
	"context"
	"testing"

	"github.com/r0o773rm1n41/dme-backend/internal/clock"
	"github.com/r0o773rm1n41/dme-backend/internal/model"
	"github.com/stretchr/testify/require"
)

type fakeCheatSink struct{ events []model.AntiCheatEvent }

func (f *fakeCheatSink) Record(ctx context.Context, ev model.AntiCheatEvent) {
	f.events = append(f.events, ev)
}

type fakeQuizzes struct{ quiz model.Quiz }

func (f *fakeQuizzes) GetByDate(ctx context.Context, date string) (*model.Quiz, error) {
	return &f.quiz, nil
}

type fakePayments struct{ payment *model.Payment }

func (f *fakePayments) GetByUserAndDate(ctx context.Context, userID int, date string) (*model.Payment, error) {
	if f.payment == nil {
		return nil, nil
	}
	return f.payment, nil
}

func (f *fakePayments) GrantFreeCredit(ctx context.Context, userID int, date string) (*model.Payment, error) {
	p := &model.Payment{UserID: userID, QuizDate: date, Status: model.PaymentSuccess, Type: model.PaymentTypeFreeCredit}
	f.payment = p
	return p, nil
}

type fakeAttempts struct {
	byUser map[int]*model.Attempt
}

func newFakeAttempts() *fakeAttempts { return &fakeAttempts{byUser: map[int]*model.Attempt{}} }

func (f *fakeAttempts) CreateIfAbsent(ctx context.Context, a *model.Attempt) (*model.Attempt, bool, error) {
	if existing, ok := f.byUser[a.UserID]; ok {
		return existing, false, nil
	}
	f.byUser[a.UserID] = a
	return a, true, nil
}

func (f *fakeAttempts) GetByUserAndDate(ctx context.Context, userID int, date string) (*model.Attempt, error) {
	return f.byUser[userID], nil
}

type fakeLimiter struct{ cap int64 }

func (f *fakeLimiter) AcquireJoinSlot(ctx context.Context, date string, cap int64) (bool, bool) {
	return true, false
}
func (f *fakeLimiter) ReleaseJoinSlot(ctx context.Context, date string) {}

func newTestService(t *testing.T, quiz model.Quiz, payment *model.Payment) (*Service, *fakeAttempts, *fakeCheatSink) {
	c, err := clock.New("Asia/Kolkata", 18, 0)
	require.NoError(t, err)
	attempts := newFakeAttempts()
	sink := &fakeCheatSink{}
	s := New(c, &fakeQuizzes{quiz: quiz}, &fakePayments{payment: payment}, attempts, &fakeLimiter{}, sink)
	return s, attempts, sink
}

func TestJoinRejectsWhenNotLive(t *testing.T) {
	s, _, _ := newTestService(t, model.Quiz{State: model.QuizLocked}, nil)
	_, err := s.Join(context.Background(), model.Participant{ID: 1, ProfileComplete: true}, model.JoinQuizRequest{DeviceID: "d1"})
	require.ErrorIs(t, err, ErrQuizNotLive)
}

func TestJoinIsIdempotentForSameDevice(t *testing.T) {
	s, _, _ := newTestService(t, model.Quiz{State: model.QuizLive}, &model.Payment{Status: model.PaymentSuccess})
	req := model.JoinQuizRequest{DeviceID: "d1", DeviceFingerprint: "fp1"}
	p := model.Participant{ID: 7, ProfileComplete: true}

	first, err := s.Join(context.Background(), p, req)
	require.NoError(t, err)

	second, err := s.Join(context.Background(), p, req)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
}

func TestJoinRejectsDifferentDeviceOnReJoinAndFlagsCheat(t *testing.T) {
	s, _, sink := newTestService(t, model.Quiz{State: model.QuizLive}, &model.Payment{Status: model.PaymentSuccess})
	p := model.Participant{ID: 9, ProfileComplete: true}

	_, err := s.Join(context.Background(), p, model.JoinQuizRequest{DeviceID: "d1", DeviceFingerprint: "fp1"})
	require.NoError(t, err)

	_, err = s.Join(context.Background(), p, model.JoinQuizRequest{DeviceID: "d2", DeviceFingerprint: "fp2"})
	require.ErrorIs(t, err, ErrDeviceMismatch)
	require.Len(t, sink.events, 1)
	require.Equal(t, model.EventDeviceMismatch, sink.events[0].Type)
}

func TestJoinRejectsReJoinAfterAnswersRecorded(t *testing.T) {
	s, attempts, sink := newTestService(t, model.Quiz{State: model.QuizLive}, &model.Payment{Status: model.PaymentSuccess})
	p := model.Participant{ID: 11, ProfileComplete: true}

	first, err := s.Join(context.Background(), p, model.JoinQuizRequest{DeviceID: "d1", DeviceFingerprint: "fp1"})
	require.NoError(t, err)

	selected := 0
	first.Answers[0] = &selected
	attempts.byUser[p.ID] = first

	// Even the same device is rejected once answers exist for this attempt.
	_, err = s.Join(context.Background(), p, model.JoinQuizRequest{DeviceID: "d1", DeviceFingerprint: "fp1"})
	require.ErrorIs(t, err, ErrAlreadyFinalized)
	require.Empty(t, sink.events)
}

func TestPermutationIsDeterministicAcrossCalls(t *testing.T) {
	p1, o1 := derivePermutation(42, "2026-08-06")
	p2, o2 := derivePermutation(42, "2026-08-06")
	require.Equal(t, p1, p2)
	require.Equal(t, o1, o2)
}

func TestPermutationDiffersAcrossUsers(t *testing.T) {
	p1, _ := derivePermutation(1, "2026-08-06")
	p2, _ := derivePermutation(2, "2026-08-06")
	require.NotEqual(t, p1, p2)
}
