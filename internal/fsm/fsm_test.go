package fsm

import (
	"context"
	"testing"
	"time"

	"github.com/r0o773rm1n41/dme-backend/internal/model"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	quiz model.Quiz
}

func (s *fakeStore) CASQuizState(ctx context.Context, date string, from, to model.QuizState, at time.Time) (*model.Quiz, error) {
	if s.quiz.State != from {
		return nil, &ErrInvalidTransition{From: s.quiz.State, To: to}
	}
	s.quiz.State = to
	return &s.quiz, nil
}

type fakeAudit struct{ records []model.AuditRecord }

func (a *fakeAudit) RecordTransition(ctx context.Context, rec model.AuditRecord) error {
	a.records = append(a.records, rec)
	return nil
}

type fakeNotifier struct{ published int }

func (n *fakeNotifier) PublishStateChanged(ctx context.Context, date string, from, to model.QuizState, at time.Time) error {
	n.published++
	return nil
}

func TestAllowedTransitionTable(t *testing.T) {
	require.True(t, Allowed(model.QuizDraft, model.QuizScheduled))
	require.True(t, Allowed(model.QuizDraft, model.QuizLocked))
	require.False(t, Allowed(model.QuizDraft, model.QuizLive))
	require.True(t, Allowed(model.QuizLocked, model.QuizPaymentClosed))
	require.True(t, Allowed(model.QuizLive, model.QuizEnded))
	require.False(t, Allowed(model.QuizLive, model.QuizFinalized))
	require.True(t, Allowed(model.QuizEnded, model.QuizFinalized))
	require.True(t, Allowed(model.QuizEnded, model.QuizResultPublished))
	require.False(t, Allowed(model.QuizResultPublished, model.QuizDraft))
}

func TestTransitionSucceeds(t *testing.T) {
	store := &fakeStore{quiz: model.Quiz{Date: "2026-08-06", State: model.QuizLive}}
	audit := &fakeAudit{}
	notifier := &fakeNotifier{}
	f := New(store, audit, notifier)

	quiz, err := f.Transition(context.Background(), "2026-08-06", model.QuizLive, model.QuizEnded, time.Now(), model.AuditActorSystem, nil)
	require.NoError(t, err)
	require.Equal(t, model.QuizEnded, quiz.State)
	require.Len(t, audit.records, 1)
	require.Equal(t, 1, notifier.published)
}

func TestTransitionRejectsIllegalMove(t *testing.T) {
	store := &fakeStore{quiz: model.Quiz{Date: "2026-08-06", State: model.QuizDraft}}
	f := New(store, &fakeAudit{}, &fakeNotifier{})

	_, err := f.Transition(context.Background(), "2026-08-06", model.QuizDraft, model.QuizLive, time.Now(), model.AuditActorAdmin, nil)
	require.Error(t, err)
	var invalidErr *ErrInvalidTransition
	require.ErrorAs(t, err, &invalidErr)
}
