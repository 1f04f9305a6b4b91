// Package fsm implements the Lifecycle FSM: the single entry point through
// which a Quiz row's state field is ever mutated. Every transition is
// atomic (one write sets the new state and its timestamp), audited, and
// broadcast on the Push Channel.
package fsm

import (
	"context"
	"fmt"
	"time"

	"github.com/r0o773rm1n41/dme-backend/internal/model"
)

// ErrInvalidTransition is returned when the requested transition is not in
// the allowed table for the quiz's current state.
type ErrInvalidTransition struct {
	From model.QuizState
	To   model.QuizState
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid transition %s -> %s", e.From, e.To)
}

// transitions is the explicit legal-transition table from spec §4.3.
var transitions = map[model.QuizState]map[model.QuizState]bool{
	model.QuizDraft:           {model.QuizScheduled: true, model.QuizLocked: true},
	model.QuizScheduled:       {model.QuizLocked: true, model.QuizLive: true},
	model.QuizLocked:          {model.QuizPaymentClosed: true, model.QuizLive: true},
	model.QuizPaymentClosed:   {model.QuizLive: true},
	model.QuizLive:            {model.QuizEnded: true},
	model.QuizEnded:           {model.QuizFinalized: true, model.QuizResultPublished: true},
	model.QuizFinalized:       {model.QuizResultPublished: true},
	model.QuizResultPublished: {},
}

// Allowed reports whether `to` is a legal transition from `from`.
func Allowed(from, to model.QuizState) bool {
	next, ok := transitions[from]
	if !ok {
		return false
	}
	return next[to]
}

// Store is the subset of the State Store the FSM needs: an atomic
// compare-and-set on the quiz's state plus the corresponding timestamp
// column, scoped to the quiz's current state so concurrent callers can
// never double-apply the same transition.
type Store interface {
	CASQuizState(ctx context.Context, date string, from, to model.QuizState, at time.Time) (*model.Quiz, error)
}

// Audit records a transition event. Notifier broadcasts it on the Push
// Channel. Both are satisfied by the observability/push packages at wiring
// time; the FSM only depends on these narrow interfaces.
type Audit interface {
	RecordTransition(ctx context.Context, rec model.AuditRecord) error
}

type Notifier interface {
	PublishStateChanged(ctx context.Context, date string, from, to model.QuizState, at time.Time) error
}

// FSM drives legal transitions for quiz rows.
type FSM struct {
	store    Store
	audit    Audit
	notifier Notifier
}

// New builds an FSM wired to its collaborators.
func New(store Store, audit Audit, notifier Notifier) *FSM {
	return &FSM{store: store, audit: audit, notifier: notifier}
}

// Transition attempts to move a quiz from its current state to `to` at
// instant `at`, attributing the transition to the given actor. It fails
// with *ErrInvalidTransition if the move is illegal for the quiz's current
// persisted state (the CAS in the store enforces this is still true at
// write time, serializing concurrent transition attempts for the same
// date).
func (f *FSM) Transition(ctx context.Context, date string, from, to model.QuizState, at time.Time, actor model.AuditActor, actorID *int) (*model.Quiz, error) {
	if !Allowed(from, to) {
		return nil, &ErrInvalidTransition{From: from, To: to}
	}

	quiz, err := f.store.CASQuizState(ctx, date, from, to, at)
	if err != nil {
		return nil, err
	}

	rec := model.AuditRecord{
		Actor:      actor,
		ActorID:    actorID,
		Action:     fmt.Sprintf("quiz_transition:%s->%s", from, to),
		TargetType: "quiz",
		TargetID:   date,
		At:         at,
	}
	if err := f.audit.RecordTransition(ctx, rec); err != nil {
		return quiz, fmt.Errorf("record transition audit: %w", err)
	}

	if err := f.notifier.PublishStateChanged(ctx, date, from, to, at); err != nil {
		return quiz, fmt.Errorf("publish state change: %w", err)
	}

	return quiz, nil
}
