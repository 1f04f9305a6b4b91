// Package scheduler implements the Scheduler: the wall-clock-deadline-
// driven component that walks each day's quiz through its four unattended
// Lifecycle FSM transitions (LOCKED at T-10m, PAYMENT_CLOSED at T-5m, LIVE
// at T, ENDED at T+30m) and advances the Ephemeral Coordinator's current
// question index while a quiz is LIVE. It never computes a deadline
// itself — every boundary comes from internal/clock.
package scheduler

import (
	"context"
	"time"

	"github.com/r0o773rm1n41/dme-backend/internal/clock"
	"github.com/r0o773rm1n41/dme-backend/internal/model"
	"github.com/rs/zerolog"
)

// tickInterval bounds how late a deadline-crossing can be noticed. Every
// boundary in this engine tolerates being a few seconds late, so a short,
// cheap poll beats a precise per-deadline timer.
const tickInterval = 3 * time.Second

// questionDuration is the fixed per-slot advancement cadence (spec.md
// §4.5, §4.10): the Coordinator's current index moves forward every 15s
// while LIVE, regardless of the live window's length. This must equal the
// Answer Ingestor's and Question Server's slotWindow — a cadence longer
// than the answer window would strand clients in a dead period where the
// slot has expired but the cohort hasn't advanced past it yet.
const questionDuration = 15 * time.Second

// QuizLookup is the subset of the State Store the Scheduler reads.
type QuizLookup interface {
	GetByDate(ctx context.Context, date string) (*model.Quiz, error)
}

// Transitioner is the subset of the Lifecycle FSM the Scheduler drives.
type Transitioner interface {
	Transition(ctx context.Context, date string, from, to model.QuizState, at time.Time, actor model.AuditActor, actorID *int) (*model.Quiz, error)
}

// IndexAdvancer is the subset of the Ephemeral Coordinator the Scheduler
// drives while a quiz is LIVE.
type IndexAdvancer interface {
	CurrentIndex(ctx context.Context, date string) (int, error)
	AdvanceTo(ctx context.Context, date string, slot int, startedAt time.Time) error
}

// Finalizer is invoked once a quiz reaches ENDED.
type Finalizer interface {
	Finalize(ctx context.Context, date string) error
}

// Scheduler owns the unattended lifecycle clock for "today's" quiz. Each
// process runs exactly one Scheduler; running two against the same date is
// safe because every write beneath it (FSM transitions, Coordinator
// advancement, finalize) is itself fenced or CAS-guarded.
type Scheduler struct {
	clock      *clock.Clock
	quizzes    QuizLookup
	transition Transitioner
	index      IndexAdvancer
	finalizer  Finalizer
	log        zerolog.Logger
}

func New(c *clock.Clock, quizzes QuizLookup, transition Transitioner, index IndexAdvancer, finalizer Finalizer, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		clock:      c,
		quizzes:    quizzes,
		transition: transition,
		index:      index,
		finalizer:  finalizer,
		log:        log.With().Str("component", "scheduler").Logger(),
	}
}

// Start runs the Scheduler's tick loop until ctx is cancelled, the same
// long-lived-goroutine shape the teacher's workers use.
func (s *Scheduler) Start(ctx context.Context) {
	s.log.Info().Msg("scheduler started")
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick evaluates today's quiz against the clock and drives whatever
// transition or advancement is due. Called on startup too, so a process
// that was down across a deadline catches up immediately rather than
// waiting for the next tick — this is the Scheduler's crash-recovery path.
func (s *Scheduler) tick(ctx context.Context) {
	now := s.clock.Now()
	date := s.clock.DateKey(now)

	quiz, err := s.quizzes.GetByDate(ctx, date)
	if err != nil {
		return
	}
	deadlines, err := s.clock.DeadlinesFor(date)
	if err != nil {
		s.log.Error().Err(err).Str("date", date).Msg("cannot compute deadlines")
		return
	}

	switch quiz.State {
	case model.QuizDraft, model.QuizScheduled:
		if !now.Before(deadlines.LockAt) {
			s.transitionTo(ctx, date, quiz.State, model.QuizLocked, deadlines.LockAt)
		}
	case model.QuizLocked:
		if !now.Before(deadlines.PaymentCutoffAt) {
			s.transitionTo(ctx, date, model.QuizLocked, model.QuizPaymentClosed, deadlines.PaymentCutoffAt)
		}
	case model.QuizPaymentClosed:
		if !now.Before(deadlines.LiveAt) {
			s.transitionTo(ctx, date, model.QuizPaymentClosed, model.QuizLive, deadlines.LiveAt)
		}
	case model.QuizLive:
		if !now.Before(deadlines.LiveEndAt) {
			s.transitionTo(ctx, date, model.QuizLive, model.QuizEnded, deadlines.LiveEndAt)
			go s.runFinalizer(date)
			return
		}
		s.advanceQuestion(ctx, date, now, deadlines)
	case model.QuizEnded:
		go s.runFinalizer(date)
	}
}

func (s *Scheduler) transitionTo(ctx context.Context, date string, from, to model.QuizState, at time.Time) {
	if _, err := s.transition.Transition(ctx, date, from, to, at, model.AuditActorSystem, nil); err != nil {
		s.log.Error().Err(err).Str("date", date).Str("from", string(from)).Str("to", string(to)).
			Msg("scheduled transition failed")
	}
}

func (s *Scheduler) advanceQuestion(ctx context.Context, date string, now time.Time, d clock.Deadlines) {
	elapsed := now.Sub(d.LiveAt)
	wantSlot := int(elapsed / questionDuration)
	if wantSlot >= model.TotalSlots {
		wantSlot = model.TotalSlots - 1
	}

	current, err := s.index.CurrentIndex(ctx, date)
	if err != nil {
		s.log.Error().Err(err).Str("date", date).Msg("cannot read current index")
		return
	}
	if wantSlot <= current {
		return
	}
	startedAt := d.LiveAt.Add(time.Duration(wantSlot) * questionDuration)
	if err := s.index.AdvanceTo(ctx, date, wantSlot, startedAt); err != nil {
		s.log.Error().Err(err).Str("date", date).Int("slot", wantSlot).Msg("advance failed")
	}
}

func (s *Scheduler) runFinalizer(date string) {
	ctx := context.Background()
	if err := s.finalizer.Finalize(ctx, date); err != nil {
		s.log.Error().Err(err).Str("date", date).Msg("finalize failed, will retry next tick")
	}
}
