// Package finalizer implements the Finalizer: the single computation that
// closes a day's quiz, scores every attempt, ranks winners, and transitions
// ENDED to FINALIZED. It runs exactly once per day behind the Ephemeral
// Coordinator's finalize-token fence; every retry after a crash recomputes
// from scratch rather than resuming partial state, per spec.md §9 Open
// Question (i) — there is no alternate non-transactional path.
package finalizer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/r0o773rm1n41/dme-backend/internal/clock"
	"github.com/r0o773rm1n41/dme-backend/internal/eligibility"
	"github.com/r0o773rm1n41/dme-backend/internal/model"
	"github.com/r0o773rm1n41/dme-backend/internal/repository"
	"github.com/r0o773rm1n41/dme-backend/internal/scoring"
	"github.com/rs/zerolog"
)

type Quizzes interface {
	GetByDate(ctx context.Context, date string) (*model.Quiz, error)
}

type Questions interface {
	GetByIDs(ctx context.Context, ids []string) (map[string]model.Question, error)
}

type Payments interface {
	GetByUserAndDate(ctx context.Context, userID int, date string) (*model.Payment, error)
}

// Participants is the State Store's participant lookup. The Finalizer
// needs the full record, not a cached eligibility flag, because
// Evaluate refuses to decide eligibility from anything less.
type Participants interface {
	GetByID(ctx context.Context, userID int) (*model.Participant, error)
}

type Attempts interface {
	ListForDate(ctx context.Context, db repository.Querier, date string) ([]model.Attempt, error)
	FinalizeScore(ctx context.Context, db repository.Querier, attemptID string, score int, counted bool, finalizedAt time.Time, reasonCodes []string) error
	ClearFinalization(ctx context.Context, db repository.Querier, date string) error
}

// winnerCopier is the subset of pgx's bulk-insert surface InsertAll needs;
// both *pgxpool.Pool and pgx.Tx satisfy it.
type winnerCopier = repository.Copier

type Winners interface {
	DeleteForDate(ctx context.Context, db repository.Querier, date string) error
	InsertAll(ctx context.Context, db winnerCopier, winners []model.Winner) error
}

type Token interface {
	AcquireFinalizeToken(ctx context.Context, date string) (int64, error)
}

// Tx is the transactional handle the clear-recompute-insert sequence runs
// against: every read and write the Finalizer performs after opening one
// goes through this same handle, so either the whole sequence lands or
// none of it does.
type Tx interface {
	repository.Querier
	winnerCopier
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TxBeginner opens the transactional scope spec.md §4.9 requires: a crash
// between clearing partial winners and re-inserting the recomputed set
// must never leave the day's winners table empty with no recovery path.
type TxBeginner interface {
	Begin(ctx context.Context) (Tx, error)
}

// poolTxBeginner adapts *pgxpool.Pool to TxBeginner. pgx.Tx's method set
// is a strict superset of Tx's, so the value pool.Begin returns satisfies
// Tx without any wrapping.
type poolTxBeginner struct {
	pool *pgxpool.Pool
}

// NewPoolTxBeginner lets the composition root hand the Finalizer a real
// database connection pool without the Finalizer package importing
// pgxpool directly into its exported interface surface.
func NewPoolTxBeginner(pool *pgxpool.Pool) TxBeginner {
	return poolTxBeginner{pool: pool}
}

func (b poolTxBeginner) Begin(ctx context.Context) (Tx, error) {
	return b.pool.Begin(ctx)
}

type Transitioner interface {
	Transition(ctx context.Context, date string, from, to model.QuizState, at time.Time, actor model.AuditActor, actorID *int) (*model.Quiz, error)
}

// Notifier pushes the published leaderboard to the Push Channel once
// finalization completes.
type Notifier interface {
	PublishFinalized(ctx context.Context, date string, winners []model.Winner) error
}

type Finalizer struct {
	clock        *clock.Clock
	db           TxBeginner
	quizzes      Quizzes
	questions    Questions
	payments     Payments
	participants Participants
	attempts     Attempts
	winners      Winners
	token        Token
	transitioner Transitioner
	notifier     Notifier
	log          zerolog.Logger
}

func New(c *clock.Clock, db TxBeginner, quizzes Quizzes, questions Questions, payments Payments, participants Participants,
	attempts Attempts, winners Winners, token Token, transitioner Transitioner, notifier Notifier, log zerolog.Logger) *Finalizer {
	return &Finalizer{
		clock: c, db: db, quizzes: quizzes, questions: questions, payments: payments, participants: participants,
		attempts: attempts, winners: winners, token: token, transitioner: transitioner, notifier: notifier,
		log: log.With().Str("component", "finalizer").Logger(),
	}
}

// Finalize is idempotent at the process level: only the caller that wins
// the Coordinator's finalize-token fence performs the computation. Every
// other caller (concurrent tick, retried admin force-finalize) returns nil
// immediately having done nothing.
func (f *Finalizer) Finalize(ctx context.Context, date string) error {
	token, err := f.token.AcquireFinalizeToken(ctx, date)
	if err != nil {
		return fmt.Errorf("acquire finalize token: %w", err)
	}
	if token != 1 {
		f.log.Debug().Str("date", date).Msg("finalize already claimed by another caller")
		return nil
	}

	start := f.clock.Now()
	if err := f.run(ctx, date); err != nil {
		return err
	}
	f.log.Info().Str("date", date).Dur("elapsed", time.Since(start)).Msg("finalize complete")
	return nil
}

func (f *Finalizer) run(ctx context.Context, date string) error {
	quiz, err := f.quizzes.GetByDate(ctx, date)
	if err != nil {
		return fmt.Errorf("load quiz: %w", err)
	}
	if quiz.State != model.QuizEnded {
		return fmt.Errorf("quiz %s is in state %s, not ENDED", date, quiz.State)
	}

	questions, err := f.questions.GetByIDs(ctx, quiz.QuestionIDs)
	if err != nil {
		return fmt.Errorf("load questions: %w", err)
	}

	deadlines, err := f.clock.DeadlinesFor(date)
	if err != nil {
		return fmt.Errorf("load deadlines: %w", err)
	}

	// spec.md §4.9 step 2 requires the clear, the attempt scan, and the
	// re-evaluation to happen in a single transactional scope: a crash
	// between the delete and the re-insert must never leave the day's
	// winners table empty with no recovery path. Every write below runs
	// against tx, not f.db, and nothing commits until the very end.
	tx, err := f.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin finalize transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := f.winners.DeleteForDate(ctx, tx, date); err != nil {
		return fmt.Errorf("clear partial winners: %w", err)
	}
	if err := f.attempts.ClearFinalization(ctx, tx, date); err != nil {
		return fmt.Errorf("clear partial scores: %w", err)
	}

	attempts, err := f.attempts.ListForDate(ctx, tx, date)
	if err != nil {
		return fmt.Errorf("load attempts: %w", err)
	}

	scored := make([]scoredAttempt, 0, len(attempts))
	for _, a := range attempts {
		payment, _ := f.payments.GetByUserAndDate(ctx, a.UserID, date)
		participant, err := f.participants.GetByID(ctx, a.UserID)
		if err != nil {
			return fmt.Errorf("load participant %d: %w", a.UserID, err)
		}
		verdict := eligibility.Evaluate(eligibility.Input{
			Participant: *participant,
			Payment:     payment,
			Quiz:        *quiz,
			Now:         f.clock.Now(),
			Deadlines:   deadlines,
			RefundCheck: true,
		})

		score, correct := scoring.Attempt(a, quiz, questions)
		counted := verdict.Eligible
		reasonCodes := []string{}
		if !counted {
			reasonCodes = append(reasonCodes, string(verdict.Reason))
		}

		if err := f.attempts.FinalizeScore(ctx, tx, a.ID, score, counted, f.clock.Now(), reasonCodes); err != nil {
			return fmt.Errorf("finalize score for attempt %s: %w", a.ID, err)
		}

		if counted {
			scored = append(scored, scoredAttempt{attempt: a, score: score, correct: correct})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		ti, tj := scored[i].attempt.TotalTimeMs(), scored[j].attempt.TotalTimeMs()
		if ti != tj {
			return ti < tj
		}
		ci, cj := scored[i].attempt.CompletedAt, scored[j].attempt.CompletedAt
		if ci != nil && cj != nil && !ci.Equal(*cj) {
			return ci.Before(*cj)
		}
		if scored[i].attempt.CreatedAt != scored[j].attempt.CreatedAt {
			return scored[i].attempt.CreatedAt.Before(scored[j].attempt.CreatedAt)
		}
		return scored[i].attempt.ID < scored[j].attempt.ID
	})

	if len(scored) > model.MaxWinners {
		dropped := len(scored) - model.MaxWinners
		f.log.Info().Str("date", date).Int("dropped", dropped).Msg("winner set truncated to MaxWinners")
		scored = scored[:model.MaxWinners]
	}

	quizHash := quizIntegrityHash(quiz)
	winners := make([]model.Winner, 0, len(scored))
	for i, s := range scored {
		winners = append(winners, model.Winner{
			QuizDate:             date,
			Rank:                 i + 1,
			UserID:               s.attempt.UserID,
			Score:                s.score,
			TotalTimeMs:          s.attempt.TotalTimeMs(),
			Accuracy:             accuracy(s.correct, s.attempt.AnsweredCount()),
			QuizIntegrityHash:    quizHash,
			AttemptIntegrityHash: attemptIntegrityHash(s.attempt, quizHash),
		})
	}

	if err := f.winners.InsertAll(ctx, tx, winners); err != nil {
		return fmt.Errorf("insert winners: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit finalize transaction: %w", err)
	}

	if _, err := f.transitioner.Transition(ctx, date, model.QuizEnded, model.QuizFinalized, f.clock.Now(), model.AuditActorSystem, nil); err != nil {
		return fmt.Errorf("transition to finalized: %w", err)
	}

	if err := f.notifier.PublishFinalized(ctx, date, winners); err != nil {
		f.log.Error().Err(err).Str("date", date).Msg("failed to publish finalized notification")
	}
	return nil
}

type scoredAttempt struct {
	attempt model.Attempt
	score   int
	correct int
}

func accuracy(correct, answered int) float64 {
	if answered == 0 {
		return 0
	}
	return float64(correct) / float64(answered)
}

// quizIntegrityHash binds a published winner row to the exact question set
// that produced it, so a later audit can detect a quiz definition that
// changed after finalization.
func quizIntegrityHash(quiz *model.Quiz) string {
	encoded, _ := json.Marshal(quiz.QuestionIDs)
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:])
}

// attemptIntegrityHash binds a winner row to the attempt's full answer
// array plus the quiz hash, so a disputed score can be independently
// recomputed from the two hashes and the stored raw data.
func attemptIntegrityHash(a model.Attempt, quizHash string) string {
	encoded, _ := json.Marshal(a.Answers)
	sum := sha256.Sum256(append(encoded, []byte(quizHash)...))
	return hex.EncodeToString(sum[:])
}
