// Package admission implements the Admission Service: the single path by
// which a participant joins a day's quiz. It decides eligibility once, at
// join time, and freezes the result as an immutable snapshot on the
// Attempt row — later reads of "is this participant eligible" come from
// that snapshot, not a re-evaluation, except for the Finalizer's own
// closing re-check.
package admission

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/rand"

	"github.com/google/uuid"
	"github.com/r0o773rm1n41/dme-backend/internal/clock"
	"github.com/r0o773rm1n41/dme-backend/internal/eligibility"
	"github.com/r0o773rm1n41/dme-backend/internal/model"
)

var (
	ErrQuizNotLive      = errors.New("quiz is not live")
	ErrAlreadyFinalized = errors.New("attempt already has recorded answers")
	ErrDeviceMismatch   = errors.New("existing attempt belongs to a different device")
	ErrJoinThrottled    = errors.New("join throttled, try again shortly")
)

// freeCreditStreakThreshold is how many consecutive correctly-finalized
// days earn a participant a free entry on the next one.
const freeCreditStreakThreshold = 5

type Quizzes interface {
	GetByDate(ctx context.Context, date string) (*model.Quiz, error)
}

type Payments interface {
	GetByUserAndDate(ctx context.Context, userID int, date string) (*model.Payment, error)
	GrantFreeCredit(ctx context.Context, userID int, date string) (*model.Payment, error)
}

type Attempts interface {
	CreateIfAbsent(ctx context.Context, a *model.Attempt) (*model.Attempt, bool, error)
	GetByUserAndDate(ctx context.Context, userID int, date string) (*model.Attempt, error)
}

// CheatSink receives anti-cheat signals raised while admitting a
// participant. Implementations must not block the join path.
type CheatSink interface {
	Record(ctx context.Context, ev model.AntiCheatEvent)
}

// Limiter is the Ephemeral Coordinator's rate-limit surface. A Redis
// failure here degrades to "admit" (fail open) per the Coordinator's own
// contract; Admission never blocks a join solely because the limiter is
// unavailable.
type Limiter interface {
	AcquireJoinSlot(ctx context.Context, date string, cap int64) (admitted bool, degraded bool)
	ReleaseJoinSlot(ctx context.Context, date string)
}

// joinSlotCap bounds concurrent in-flight join attempts per day, a soft
// protective cap rather than a hard participant limit.
const joinSlotCap = 5000

type Service struct {
	clock     *clock.Clock
	quizzes   Quizzes
	payments  Payments
	attempts  Attempts
	limiter   Limiter
	cheatSink CheatSink
}

func New(c *clock.Clock, quizzes Quizzes, payments Payments, attempts Attempts, limiter Limiter, cheatSink CheatSink) *Service {
	return &Service{clock: c, quizzes: quizzes, payments: payments, attempts: attempts, limiter: limiter, cheatSink: cheatSink}
}

// Join admits participant userID into today's quiz. When an attempt
// already exists, a re-join fails with ErrAlreadyFinalized once any answer
// is recorded (from any device); before that, the same device gets the
// existing attempt unchanged and a different device gets ErrDeviceMismatch.
func (s *Service) Join(ctx context.Context, participant model.Participant, req model.JoinQuizRequest) (*model.Attempt, error) {
	now := s.clock.Now()
	date := s.clock.DateKey(now)

	quiz, err := s.quizzes.GetByDate(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("load quiz %s: %w", date, err)
	}
	if quiz.State != model.QuizLive {
		return nil, ErrQuizNotLive
	}

	admitted, _ := s.limiter.AcquireJoinSlot(ctx, date, joinSlotCap)
	if !admitted {
		return nil, ErrJoinThrottled
	}
	defer s.limiter.ReleaseJoinSlot(ctx, date)

	deadlines, err := s.clock.DeadlinesFor(date)
	if err != nil {
		return nil, err
	}

	payment, err := s.payments.GetByUserAndDate(ctx, participant.ID, date)
	if err != nil {
		payment = nil
	}
	if payment == nil && participant.AnswerStreak >= freeCreditStreakThreshold {
		if granted, gerr := s.payments.GrantFreeCredit(ctx, participant.ID, date); gerr == nil {
			payment = granted
		}
	}

	verdict := eligibility.Evaluate(eligibility.Input{
		Participant: participant,
		Payment:     payment,
		Quiz:        *quiz,
		Now:         now,
		Deadlines:   deadlines,
	})

	deviceHash := hashDevice(req.DeviceID, req.DeviceFingerprint)
	permutation, optionPermutations := derivePermutation(participant.ID, date)

	attempt := &model.Attempt{
		ID:          uuid.NewString(),
		UserID:      participant.ID,
		QuizDate:    date,
		Permutation: permutation,
		OptionPermutations: optionPermutations,
		DeviceHash:  deviceHash,
		Eligibility: model.EligibilitySnapshot{Eligible: verdict.Eligible, Reason: verdict.Reason},
		QuizStartedAt: now,
	}

	existing, created, err := s.attempts.CreateIfAbsent(ctx, attempt)
	if err != nil {
		return nil, err
	}
	if !created {
		// spec §4.6 step 6: a re-join against an existing attempt row has
		// two distinct failure outcomes. Answers already recorded means
		// this attempt is done, regardless of which device sent them.
		if existing.AnsweredCount() > 0 {
			return existing, ErrAlreadyFinalized
		}
		// No answers yet, but a different device holds the attempt: this is
		// the anti-cheat-relevant case, since it means someone is trying to
		// continue the same day's attempt from a second device.
		if existing.DeviceHash != deviceHash {
			s.cheatSink.Record(ctx, model.AntiCheatEvent{UserID: participant.ID, QuizDate: date, Type: model.EventDeviceMismatch, At: now})
			return existing, ErrDeviceMismatch
		}
		return existing, nil
	}
	return existing, nil
}

func hashDevice(deviceID, fingerprint string) string {
	sum := sha256.Sum256([]byte(deviceID + "|" + fingerprint))
	return hex.EncodeToString(sum[:])
}

// derivePermutation builds the participant's fixed ordering over the
// fifty question slots and, per slot, a fixed ordering over that
// question's four options. Both are seeded deterministically from
// (userID, date) and (userID, date, slot) respectively, so the same
// participant always sees the same shuffle for a given day even across a
// crash-and-resume — nothing about the shuffle is stored independently of
// being re-derivable from these two identifiers.
func derivePermutation(userID int, date string) (permutation [model.TotalSlots]int, optionPermutations [model.TotalSlots][4]int) {
	baseSeed := seedFor(fmt.Sprintf("%d|%s", userID, date))
	r := rand.New(rand.NewSource(baseSeed))
	for i := 0; i < model.TotalSlots; i++ {
		permutation[i] = i
	}
	r.Shuffle(model.TotalSlots, func(i, j int) {
		permutation[i], permutation[j] = permutation[j], permutation[i]
	})

	for slot := 0; slot < model.TotalSlots; slot++ {
		slotSeed := seedFor(fmt.Sprintf("%d|%s|%d", userID, date, slot))
		sr := rand.New(rand.NewSource(slotSeed))
		opts := [4]int{0, 1, 2, 3}
		sr.Shuffle(4, func(i, j int) { opts[i], opts[j] = opts[j], opts[i] })
		optionPermutations[slot] = opts
	}
	return permutation, optionPermutations
}

func seedFor(key string) int64 {
	sum := sha256.Sum256([]byte(key))
	var v int64
	for i := 0; i < 8; i++ {
		v = v<<8 | int64(sum[i])
	}
	if v < 0 {
		v = -v
	}
	return v
}
