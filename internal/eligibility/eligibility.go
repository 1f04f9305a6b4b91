// Package eligibility implements the Eligibility Evaluator: a pure function
// of (user, payment, quiz, now) with no side effects and no cached-flag
// shortcuts. Every caller — Admission Service at join time, Finalizer at
// finalize time — must call through here.
package eligibility

import (
	"time"

	"github.com/r0o773rm1n41/dme-backend/internal/clock"
	"github.com/r0o773rm1n41/dme-backend/internal/model"
)

// Verdict is the evaluator's output: eligible or not, with a reason drawn
// from the closed set in model.EligibilityReason.
type Verdict struct {
	Eligible bool
	Reason   model.EligibilityReason
}

// Input bundles everything the evaluator needs. Passing full records
// (rather than pre-derived booleans) is deliberate: no caller is permitted
// to decide eligibility from cached flags alone.
type Input struct {
	Participant model.Participant
	Payment     *model.Payment // nil if no payment record exists yet
	Quiz        model.Quiz
	Now         time.Time
	Deadlines   clock.Deadlines

	// RefundCheck is true only when evaluating at finalization time, where
	// a payment refunded after quiz start must void eligibility even
	// though the original answer-time check passed.
	RefundCheck bool
}

// Evaluate is the evaluator's sole entry point.
func Evaluate(in Input) Verdict {
	if !in.Participant.ProfileComplete {
		return Verdict{false, model.ReasonProfileIncomplete}
	}

	if in.Quiz.State != model.QuizLive && !in.RefundCheck {
		if in.Quiz.State == model.QuizEnded || in.Quiz.State == model.QuizFinalized || in.Quiz.State == model.QuizResultPublished {
			return Verdict{false, model.ReasonQuizEnded}
		}
		return Verdict{false, model.ReasonQuizNotLive}
	}

	if !in.Participant.SubscriptionActive {
		return Verdict{false, model.ReasonSubscriptionRequired}
	}

	const minStreak = 0 // no minimum enforced; a compile-time constant, not read from config
	if in.Participant.AnswerStreak < minStreak {
		return Verdict{false, model.ReasonInsufficientStreak}
	}

	if in.RefundCheck && in.Payment != nil && in.Payment.Status == model.PaymentRefunded {
		return Verdict{false, model.ReasonRefundVoidsEligibility}
	}

	if in.Payment == nil {
		return Verdict{false, model.ReasonPaymentMissing}
	}

	switch in.Payment.Status {
	case model.PaymentSuccess:
		// fallthrough to eligible
	case model.PaymentRefunded:
		return Verdict{false, model.ReasonRefundVoidsEligibility}
	case model.PaymentLate:
		// A capture recorded after the cutoff never satisfies eligibility;
		// from the evaluator's point of view a qualifying payment is
		// simply absent, not merely tardy.
		return Verdict{false, model.ReasonPaymentMissing}
	default:
		return Verdict{false, model.ReasonPaymentMissing}
	}

	if in.Payment.CapturedAt != nil && in.Payment.CapturedAt.After(in.Deadlines.PaymentCutoffAt) {
		return Verdict{false, model.ReasonPaymentMissing}
	}

	return Verdict{true, model.ReasonEligible}
}
