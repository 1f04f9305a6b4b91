package eligibility

import (
	"testing"
	"time"

	"github.com/r0o773rm1n41/dme-backend/internal/clock"
	"github.com/r0o773rm1n41/dme-backend/internal/model"
	"github.com/stretchr/testify/require"
)

func baseInput(t *testing.T) Input {
	c, err := clock.New("Asia/Kolkata", 20, 0)
	require.NoError(t, err)
	dl, err := c.DeadlinesFor("2026-08-06")
	require.NoError(t, err)

	return Input{
		Participant: model.Participant{
			ProfileComplete:    true,
			SubscriptionActive: true,
			AnswerStreak:       3,
		},
		Quiz: model.Quiz{
			Date:  "2026-08-06",
			State: model.QuizLive,
		},
		Now:       dl.LiveAt.Add(time.Minute),
		Deadlines: dl,
	}
}

func TestEligible(t *testing.T) {
	in := baseInput(t)
	in.Payment = &model.Payment{
		Status:     model.PaymentSuccess,
		CapturedAt: ptrTime(in.Deadlines.PaymentCutoffAt.Add(-time.Minute)),
	}

	v := Evaluate(in)
	require.True(t, v.Eligible)
	require.Equal(t, model.ReasonEligible, v.Reason)
}

func TestLatePaymentIsPaymentMissing(t *testing.T) {
	in := baseInput(t)
	in.Payment = &model.Payment{
		Status:     model.PaymentLate,
		CapturedAt: ptrTime(in.Deadlines.PaymentCutoffAt.Add(time.Minute)),
	}

	v := Evaluate(in)
	require.False(t, v.Eligible)
	require.Equal(t, model.ReasonPaymentMissing, v.Reason)
}

func TestCapturedAtExactCutoffIsEligible(t *testing.T) {
	in := baseInput(t)
	in.Payment = &model.Payment{
		Status:     model.PaymentSuccess,
		CapturedAt: ptrTime(in.Deadlines.PaymentCutoffAt),
	}

	v := Evaluate(in)
	require.True(t, v.Eligible)
}

func TestNoPaymentRecord(t *testing.T) {
	in := baseInput(t)
	v := Evaluate(in)
	require.False(t, v.Eligible)
	require.Equal(t, model.ReasonPaymentMissing, v.Reason)
}

func TestRefundAfterStartVoidsEligibility(t *testing.T) {
	in := baseInput(t)
	in.RefundCheck = true
	in.Payment = &model.Payment{
		Status:     model.PaymentRefunded,
		CapturedAt: ptrTime(in.Deadlines.PaymentCutoffAt.Add(-time.Minute)),
	}

	v := Evaluate(in)
	require.False(t, v.Eligible)
	require.Equal(t, model.ReasonRefundVoidsEligibility, v.Reason)
}

func TestProfileIncomplete(t *testing.T) {
	in := baseInput(t)
	in.Participant.ProfileComplete = false
	v := Evaluate(in)
	require.False(t, v.Eligible)
	require.Equal(t, model.ReasonProfileIncomplete, v.Reason)
}

func ptrTime(t time.Time) *time.Time { return &t }
