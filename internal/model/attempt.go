package model

import "time"

// EligibilityReason is a closed set of reasons the Eligibility Evaluator may
// return alongside its eligible/ineligible verdict.
type EligibilityReason string

const (
	ReasonEligible               EligibilityReason = "ELIGIBLE"
	ReasonPaymentMissing         EligibilityReason = "PAYMENT_MISSING"
	ReasonQuizNotLive            EligibilityReason = "QUIZ_NOT_LIVE"
	ReasonProfileIncomplete      EligibilityReason = "PROFILE_INCOMPLETE"
	ReasonLateSubmission         EligibilityReason = "LATE_SUBMISSION"
	ReasonSubscriptionRequired   EligibilityReason = "SUBSCRIPTION_REQUIRED"
	ReasonInsufficientStreak     EligibilityReason = "INSUFFICIENT_STREAK"
	ReasonQuizEnded              EligibilityReason = "QUIZ_ENDED"
	ReasonRefundVoidsEligibility EligibilityReason = "REFUND_VOIDS_ELIGIBILITY"
)

// EligibilitySnapshot is captured once, at attempt creation, and never
// mutated; the Finalizer's refund-after-start recount writes its outcome to
// the attempt's Counted and ReasonCodes fields instead.
type EligibilitySnapshot struct {
	Eligible bool              `json:"eligible"`
	Reason   EligibilityReason `json:"reason"`
}

// Attempt is the one-per-(user,date) durable participation record.
//
// Permutation[slot] holds the original index (0..49) of the question shown
// at that slot. OptionPermutations[slot] holds a permutation of {0,1,2,3}
// mapping "position shown to the user" -> "original option index".
// Answers[slot], once non-nil, holds the *original* option index the user
// selected, after being mapped back through OptionPermutations[slot].
type Attempt struct {
	ID                  string               `json:"id"`
	UserID              int                  `json:"user_id"`
	QuizDate            string               `json:"quiz_date"`
	Permutation         [TotalSlots]int      `json:"permutation"`
	OptionPermutations  [TotalSlots][4]int   `json:"option_permutations"`
	Answers             [TotalSlots]*int     `json:"answers"`
	QuestionStartedAt   [TotalSlots]*time.Time `json:"question_started_at"`
	AnswerTimestamps    [TotalSlots]*time.Time `json:"answer_timestamps"`
	DeviceHash          string               `json:"device_hash"`
	Eligibility         EligibilitySnapshot  `json:"eligibility"`
	QuizStartedAt       time.Time            `json:"quiz_started_at"`
	CompletedAt         *time.Time           `json:"completed_at,omitempty"`
	FinalizedAt         *time.Time           `json:"finalized_at,omitempty"`
	Score               *int                 `json:"score,omitempty"`
	Counted             *bool                `json:"counted,omitempty"`
	ReasonCodes         []string             `json:"reason_codes,omitempty"`
	CreatedAt           time.Time            `json:"created_at"`
	UpdatedAt           time.Time            `json:"updated_at"`
}

// AnsweredCount returns how many slots currently carry a recorded answer.
func (a *Attempt) AnsweredCount() int {
	n := 0
	for _, v := range a.Answers {
		if v != nil {
			n++
		}
	}
	return n
}

// TotalTimeMs is the wall-clock duration from quiz start to the attempt's
// completion, used as the Finalizer's primary tie-break after score.
func (a *Attempt) TotalTimeMs() int64 {
	if a.CompletedAt == nil {
		return 0
	}
	return a.CompletedAt.Sub(a.QuizStartedAt).Milliseconds()
}

// JoinExamRequest-equivalent: payload for POST /quiz/join.
type JoinQuizRequest struct {
	DeviceID          string `json:"device_id" binding:"required,min=4,max=128"`
	DeviceFingerprint string `json:"device_fingerprint" binding:"required,min=4,max=256"`
}

// SubmitAnswerRequest is the payload for POST /quiz/answer.
type SubmitAnswerRequest struct {
	QuestionID        string `json:"question_id" binding:"required,uuid"`
	SelectedOptionIdx int    `json:"selected_option_index" binding:"min=0,max=3"`
	DeviceID          string `json:"device_id" binding:"required,min=4,max=128"`
	DeviceFingerprint string `json:"device_fingerprint" binding:"required,min=4,max=256"`
}
