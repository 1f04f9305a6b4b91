package model

import "time"

// QuizState enumerates the daily quiz lifecycle states.
type QuizState string

const (
	QuizDraft           QuizState = "DRAFT"
	QuizScheduled       QuizState = "SCHEDULED"
	QuizLocked          QuizState = "LOCKED"
	QuizPaymentClosed   QuizState = "PAYMENT_CLOSED"
	QuizLive            QuizState = "LIVE"
	QuizEnded           QuizState = "ENDED"
	QuizFinalized       QuizState = "FINALIZED"
	QuizResultPublished QuizState = "RESULT_PUBLISHED"
)

// TotalSlots is the fixed number of questions every daily quiz carries.
const TotalSlots = 50

// MaxWinners is the maximum number of ranked winner rows published per day.
const MaxWinners = 20

// Quiz is the one-per-civil-date synchronized quiz record.
//
// Date is the primary key (civil date, "YYYY-MM-DD", in the configured
// zone). QuestionIDs is immutable once the quiz reaches LIVE.
type Quiz struct {
	Date              string     `json:"date"`
	ClassGradeTag     string     `json:"class_grade_tag"`
	QuestionIDs       []string   `json:"question_ids"`
	State             QuizState  `json:"state"`
	LockedAt          *time.Time `json:"locked_at,omitempty"`
	PaymentClosedAt   *time.Time `json:"payment_closed_at,omitempty"`
	LiveAt            *time.Time `json:"live_at,omitempty"`
	EndedAt           *time.Time `json:"ended_at,omitempty"`
	FinalizedAt       *time.Time `json:"finalized_at,omitempty"`
	ResultPublishedAt *time.Time `json:"result_published_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// QuizSummary is what GET /quiz/today exposes to clients.
type QuizSummary struct {
	Date              string    `json:"date"`
	State             QuizState `json:"state"`
	IsLive            bool      `json:"is_live"`
	IsCompleted       bool      `json:"is_completed"`
	TotalQuestions    int       `json:"total_questions"`
	ClassGradeTag     string    `json:"class_grade_tag"`
	UserParticipated  bool      `json:"user_participated"`
	UserEligible      *bool     `json:"user_eligible,omitempty"`
}
