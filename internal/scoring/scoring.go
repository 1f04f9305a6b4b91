// Package scoring holds the single formula for turning an attempt's stored
// answers into a score, shared by the Finalizer's end-of-day computation
// and the participant-facing /quiz/finish preview so the two never drift.
package scoring

import "github.com/r0o773rm1n41/dme-backend/internal/model"

// Attempt counts correct answers by mapping each slot's stored
// selected-option index (already in the question's original coordinate
// space, per attempt_repository.RecordAnswer) against the question's
// correct index. Score and correct count are the same number: every
// correct answer is worth one point, spec.md §4.9 step 3.
func Attempt(a model.Attempt, quiz *model.Quiz, questions map[string]model.Question) (score, correct int) {
	for slot := 0; slot < model.TotalSlots; slot++ {
		selected := a.Answers[slot]
		if selected == nil {
			continue
		}
		questionIndex := a.Permutation[slot]
		if questionIndex < 0 || questionIndex >= len(quiz.QuestionIDs) {
			continue
		}
		q, ok := questions[quiz.QuestionIDs[questionIndex]]
		if !ok {
			continue
		}
		if *selected == q.CorrectIndex {
			correct++
		}
	}
	return correct, correct
}
