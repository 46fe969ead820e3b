package quiz

import (
	"hash/fnv"
	"math/rand"
	"time"

	"github.com/onlineimmigrant/move-plan-next-sub025/core"
)

// SubmitGrace is tolerated past the deadline to absorb network latency.
const SubmitGrace = 5 * time.Second

// Grade scores answers against the questions of q. A single choice question scores when its correct
// choice is the only one selected, a multiple choice question scores on an exact match of the correct set.
// Unanswered questions score 0; answers to unknown questions or choices are rejected.
func Grade(q Quiz, answers []Answer) (score, maxScore int, err error) {
	byQuestion := make(map[string][]string, len(answers))
	for _, a := range answers {
		byQuestion[a.QuestionID] = append(byQuestion[a.QuestionID], a.ChoiceIDs...)
	}

	known := make(map[string]bool, len(q.Questions))
	for _, qs := range q.Questions {
		known[qs.ID] = true
		maxScore += qs.Points

		selected, ok := byQuestion[qs.ID]
		if !ok {
			continue
		}
		correct, err := isCorrect(qs, selected)
		if err != nil {
			return 0, 0, err
		}
		if correct {
			score += qs.Points
		}
	}
	for qid := range byQuestion {
		if !known[qid] {
			return 0, 0, core.NewValidationError(nil, core.FieldError{Field: "answers", Error: "unknown question " + qid})
		}
	}
	return score, maxScore, nil
}

func isCorrect(qs Question, selected []string) (bool, error) {
	choices := make(map[string]bool, len(qs.Choices))
	want := 0
	for _, c := range qs.Choices {
		choices[c.ID] = c.IsCorrect
		if c.IsCorrect {
			want++
		}
	}

	picked := make(map[string]bool, len(selected))
	for _, id := range selected {
		if _, ok := choices[id]; !ok {
			return false, core.NewValidationError(nil, core.FieldError{Field: "answers", Error: "unknown choice " + id})
		}
		picked[id] = true
	}

	if qs.Kind == KindSingle && len(picked) != 1 {
		return false, nil
	}
	if len(picked) != want {
		return false, nil
	}
	for id := range picked {
		if !choices[id] {
			return false, nil
		}
	}
	return true, nil
}

// Percent is score*100/maxScore rounded down, 0 when nothing can be scored.
func Percent(score, maxScore int) int {
	if maxScore <= 0 {
		return 0
	}
	return score * 100 / maxScore
}

// Remaining is the time left on a at now; ok is false when the attempt has no deadline.
func Remaining(a Attempt, now time.Time) (left time.Duration, ok bool) {
	if !a.DeadlineAt.Valid {
		return 0, false
	}
	left = a.DeadlineAt.Time.Sub(now)
	if left < 0 {
		left = 0
	}
	return left, true
}

// Expired reports whether a is past its deadline plus SubmitGrace.
func Expired(a Attempt, now time.Time) bool {
	return a.DeadlineAt.Valid && now.After(a.DeadlineAt.Time.Add(SubmitGrace))
}

// ForTaking hides the correctness of choices. Questions are shuffled with a seed derived from
// attemptID when the quiz asks for it, so reloading an attempt keeps the same order.
func ForTaking(q Quiz, attemptID string) TakeQuiz {
	tq := TakeQuiz{
		ID:               q.ID,
		Title:            q.Title,
		Description:      q.Description,
		TimeLimitSeconds: q.TimeLimitSeconds,
		PassPercent:      q.PassPercent,
		MaxAttempts:      q.MaxAttempts,
		Questions:        make([]TakeQuestion, 0, len(q.Questions)),
	}
	for _, qs := range q.Questions {
		tqs := TakeQuestion{
			ID:      qs.ID,
			Prompt:  qs.Prompt,
			Kind:    qs.Kind,
			Points:  qs.Points,
			Choices: make([]TakeChoice, 0, len(qs.Choices)),
		}
		for _, c := range qs.Choices {
			tqs.Choices = append(tqs.Choices, TakeChoice{ID: c.ID, Label: c.Label})
		}
		tq.Questions = append(tq.Questions, tqs)
	}

	if q.ShuffleQuestions && attemptID != "" {
		h := fnv.New64a()
		_, _ = h.Write([]byte(attemptID))
		rnd := rand.New(rand.NewSource(int64(h.Sum64())))
		rnd.Shuffle(len(tq.Questions), func(i, j int) {
			tq.Questions[i], tq.Questions[j] = tq.Questions[j], tq.Questions[i]
		})
	}
	return tq
}
