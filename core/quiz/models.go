package quiz

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/onlineimmigrant/move-plan-next-sub025/core"
)

// Question kinds
const (
	KindSingle   = "single"
	KindMultiple = "multiple"
)

// Attempt statuses
const (
	StatusInProgress = "in_progress"
	StatusSubmitted  = "submitted"
	StatusExpired    = "expired"
)

type Quiz struct {
	ID               string     `json:"id" db:"id"`
	OrgID            string     `json:"-" db:"org_id"`
	Title            string     `json:"title" db:"title"`
	Description      string     `json:"description" db:"description"`
	TimeLimitSeconds int        `json:"time_limit_seconds" db:"time_limit_seconds"` // 0: unlimited
	PassPercent      int        `json:"pass_percent" db:"pass_percent"`
	MaxAttempts      int        `json:"max_attempts" db:"max_attempts"` // 0: unlimited
	ShuffleQuestions bool       `json:"shuffle_questions" db:"shuffle_questions"`
	IsPublished      bool       `json:"is_published" db:"is_published"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
	Questions        []Question `json:"questions,omitempty" db:"-"`
}

func (q Quiz) TimeLimit() time.Duration {
	return time.Duration(q.TimeLimitSeconds) * time.Second
}

type Question struct {
	ID       string   `json:"id" db:"id"`
	QuizID   string   `json:"quiz_id" db:"quiz_id"`
	Prompt   string   `json:"prompt" db:"prompt"`
	Kind     string   `json:"kind" db:"kind"`
	Points   int      `json:"points" db:"points"`
	Position int      `json:"position" db:"position"`
	Choices  []Choice `json:"choices" db:"-"`
}

type Choice struct {
	ID         string `json:"id" db:"id"`
	QuestionID string `json:"question_id" db:"question_id"`
	Label      string `json:"label" db:"label"`
	IsCorrect  bool   `json:"is_correct" db:"is_correct"`
	Position   int    `json:"position" db:"position"`
}

type Attempt struct {
	ID          string    `json:"id" db:"id"`
	QuizID      string    `json:"quiz_id" db:"quiz_id"`
	UserID      string    `json:"user_id" db:"user_id"`
	Status      string    `json:"status" db:"status"`
	StartedAt   time.Time `json:"started_at" db:"started_at"`
	DeadlineAt  null.Time `json:"deadline_at" db:"deadline_at"`
	SubmittedAt null.Time `json:"submitted_at" db:"submitted_at"`
	Score       int       `json:"score" db:"score"`
	MaxScore    int       `json:"max_score" db:"max_score"`
	Percent     int       `json:"percent" db:"percent"`
	Passed      bool      `json:"passed" db:"passed"`
	Answers     []Answer  `json:"answers,omitempty" db:"-"`

	// RemainingSeconds is computed from DeadlineAt for in-progress attempts of timed quizzes.
	RemainingSeconds *int64 `json:"remaining_seconds,omitempty" db:"-"`
}

type Answer struct {
	QuestionID string   `json:"question_id" validate:"required"`
	ChoiceIDs  []string `json:"choice_ids"`
}

type (
	// TakeQuiz is a quiz as shown to the student taking it: correctness is hidden.
	TakeQuiz struct {
		ID               string         `json:"id"`
		Title            string         `json:"title"`
		Description      string         `json:"description"`
		TimeLimitSeconds int            `json:"time_limit_seconds"`
		PassPercent      int            `json:"pass_percent"`
		MaxAttempts      int            `json:"max_attempts"`
		Questions        []TakeQuestion `json:"questions"`
	}

	TakeQuestion struct {
		ID      string       `json:"id"`
		Prompt  string       `json:"prompt"`
		Kind    string       `json:"kind"`
		Points  int          `json:"points"`
		Choices []TakeChoice `json:"choices"`
	}

	TakeChoice struct {
		ID    string `json:"id"`
		Label string `json:"label"`
	}
)

type QuizInput struct {
	Title            string `json:"title" validate:"required,max=300"`
	Description      string `json:"description"`
	TimeLimitSeconds int    `json:"time_limit_seconds" validate:"min=0"`
	PassPercent      int    `json:"pass_percent" validate:"min=0,max=100"`
	MaxAttempts      int    `json:"max_attempts" validate:"min=0"`
	ShuffleQuestions bool   `json:"shuffle_questions"`
	IsPublished      bool   `json:"is_published"`
}

func (in *QuizInput) Validate(validate *validator.Validate) error {
	in.Title = core.CleanString(in.Title)
	in.Description = core.CleanString(in.Description)
	return validate.Struct(in)
}

type (
	QuestionInput struct {
		Prompt   string        `json:"prompt" validate:"required"`
		Kind     string        `json:"kind" validate:"required,oneof=single multiple"`
		Points   int           `json:"points" validate:"min=0"`
		Position int           `json:"position"`
		Choices  []ChoiceInput `json:"choices" validate:"min=2,dive"`
	}

	ChoiceInput struct {
		Label     string `json:"label" validate:"required"`
		IsCorrect bool   `json:"is_correct"`
	}
)

var (
	errSingleCorrect   = "a single choice question needs exactly one correct choice"
	errMultipleCorrect = "a multiple choice question needs at least one correct choice"
)

func (in *QuestionInput) Validate(validate *validator.Validate) error {
	in.Prompt = core.CleanString(in.Prompt)
	in.Kind = core.CleanString(in.Kind, true /* lower */)
	if in.Points == 0 {
		in.Points = 1
	}
	for i := range in.Choices {
		in.Choices[i].Label = core.CleanString(in.Choices[i].Label)
	}
	if err := validate.Struct(in); err != nil {
		return err
	}

	correct := 0
	for _, c := range in.Choices {
		if c.IsCorrect {
			correct++
		}
	}
	switch {
	case in.Kind == KindSingle && correct != 1:
		return core.NewValidationError(nil, core.FieldError{Field: "choices", Error: errSingleCorrect})
	case in.Kind == KindMultiple && correct == 0:
		return core.NewValidationError(nil, core.FieldError{Field: "choices", Error: errMultipleCorrect})
	}
	return nil
}

type SubmitAnswers struct {
	Answers []Answer `json:"answers" validate:"dive"`
}
