package sqlxrepos

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/onlineimmigrant/move-plan-next-sub025/core"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/quiz"
)

var (
	quizColumns = []string{
		"id", "org_id", "title", "description", "time_limit_seconds", "pass_percent",
		"max_attempts", "shuffle_questions", "is_published", "created_at", "updated_at",
	}
	questionColumns = []string{"id", "quiz_id", "prompt", "kind", "points", "position"}
	choiceColumns   = []string{"id", "question_id", "label", "is_correct", "position"}
	attemptColumns  = []string{
		"id", "quiz_id", "user_id", "status", "started_at", "deadline_at", "submitted_at",
		"score", "max_score", "percent", "passed",
	}
)

type answerRow struct {
	QuestionID string         `db:"question_id"`
	ChoiceIDs  pq.StringArray `db:"choice_ids"`
}

type quizRepository struct {
	base
}

var _ quiz.Repository = (*quizRepository)(nil) // interface compliance check

func NewQuizRepository(exec core.DBExecutor) *quizRepository {
	return &quizRepository{base{exec: exec}}
}

// Quizzes

func (repo quizRepository) CreateQuiz(ctx context.Context, q quiz.Quiz, exec ...core.DBExecutor) (quiz.Quiz, error) {
	q.ID = uuid.New().String()
	ins := psql.Insert("quizzes").
		Columns(quizColumns...).
		Values(
			q.ID, q.OrgID, q.Title, q.Description, q.TimeLimitSeconds, q.PassPercent,
			q.MaxAttempts, q.ShuffleQuestions, q.IsPublished, q.CreatedAt.UTC(), q.UpdatedAt.UTC(),
		)
	if _, err := execute(ctx, repo.getExec(exec), ins); err != nil {
		return quiz.Quiz{}, errors.Wrap(err, "inserting quiz")
	}
	return q, nil
}

func (repo quizRepository) UpdateQuiz(ctx context.Context, q quiz.Quiz, exec ...core.DBExecutor) (quiz.Quiz, error) {
	upd := psql.Update("quizzes").
		SetMap(map[string]interface{}{
			"title":              q.Title,
			"description":        q.Description,
			"time_limit_seconds": q.TimeLimitSeconds,
			"pass_percent":       q.PassPercent,
			"max_attempts":       q.MaxAttempts,
			"shuffle_questions":  q.ShuffleQuestions,
			"is_published":       q.IsPublished,
			"updated_at":         q.UpdatedAt.UTC(),
		}).
		Where(sq.Eq{"id": q.ID, "org_id": q.OrgID})
	n, err := execute(ctx, repo.getExec(exec), upd)
	if err != nil {
		return quiz.Quiz{}, errors.Wrap(err, "updating quiz")
	}
	if n == 0 {
		return quiz.Quiz{}, quiz.ErrQuizNotFound
	}
	return q, nil
}

func (repo quizRepository) GetQuiz(ctx context.Context, orgID, id string, exec ...core.DBExecutor) (quiz.Quiz, error) {
	if !validID(id) {
		return quiz.Quiz{}, quiz.ErrQuizNotFound
	}
	exe := repo.getExec(exec)

	var q quiz.Quiz
	if err := get(ctx, exe, &q, psql.Select(quizColumns...).From("quizzes").Where(sq.Eq{"id": id, "org_id": orgID})); err != nil {
		return quiz.Quiz{}, trapNoRows(err, quiz.ErrQuizNotFound, "finding quiz")
	}

	questions := make([]quiz.Question, 0)
	qq := psql.Select(questionColumns...).From("questions").Where(sq.Eq{"quiz_id": id}).OrderBy("position", "id")
	if err := sel(ctx, exe, &questions, qq); err != nil {
		return quiz.Quiz{}, errors.Wrap(err, "querying questions")
	}
	if err := repo.loadChoices(ctx, exe, questions); err != nil {
		return quiz.Quiz{}, err
	}
	q.Questions = questions
	return q, nil
}

func (repo quizRepository) loadChoices(ctx context.Context, exe core.DBExecutor, questions []quiz.Question) error {
	if len(questions) == 0 {
		return nil
	}
	ids := make([]string, 0, len(questions))
	for _, q := range questions {
		ids = append(ids, q.ID)
	}
	var choices []quiz.Choice
	cq := psql.Select(choiceColumns...).From("choices").Where(sq.Eq{"question_id": ids}).OrderBy("position", "id")
	if err := sel(ctx, exe, &choices, cq); err != nil {
		return errors.Wrap(err, "querying choices")
	}
	byQuestion := make(map[string][]quiz.Choice, len(questions))
	for _, c := range choices {
		byQuestion[c.QuestionID] = append(byQuestion[c.QuestionID], c)
	}
	for i := range questions {
		questions[i].Choices = byQuestion[questions[i].ID]
		if questions[i].Choices == nil {
			questions[i].Choices = []quiz.Choice{}
		}
	}
	return nil
}

func (repo quizRepository) QueryQuizzes(ctx context.Context, orgID string, publishedOnly bool, exec ...core.DBExecutor) ([]quiz.Quiz, error) {
	q := psql.Select(quizColumns...).From("quizzes").Where(sq.Eq{"org_id": orgID}).OrderBy("created_at DESC")
	if publishedOnly {
		q = q.Where(sq.Eq{"is_published": true})
	}
	quizzes := make([]quiz.Quiz, 0)
	if err := sel(ctx, repo.getExec(exec), &quizzes, q); err != nil {
		return nil, errors.Wrap(err, "querying quizzes")
	}
	return quizzes, nil
}

func (repo quizRepository) DeleteQuiz(ctx context.Context, orgID, id string, exec ...core.DBExecutor) error {
	if !validID(id) {
		return quiz.ErrQuizNotFound
	}
	n, err := execute(ctx, repo.getExec(exec), psql.Delete("quizzes").Where(sq.Eq{"id": id, "org_id": orgID}))
	if err != nil {
		return errors.Wrap(err, "deleting quiz")
	}
	if n == 0 {
		return quiz.ErrQuizNotFound
	}
	return nil
}

// Questions

func (repo quizRepository) CreateQuestion(ctx context.Context, q quiz.Question, exec ...core.DBExecutor) (quiz.Question, error) {
	q.ID = uuid.New().String()
	err := inTx(ctx, repo.getExec(exec), func(tx core.DBExecutor) error {
		ins := psql.Insert("questions").
			Columns(questionColumns...).
			Values(q.ID, q.QuizID, q.Prompt, q.Kind, q.Points, q.Position)
		if _, err := execute(ctx, tx, ins); err != nil {
			return errors.Wrap(err, "inserting question")
		}
		return repo.insertChoices(ctx, tx, &q)
	})
	if err != nil {
		return quiz.Question{}, err
	}
	return q, nil
}

func (repo quizRepository) UpdateQuestion(ctx context.Context, q quiz.Question, exec ...core.DBExecutor) (quiz.Question, error) {
	err := inTx(ctx, repo.getExec(exec), func(tx core.DBExecutor) error {
		upd := psql.Update("questions").
			Set("prompt", q.Prompt).
			Set("kind", q.Kind).
			Set("points", q.Points).
			Set("position", q.Position).
			Where(sq.Eq{"id": q.ID})
		n, err := execute(ctx, tx, upd)
		if err != nil {
			return errors.Wrap(err, "updating question")
		}
		if n == 0 {
			return quiz.ErrQuestionNotFound
		}
		if _, err := execute(ctx, tx, psql.Delete("choices").Where(sq.Eq{"question_id": q.ID})); err != nil {
			return errors.Wrap(err, "deleting choices")
		}
		return repo.insertChoices(ctx, tx, &q)
	})
	if err != nil {
		return quiz.Question{}, err
	}
	return q, nil
}

func (repo quizRepository) insertChoices(ctx context.Context, tx core.DBExecutor, q *quiz.Question) error {
	if len(q.Choices) == 0 {
		return nil
	}
	ins := psql.Insert("choices").Columns(choiceColumns...)
	for i := range q.Choices {
		c := &q.Choices[i]
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		c.QuestionID = q.ID
		c.Position = i
		ins = ins.Values(c.ID, c.QuestionID, c.Label, c.IsCorrect, c.Position)
	}
	if _, err := execute(ctx, tx, ins); err != nil {
		return errors.Wrap(err, "inserting choices")
	}
	return nil
}

func (repo quizRepository) GetQuestion(ctx context.Context, orgID, id string, exec ...core.DBExecutor) (quiz.Question, error) {
	if !validID(id) {
		return quiz.Question{}, quiz.ErrQuestionNotFound
	}
	exe := repo.getExec(exec)
	cols := make([]string, 0, len(questionColumns))
	for _, c := range questionColumns {
		cols = append(cols, "qs."+c)
	}
	q := psql.Select(cols...).
		From("questions qs").
		Join("quizzes qz ON qz.id = qs.quiz_id").
		Where(sq.Eq{"qs.id": id, "qz.org_id": orgID})

	var question quiz.Question
	if err := get(ctx, exe, &question, q); err != nil {
		return quiz.Question{}, trapNoRows(err, quiz.ErrQuestionNotFound, "finding question")
	}
	questions := []quiz.Question{question}
	if err := repo.loadChoices(ctx, exe, questions); err != nil {
		return quiz.Question{}, err
	}
	return questions[0], nil
}

func (repo quizRepository) DeleteQuestion(ctx context.Context, id string, exec ...core.DBExecutor) error {
	n, err := execute(ctx, repo.getExec(exec), psql.Delete("questions").Where(sq.Eq{"id": id}))
	if err != nil {
		return errors.Wrap(err, "deleting question")
	}
	if n == 0 {
		return quiz.ErrQuestionNotFound
	}
	return nil
}

// Attempts

func (repo quizRepository) CreateAttempt(ctx context.Context, a quiz.Attempt, exec ...core.DBExecutor) (quiz.Attempt, error) {
	a.ID = uuid.New().String()
	ins := psql.Insert("attempts").
		Columns(attemptColumns...).
		Values(
			a.ID, a.QuizID, a.UserID, a.Status, a.StartedAt.UTC(), a.DeadlineAt, a.SubmittedAt,
			a.Score, a.MaxScore, a.Percent, a.Passed,
		)
	if _, err := execute(ctx, repo.getExec(exec), ins); err != nil {
		return quiz.Attempt{}, errors.Wrap(err, "inserting attempt")
	}
	return a, nil
}

func (repo quizRepository) UpdateAttempt(ctx context.Context, a quiz.Attempt, exec ...core.DBExecutor) (quiz.Attempt, error) {
	err := inTx(ctx, repo.getExec(exec), func(tx core.DBExecutor) error {
		upd := psql.Update("attempts").
			SetMap(map[string]interface{}{
				"status":       a.Status,
				"submitted_at": a.SubmittedAt,
				"score":        a.Score,
				"max_score":    a.MaxScore,
				"percent":      a.Percent,
				"passed":       a.Passed,
			}).
			Where(sq.Eq{"id": a.ID})
		n, err := execute(ctx, tx, upd)
		if err != nil {
			return errors.Wrap(err, "updating attempt")
		}
		if n == 0 {
			return quiz.ErrAttemptNotFound
		}

		if _, err := execute(ctx, tx, psql.Delete("attempt_answers").Where(sq.Eq{"attempt_id": a.ID})); err != nil {
			return errors.Wrap(err, "deleting answers")
		}
		if len(a.Answers) == 0 {
			return nil
		}
		ins := psql.Insert("attempt_answers").Columns("attempt_id", "question_id", "choice_ids")
		for _, ans := range a.Answers {
			ids := ans.ChoiceIDs
			if ids == nil {
				ids = []string{}
			}
			ins = ins.Values(a.ID, ans.QuestionID, pq.StringArray(ids))
		}
		if _, err := execute(ctx, tx, ins.Suffix("ON CONFLICT (attempt_id, question_id) DO NOTHING")); err != nil {
			return errors.Wrap(err, "inserting answers")
		}
		return nil
	})
	if err != nil {
		return quiz.Attempt{}, err
	}
	return a, nil
}

func (repo quizRepository) GetAttempt(ctx context.Context, id string, exec ...core.DBExecutor) (quiz.Attempt, error) {
	if !validID(id) {
		return quiz.Attempt{}, quiz.ErrAttemptNotFound
	}
	exe := repo.getExec(exec)

	var a quiz.Attempt
	if err := get(ctx, exe, &a, psql.Select(attemptColumns...).From("attempts").Where(sq.Eq{"id": id})); err != nil {
		return quiz.Attempt{}, trapNoRows(err, quiz.ErrAttemptNotFound, "finding attempt")
	}

	var answers []answerRow
	aq := psql.Select("question_id", "choice_ids").From("attempt_answers").Where(sq.Eq{"attempt_id": id}).OrderBy("question_id")
	if err := sel(ctx, exe, &answers, aq); err != nil {
		return quiz.Attempt{}, errors.Wrap(err, "querying answers")
	}
	a.Answers = make([]quiz.Answer, 0, len(answers))
	for _, r := range answers {
		a.Answers = append(a.Answers, quiz.Answer{QuestionID: r.QuestionID, ChoiceIDs: r.ChoiceIDs})
	}
	return a, nil
}

func (repo quizRepository) QueryAttempts(ctx context.Context, quizID, userID string, exec ...core.DBExecutor) ([]quiz.Attempt, error) {
	q := psql.Select(attemptColumns...).From("attempts").Where(sq.Eq{"quiz_id": quizID}).OrderBy("started_at DESC")
	if userID != "" {
		q = q.Where(sq.Eq{"user_id": userID})
	}
	attempts := make([]quiz.Attempt, 0)
	if err := sel(ctx, repo.getExec(exec), &attempts, q); err != nil {
		return nil, errors.Wrap(err, "querying attempts")
	}
	return attempts, nil
}
