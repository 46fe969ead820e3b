package dummydb

import (
	"context"
	"sort"

	"github.com/onlineimmigrant/move-plan-next-sub025/core"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/quiz"
)

type quizRepository struct {
	db *DB
}

var _ quiz.Repository = (*quizRepository)(nil) // interface compliance check

func NewQuizRepository(db *DB) quiz.Repository {
	return &quizRepository{db: db}
}

func (repo *quizRepository) CreateQuiz(_ context.Context, q quiz.Quiz, _ ...core.DBExecutor) (quiz.Quiz, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	q.ID = newID()
	q.Questions = nil
	repo.db.quizzes[q.ID] = q
	return q, nil
}

func (repo *quizRepository) UpdateQuiz(_ context.Context, q quiz.Quiz, _ ...core.DBExecutor) (quiz.Quiz, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.quizzes[q.ID]
	if !ok || orig.OrgID != q.OrgID {
		return quiz.Quiz{}, quiz.ErrQuizNotFound
	}
	q.CreatedAt = orig.CreatedAt
	q.Questions = nil
	repo.db.quizzes[q.ID] = q
	return q, nil
}

func (repo *quizRepository) GetQuiz(_ context.Context, orgID, id string, _ ...core.DBExecutor) (quiz.Quiz, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	q, ok := repo.db.quizzes[id]
	if !ok || q.OrgID != orgID {
		return quiz.Quiz{}, quiz.ErrQuizNotFound
	}
	q.Questions = make([]quiz.Question, 0)
	for _, question := range repo.db.questions {
		if question.QuizID == id {
			q.Questions = append(q.Questions, copyQuestion(question))
		}
	}
	sort.Slice(q.Questions, func(i, j int) bool {
		if q.Questions[i].Position != q.Questions[j].Position {
			return q.Questions[i].Position < q.Questions[j].Position
		}
		return q.Questions[i].ID < q.Questions[j].ID
	})
	return q, nil
}

func (repo *quizRepository) QueryQuizzes(_ context.Context, orgID string, publishedOnly bool, _ ...core.DBExecutor) ([]quiz.Quiz, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	quizzes := make([]quiz.Quiz, 0)
	for _, q := range repo.db.quizzes {
		if q.OrgID == orgID && (!publishedOnly || q.IsPublished) {
			quizzes = append(quizzes, q)
		}
	}
	sort.Slice(quizzes, func(i, j int) bool { return quizzes[i].CreatedAt.After(quizzes[j].CreatedAt) })
	return quizzes, nil
}

func (repo *quizRepository) DeleteQuiz(_ context.Context, orgID, id string, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	q, ok := repo.db.quizzes[id]
	if !ok || q.OrgID != orgID {
		return quiz.ErrQuizNotFound
	}
	delete(repo.db.quizzes, id)
	for qid, question := range repo.db.questions {
		if question.QuizID == id {
			delete(repo.db.questions, qid)
		}
	}
	for aid, a := range repo.db.attempts {
		if a.QuizID == id {
			delete(repo.db.attempts, aid)
		}
	}
	return nil
}

// questions

func copyQuestion(q quiz.Question) quiz.Question {
	choices := make([]quiz.Choice, len(q.Choices))
	copy(choices, q.Choices)
	q.Choices = choices
	return q
}

func setChoices(q *quiz.Question) {
	choices := make([]quiz.Choice, len(q.Choices))
	for i, c := range q.Choices {
		c.ID = newID()
		c.QuestionID = q.ID
		c.Position = i
		choices[i] = c
	}
	q.Choices = choices
}

func (repo *quizRepository) CreateQuestion(_ context.Context, q quiz.Question, _ ...core.DBExecutor) (quiz.Question, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.quizzes[q.QuizID]; !ok {
		return quiz.Question{}, quiz.ErrQuizNotFound
	}
	q.ID = newID()
	setChoices(&q)
	repo.db.questions[q.ID] = q
	return copyQuestion(q), nil
}

func (repo *quizRepository) UpdateQuestion(_ context.Context, q quiz.Question, _ ...core.DBExecutor) (quiz.Question, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.questions[q.ID]
	if !ok {
		return quiz.Question{}, quiz.ErrQuestionNotFound
	}
	q.QuizID = orig.QuizID
	setChoices(&q)
	repo.db.questions[q.ID] = q
	return copyQuestion(q), nil
}

func (repo *quizRepository) GetQuestion(_ context.Context, orgID, id string, _ ...core.DBExecutor) (quiz.Question, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	q, ok := repo.db.questions[id]
	if !ok || repo.db.quizzes[q.QuizID].OrgID != orgID {
		return quiz.Question{}, quiz.ErrQuestionNotFound
	}
	return copyQuestion(q), nil
}

func (repo *quizRepository) DeleteQuestion(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.questions[id]; !ok {
		return quiz.ErrQuestionNotFound
	}
	delete(repo.db.questions, id)
	return nil
}

// attempts

func copyAttempt(a quiz.Attempt) quiz.Attempt {
	answers := make([]quiz.Answer, 0, len(a.Answers))
	for _, ans := range a.Answers {
		answers = append(answers, quiz.Answer{QuestionID: ans.QuestionID, ChoiceIDs: copyTags(ans.ChoiceIDs)})
	}
	a.Answers = answers
	a.RemainingSeconds = nil
	return a
}

func (repo *quizRepository) CreateAttempt(_ context.Context, a quiz.Attempt, _ ...core.DBExecutor) (quiz.Attempt, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	a.ID = newID()
	repo.db.attempts[a.ID] = copyAttempt(a)
	return a, nil
}

func (repo *quizRepository) UpdateAttempt(_ context.Context, a quiz.Attempt, _ ...core.DBExecutor) (quiz.Attempt, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.attempts[a.ID]; !ok {
		return quiz.Attempt{}, quiz.ErrAttemptNotFound
	}
	repo.db.attempts[a.ID] = copyAttempt(a)
	return a, nil
}

func (repo *quizRepository) GetAttempt(_ context.Context, id string, _ ...core.DBExecutor) (quiz.Attempt, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	a, ok := repo.db.attempts[id]
	if !ok {
		return quiz.Attempt{}, quiz.ErrAttemptNotFound
	}
	a = copyAttempt(a)
	sort.Slice(a.Answers, func(i, j int) bool { return a.Answers[i].QuestionID < a.Answers[j].QuestionID })
	return a, nil
}

func (repo *quizRepository) QueryAttempts(_ context.Context, quizID, userID string, _ ...core.DBExecutor) ([]quiz.Attempt, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	attempts := make([]quiz.Attempt, 0)
	for _, a := range repo.db.attempts {
		if a.QuizID == quizID && (userID == "" || a.UserID == userID) {
			a.Answers = nil
			attempts = append(attempts, a)
		}
	}
	sort.Slice(attempts, func(i, j int) bool { return attempts[i].StartedAt.After(attempts[j].StartedAt) })
	return attempts, nil
}
