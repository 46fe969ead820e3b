package quiz

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onlineimmigrant/move-plan-next-sub025/core"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/user"
)

type memRepo struct {
	quiz     Quiz
	attempts []Attempt
}

func (r *memRepo) CreateQuiz(_ context.Context, q Quiz, _ ...core.DBExecutor) (Quiz, error) {
	return q, nil
}

func (r *memRepo) UpdateQuiz(_ context.Context, q Quiz, _ ...core.DBExecutor) (Quiz, error) {
	r.quiz = q
	return q, nil
}

func (r *memRepo) GetQuiz(_ context.Context, orgID, id string, _ ...core.DBExecutor) (Quiz, error) {
	if r.quiz.OrgID != orgID || r.quiz.ID != id {
		return Quiz{}, ErrQuizNotFound
	}
	return r.quiz, nil
}

func (r *memRepo) QueryQuizzes(context.Context, string, bool, ...core.DBExecutor) ([]Quiz, error) {
	return []Quiz{r.quiz}, nil
}

func (r *memRepo) DeleteQuiz(context.Context, string, string, ...core.DBExecutor) error { return nil }

func (r *memRepo) CreateQuestion(_ context.Context, q Question, _ ...core.DBExecutor) (Question, error) {
	return q, nil
}

func (r *memRepo) UpdateQuestion(_ context.Context, q Question, _ ...core.DBExecutor) (Question, error) {
	return q, nil
}

func (r *memRepo) GetQuestion(context.Context, string, string, ...core.DBExecutor) (Question, error) {
	return Question{}, ErrQuestionNotFound
}

func (r *memRepo) DeleteQuestion(context.Context, string, ...core.DBExecutor) error { return nil }

func (r *memRepo) CreateAttempt(_ context.Context, a Attempt, _ ...core.DBExecutor) (Attempt, error) {
	a.ID = "a" + strconv.Itoa(len(r.attempts)+1)
	r.attempts = append(r.attempts, a)
	return a, nil
}

func (r *memRepo) UpdateAttempt(_ context.Context, a Attempt, _ ...core.DBExecutor) (Attempt, error) {
	for i := range r.attempts {
		if r.attempts[i].ID == a.ID {
			a.RemainingSeconds = nil
			r.attempts[i] = a
		}
	}
	return a, nil
}

func (r *memRepo) GetAttempt(_ context.Context, id string, _ ...core.DBExecutor) (Attempt, error) {
	for _, a := range r.attempts {
		if a.ID == id {
			return a, nil
		}
	}
	return Attempt{}, ErrAttemptNotFound
}

func (r *memRepo) QueryAttempts(_ context.Context, quizID, userID string, _ ...core.DBExecutor) ([]Attempt, error) {
	var res []Attempt
	for _, a := range r.attempts {
		if a.QuizID == quizID && (userID == "" || a.UserID == userID) {
			res = append(res, a)
		}
	}
	return res, nil
}

func newTestService(q Quiz) (*service, *memRepo, *time.Time) {
	repo := &memRepo{quiz: q}
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	svc := NewService(repo, core.NopLogger{}).(*service)
	svc.nowFunc = func() time.Time { return now }
	return svc, repo, &now
}

var student = user.User{ID: "student", OrgID: "org", Roles: []string{user.RoleStudent}}

func publishedQuiz() Quiz {
	q := sampleQuiz()
	q.OrgID = "org"
	q.IsPublished = true
	q.TimeLimitSeconds = 60
	q.MaxAttempts = 2
	return q
}

func TestService_Start(t *testing.T) {
	ctx := context.Background()

	t.Run("unpublished", func(t *testing.T) {
		q := publishedQuiz()
		q.IsPublished = false
		svc, _, _ := newTestService(q)
		_, err := svc.Start(ctx, student, q.ID)
		assert.Equal(t, ErrNotPublished, err)
	})

	t.Run("other organization", func(t *testing.T) {
		svc, _, _ := newTestService(publishedQuiz())
		outsider := student
		outsider.OrgID = "other"
		_, err := svc.Start(ctx, outsider, "quiz")
		assert.True(t, core.IsNotFound(err))
	})

	t.Run("resumes then limits attempts", func(t *testing.T) {
		svc, _, now := newTestService(publishedQuiz())
		a, err := svc.Start(ctx, student, "quiz")
		require.NoError(t, err)
		assert.Equal(t, StatusInProgress, a.Status)
		assert.Equal(t, 5, a.MaxScore)
		require.True(t, a.DeadlineAt.Valid)
		require.NotNil(t, a.RemainingSeconds)
		assert.EqualValues(t, 60, *a.RemainingSeconds)

		*now = now.Add(30 * time.Second)
		resumed, err := svc.Start(ctx, student, "quiz")
		require.NoError(t, err)
		assert.Equal(t, a.ID, resumed.ID)
		assert.EqualValues(t, 30, *resumed.RemainingSeconds)

		// past the deadline, the running attempt expires and the last one opens
		*now = now.Add(time.Minute)
		second, err := svc.Start(ctx, student, "quiz")
		require.NoError(t, err)
		assert.NotEqual(t, a.ID, second.ID)
		expired, err := svc.GetAttempt(ctx, student, a.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusExpired, expired.Status)

		*now = now.Add(2 * time.Minute)
		_, err = svc.Start(ctx, student, "quiz")
		assert.Equal(t, ErrNoAttemptsLeft, err)
	})
}

func TestService_Submit(t *testing.T) {
	ctx := context.Background()
	answers := []Answer{
		{QuestionID: "q1", ChoiceIDs: []string{"q1a"}},
		{QuestionID: "q2", ChoiceIDs: []string{"q2a", "q2b"}},
	}

	t.Run("grades", func(t *testing.T) {
		svc, _, now := newTestService(publishedQuiz())
		a, err := svc.Start(ctx, student, "quiz")
		require.NoError(t, err)

		*now = now.Add(40 * time.Second)
		graded, err := svc.Submit(ctx, student, a.ID, answers)
		require.NoError(t, err)
		assert.Equal(t, StatusSubmitted, graded.Status)
		assert.Equal(t, 3, graded.Score)
		assert.Equal(t, 60, graded.Percent)
		assert.True(t, graded.Passed)
		assert.True(t, graded.SubmittedAt.Valid)

		_, err = svc.Submit(ctx, student, a.ID, answers)
		assert.Equal(t, ErrAttemptClosed, err)
	})

	t.Run("within grace period", func(t *testing.T) {
		svc, _, now := newTestService(publishedQuiz())
		a, err := svc.Start(ctx, student, "quiz")
		require.NoError(t, err)

		*now = now.Add(time.Minute + SubmitGrace)
		_, err = svc.Submit(ctx, student, a.ID, answers)
		assert.NoError(t, err)
	})

	t.Run("late", func(t *testing.T) {
		svc, repo, now := newTestService(publishedQuiz())
		a, err := svc.Start(ctx, student, "quiz")
		require.NoError(t, err)

		*now = now.Add(time.Minute + SubmitGrace + time.Second)
		_, err = svc.Submit(ctx, student, a.ID, answers)
		assert.Equal(t, ErrAttemptExpired, err)
		assert.Equal(t, StatusExpired, repo.attempts[0].Status)
		assert.Zero(t, repo.attempts[0].Score)
	})

	t.Run("someone else's attempt", func(t *testing.T) {
		svc, _, _ := newTestService(publishedQuiz())
		a, err := svc.Start(ctx, student, "quiz")
		require.NoError(t, err)

		other := user.User{ID: "other", OrgID: "org", Roles: []string{user.RoleStudent}}
		_, err = svc.Submit(ctx, other, a.ID, answers)
		assert.True(t, core.IsNotFound(err))
	})
}
