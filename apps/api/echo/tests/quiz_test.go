package tests

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onlineimmigrant/move-plan-next-sub025/core/quiz"
)

type attemptStart struct {
	Attempt quiz.Attempt  `json:"attempt"`
	Quiz    quiz.TakeQuiz `json:"quiz"`
}

func Test_quizApi(t *testing.T) {
	resetDB()
	f := newFixture(t, "acme")
	other := newFixture(t, "globex")
	teacher := getToken(t, f.teacher)
	student := getToken(t, f.student)

	var qz quiz.Quiz
	t.Run("students cannot author", func(t *testing.T) {
		rec := do(http.MethodPost, "/api/quizzes", student, marchallObj(t, quiz.QuizInput{Title: "Nope"}))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
	t.Run("create", func(t *testing.T) {
		rec := do(http.MethodPost, "/api/quizzes", teacher, marchallObj(t, quiz.QuizInput{Title: "Basics", PassPercent: 50, MaxAttempts: 1}))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		decode(t, rec, &qz)
		assert.False(t, qz.IsPublished)
	})

	t.Run("questions", func(t *testing.T) {
		path := "/api/quizzes/" + qz.ID + "/questions"

		rec := do(http.MethodPost, path, teacher, marchallObj(t, quiz.QuestionInput{
			Prompt: "Pick one", Kind: quiz.KindSingle,
			Choices: []quiz.ChoiceInput{{Label: "a", IsCorrect: true}, {Label: "b", IsCorrect: true}},
		}))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"choices":"a single choice question needs exactly one correct choice"}`, rec.Body.String())

		rec = do(http.MethodPost, path, teacher, marchallObj(t, quiz.QuestionInput{
			Prompt: "Pick one", Kind: quiz.KindSingle,
			Choices: []quiz.ChoiceInput{{Label: "a"}},
		}))
		assert.Equal(t, http.StatusBadRequest, rec.Code, "at least 2 choices")

		rec = do(http.MethodPost, path, teacher, marchallObj(t, quiz.QuestionInput{
			Prompt: "Capital of DRC?", Kind: quiz.KindSingle, Points: 2, Position: 1,
			Choices: []quiz.ChoiceInput{{Label: "Kinshasa", IsCorrect: true}, {Label: "Lubumbashi"}},
		}))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		rec = do(http.MethodPost, path, teacher, marchallObj(t, quiz.QuestionInput{
			Prompt: "Primes?", Kind: quiz.KindMultiple, Points: 3, Position: 2,
			Choices: []quiz.ChoiceInput{{Label: "2", IsCorrect: true}, {Label: "3", IsCorrect: true}, {Label: "4"}},
		}))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		rec = do(http.MethodPost, "/api/quizzes/"+qz.ID+"/questions", getToken(t, other.teacher), marchallObj(t, quiz.QuestionInput{
			Prompt: "Sneaky", Kind: quiz.KindSingle,
			Choices: []quiz.ChoiceInput{{Label: "a", IsCorrect: true}, {Label: "b"}},
		}))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("unpublished quizzes are hidden from students", func(t *testing.T) {
		rec := do(http.MethodGet, "/api/quizzes", student)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `[]`, rec.Body.String())

		rec = do(http.MethodPost, "/api/quizzes/"+qz.ID+"/attempts", student)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"error":"this quiz is not open for attempts"}`, rec.Body.String())
	})

	t.Run("publish", func(t *testing.T) {
		rec := do(http.MethodPut, "/api/quizzes/"+qz.ID, teacher, marchallObj(t, quiz.QuizInput{
			Title: "Basics", PassPercent: 50, MaxAttempts: 1, IsPublished: true,
		}))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = do(http.MethodGet, "/api/quizzes/"+qz.ID, teacher)
		require.Equal(t, http.StatusOK, rec.Code)
		decode(t, rec, &qz)
		require.Len(t, qz.Questions, 2)
	})

	var started attemptStart
	t.Run("start", func(t *testing.T) {
		rec := do(http.MethodPost, "/api/quizzes/"+qz.ID+"/attempts", student)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		assert.NotContains(t, rec.Body.String(), "is_correct")

		decode(t, rec, &started)
		assert.Equal(t, quiz.StatusInProgress, started.Attempt.Status)
		assert.Equal(t, 5, started.Attempt.MaxScore)
		assert.False(t, started.Attempt.DeadlineAt.Valid, "quiz is not timed")
		assert.Len(t, started.Quiz.Questions, 2)
	})
	t.Run("start resumes the running attempt", func(t *testing.T) {
		rec := do(http.MethodPost, "/api/quizzes/"+qz.ID+"/attempts", student)
		require.Equal(t, http.StatusCreated, rec.Code)

		var again attemptStart
		decode(t, rec, &again)
		assert.Equal(t, started.Attempt.ID, again.Attempt.ID)
	})

	single, multiple := qz.Questions[0], qz.Questions[1]
	answers := quiz.SubmitAnswers{Answers: []quiz.Answer{
		{QuestionID: single.ID, ChoiceIDs: []string{single.Choices[0].ID}},     // correct
		{QuestionID: multiple.ID, ChoiceIDs: []string{multiple.Choices[0].ID}}, // incomplete
	}}

	t.Run("submit: not the owner", func(t *testing.T) {
		rec := do(http.MethodPost, "/api/attempts/"+started.Attempt.ID+"/submit", getToken(t, f.admin), marchallObj(t, answers))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
	t.Run("submit: unknown choice", func(t *testing.T) {
		bad := quiz.SubmitAnswers{Answers: []quiz.Answer{{QuestionID: single.ID, ChoiceIDs: []string{"lol"}}}}
		rec := do(http.MethodPost, "/api/attempts/"+started.Attempt.ID+"/submit", student, marchallObj(t, bad))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
	t.Run("submit", func(t *testing.T) {
		rec := do(http.MethodPost, "/api/attempts/"+started.Attempt.ID+"/submit", student, marchallObj(t, answers))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var a quiz.Attempt
		decode(t, rec, &a)
		assert.Equal(t, quiz.StatusSubmitted, a.Status)
		assert.Equal(t, 2, a.Score)
		assert.Equal(t, 5, a.MaxScore)
		assert.Equal(t, 40, a.Percent)
		assert.False(t, a.Passed)
		assert.True(t, a.SubmittedAt.Valid)
	})
	t.Run("submit twice", func(t *testing.T) {
		rec := do(http.MethodPost, "/api/attempts/"+started.Attempt.ID+"/submit", student, marchallObj(t, answers))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"error":"this attempt has already been submitted"}`, rec.Body.String())
	})
	t.Run("no attempts left", func(t *testing.T) {
		rec := do(http.MethodPost, "/api/quizzes/"+qz.ID+"/attempts", student)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"error":"no attempts left for this quiz"}`, rec.Body.String())
	})

	tests := []httpTest{
		{name: "student sees published quiz", path: "/api/quizzes", token: student, wantCode: http.StatusOK},
		{name: "other org cannot see quiz", path: "/api/quizzes/" + qz.ID + "/attempts", token: getToken(t, other.student), wantCode: http.StatusNotFound},
		{name: "attempt: owner", path: "/api/attempts/" + started.Attempt.ID, token: student, wantCode: http.StatusOK},
		{name: "attempt: author", path: "/api/attempts/" + started.Attempt.ID, token: teacher, wantCode: http.StatusOK},
		{name: "attempt: other author", path: "/api/attempts/" + started.Attempt.ID, token: getToken(t, other.teacher), wantCode: http.StatusNotFound},
		{name: "attempt: org admin", path: "/api/attempts/" + started.Attempt.ID, token: getToken(t, f.admin), wantCode: http.StatusOK},
		{name: "quiz detail: student", path: "/api/quizzes/" + qz.ID, token: student, wantCode: http.StatusForbidden, wantData: marchallObj(t, errPermDenied)},
	}
	runHTTPTests(t, tests)

	t.Run("authors list every attempt", func(t *testing.T) {
		rec := do(http.MethodGet, "/api/quizzes/"+qz.ID+"/attempts", teacher)
		require.Equal(t, http.StatusOK, rec.Code)

		var attempts []quiz.Attempt
		decode(t, rec, &attempts)
		require.Len(t, attempts, 1)
		assert.Equal(t, f.student.ID, attempts[0].UserID)
	})

	t.Run("delete question & quiz", func(t *testing.T) {
		rec := do(http.MethodDelete, "/api/questions/"+multiple.ID, teacher)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		rec = do(http.MethodDelete, "/api/quizzes/"+qz.ID, teacher)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		rec = do(http.MethodGet, "/api/quizzes/"+qz.ID, teacher)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
