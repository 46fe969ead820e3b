package quiz

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/onlineimmigrant/move-plan-next-sub025/core"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/user"
)

var (
	ErrQuizNotFound     = core.NewNotFoundError("quiz")
	ErrQuestionNotFound = core.NewNotFoundError("question")
	ErrAttemptNotFound  = core.NewNotFoundError("attempt")

	ErrAttemptExpired = core.NewValidationError(errors.New("the time limit of this attempt has expired"))
	ErrAttemptClosed  = core.NewValidationError(errors.New("this attempt has already been submitted"))
	ErrNotPublished   = core.NewValidationError(errors.New("this quiz is not open for attempts"))
	ErrNoAttemptsLeft = core.NewValidationError(errors.New("no attempts left for this quiz"))
)

type (
	Repository interface {
		CreateQuiz(ctx context.Context, q Quiz, exec ...core.DBExecutor) (Quiz, error)
		UpdateQuiz(ctx context.Context, q Quiz, exec ...core.DBExecutor) (Quiz, error)
		// GetQuiz returns the quiz with its questions and choices, ordered by position.
		GetQuiz(ctx context.Context, orgID, id string, exec ...core.DBExecutor) (Quiz, error)
		QueryQuizzes(ctx context.Context, orgID string, publishedOnly bool, exec ...core.DBExecutor) ([]Quiz, error)
		DeleteQuiz(ctx context.Context, orgID, id string, exec ...core.DBExecutor) error

		// CreateQuestion and UpdateQuestion save the question together with its choices.
		CreateQuestion(ctx context.Context, q Question, exec ...core.DBExecutor) (Question, error)
		UpdateQuestion(ctx context.Context, q Question, exec ...core.DBExecutor) (Question, error)
		GetQuestion(ctx context.Context, orgID, id string, exec ...core.DBExecutor) (Question, error)
		DeleteQuestion(ctx context.Context, id string, exec ...core.DBExecutor) error

		CreateAttempt(ctx context.Context, a Attempt, exec ...core.DBExecutor) (Attempt, error)
		// UpdateAttempt saves the status, score and answers of a.
		UpdateAttempt(ctx context.Context, a Attempt, exec ...core.DBExecutor) (Attempt, error)
		GetAttempt(ctx context.Context, id string, exec ...core.DBExecutor) (Attempt, error)
		// QueryAttempts lists the attempts of a quiz, newest first; userID filters when not empty.
		QueryAttempts(ctx context.Context, quizID, userID string, exec ...core.DBExecutor) ([]Attempt, error)
	}

	Service interface {
		CreateQuiz(ctx context.Context, orgID string, in QuizInput) (Quiz, error)
		UpdateQuiz(ctx context.Context, orgID, id string, in QuizInput) (Quiz, error)
		DeleteQuiz(ctx context.Context, orgID, id string) error
		GetQuiz(ctx context.Context, orgID, id string) (Quiz, error)
		// Query lists quizzes; students only see published ones.
		Query(ctx context.Context, usr user.User) ([]Quiz, error)

		AddQuestion(ctx context.Context, orgID, quizID string, in QuestionInput) (Question, error)
		UpdateQuestion(ctx context.Context, orgID, id string, in QuestionInput) (Question, error)
		DeleteQuestion(ctx context.Context, orgID, id string) error

		// ForTaking returns a published quiz without choice correctness.
		ForTaking(ctx context.Context, orgID, id, attemptID string) (TakeQuiz, error)
		Start(ctx context.Context, usr user.User, quizID string) (Attempt, error)
		Submit(ctx context.Context, usr user.User, attemptID string, answers []Answer) (Attempt, error)
		GetAttempt(ctx context.Context, usr user.User, id string) (Attempt, error)
		Attempts(ctx context.Context, usr user.User, quizID string) ([]Attempt, error)
	}

	service struct {
		repo    Repository
		logger  core.Logger
		nowFunc func() time.Time
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, logger core.Logger) Service {
	return &service{
		repo:    repo,
		logger:  logger,
		nowFunc: func() time.Time { return time.Now().UTC() },
	}
}

func canAuthor(usr user.User) bool {
	return usr.IsAdmin() || usr.IsTeacher()
}

func applyQuizInput(q *Quiz, in QuizInput) {
	q.Title = in.Title
	q.Description = in.Description
	q.TimeLimitSeconds = in.TimeLimitSeconds
	q.PassPercent = in.PassPercent
	q.MaxAttempts = in.MaxAttempts
	q.ShuffleQuestions = in.ShuffleQuestions
	q.IsPublished = in.IsPublished
}

func (svc *service) CreateQuiz(ctx context.Context, orgID string, in QuizInput) (Quiz, error) {
	now := svc.nowFunc()
	q := Quiz{OrgID: orgID, CreatedAt: now, UpdatedAt: now}
	applyQuizInput(&q, in)
	q, err := svc.repo.CreateQuiz(ctx, q)
	return q, errors.Wrap(err, "creating quiz")
}

func (svc *service) UpdateQuiz(ctx context.Context, orgID, id string, in QuizInput) (Quiz, error) {
	q, err := svc.repo.GetQuiz(ctx, orgID, id)
	if err != nil {
		return Quiz{}, err
	}
	applyQuizInput(&q, in)
	q.UpdatedAt = svc.nowFunc()
	questions := q.Questions
	if q, err = svc.repo.UpdateQuiz(ctx, q); err != nil {
		return Quiz{}, errors.Wrap(err, "updating quiz")
	}
	q.Questions = questions
	return q, nil
}

func (svc *service) DeleteQuiz(ctx context.Context, orgID, id string) error {
	if _, err := svc.repo.GetQuiz(ctx, orgID, id); err != nil {
		return err
	}
	return errors.Wrap(svc.repo.DeleteQuiz(ctx, orgID, id), "deleting quiz")
}

func (svc *service) GetQuiz(ctx context.Context, orgID, id string) (Quiz, error) {
	return svc.repo.GetQuiz(ctx, orgID, id)
}

func (svc *service) Query(ctx context.Context, usr user.User) ([]Quiz, error) {
	quizzes, err := svc.repo.QueryQuizzes(ctx, usr.OrgID, !canAuthor(usr))
	return quizzes, errors.Wrap(err, "querying quizzes")
}

func questionFromInput(q *Question, in QuestionInput) {
	q.Prompt = in.Prompt
	q.Kind = in.Kind
	q.Points = in.Points
	q.Position = in.Position
	q.Choices = make([]Choice, 0, len(in.Choices))
	for i, c := range in.Choices {
		q.Choices = append(q.Choices, Choice{QuestionID: q.ID, Label: c.Label, IsCorrect: c.IsCorrect, Position: i})
	}
}

func (svc *service) AddQuestion(ctx context.Context, orgID, quizID string, in QuestionInput) (Question, error) {
	if _, err := svc.repo.GetQuiz(ctx, orgID, quizID); err != nil {
		return Question{}, err
	}
	q := Question{QuizID: quizID}
	questionFromInput(&q, in)
	q, err := svc.repo.CreateQuestion(ctx, q)
	return q, errors.Wrap(err, "creating question")
}

func (svc *service) UpdateQuestion(ctx context.Context, orgID, id string, in QuestionInput) (Question, error) {
	q, err := svc.repo.GetQuestion(ctx, orgID, id)
	if err != nil {
		return Question{}, err
	}
	questionFromInput(&q, in)
	q, err = svc.repo.UpdateQuestion(ctx, q)
	return q, errors.Wrap(err, "updating question")
}

func (svc *service) DeleteQuestion(ctx context.Context, orgID, id string) error {
	if _, err := svc.repo.GetQuestion(ctx, orgID, id); err != nil {
		return err
	}
	return errors.Wrap(svc.repo.DeleteQuestion(ctx, id), "deleting question")
}

func (svc *service) ForTaking(ctx context.Context, orgID, id, attemptID string) (TakeQuiz, error) {
	q, err := svc.repo.GetQuiz(ctx, orgID, id)
	if err != nil {
		return TakeQuiz{}, err
	}
	if !q.IsPublished {
		return TakeQuiz{}, ErrQuizNotFound
	}
	return ForTaking(q, attemptID), nil
}

// withRemaining fills RemainingSeconds of in-progress timed attempts.
func (svc *service) withRemaining(a Attempt) Attempt {
	if a.Status != StatusInProgress {
		return a
	}
	if left, ok := Remaining(a, svc.nowFunc()); ok {
		secs := int64(left / time.Second)
		a.RemainingSeconds = &secs
	}
	return a
}

// expire closes a timed-out attempt with a score of 0.
func (svc *service) expire(ctx context.Context, a Attempt) (Attempt, error) {
	a.Status = StatusExpired
	a.Score, a.Percent, a.Passed = 0, 0, false
	a.Answers = nil
	a, err := svc.repo.UpdateAttempt(ctx, a)
	return a, errors.Wrap(err, "expiring attempt")
}

// Start resumes the running attempt of usr, or opens a new one when attempts are left.
func (svc *service) Start(ctx context.Context, usr user.User, quizID string) (Attempt, error) {
	q, err := svc.repo.GetQuiz(ctx, usr.OrgID, quizID)
	if err != nil {
		return Attempt{}, err
	}
	if !q.IsPublished {
		return Attempt{}, ErrNotPublished
	}

	attempts, err := svc.repo.QueryAttempts(ctx, q.ID, usr.ID)
	if err != nil {
		return Attempt{}, errors.Wrap(err, "querying attempts")
	}
	now := svc.nowFunc()
	for _, a := range attempts {
		if a.Status != StatusInProgress {
			continue
		}
		if !Expired(a, now) {
			return svc.withRemaining(a), nil
		}
		if _, err := svc.expire(ctx, a); err != nil {
			return Attempt{}, err
		}
	}
	if q.MaxAttempts > 0 && len(attempts) >= q.MaxAttempts {
		return Attempt{}, ErrNoAttemptsLeft
	}

	a := Attempt{
		QuizID:    q.ID,
		UserID:    usr.ID,
		Status:    StatusInProgress,
		StartedAt: now,
	}
	if q.TimeLimitSeconds > 0 {
		a.DeadlineAt = null.TimeFrom(now.Add(q.TimeLimit()))
	}
	for _, qs := range q.Questions {
		a.MaxScore += qs.Points
	}
	if a, err = svc.repo.CreateAttempt(ctx, a); err != nil {
		return Attempt{}, errors.Wrap(err, "creating attempt")
	}
	return svc.withRemaining(a), nil
}

// Submit grades answers server side. Late submissions expire the attempt.
func (svc *service) Submit(ctx context.Context, usr user.User, attemptID string, answers []Answer) (Attempt, error) {
	a, err := svc.repo.GetAttempt(ctx, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	if a.UserID != usr.ID {
		return Attempt{}, ErrAttemptNotFound
	}
	if a.Status != StatusInProgress {
		return Attempt{}, ErrAttemptClosed
	}

	now := svc.nowFunc()
	if Expired(a, now) {
		if _, err := svc.expire(ctx, a); err != nil {
			return Attempt{}, err
		}
		return Attempt{}, ErrAttemptExpired
	}

	q, err := svc.repo.GetQuiz(ctx, usr.OrgID, a.QuizID)
	if err != nil {
		return Attempt{}, err
	}
	score, maxScore, err := Grade(q, answers)
	if err != nil {
		return Attempt{}, err
	}

	a.Status = StatusSubmitted
	a.SubmittedAt = null.TimeFrom(now)
	a.Score = score
	a.MaxScore = maxScore
	a.Percent = Percent(score, maxScore)
	a.Passed = a.Percent >= q.PassPercent
	a.Answers = answers
	a, err = svc.repo.UpdateAttempt(ctx, a)
	return a, errors.Wrap(err, "submitting attempt")
}

// GetAttempt is allowed to the attempt owner and to the authors of the quiz organization.
func (svc *service) GetAttempt(ctx context.Context, usr user.User, id string) (Attempt, error) {
	a, err := svc.repo.GetAttempt(ctx, id)
	if err != nil {
		return Attempt{}, err
	}
	if a.UserID != usr.ID {
		if !canAuthor(usr) {
			return Attempt{}, ErrAttemptNotFound
		}
		if _, err := svc.repo.GetQuiz(ctx, usr.OrgID, a.QuizID); err != nil {
			return Attempt{}, ErrAttemptNotFound
		}
	}
	if a.Status == StatusInProgress && Expired(a, svc.nowFunc()) && a.UserID == usr.ID {
		return svc.expire(ctx, a)
	}
	return svc.withRemaining(a), nil
}

// Attempts lists the attempts of usr, or of every student when usr authors quizzes.
func (svc *service) Attempts(ctx context.Context, usr user.User, quizID string) ([]Attempt, error) {
	if _, err := svc.repo.GetQuiz(ctx, usr.OrgID, quizID); err != nil {
		return nil, err
	}
	userID := usr.ID
	if canAuthor(usr) {
		userID = ""
	}
	attempts, err := svc.repo.QueryAttempts(ctx, quizID, userID)
	if err != nil {
		return nil, errors.Wrap(err, "querying attempts")
	}
	for i := range attempts {
		attempts[i] = svc.withRemaining(attempts[i])
	}
	return attempts, nil
}
