package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/onlineimmigrant/move-plan-next-sub025/core/quiz"
)

type quizApi struct {
	*Server
}

// startResponse carries the new attempt along with the quiz to answer.
type startResponse struct {
	Attempt quiz.Attempt  `json:"attempt"`
	Quiz    quiz.TakeQuiz `json:"quiz"`
}

func registerQuizAPI(g *echo.Group, jwt echo.MiddlewareFunc, s *Server) {
	api := quizApi{s}

	qg := g.Group("/quizzes", jwt)
	qg.GET("", api.query)
	qg.POST("/:id/attempts", api.start)
	qg.GET("/:id/attempts", api.queryAttempts)

	// authoring
	qg.POST("", api.create, staffMiddleware)
	qg.GET("/:id", api.retrieve, staffMiddleware)
	qg.PUT("/:id", api.update, staffMiddleware)
	qg.DELETE("/:id", api.destroy, staffMiddleware)
	qg.POST("/:id/questions", api.addQuestion, staffMiddleware)

	sg := g.Group("/questions", jwt, staffMiddleware)
	sg.PUT("/:id", api.updateQuestion)
	sg.DELETE("/:id", api.destroyQuestion)

	ag := g.Group("/attempts", jwt)
	ag.GET("/:id", api.retrieveAttempt)
	ag.POST("/:id/submit", api.submit)
}

func (api *quizApi) query(ctx echo.Context) error {
	usr, err := api.getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	quizzes, err := api.deps.QuizSvc.Query(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "querying quizzes")
	}
	if quizzes == nil {
		quizzes = []quiz.Quiz{}
	}
	return ctx.JSON(http.StatusOK, quizzes)
}

func (api *quizApi) create(ctx echo.Context) error {
	var data quiz.QuizInput
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to QuizInput")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}
	q, err := api.deps.QuizSvc.CreateQuiz(ctx.Request().Context(), contextOrgID(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating quiz")
	}
	return ctx.JSON(http.StatusCreated, q)
}

func (api *quizApi) retrieve(ctx echo.Context) error {
	q, err := api.deps.QuizSvc.GetQuiz(ctx.Request().Context(), contextOrgID(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting quiz")
	}
	return ctx.JSON(http.StatusOK, q)
}

func (api *quizApi) update(ctx echo.Context) error {
	var data quiz.QuizInput
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to QuizInput")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}
	q, err := api.deps.QuizSvc.UpdateQuiz(ctx.Request().Context(), contextOrgID(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating quiz")
	}
	return ctx.JSON(http.StatusOK, q)
}

func (api *quizApi) destroy(ctx echo.Context) error {
	if err := api.deps.QuizSvc.DeleteQuiz(ctx.Request().Context(), contextOrgID(ctx), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting quiz")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *quizApi) addQuestion(ctx echo.Context) error {
	var data quiz.QuestionInput
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to QuestionInput")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}
	q, err := api.deps.QuizSvc.AddQuestion(ctx.Request().Context(), contextOrgID(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "adding question")
	}
	return ctx.JSON(http.StatusCreated, q)
}

func (api *quizApi) updateQuestion(ctx echo.Context) error {
	var data quiz.QuestionInput
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to QuestionInput")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}
	q, err := api.deps.QuizSvc.UpdateQuestion(ctx.Request().Context(), contextOrgID(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating question")
	}
	return ctx.JSON(http.StatusOK, q)
}

func (api *quizApi) destroyQuestion(ctx echo.Context) error {
	if err := api.deps.QuizSvc.DeleteQuestion(ctx.Request().Context(), contextOrgID(ctx), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting question")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Attempts

func (api *quizApi) start(ctx echo.Context) error {
	usr, err := api.getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	reqCtx := ctx.Request().Context()

	a, err := api.deps.QuizSvc.Start(reqCtx, usr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "starting attempt")
	}
	tq, err := api.deps.QuizSvc.ForTaking(reqCtx, usr.OrgID, a.QuizID, a.ID)
	if err != nil {
		return errors.Wrap(err, "getting quiz for taking")
	}
	return ctx.JSON(http.StatusCreated, startResponse{Attempt: a, Quiz: tq})
}

func (api *quizApi) queryAttempts(ctx echo.Context) error {
	usr, err := api.getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	attempts, err := api.deps.QuizSvc.Attempts(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying attempts")
	}
	if attempts == nil {
		attempts = []quiz.Attempt{}
	}
	return ctx.JSON(http.StatusOK, attempts)
}

func (api *quizApi) retrieveAttempt(ctx echo.Context) error {
	usr, err := api.getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	a, err := api.deps.QuizSvc.GetAttempt(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting attempt")
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *quizApi) submit(ctx echo.Context) error {
	var data quiz.SubmitAnswers
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SubmitAnswers")
	}
	if err := api.deps.Validate.Struct(data); err != nil {
		return err
	}
	usr, err := api.getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	a, err := api.deps.QuizSvc.Submit(ctx.Request().Context(), usr, ctx.Param("id"), data.Answers)
	if err != nil {
		return errors.Wrap(err, "submitting attempt")
	}
	return ctx.JSON(http.StatusOK, a)
}
