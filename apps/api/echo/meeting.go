package echoapi

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/onlineimmigrant/move-plan-next-sub025/core/meeting"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/user"
)

type meetingApi struct {
	*Server
}

func registerMeetingAPI(g *echo.Group, jwt echo.MiddlewareFunc, s *Server) {
	api := meetingApi{s}

	mg := g.Group("/meetings", jwt)
	mg.GET("", api.query)
	mg.POST("", api.create, staffMiddleware)
	mg.GET("/:id", api.retrieve)
	mg.POST("/:id/join", api.join)
	mg.POST("/:id/end", api.end)
	mg.POST("/:id/cancel", api.cancel)
}

func (api *meetingApi) query(ctx echo.Context) error {
	rooms, err := api.deps.MeetingSvc.Query(ctx.Request().Context(), contextOrgID(ctx), ctx.QueryParam("status"))
	if err != nil {
		return errors.Wrap(err, "querying rooms")
	}
	if rooms == nil {
		rooms = []meeting.Room{}
	}
	return ctx.JSON(http.StatusOK, rooms)
}

func (api *meetingApi) create(ctx echo.Context) error {
	var data meeting.NewRoom
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewRoom")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}
	usr, err := api.getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	r, err := api.deps.MeetingSvc.Create(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "creating room")
	}
	return ctx.JSON(http.StatusCreated, r)
}

func (api *meetingApi) retrieve(ctx echo.Context) error {
	r, err := api.deps.MeetingSvc.Get(ctx.Request().Context(), contextOrgID(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting room")
	}
	return ctx.JSON(http.StatusOK, r)
}

func (api *meetingApi) join(ctx echo.Context) error {
	usr, err := api.getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	info, err := api.deps.MeetingSvc.Join(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "joining room")
	}
	return ctx.JSON(http.StatusOK, info)
}

func (api *meetingApi) end(ctx echo.Context) error {
	return api.close(ctx, api.deps.MeetingSvc.End, "ending room")
}

func (api *meetingApi) cancel(ctx echo.Context) error {
	return api.close(ctx, api.deps.MeetingSvc.Cancel, "cancelling room")
}

func (api *meetingApi) close(ctx echo.Context, fn func(context.Context, user.User, string) (meeting.Room, error), msg string) error {
	usr, err := api.getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	r, err := fn(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, msg)
	}
	return ctx.JSON(http.StatusOK, r)
}
