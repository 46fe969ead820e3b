package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/onlineimmigrant/move-plan-next-sub025/core/setting"
)

type settingApi struct {
	*Server
}

func registerSettingAPI(g *echo.Group, jwt echo.MiddlewareFunc, s *Server) {
	api := settingApi{s}

	sg := g.Group("/settings")
	sg.GET("/public", api.queryPublic)

	ag := sg.Group("", jwt, adminMiddleware())
	ag.GET("", api.query)
	ag.GET("/:key", api.retrieve)
	ag.PUT("/:key", api.set)
	ag.DELETE("/:key", api.destroy)
}

func (api *settingApi) queryPublic(ctx echo.Context) error {
	o, err := api.bindOrg(ctx)
	if err != nil {
		return err
	}
	settings, err := api.deps.SettingSvc.Public(ctx.Request().Context(), o.ID)
	if err != nil {
		return errors.Wrap(err, "querying public settings")
	}
	return ctx.JSON(http.StatusOK, settingsMap(settings))
}

func (api *settingApi) query(ctx echo.Context) error {
	settings, err := api.deps.SettingSvc.All(ctx.Request().Context(), contextOrgID(ctx))
	if err != nil {
		return errors.Wrap(err, "querying settings")
	}
	if settings == nil {
		settings = []setting.Setting{}
	}
	return ctx.JSON(http.StatusOK, settings)
}

func (api *settingApi) retrieve(ctx echo.Context) error {
	s, err := api.deps.SettingSvc.Get(ctx.Request().Context(), contextOrgID(ctx), ctx.Param("key"))
	if err != nil {
		return errors.Wrap(err, "getting setting")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *settingApi) set(ctx echo.Context) error {
	var data setting.SetSetting
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SetSetting")
	}
	s, err := api.deps.SettingSvc.Set(ctx.Request().Context(), contextOrgID(ctx), ctx.Param("key"), data)
	if err != nil {
		return errors.Wrap(err, "setting setting")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *settingApi) destroy(ctx echo.Context) error {
	if err := api.deps.SettingSvc.Delete(ctx.Request().Context(), contextOrgID(ctx), ctx.Param("key")); err != nil {
		return errors.Wrap(err, "deleting setting")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// settingsMap flattens public settings into a key -> value object.
func settingsMap(settings []setting.Setting) map[string]interface{} {
	m := make(map[string]interface{}, len(settings))
	for _, s := range settings {
		m[s.Key] = s.Value
	}
	return m
}
