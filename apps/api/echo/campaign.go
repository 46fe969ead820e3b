package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/onlineimmigrant/move-plan-next-sub025/core/campaign"
)

type campaignApi struct {
	*Server
}

func registerCampaignAPI(g *echo.Group, jwt echo.MiddlewareFunc, s *Server) {
	api := campaignApi{s}

	tg := g.Group("/email-templates", jwt, adminMiddleware())
	tg.GET("", api.queryTemplates)
	tg.POST("", api.createTemplate)
	tg.GET("/:id", api.retrieveTemplate)
	tg.PUT("/:id", api.updateTemplate)
	tg.DELETE("/:id", api.destroyTemplate)
	tg.POST("/:id/preview", api.preview)
	tg.POST("/:id/test", api.sendTest)

	cg := g.Group("/campaigns", jwt, adminMiddleware())
	cg.GET("", api.query)
	cg.POST("", api.create)
	cg.GET("/:id", api.retrieve)
	cg.PUT("/:id", api.update)
	cg.DELETE("/:id", api.destroy)
	cg.GET("/:id/recipients", api.queryRecipients)
	cg.POST("/:id/recipients", api.addRecipients)
	cg.POST("/:id/send", api.send)
}

// Templates

func (api *campaignApi) queryTemplates(ctx echo.Context) error {
	tmpls, err := api.deps.CampaignSvc.Templates(ctx.Request().Context(), contextOrgID(ctx))
	if err != nil {
		return errors.Wrap(err, "querying templates")
	}
	if tmpls == nil {
		tmpls = []campaign.Template{}
	}
	return ctx.JSON(http.StatusOK, tmpls)
}

func (api *campaignApi) createTemplate(ctx echo.Context) error {
	var data campaign.TemplateInput
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to TemplateInput")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}
	tmpl, err := api.deps.CampaignSvc.CreateTemplate(ctx.Request().Context(), contextOrgID(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating template")
	}
	return ctx.JSON(http.StatusCreated, tmpl)
}

func (api *campaignApi) retrieveTemplate(ctx echo.Context) error {
	tmpl, err := api.deps.CampaignSvc.GetTemplate(ctx.Request().Context(), contextOrgID(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting template")
	}
	return ctx.JSON(http.StatusOK, tmpl)
}

func (api *campaignApi) updateTemplate(ctx echo.Context) error {
	var data campaign.TemplateInput
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to TemplateInput")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}
	tmpl, err := api.deps.CampaignSvc.UpdateTemplate(ctx.Request().Context(), contextOrgID(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating template")
	}
	return ctx.JSON(http.StatusOK, tmpl)
}

func (api *campaignApi) destroyTemplate(ctx echo.Context) error {
	if err := api.deps.CampaignSvc.DeleteTemplate(ctx.Request().Context(), contextOrgID(ctx), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting template")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *campaignApi) preview(ctx echo.Context) error {
	var data campaign.RenderData
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RenderData")
	}
	r, err := api.deps.CampaignSvc.Preview(ctx.Request().Context(), contextOrgID(ctx), ctx.Param("id"), data.Data)
	if err != nil {
		return errors.Wrap(err, "previewing template")
	}
	return ctx.JSON(http.StatusOK, r)
}

func (api *campaignApi) sendTest(ctx echo.Context) error {
	var data campaign.TestSend
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to TestSend")
	}
	if err := api.deps.Validate.Struct(data); err != nil {
		return err
	}
	if err := api.deps.CampaignSvc.SendTest(ctx.Request().Context(), contextOrgID(ctx), ctx.Param("id"), data); err != nil {
		return errors.Wrap(err, "sending test email")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Test email sent to " + data.To + "."})
}

// Campaigns

func (api *campaignApi) query(ctx echo.Context) error {
	campaigns, err := api.deps.CampaignSvc.Campaigns(ctx.Request().Context(), contextOrgID(ctx))
	if err != nil {
		return errors.Wrap(err, "querying campaigns")
	}
	if campaigns == nil {
		campaigns = []campaign.Campaign{}
	}
	return ctx.JSON(http.StatusOK, campaigns)
}

func (api *campaignApi) create(ctx echo.Context) error {
	var data campaign.CampaignInput
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CampaignInput")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}
	c, err := api.deps.CampaignSvc.CreateCampaign(ctx.Request().Context(), contextOrgID(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating campaign")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *campaignApi) retrieve(ctx echo.Context) error {
	c, err := api.deps.CampaignSvc.GetCampaign(ctx.Request().Context(), contextOrgID(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting campaign")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *campaignApi) update(ctx echo.Context) error {
	var data campaign.CampaignInput
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CampaignInput")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}
	c, err := api.deps.CampaignSvc.UpdateCampaign(ctx.Request().Context(), contextOrgID(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating campaign")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *campaignApi) destroy(ctx echo.Context) error {
	if err := api.deps.CampaignSvc.DeleteCampaign(ctx.Request().Context(), contextOrgID(ctx), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting campaign")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *campaignApi) queryRecipients(ctx echo.Context) error {
	recipients, err := api.deps.CampaignSvc.Recipients(ctx.Request().Context(), contextOrgID(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying recipients")
	}
	if recipients == nil {
		recipients = []campaign.Recipient{}
	}
	return ctx.JSON(http.StatusOK, recipients)
}

func (api *campaignApi) addRecipients(ctx echo.Context) error {
	var data campaign.AddRecipients
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AddRecipients")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}
	added, err := api.deps.CampaignSvc.AddRecipients(ctx.Request().Context(), contextOrgID(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "adding recipients")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"added": added})
}

func (api *campaignApi) send(ctx echo.Context) error {
	report, err := api.deps.CampaignSvc.Send(ctx.Request().Context(), contextOrgID(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "sending campaign")
	}
	return ctx.JSON(http.StatusOK, report)
}
