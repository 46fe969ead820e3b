package echoapi

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/onlineimmigrant/move-plan-next-sub025/core"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/blog"
)

type blogApi struct {
	*Server
}

type postResponse struct {
	blog.Post
	Outline []blog.Heading `json:"outline"`
}

func registerBlogAPI(g *echo.Group, jwt echo.MiddlewareFunc, s *Server) {
	api := blogApi{s}

	// public, published posts only
	bg := g.Group("/blog")
	bg.GET("/posts", api.queryPublished)
	bg.GET("/posts/search", api.search)
	bg.GET("/posts/:slug", api.retrieveBySlug)

	// authors
	ag := g.Group("/posts", jwt, staffMiddleware)
	ag.GET("", api.query)
	ag.POST("", api.create)
	ag.GET("/:id", api.retrieve)
	ag.PUT("/:id", api.update)
	ag.DELETE("/:id", api.destroy)
	ag.POST("/:id/publish", api.publish)
	ag.POST("/:id/unpublish", api.unpublish)
	ag.POST("/:id/archive", api.archive)
}

func (api *blogApi) queryPublished(ctx echo.Context) error {
	o, err := api.bindOrg(ctx)
	if err != nil {
		return err
	}
	var filter blog.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to QueryFilter")
	}
	filter.OrgID = o.ID
	filter.Status = blog.StatusPublished

	page, err := api.deps.BlogSvc.Query(ctx.Request().Context(), filter, bindOrdering(ctx))
	if err != nil {
		return errors.Wrap(err, "querying posts")
	}
	return ctx.JSON(http.StatusOK, page)
}

func (api *blogApi) search(ctx echo.Context) error {
	o, err := api.bindOrg(ctx)
	if err != nil {
		return err
	}
	var pagination core.Pagination
	if err := ctx.Bind(&pagination); err != nil {
		return errors.Wrap(err, "binding to Pagination")
	}

	page, err := api.deps.BlogSvc.Search(ctx.Request().Context(), o.ID, ctx.QueryParam("q"), pagination)
	if err != nil {
		return errors.Wrap(err, "searching posts")
	}
	return ctx.JSON(http.StatusOK, page)
}

func (api *blogApi) retrieveBySlug(ctx echo.Context) error {
	o, err := api.bindOrg(ctx)
	if err != nil {
		return err
	}
	p, err := api.deps.BlogSvc.GetBySlug(ctx.Request().Context(), o.ID, ctx.Param("slug"))
	if err != nil {
		return errors.Wrap(err, "getting post by slug")
	}
	return ctx.JSON(http.StatusOK, postResponse{Post: p, Outline: api.deps.BlogSvc.Outline(p)})
}

func (api *blogApi) query(ctx echo.Context) error {
	var filter blog.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to QueryFilter")
	}
	filter.OrgID = contextOrgID(ctx)

	page, err := api.deps.BlogSvc.Query(ctx.Request().Context(), filter, bindOrdering(ctx))
	if err != nil {
		return errors.Wrap(err, "querying posts")
	}
	return ctx.JSON(http.StatusOK, page)
}

func (api *blogApi) create(ctx echo.Context) error {
	var data blog.PostInput
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PostInput")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	p, err := api.deps.BlogSvc.Create(ctx.Request().Context(), claims.OrgID, claims.Subject, data)
	if err != nil {
		return errors.Wrap(err, "creating post")
	}
	return ctx.JSON(http.StatusCreated, p)
}

func (api *blogApi) retrieve(ctx echo.Context) error {
	p, err := api.deps.BlogSvc.Get(ctx.Request().Context(), contextOrgID(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting post")
	}
	return ctx.JSON(http.StatusOK, postResponse{Post: p, Outline: api.deps.BlogSvc.Outline(p)})
}

func (api *blogApi) update(ctx echo.Context) error {
	var data blog.PostInput
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PostInput")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}
	p, err := api.deps.BlogSvc.Update(ctx.Request().Context(), contextOrgID(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating post")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *blogApi) destroy(ctx echo.Context) error {
	if err := api.deps.BlogSvc.Delete(ctx.Request().Context(), contextOrgID(ctx), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting post")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *blogApi) publish(ctx echo.Context) error {
	return api.transition(ctx, api.deps.BlogSvc.Publish, "publishing post")
}

func (api *blogApi) unpublish(ctx echo.Context) error {
	return api.transition(ctx, api.deps.BlogSvc.Unpublish, "unpublishing post")
}

func (api *blogApi) archive(ctx echo.Context) error {
	return api.transition(ctx, api.deps.BlogSvc.Archive, "archiving post")
}

func (api *blogApi) transition(ctx echo.Context, fn func(c context.Context, orgID, id string) (blog.Post, error), msg string) error {
	p, err := fn(ctx.Request().Context(), contextOrgID(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, msg)
	}
	return ctx.JSON(http.StatusOK, p)
}
