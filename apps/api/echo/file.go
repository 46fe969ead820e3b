package echoapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/onlineimmigrant/move-plan-next-sub025/core"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/file"
)

const uploadFormField = "file"

var errFileRequired = core.NewValidationError(nil, core.FieldError{Field: uploadFormField, Error: "this field is required"})

type fileApi struct {
	*Server
}

type shareResponse struct {
	file.Share
	URL string `json:"url"`
}

func registerFileAPI(g *echo.Group, jwt echo.MiddlewareFunc, s *Server) {
	api := fileApi{s}

	g.GET("/shares/:token", api.resolveShare)

	fg := g.Group("/files", jwt)
	fg.GET("", api.query)
	fg.POST("", api.upload)
	fg.GET("/:id", api.retrieve)
	fg.DELETE("/:id", api.destroy)
	fg.GET("/:id/url", api.signedURL)
	fg.POST("/:id/shares", api.share)
	fg.GET("/:id/toc", api.toc)
	fg.POST("/:id/trim", api.trim)
}

func (api *fileApi) upload(ctx echo.Context) error {
	fh, err := ctx.FormFile(uploadFormField)
	if err != nil {
		if err == http.ErrMissingFile {
			return errFileRequired
		}
		return core.NewValidationError(err, core.FieldError{Field: uploadFormField, Error: err.Error()})
	}
	src, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening uploaded file")
	}
	defer src.Close()

	usr, err := api.getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	f, err := api.deps.FileSvc.Upload(ctx.Request().Context(), usr, fh.Filename, fh.Header.Get(echo.HeaderContentType), src)
	if err != nil {
		return errors.Wrap(err, "uploading file")
	}
	return ctx.JSON(http.StatusCreated, f)
}

func (api *fileApi) query(ctx echo.Context) error {
	usr, err := api.getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	files, err := api.deps.FileSvc.Query(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "querying files")
	}
	if files == nil {
		files = []file.File{}
	}
	return ctx.JSON(http.StatusOK, files)
}

func (api *fileApi) retrieve(ctx echo.Context) error {
	usr, err := api.getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	f, err := api.deps.FileSvc.Get(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting file")
	}
	return ctx.JSON(http.StatusOK, f)
}

func (api *fileApi) destroy(ctx echo.Context) error {
	usr, err := api.getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if err := api.deps.FileSvc.Delete(ctx.Request().Context(), usr, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting file")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *fileApi) signedURL(ctx echo.Context) error {
	usr, err := api.getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	u, err := api.deps.FileSvc.SignedURL(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "signing file url")
	}
	return ctx.JSON(http.StatusOK, u)
}

func (api *fileApi) share(ctx echo.Context) error {
	var data file.NewShare
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewShare")
	}
	if data.TTLSeconds < 0 {
		return core.NewValidationError(nil, core.FieldError{Field: "ttl_seconds", Error: "must be positive"})
	}
	usr, err := api.getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	sh, err := api.deps.FileSvc.Share(ctx.Request().Context(), usr, ctx.Param("id"), time.Duration(data.TTLSeconds)*time.Second)
	if err != nil {
		return errors.Wrap(err, "sharing file")
	}
	u := ctx.Scheme() + "://" + ctx.Request().Host + "/api/shares/" + sh.Token
	return ctx.JSON(http.StatusCreated, shareResponse{Share: sh, URL: u})
}

// resolveShare redirects a public share link to a short-lived signed blob URL.
func (api *fileApi) resolveShare(ctx echo.Context) error {
	u, err := api.deps.FileSvc.Resolve(ctx.Request().Context(), ctx.Param("token"))
	if err != nil {
		return errors.Wrap(err, "resolving share")
	}
	return ctx.Redirect(http.StatusFound, u.URL)
}

func (api *fileApi) toc(ctx echo.Context) error {
	usr, err := api.getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	entries, err := api.deps.FileSvc.TOC(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "reading table of contents")
	}
	if entries == nil {
		entries = []file.TOCEntry{}
	}
	return ctx.JSON(http.StatusOK, entries)
}

func (api *fileApi) trim(ctx echo.Context) error {
	var data file.TrimRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to TrimRequest")
	}
	usr, err := api.getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	f, err := api.deps.FileSvc.Trim(ctx.Request().Context(), usr, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "trimming video")
	}
	return ctx.JSON(http.StatusCreated, f)
}
