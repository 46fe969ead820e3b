package echoapi

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/onlineimmigrant/move-plan-next-sub025/core/table"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/user"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// query params that are not column filters
var reservedListParams = map[string]bool{
	"page":        true,
	"page_size":   true,
	"search":      true,
	orderingParam: true,
}

type tableApi struct {
	*Server
}

type deleteRowsRequest struct {
	PKs []string `query:"pk"`
}

func registerTableAPI(g *echo.Group, jwt echo.MiddlewareFunc, s *Server) {
	api := tableApi{s}

	tg := g.Group("/tables", jwt, adminMiddleware(user.RoleAdminOwner))
	tg.GET("", api.tables)
	tg.GET("/:table/schema", api.schema)
	tg.DELETE("/:table/schema", api.invalidateSchema)
	tg.GET("/:table/rows", api.list)
	tg.POST("/:table/rows", api.create)
	tg.DELETE("/:table/rows", api.destroyMultiple)
	tg.GET("/:table/rows/:pk", api.retrieve)
	tg.PUT("/:table/rows/:pk", api.update)
	tg.DELETE("/:table/rows/:pk", api.destroy)
	tg.GET("/:table/options/:column", api.options)
	tg.GET("/:table/export", api.export)
}

func bindListParams(ctx echo.Context) (table.ListParams, error) {
	var params table.ListParams
	if err := ctx.Bind(&params); err != nil {
		return params, errors.Wrap(err, "binding to ListParams")
	}
	params.Ordering = bindOrdering(ctx)
	for key, vals := range ctx.QueryParams() {
		if reservedListParams[key] || len(vals) == 0 {
			continue
		}
		if params.Filters == nil {
			params.Filters = make(map[string]string)
		}
		params.Filters[key] = vals[0]
	}
	return params, nil
}

// bindRow decodes the JSON body only: echo's binder would also copy path and query params into a map.
// Numbers are kept as json.Number so bigint and numeric values are not rounded through float64.
func bindRow(ctx echo.Context) (table.Row, error) {
	row := make(table.Row)
	dec := json.NewDecoder(ctx.Request().Body)
	dec.UseNumber()
	if err := dec.Decode(&row); err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid JSON object").SetInternal(err)
	}
	return row, nil
}

func (api *tableApi) tables(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, api.deps.TableSvc.Tables())
}

func (api *tableApi) schema(ctx echo.Context) error {
	s, err := api.deps.TableSvc.Schema(ctx.Request().Context(), ctx.Param("table"))
	if err != nil {
		return errors.Wrap(err, "getting schema")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *tableApi) invalidateSchema(ctx echo.Context) error {
	if err := api.deps.TableSvc.InvalidateSchema(ctx.Request().Context(), ctx.Param("table")); err != nil {
		return errors.Wrap(err, "invalidating schema")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *tableApi) list(ctx echo.Context) error {
	params, err := bindListParams(ctx)
	if err != nil {
		return err
	}
	res, err := api.deps.TableSvc.List(ctx.Request().Context(), contextOrgID(ctx), ctx.Param("table"), params)
	if err != nil {
		return errors.Wrap(err, "listing rows")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *tableApi) create(ctx echo.Context) error {
	row, err := bindRow(ctx)
	if err != nil {
		return err
	}
	created, err := api.deps.TableSvc.Create(ctx.Request().Context(), contextOrgID(ctx), ctx.Param("table"), row)
	if err != nil {
		return errors.Wrap(err, "creating row")
	}
	return ctx.JSON(http.StatusCreated, created)
}

func (api *tableApi) retrieve(ctx echo.Context) error {
	row, err := api.deps.TableSvc.Get(ctx.Request().Context(), contextOrgID(ctx), ctx.Param("table"), ctx.Param("pk"))
	if err != nil {
		return errors.Wrap(err, "getting row")
	}
	return ctx.JSON(http.StatusOK, row)
}

func (api *tableApi) update(ctx echo.Context) error {
	row, err := bindRow(ctx)
	if err != nil {
		return err
	}
	updated, err := api.deps.TableSvc.Update(ctx.Request().Context(), contextOrgID(ctx), ctx.Param("table"), ctx.Param("pk"), row)
	if err != nil {
		return errors.Wrap(err, "updating row")
	}
	return ctx.JSON(http.StatusOK, updated)
}

func (api *tableApi) destroy(ctx echo.Context) error {
	if _, err := api.deps.TableSvc.Delete(ctx.Request().Context(), contextOrgID(ctx), ctx.Param("table"), ctx.Param("pk")); err != nil {
		return errors.Wrap(err, "deleting row")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *tableApi) destroyMultiple(ctx echo.Context) error {
	var query deleteRowsRequest
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to deleteRowsRequest")
	}
	if len(query.PKs) == 0 {
		return ctx.JSON(http.StatusOK, echo.Map{"deleted": 0})
	}
	n, err := api.deps.TableSvc.Delete(ctx.Request().Context(), contextOrgID(ctx), ctx.Param("table"), query.PKs...)
	if err != nil {
		return errors.Wrap(err, "deleting rows")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"deleted": n})
}

func (api *tableApi) options(ctx echo.Context) error {
	opts, err := api.deps.TableSvc.Options(ctx.Request().Context(), contextOrgID(ctx), ctx.Param("table"), ctx.Param("column"), ctx.QueryParam("search"))
	if err != nil {
		return errors.Wrap(err, "listing options")
	}
	if opts == nil {
		opts = []table.Option{}
	}
	return ctx.JSON(http.StatusOK, opts)
}

func (api *tableApi) export(ctx echo.Context) error {
	params, err := bindListParams(ctx)
	if err != nil {
		return err
	}
	tbl := ctx.Param("table")

	// buffered so that a failure still gets a proper error response
	var buf bytes.Buffer
	if err := api.deps.TableSvc.Export(ctx.Request().Context(), contextOrgID(ctx), tbl, params, &buf); err != nil {
		return errors.Wrap(err, "exporting rows")
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+tbl+`.xlsx"`)
	return ctx.Blob(http.StatusOK, xlsxContentType, buf.Bytes())
}
