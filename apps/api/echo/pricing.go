package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/onlineimmigrant/move-plan-next-sub025/core/pricing"
)

type pricingApi struct {
	*Server
}

func registerPricingAPI(g *echo.Group, jwt echo.MiddlewareFunc, s *Server) {
	api := pricingApi{s}

	pg := g.Group("/pricing")
	pg.GET("/catalog", api.catalog)

	ag := pg.Group("", jwt, adminMiddleware())
	ag.GET("/products", api.queryProducts)
	ag.POST("/products", api.createProduct)
	ag.GET("/products/:id", api.retrieveProduct)
	ag.PUT("/products/:id", api.updateProduct)
	ag.DELETE("/products/:id", api.destroyProduct)

	ag.GET("/plans", api.queryPlans)
	ag.POST("/plans", api.createPlan)
	ag.GET("/plans/:id", api.retrievePlan)
	ag.PUT("/plans/:id", api.updatePlan)
	ag.DELETE("/plans/:id", api.destroyPlan)
	ag.POST("/plans/:id/features", api.attachFeatures)
	ag.DELETE("/plans/:id/features/:featureID", api.detachFeature)

	ag.GET("/features", api.queryFeatures)
	ag.POST("/features", api.createFeature)
	ag.PUT("/features/:id", api.updateFeature)
	ag.DELETE("/features/:id", api.destroyFeature)
}

func (api *pricingApi) catalog(ctx echo.Context) error {
	o, err := api.bindOrg(ctx)
	if err != nil {
		return err
	}
	products, err := api.deps.PricingSvc.Catalog(ctx.Request().Context(), o.ID)
	if err != nil {
		return errors.Wrap(err, "building catalog")
	}
	if products == nil {
		products = []pricing.CatalogProduct{}
	}
	return ctx.JSON(http.StatusOK, products)
}

// Products

func (api *pricingApi) queryProducts(ctx echo.Context) error {
	products, err := api.deps.PricingSvc.QueryProducts(ctx.Request().Context(), contextOrgID(ctx))
	if err != nil {
		return errors.Wrap(err, "querying products")
	}
	if products == nil {
		products = []pricing.Product{}
	}
	return ctx.JSON(http.StatusOK, products)
}

func (api *pricingApi) createProduct(ctx echo.Context) error {
	var data pricing.ProductInput
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ProductInput")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}
	p, err := api.deps.PricingSvc.CreateProduct(ctx.Request().Context(), contextOrgID(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating product")
	}
	return ctx.JSON(http.StatusCreated, p)
}

func (api *pricingApi) retrieveProduct(ctx echo.Context) error {
	p, err := api.deps.PricingSvc.GetProduct(ctx.Request().Context(), contextOrgID(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting product")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *pricingApi) updateProduct(ctx echo.Context) error {
	var data pricing.ProductInput
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ProductInput")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}
	p, err := api.deps.PricingSvc.UpdateProduct(ctx.Request().Context(), contextOrgID(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating product")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *pricingApi) destroyProduct(ctx echo.Context) error {
	if err := api.deps.PricingSvc.DeleteProduct(ctx.Request().Context(), contextOrgID(ctx), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting product")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Plans

func (api *pricingApi) queryPlans(ctx echo.Context) error {
	plans, err := api.deps.PricingSvc.QueryPlans(ctx.Request().Context(), contextOrgID(ctx), ctx.QueryParam("product_id"))
	if err != nil {
		return errors.Wrap(err, "querying plans")
	}
	if plans == nil {
		plans = []pricing.Plan{}
	}
	return ctx.JSON(http.StatusOK, plans)
}

func (api *pricingApi) createPlan(ctx echo.Context) error {
	var data pricing.PlanInput
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PlanInput")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}
	p, err := api.deps.PricingSvc.CreatePlan(ctx.Request().Context(), contextOrgID(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating plan")
	}
	return ctx.JSON(http.StatusCreated, p)
}

func (api *pricingApi) retrievePlan(ctx echo.Context) error {
	p, err := api.deps.PricingSvc.GetPlan(ctx.Request().Context(), contextOrgID(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting plan")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *pricingApi) updatePlan(ctx echo.Context) error {
	var data pricing.PlanInput
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PlanInput")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}
	p, err := api.deps.PricingSvc.UpdatePlan(ctx.Request().Context(), contextOrgID(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating plan")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *pricingApi) destroyPlan(ctx echo.Context) error {
	if err := api.deps.PricingSvc.DeletePlan(ctx.Request().Context(), contextOrgID(ctx), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting plan")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *pricingApi) attachFeatures(ctx echo.Context) error {
	var data pricing.AttachFeatures
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AttachFeatures")
	}
	if err := api.deps.Validate.Struct(data); err != nil {
		return err
	}
	features, err := api.deps.PricingSvc.AttachFeatures(ctx.Request().Context(), contextOrgID(ctx), ctx.Param("id"), data.FeatureIDs)
	if err != nil {
		return errors.Wrap(err, "attaching features")
	}
	return ctx.JSON(http.StatusOK, features)
}

func (api *pricingApi) detachFeature(ctx echo.Context) error {
	err := api.deps.PricingSvc.DetachFeature(ctx.Request().Context(), contextOrgID(ctx), ctx.Param("id"), ctx.Param("featureID"))
	if err != nil {
		return errors.Wrap(err, "detaching feature")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Features

func (api *pricingApi) queryFeatures(ctx echo.Context) error {
	features, err := api.deps.PricingSvc.QueryFeatures(ctx.Request().Context(), contextOrgID(ctx))
	if err != nil {
		return errors.Wrap(err, "querying features")
	}
	if features == nil {
		features = []pricing.Feature{}
	}
	return ctx.JSON(http.StatusOK, features)
}

func (api *pricingApi) createFeature(ctx echo.Context) error {
	var data pricing.FeatureInput
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to FeatureInput")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}
	f, err := api.deps.PricingSvc.CreateFeature(ctx.Request().Context(), contextOrgID(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating feature")
	}
	return ctx.JSON(http.StatusCreated, f)
}

func (api *pricingApi) updateFeature(ctx echo.Context) error {
	var data pricing.FeatureInput
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to FeatureInput")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}
	f, err := api.deps.PricingSvc.UpdateFeature(ctx.Request().Context(), contextOrgID(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating feature")
	}
	return ctx.JSON(http.StatusOK, f)
}

func (api *pricingApi) destroyFeature(ctx echo.Context) error {
	if err := api.deps.PricingSvc.DeleteFeature(ctx.Request().Context(), contextOrgID(ctx), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting feature")
	}
	return ctx.NoContent(http.StatusNoContent)
}
