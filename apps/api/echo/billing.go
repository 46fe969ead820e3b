package echoapi

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/onlineimmigrant/move-plan-next-sub025/core/billing"
)

const (
	stripeSignatureHeader = "Stripe-Signature"
	maxWebhookBodyBytes   = 65536
)

type billingApi struct {
	*Server
}

func registerBillingAPI(g *echo.Group, jwt echo.MiddlewareFunc, s *Server) {
	api := billingApi{s}

	bg := g.Group("/billing")
	bg.POST("/webhook", api.webhook)

	ag := bg.Group("", jwt)
	ag.POST("/checkout", api.checkout)
	ag.GET("/transactions", api.transactions)
	ag.GET("/subscriptions", api.subscriptions)
	ag.POST("/subscriptions/:id/cancel", api.cancel)
}

func (api *billingApi) checkout(ctx echo.Context) error {
	var data billing.CheckoutRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CheckoutRequest")
	}
	if err := api.deps.Validate.Struct(data); err != nil {
		return err
	}

	usr, err := api.getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	res, err := api.deps.BillingSvc.Checkout(ctx.Request().Context(), usr, data.PlanID)
	if err != nil {
		return errors.Wrap(err, "checking out")
	}
	return ctx.JSON(http.StatusCreated, res)
}

// webhook must read the raw body: the signature is computed over the exact payload bytes.
func (api *billingApi) webhook(ctx echo.Context) error {
	payload, err := io.ReadAll(io.LimitReader(ctx.Request().Body, maxWebhookBodyBytes))
	if err != nil {
		return errors.Wrap(err, "reading webhook payload")
	}

	handled, err := api.deps.BillingSvc.HandleWebhook(ctx.Request().Context(), payload, ctx.Request().Header.Get(stripeSignatureHeader))
	if err != nil {
		return errors.Wrap(err, "handling webhook")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"received": true, "handled": handled})
}

func (api *billingApi) transactions(ctx echo.Context) error {
	usr, err := api.getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	txs, err := api.deps.BillingSvc.Transactions(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "querying transactions")
	}
	if txs == nil {
		txs = []billing.Transaction{}
	}
	return ctx.JSON(http.StatusOK, txs)
}

func (api *billingApi) subscriptions(ctx echo.Context) error {
	usr, err := api.getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	subs, err := api.deps.BillingSvc.Subscriptions(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "querying subscriptions")
	}
	if subs == nil {
		subs = []billing.Subscription{}
	}
	return ctx.JSON(http.StatusOK, subs)
}

func (api *billingApi) cancel(ctx echo.Context) error {
	usr, err := api.getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	sub, err := api.deps.BillingSvc.Cancel(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "cancelling subscription")
	}
	return ctx.JSON(http.StatusOK, sub)
}
