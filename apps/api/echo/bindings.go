package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/onlineimmigrant/move-plan-next-sub025/core"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/org"
)

var orderingParam = "ordering"

// Ordering binds `?ordering=name,-created_at` into DB orderings; a leading "-" means descending.
type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}

	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

func bindOrdering(ctx echo.Context) []core.DBOrdering {
	ordering := new(Ordering)
	ordering.Bind(ctx)
	return ordering.Orderings
}

// bindOrg resolves the `?org=<slug>` query parameter of un-authed endpoints.
// Unknown and deactivated organizations are reported as not found.
func (s *Server) bindOrg(ctx echo.Context) (org.Organization, error) {
	slug := strings.TrimSpace(ctx.QueryParam("org"))
	if slug == "" {
		return org.Organization{}, errOrgRequired
	}
	o, err := s.deps.OrgSvc.GetBySlug(ctx.Request().Context(), slug)
	if err != nil {
		return org.Organization{}, errors.Wrap(err, "finding organization by slug")
	}
	if !o.IsActive {
		return org.Organization{}, org.ErrNotFound
	}
	return o, nil
}
