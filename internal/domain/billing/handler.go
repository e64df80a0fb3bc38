package billing

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/vetdesk/clinic/internal/platform/auth"
	"github.com/vetdesk/clinic/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the ledger read endpoints. Patients only ever see
// their own transactions.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/transactions", h.ListTransactions)
	api.GET("/transactions/:invoiceId", h.GetTransaction)
}

func (h *Handler) GetTransaction(c echo.Context) error {
	ctx := c.Request().Context()
	t, err := h.svc.GetTransactionByInvoice(ctx, c.Param("invoiceId"))
	if errors.Is(err, ErrTransactionNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "transaction not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !auth.IsStaff(ctx) && t.UserID != auth.UserIDFromContext(ctx) {
		return echo.NewHTTPError(http.StatusNotFound, "transaction not found")
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) ListTransactions(c echo.Context) error {
	ctx := c.Request().Context()
	pg := pagination.FromContext(c)
	f := Filter{UserID: c.QueryParam("user_id"), Status: c.QueryParam("status")}
	if !auth.IsStaff(ctx) {
		f.UserID = auth.UserIDFromContext(ctx)
	}
	items, total, err := h.svc.ListTransactions(ctx, f, pg.Limit, pg.Offset)
	if errors.Is(err, ErrValidation) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewPage(items, total, pg, c.Request().URL))
}
