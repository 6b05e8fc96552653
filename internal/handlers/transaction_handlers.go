package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"kelasku_app/internal/middleware"
	"kelasku_app/internal/models"
	"kelasku_app/internal/services"
)

const (
	handlerTimeout      = 15 * time.Second
	transactionCacheTTL = 10 * time.Second
)

// TransactionHandler serves the buyer and admin transaction endpoints
type TransactionHandler struct {
	engine       *services.TransactionService
	transactions services.TransactionStore
	cache        *services.RedisCache
}

func NewTransactionHandler(engine *services.TransactionService, transactions services.TransactionStore, cache *services.RedisCache) *TransactionHandler {
	return &TransactionHandler{engine: engine, transactions: transactions, cache: cache}
}

// CreateTransaction handles POST /api/transactions
func (h *TransactionHandler) CreateTransaction(c echo.Context) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "please log in to continue")
	}

	var req CreateTransactionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.CourseID == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "course_id is required")
	}

	method := models.PaymentMethod(req.PaymentMethod)
	switch method {
	case models.PaymentMethodGateway:
		if req.PaymentChannel == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "payment_channel is required for gateway payments")
		}
	case models.PaymentMethodCash:
		// no channel, paid in person
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "payment_method must be gateway or cash")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), handlerTimeout)
	defer cancel()

	trx, err := h.engine.CreateTransaction(ctx, user, services.CreateTransactionInput{
		CourseID:       req.CourseID,
		PromoCode:      req.PromoCode,
		PaymentMethod:  method,
		PaymentChannel: req.PaymentChannel,
	})
	switch {
	case errors.Is(err, services.ErrCourseNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "course not found")
	case errors.Is(err, services.ErrPromoCodeInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, "promo code is invalid or expired")
	case err != nil:
		return err
	}

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"success": true,
		"data":    newTransactionResponse(trx),
	})
}

// GetTransaction handles GET /api/transactions/:id. Buyers only see their
// own transactions; admins see everything.
func (h *TransactionHandler) GetTransaction(c echo.Context) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "please log in to continue")
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid transaction id")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), handlerTimeout)
	defer cancel()

	resp, err := services.GetOrSet(h.cache, ctx, transactionCacheKey(uint(id)), transactionCacheTTL, func() (TransactionResponse, error) {
		trx, err := h.transactions.FindByID(ctx, uint(id))
		if err != nil {
			return TransactionResponse{}, err
		}
		return newTransactionResponse(trx), nil
	})
	switch {
	case errors.Is(err, services.ErrTransactionNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "transaction not found")
	case err != nil:
		return err
	}

	if resp.UserID != user.ID && user.UserType != models.UserTypeAdmin {
		return echo.NewHTTPError(http.StatusForbidden, "you don't have permission to access this resource")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    resp,
	})
}

// ApproveCashTransaction handles POST /api/admin/transactions/:id/approve
func (h *TransactionHandler) ApproveCashTransaction(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid transaction id")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), handlerTimeout)
	defer cancel()

	trx, err := h.engine.ApproveCash(ctx, uint(id))
	if err != nil {
		return h.mapCashError(err)
	}

	h.invalidate(ctx, trx.ID)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    newTransactionResponse(trx),
	})
}

// RejectCashTransaction handles POST /api/admin/transactions/:id/reject
func (h *TransactionHandler) RejectCashTransaction(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid transaction id")
	}

	var req RejectTransactionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), handlerTimeout)
	defer cancel()

	trx, err := h.engine.RejectCash(ctx, uint(id), req.Reason)
	if err != nil {
		return h.mapCashError(err)
	}

	h.invalidate(ctx, trx.ID)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    newTransactionResponse(trx),
	})
}

func (h *TransactionHandler) mapCashError(err error) error {
	switch {
	case errors.Is(err, services.ErrTransactionNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "transaction not found")
	case errors.Is(err, services.ErrWrongPaymentMethod):
		return echo.NewHTTPError(http.StatusBadRequest, "only cash transactions can be resolved by an administrator")
	case errors.Is(err, services.ErrAlreadyProcessed):
		return echo.NewHTTPError(http.StatusConflict, "transaction has already been processed")
	default:
		return err
	}
}

func (h *TransactionHandler) invalidate(ctx context.Context, id uint) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Delete(ctx, transactionCacheKey(id)); err != nil {
		log.WithError(err).WithField("transaction_id", id).Warn("Failed to invalidate transaction cache")
	}
}

func transactionCacheKey(id uint) string {
	return fmt.Sprintf("transaction:%d", id)
}
