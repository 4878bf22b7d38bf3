// Package ledgerdelivery manages delivery layer of balance mutations.
package ledgerdelivery

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/go-petr/pet-ledger/internal/domain"
	"github.com/go-petr/pet-ledger/pkg/moneypkg"
	"github.com/go-petr/pet-ledger/pkg/web"
)

// Service provides service layer interface needed by ledger delivery layer.
//
//go:generate mockgen -source http.go -destination http_mock.go -package ledgerdelivery
type Service interface {
	Pay(ctx context.Context, id int64, amount decimal.Decimal) (domain.Account, error)
	Refund(ctx context.Context, id int64, amount decimal.Decimal) (domain.Account, error)
	Transfer(ctx context.Context, fromID, toID int64, amount decimal.Decimal) (domain.TransferResult, error)
}

// Handler facilitates ledger delivery layer logic.
type Handler struct {
	service Service
}

// NewHandler returns ledger handler.
func NewHandler(ls Service) *Handler {
	return &Handler{
		service: ls,
	}
}

type accountURI struct {
	ID int64 `uri:"id" binding:"required,min=1"`
}

type amountRequest struct {
	Amount string `json:"amount" binding:"required,amount"`
}

type accountData struct {
	Account domain.Account `json:"account"`
}

type mutation func(ctx context.Context, id int64, amount decimal.Decimal) (domain.Account, error)

// Pay handles http request to withdraw money from an account.
func (h *Handler) Pay(gctx *gin.Context) {
	h.mutate(gctx, h.service.Pay)
}

// Refund handles http request to return money to an account.
func (h *Handler) Refund(gctx *gin.Context) {
	h.mutate(gctx, h.service.Refund)
}

func (h *Handler) mutate(gctx *gin.Context, fn mutation) {
	ctx := gctx.Request.Context()
	l := zerolog.Ctx(ctx)

	var uri accountURI
	if err := gctx.ShouldBindUri(&uri); err != nil {
		l.Info().Err(err).Send()
		gctx.JSON(http.StatusBadRequest, web.BindError(err))

		return
	}

	var req amountRequest
	if err := gctx.ShouldBindJSON(&req); err != nil {
		l.Info().Err(err).Send()
		gctx.JSON(http.StatusBadRequest, web.BindError(err))

		return
	}

	amount, ok := moneypkg.Parse(req.Amount)
	if !ok {
		gctx.JSON(http.StatusBadRequest, web.Error(domain.ErrInvalidAmount))
		return
	}

	account, err := fn(ctx, uri.ID, amount)
	if err != nil {
		writeError(gctx, err)
		return
	}

	gctx.JSON(http.StatusOK, web.Data(accountData{account}))
}

type transferRequest struct {
	FromAccountID int64  `json:"from_account_id" binding:"required,min=1"`
	ToAccountID   int64  `json:"to_account_id" binding:"required,min=1"`
	Amount        string `json:"amount" binding:"required,amount"`
}

type transferData struct {
	Transfer domain.TransferResult `json:"transfer"`
}

// Transfer handles http request to move money between two accounts.
func (h *Handler) Transfer(gctx *gin.Context) {
	ctx := gctx.Request.Context()
	l := zerolog.Ctx(ctx)

	var req transferRequest
	if err := gctx.ShouldBindJSON(&req); err != nil {
		l.Info().Err(err).Send()
		gctx.JSON(http.StatusBadRequest, web.BindError(err))

		return
	}

	amount, ok := moneypkg.Parse(req.Amount)
	if !ok {
		gctx.JSON(http.StatusBadRequest, web.Error(domain.ErrInvalidAmount))
		return
	}

	result, err := h.service.Transfer(ctx, req.FromAccountID, req.ToAccountID, amount)
	if err != nil {
		writeError(gctx, err)
		return
	}

	gctx.JSON(http.StatusOK, web.Data(transferData{result}))
}

func writeError(gctx *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrAccountNotFound):
		gctx.JSON(http.StatusNotFound, web.Error(domain.ErrAccountNotFound))
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrBalanceLimit),
		errors.Is(err, domain.ErrSameAccount):
		gctx.JSON(http.StatusBadRequest, web.Error(err))
	case errors.Is(err, domain.ErrContention):
		gctx.JSON(http.StatusConflict, web.Error(domain.ErrContention))
	default:
		zerolog.Ctx(gctx.Request.Context()).Error().Err(err).Send()
		gctx.JSON(http.StatusInternalServerError, web.Error(web.ErrInternal))
	}
}
