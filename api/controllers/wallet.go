package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/farmbid-backend/api/responses"
	"github.com/angelmondragon/farmbid-backend/api/validators"
	"github.com/angelmondragon/farmbid-backend/internal/wallet"
	"github.com/angelmondragon/farmbid-backend/pkg/db/models"
	"github.com/angelmondragon/farmbid-backend/pkg/logger"
)

// WalletService is the part of wallet.Service exposed over HTTP.
type WalletService interface {
	InitializeWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	GetWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	Deposit(ctx context.Context, userID uuid.UUID, amountCents int64) (*models.Transaction, error)
	ListTransactions(ctx context.Context, params wallet.ListTransactionsParams) (*wallet.TransactionPage, error)
}

func WalletFetch(svc WalletService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "wallet")
			return
		}
		userID, _, ok := requireIdentity(w, r, logg)
		if !ok {
			return
		}
		wl, err := svc.GetWallet(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, walletFromModel(wl))
	}
}

// WalletInit creates the caller's wallet if it does not exist yet.
func WalletInit(svc WalletService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "wallet")
			return
		}
		userID, _, ok := requireIdentity(w, r, logg)
		if !ok {
			return
		}
		wl, err := svc.InitializeWallet(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, walletFromModel(wl))
	}
}

type depositRequest struct {
	Amount string `json:"amount" validate:"required,rupees"`
}

// WalletDeposit credits the caller's balance. The amount is a rupee string
// such as "1500.50".
func WalletDeposit(svc WalletService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "wallet")
			return
		}
		userID, _, ok := requireIdentity(w, r, logg)
		if !ok {
			return
		}
		var payload depositRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cents, err := validators.ParseAmount("amount", payload.Amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		txn, err := svc.Deposit(r.Context(), userID, cents)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, transactionFromModel(txn))
	}
}

func WalletTransactions(svc WalletService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "wallet")
			return
		}
		userID, _, ok := requireIdentity(w, r, logg)
		if !ok {
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", 0, 0, 100)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.ListTransactions(r.Context(), wallet.ListTransactionsParams{
			UserID: userID,
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		resp := transactionPageDTO{Items: make([]transactionDTO, 0, len(page.Items)), Cursor: page.Cursor}
		for i := range page.Items {
			resp.Items = append(resp.Items, transactionFromModel(&page.Items[i]))
		}
		responses.WriteSuccess(w, resp)
	}
}
