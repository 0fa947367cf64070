package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/chamadopro/backend/internal/models"
	"github.com/chamadopro/backend/internal/store"
)

type WalletHandler struct {
	Store store.Store
}

func NewWalletHandler(st store.Store) *WalletHandler {
	return &WalletHandler{Store: st}
}

type WalletTransactionResponse struct {
	ID          string    `json:"id"`
	Amount      int64     `json:"amount"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	ReferenceID *string   `json:"reference_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func toWalletTransactionResponse(t *models.WalletTransaction) WalletTransactionResponse {
	resp := WalletTransactionResponse{
		ID:          t.ID.String(),
		Amount:      t.Amount,
		Type:        string(t.Type),
		Description: t.Description,
		CreatedAt:   t.CreatedAt,
	}
	if t.ReferenceID != nil {
		s := t.ReferenceID.String()
		resp.ReferenceID = &s
	}
	return resp
}

// Get returns the professional's balance, gamification progress and
// the ledger history, newest first.
func (h *WalletHandler) Get(c *fiber.Ctx) error {
	userUUID, err := getUserUUID(c)
	if err != nil {
		return c.Status(401).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
	}

	profile, err := h.Store.GetProfile(c.Context(), userUUID)
	if err != nil {
		return respondStoreError(c, err)
	}
	trxs, err := h.Store.ListWalletTransactions(c.Context(), userUUID)
	if err != nil {
		return respondStoreError(c, err)
	}

	out := make([]WalletTransactionResponse, 0, len(trxs))
	for i := range trxs {
		out = append(out, toWalletTransactionResponse(&trxs[i]))
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"balance":      profile.Balance,
			"experience":   profile.Experience,
			"rating_avg":   profile.RatingAvg,
			"rating_count": profile.RatingCount,
			"transactions": out,
		},
	})
}

type WithdrawRequest struct {
	Amount int64 `json:"amount" validate:"required,gt=0"`
}

// Withdraw debits the balance as a simulated payout. An amount the
// balance cannot cover comes back as a conflict.
func (h *WalletHandler) Withdraw(c *fiber.Ctx) error {
	userUUID, err := getUserUUID(c)
	if err != nil {
		return c.Status(401).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
	}

	var req WithdrawRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return badRequest(c, "Amount must be greater than zero")
	}

	trx, err := h.Store.Withdraw(c.Context(), userUUID, req.Amount)
	if err != nil {
		return respondStoreError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    toWalletTransactionResponse(trx),
	})
}
