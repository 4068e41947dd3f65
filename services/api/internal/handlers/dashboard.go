package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type dashboardWallet struct {
	WalletID      uuid.UUID       `json:"wallet_id"`
	Name          string          `json:"name"`
	Currency      string          `json:"currency"`
	Balance       decimal.Decimal `json:"balance"`
	Transactions  int             `json:"transactions"`
	AllocationPct decimal.Decimal `json:"allocation_pct"`
}

type dashboardResponse struct {
	TotalBalance     decimal.Decimal   `json:"total_balance"`
	WalletCount      int               `json:"wallet_count"`
	TransactionCount int               `json:"transaction_count"`
	Wallets          []dashboardWallet `json:"wallets"`
}

var hundred = decimal.NewFromInt(100)

// Dashboard sums wallet balances and reports each wallet's share of the
// total. Shares are 0 when the total is not positive.
func (h *Handler) Dashboard(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, codeUnauthorized, "missing user")
		return
	}

	balances, err := h.Store.WalletBalances(c.Request.Context(), userID)
	if err != nil {
		storeError(c, h.Logger, "wallet balances", err)
		return
	}

	resp := dashboardResponse{
		TotalBalance: decimal.Zero,
		WalletCount:  len(balances),
		Wallets:      make([]dashboardWallet, 0, len(balances)),
	}
	for _, b := range balances {
		resp.TotalBalance = resp.TotalBalance.Add(b.Balance)
		resp.TransactionCount += b.TxCount
	}
	for _, b := range balances {
		pct := decimal.Zero
		if resp.TotalBalance.IsPositive() {
			pct = b.Balance.Div(resp.TotalBalance).Mul(hundred).Round(2)
		}
		resp.Wallets = append(resp.Wallets, dashboardWallet{
			WalletID:      b.WalletID,
			Name:          b.Name,
			Currency:      b.Currency,
			Balance:       b.Balance,
			Transactions:  b.TxCount,
			AllocationPct: pct,
		})
	}
	c.JSON(http.StatusOK, resp)
}
