package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/AfshinJalili/rentabili/services/api/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type createTransactionRequest struct {
	WalletID    uuid.UUID       `json:"wallet_id" binding:"required"`
	Kind        string          `json:"kind" binding:"required,oneof=deposit withdrawal"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description" binding:"max=255"`
	OccurredAt  *time.Time      `json:"occurred_at"`
}

type transactionsResponse struct {
	Transactions []storage.Transaction `json:"transactions"`
}

func (h *Handler) ListTransactions(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, codeUnauthorized, "missing user")
		return
	}

	var walletID *uuid.UUID
	if raw := c.Query("wallet_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(c, http.StatusBadRequest, codeInvalidRequest, "invalid wallet_id")
			return
		}
		walletID = &id
	}

	txs, err := h.Store.ListTransactions(c.Request.Context(), userID, walletID, parseInt(c.Query("limit")))
	if err != nil {
		storeError(c, h.Logger, "list transactions", err)
		return
	}
	if txs == nil {
		txs = []storage.Transaction{}
	}
	c.JSON(http.StatusOK, transactionsResponse{Transactions: txs})
}

func (h *Handler) CreateTransaction(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, codeUnauthorized, "missing user")
		return
	}
	var req createTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	if !req.Amount.IsPositive() {
		writeError(c, http.StatusBadRequest, codeInvalidRequest, "amount must be positive")
		return
	}

	occurred := time.Now().UTC()
	if req.OccurredAt != nil {
		occurred = req.OccurredAt.UTC()
	}

	tx, err := h.Store.CreateTransaction(c.Request.Context(), storage.Transaction{
		WalletID:    req.WalletID,
		UserID:      userID,
		Kind:        req.Kind,
		Amount:      req.Amount,
		Description: strings.TrimSpace(req.Description),
		OccurredAt:  occurred,
	})
	if err != nil {
		storeError(c, h.Logger, "create transaction", err)
		return
	}
	c.JSON(http.StatusCreated, tx)
}

func (h *Handler) DeleteTransaction(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, codeUnauthorized, "missing user")
		return
	}
	id, ok := pathID(c)
	if !ok {
		writeError(c, http.StatusNotFound, codeNotFound, "not found")
		return
	}
	if err := h.Store.DeleteTransaction(c.Request.Context(), userID, id); err != nil {
		storeError(c, h.Logger, "delete transaction", err)
		return
	}
	c.Status(http.StatusNoContent)
}
