package handlers

import (
	"net/http"
	"strings"

	"github.com/AfshinJalili/rentabili/services/api/internal/storage"
	"github.com/gin-gonic/gin"
)

type createWalletRequest struct {
	Name     string `json:"name" binding:"required,max=100"`
	Currency string `json:"currency" binding:"required,len=3,alpha"`
}

type updateWalletRequest struct {
	Name string `json:"name" binding:"required,max=100"`
}

type walletsResponse struct {
	Wallets []storage.Wallet `json:"wallets"`
}

func (h *Handler) ListWallets(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, codeUnauthorized, "missing user")
		return
	}
	wallets, err := h.Store.ListWallets(c.Request.Context(), userID)
	if err != nil {
		storeError(c, h.Logger, "list wallets", err)
		return
	}
	if wallets == nil {
		wallets = []storage.Wallet{}
	}
	c.JSON(http.StatusOK, walletsResponse{Wallets: wallets})
}

func (h *Handler) CreateWallet(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, codeUnauthorized, "missing user")
		return
	}
	var req createWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(c, http.StatusBadRequest, codeInvalidRequest, "name is required")
		return
	}
	wallet, err := h.Store.CreateWallet(c.Request.Context(), userID, name, strings.ToUpper(req.Currency))
	if err != nil {
		storeError(c, h.Logger, "create wallet", err)
		return
	}
	c.JSON(http.StatusCreated, wallet)
}

func (h *Handler) GetWallet(c *gin.Context) {
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
	wallet, err := h.Store.GetWallet(c.Request.Context(), userID, id)
	if err != nil {
		storeError(c, h.Logger, "get wallet", err)
		return
	}
	c.JSON(http.StatusOK, wallet)
}

func (h *Handler) UpdateWallet(c *gin.Context) {
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
	var req updateWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	wallet, err := h.Store.UpdateWallet(c.Request.Context(), userID, id, strings.TrimSpace(req.Name))
	if err != nil {
		storeError(c, h.Logger, "update wallet", err)
		return
	}
	c.JSON(http.StatusOK, wallet)
}

func (h *Handler) DeleteWallet(c *gin.Context) {
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
	if err := h.Store.DeleteWallet(c.Request.Context(), userID, id); err != nil {
		storeError(c, h.Logger, "delete wallet", err)
		return
	}
	c.Status(http.StatusNoContent)
}
