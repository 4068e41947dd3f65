package handlers

import (
	"net/http"
	"strings"

	"github.com/AfshinJalili/rentabili/services/api/internal/events"
	"github.com/AfshinJalili/rentabili/services/api/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type updateUserRequest struct {
	Name  *string `json:"name" binding:"omitempty,min=1,max=100"`
	Email *string `json:"email" binding:"omitempty,email,max=254"`
}

type usersResponse struct {
	Users []storage.User `json:"users"`
}

func (h *Handler) ListUsers(c *gin.Context) {
	users, err := h.Store.ListUsers(c.Request.Context(), parseInt(c.Query("limit")), parseInt(c.Query("offset")))
	if err != nil {
		storeError(c, h.Logger, "list users", err)
		return
	}
	if users == nil {
		users = []storage.User{}
	}
	c.JSON(http.StatusOK, usersResponse{Users: users})
}

func (h *Handler) CreateUser(c *gin.Context) {
	user, ok := h.createUser(c)
	if !ok {
		return
	}
	h.Events.Emit(c.Request.Context(), events.TypeUserRegistered, user.ID, h.eventMeta(c))
	c.JSON(http.StatusCreated, user)
}

func (h *Handler) GetUser(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		writeError(c, http.StatusNotFound, codeNotFound, "not found")
		return
	}
	user, err := h.Store.GetUserByID(c.Request.Context(), id)
	if err != nil {
		storeError(c, h.Logger, "get user", err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) UpdateUser(c *gin.Context) {
	id, ok := h.ownUserID(c)
	if !ok {
		return
	}

	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	if req.Name == nil && req.Email == nil {
		writeError(c, http.StatusBadRequest, codeInvalidRequest, "nothing to update")
		return
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		req.Name = &name
	}
	if req.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*req.Email))
		req.Email = &email
	}

	user, err := h.Store.UpdateUser(c.Request.Context(), id, req.Name, req.Email)
	if err != nil {
		storeError(c, h.Logger, "update user", err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) DeleteUser(c *gin.Context) {
	id, ok := h.ownUserID(c)
	if !ok {
		return
	}
	if err := h.Store.DeleteUser(c.Request.Context(), id); err != nil {
		storeError(c, h.Logger, "delete user", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ownUserID resolves :id and rejects anything but the caller's own id.
func (h *Handler) ownUserID(c *gin.Context) (uuid.UUID, bool) {
	caller, ok := userIDFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, codeUnauthorized, "missing user")
		return uuid.Nil, false
	}
	id, ok := pathID(c)
	if !ok {
		writeError(c, http.StatusNotFound, codeNotFound, "not found")
		return uuid.Nil, false
	}
	if id != caller {
		writeError(c, http.StatusForbidden, codeForbidden, "cannot modify another user")
		return uuid.Nil, false
	}
	return id, true
}
