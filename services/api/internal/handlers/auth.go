package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/AfshinJalili/rentabili/libs/httpmiddleware"
	"github.com/AfshinJalili/rentabili/services/api/internal/authn"
	"github.com/AfshinJalili/rentabili/services/api/internal/events"
	"github.com/AfshinJalili/rentabili/services/api/internal/security"
	"github.com/AfshinJalili/rentabili/services/api/internal/storage"
	"github.com/AfshinJalili/rentabili/services/api/internal/tokens"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type registerRequest struct {
	Email    string `json:"email" binding:"required,email,max=254"`
	Password string `json:"password" binding:"required,min=8,max=128"`
	Name     string `json:"name" binding:"required,max=100"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (h *Handler) Register(c *gin.Context) {
	user, ok := h.createUser(c)
	if !ok {
		return
	}
	h.Events.Emit(c.Request.Context(), events.TypeUserRegistered, user.ID, h.eventMeta(c))
	c.JSON(http.StatusCreated, user)
}

// createUser binds a registration payload and stores the user. It writes
// the error response itself.
func (h *Handler) createUser(c *gin.Context) (*storage.User, bool) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return nil, false
	}

	hash, err := security.HashPassword(req.Password, h.Argon2)
	if err != nil {
		internalError(c, h.Logger, "hash password", err)
		return nil, false
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	user, err := h.Store.CreateUser(c.Request.Context(), email, hash, strings.TrimSpace(req.Name))
	if errors.Is(err, storage.ErrConflict) {
		writeError(c, http.StatusConflict, codeConflict, "email already registered")
		return nil, false
	}
	if err != nil {
		storeError(c, h.Logger, "create user", err)
		return nil, false
	}
	return user, true
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	user, err := h.Authenticator.Authenticate(c.Request.Context(), req.Email, req.Password)
	if errors.Is(err, authn.ErrInvalidCredentials) {
		writeError(c, http.StatusUnauthorized, codeUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		internalError(c, h.Logger, "login lookup failed", err)
		return
	}

	pair, err := h.Tokens.IssueSession(c.Request.Context(), user.ID, h.tokenMeta(c))
	if err != nil {
		internalError(c, h.Logger, "issue session failed", err)
		return
	}

	h.Events.Emit(c.Request.Context(), events.TypeSessionStarted, user.ID, h.eventMeta(c))
	h.writePair(c, pair)
}

func (h *Handler) Refresh(c *gin.Context) {
	token, err := c.Cookie(h.Cookie.Name)
	if err != nil || token == "" {
		writeError(c, http.StatusUnauthorized, codeUnauthorized, "missing refresh token")
		return
	}

	pair, err := h.Tokens.Rotate(c.Request.Context(), token, h.tokenMeta(c))
	if errors.Is(err, tokens.ErrInvalidToken) {
		h.clearCookie(c)
		writeError(c, http.StatusUnauthorized, codeUnauthorized, "invalid refresh token")
		return
	}
	if err != nil {
		internalError(c, h.Logger, "token rotation failed", err)
		return
	}

	h.Events.Emit(c.Request.Context(), events.TypeSessionRotated, pair.UserID, h.eventMeta(c))
	h.writePair(c, pair)
}

// Logout always succeeds for the client. A failed revoke is logged; the
// cookie is cleared regardless.
func (h *Handler) Logout(c *gin.Context) {
	token, _ := c.Cookie(h.Cookie.Name)
	if token != "" {
		if err := h.Tokens.Revoke(c.Request.Context(), token); err != nil {
			h.Logger.Error("revoke token failed",
				"error", err,
				"request_id", httpmiddleware.RequestIDFrom(c),
			)
		} else {
			h.Events.Emit(c.Request.Context(), events.TypeSessionRevoked, uuid.Nil, h.eventMeta(c))
		}
	}
	h.clearCookie(c)
	c.Status(http.StatusNoContent)
}

func (h *Handler) writePair(c *gin.Context, pair *tokens.Pair) {
	h.setCookie(c, pair.RefreshToken)
	c.JSON(http.StatusOK, tokenResponse{
		AccessToken: pair.AccessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(h.Tokens.Config.AccessTTL.Seconds()),
	})
}

func (h *Handler) setCookie(c *gin.Context, value string) {
	maxAge := int(h.Tokens.Config.RefreshTTL / time.Second)
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(h.Cookie.Name, value, maxAge, h.Cookie.Path, h.Cookie.Domain, h.Cookie.Secure, true)
}

func (h *Handler) clearCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(h.Cookie.Name, "", -1, h.Cookie.Path, h.Cookie.Domain, h.Cookie.Secure, true)
}

func (h *Handler) tokenMeta(c *gin.Context) tokens.Meta {
	return tokens.Meta{IP: c.ClientIP(), UserAgent: c.Request.UserAgent()}
}

func (h *Handler) eventMeta(c *gin.Context) events.Meta {
	return events.Meta{
		RequestID: httpmiddleware.RequestIDFrom(c),
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}
