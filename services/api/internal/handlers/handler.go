package handlers

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/AfshinJalili/rentabili/libs/auth"
	"github.com/AfshinJalili/rentabili/services/api/internal/authn"
	"github.com/AfshinJalili/rentabili/services/api/internal/cache"
	"github.com/AfshinJalili/rentabili/services/api/internal/events"
	"github.com/AfshinJalili/rentabili/services/api/internal/security"
	"github.com/AfshinJalili/rentabili/services/api/internal/storage"
	"github.com/AfshinJalili/rentabili/services/api/internal/tokens"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Cache prefixes for per-user responses.
const (
	PrefixDashboard = "dashboard"
)

type Store interface {
	CreateUser(ctx context.Context, email, passwordHash, name string) (*storage.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*storage.User, error)
	ListUsers(ctx context.Context, limit, offset int) ([]storage.User, error)
	UpdateUser(ctx context.Context, id uuid.UUID, name, email *string) (*storage.User, error)
	DeleteUser(ctx context.Context, id uuid.UUID) error

	CreateWallet(ctx context.Context, userID uuid.UUID, name, currency string) (*storage.Wallet, error)
	ListWallets(ctx context.Context, userID uuid.UUID) ([]storage.Wallet, error)
	GetWallet(ctx context.Context, userID, id uuid.UUID) (*storage.Wallet, error)
	UpdateWallet(ctx context.Context, userID, id uuid.UUID, name string) (*storage.Wallet, error)
	DeleteWallet(ctx context.Context, userID, id uuid.UUID) error
	WalletBalances(ctx context.Context, userID uuid.UUID) ([]storage.WalletBalance, error)

	CreateTransaction(ctx context.Context, t storage.Transaction) (*storage.Transaction, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, walletID *uuid.UUID, limit int) ([]storage.Transaction, error)
	DeleteTransaction(ctx context.Context, userID, id uuid.UUID) error
}

type CookieConfig struct {
	Name   string
	Path   string
	Domain string
	Secure bool
}

type Handler struct {
	Store         Store
	Tokens        *tokens.Service
	Authenticator authn.Authenticator
	Events        events.Emitter
	Cache         *cache.Middleware
	Logger        *slog.Logger
	Argon2        security.Argon2Params
	Cookie        CookieConfig
	DashboardTTL  time.Duration
}

type Routes struct {
	// General runs on every API route, Login only on POST /auth/login.
	General     gin.HandlerFunc
	Login       gin.HandlerFunc
	PublicUsers bool
}

func (h *Handler) RegisterRoutes(r gin.IRouter, routes Routes) {
	api := r.Group("/")
	if routes.General != nil {
		api.Use(routes.General)
	}

	authGroup := api.Group("/auth")
	authGroup.POST("/register", h.Register)
	if routes.Login != nil {
		authGroup.POST("/login", routes.Login, h.Login)
	} else {
		authGroup.POST("/login", h.Login)
	}
	authGroup.POST("/refresh", h.Refresh)
	authGroup.POST("/logout", h.Logout)

	protected := api.Group("/", auth.Middleware(h.Tokens.Config.Secret, h.Tokens.ParserOptions()...))
	invalidate := h.Cache.Invalidate(PrefixDashboard)

	usersCollection := protected
	if routes.PublicUsers {
		usersCollection = api
	}
	usersCollection.GET("/users", h.ListUsers)
	usersCollection.POST("/users", h.CreateUser)
	protected.GET("/users/:id", h.GetUser)
	protected.PUT("/users/:id", invalidate, h.UpdateUser)
	protected.DELETE("/users/:id", invalidate, h.DeleteUser)

	protected.GET("/wallets", h.ListWallets)
	protected.POST("/wallets", invalidate, h.CreateWallet)
	protected.GET("/wallets/:id", h.GetWallet)
	protected.PUT("/wallets/:id", invalidate, h.UpdateWallet)
	protected.DELETE("/wallets/:id", invalidate, h.DeleteWallet)

	protected.GET("/transactions", h.ListTransactions)
	protected.POST("/transactions", invalidate, h.CreateTransaction)
	protected.DELETE("/transactions/:id", invalidate, h.DeleteTransaction)

	protected.GET("/dashboard", h.Cache.Cached(PrefixDashboard, h.DashboardTTL), h.Dashboard)
}

func userIDFromContext(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(auth.UserID(c))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func parseInt(raw string) int {
	if raw == "" {
		return 0
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return val
}
