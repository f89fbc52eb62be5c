// Package handler exposes the read-only query surface: book snapshots,
// settled trade history, cash balances and the trade-stream WebSocket.
// Queries never mutate book state and never fail due to concurrent
// matching; they see either the state before or after any given event.
package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nathanyu/exchange-core/internal/broadcast"
	"github.com/nathanyu/exchange-core/internal/domain"
	"github.com/nathanyu/exchange-core/internal/matching"
	"github.com/nathanyu/exchange-core/internal/settlement"
)

// Handler holds the HTTP handler dependencies.
type Handler struct {
	engine *matching.Engine
	store  *settlement.Store
	hub    *broadcast.Hub
}

// NewHandler creates a new Handler.
func NewHandler(engine *matching.Engine, store *settlement.Store, hub *broadcast.Hub) *Handler {
	return &Handler{
		engine: engine,
		store:  store,
		hub:    hub,
	}
}

// RegisterRoutes sets up the Gin routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)
	r.GET("/ws/trades", h.TradeStream)

	v1 := r.Group("/v1")
	{
		v1.GET("/order-book", h.GetFullBook)
		v1.GET("/order-book/:symbol", h.GetBook)
		v1.GET("/trades", h.GetTrades)
		v1.GET("/balance", h.GetBalance)
		v1.POST("/balance/deposit", h.Deposit)
	}
}

// Health returns a health check response.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "exchange-core",
	})
}

// GetFullBook handles GET /v1/order-book: every symbol's book with orders
// in priority order (best level first, oldest first within a level).
func (h *Handler) GetFullBook(c *gin.Context) {
	books := h.engine.SnapshotAll()

	result := make(gin.H, len(books))
	for symbol, snap := range books {
		result[symbol] = gin.H{"buy": snap.Buy, "sell": snap.Sell}
	}
	c.JSON(http.StatusOK, result)
}

// GetBook handles GET /v1/order-book/:symbol. Unknown symbols return
// empty sides, not an error.
func (h *Handler) GetBook(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))
	c.JSON(http.StatusOK, h.engine.Snapshot(symbol))
}

// GetTrades handles GET /v1/trades: settled trades, newest first.
func (h *Handler) GetTrades(c *gin.Context) {
	symbol := strings.ToUpper(c.Query("symbol"))

	limitStr := c.DefaultQuery("limit", "50")
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 {
		limit = 50
	}

	trades, err := h.store.RecentTrades(symbol, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if trades == nil {
		trades = []*domain.Trade{}
	}
	c.JSON(http.StatusOK, trades)
}

// GetBalance handles GET /v1/balance?user_id=.
func (h *Handler) GetBalance(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	cash, ok := h.store.Balance(userID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "balance not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "cash": cash})
}

// DepositRequest is the request body for seeding a cash balance.
type DepositRequest struct {
	UserID int64 `json:"user_id" binding:"required"`
	Amount int64 `json:"amount" binding:"required,gt=0"`
}

// Deposit handles POST /v1/balance/deposit.
func (h *Handler) Deposit(c *gin.Context) {
	var req DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cash, err := h.store.Deposit(req.UserID, req.Amount)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": req.UserID, "cash": cash})
}

// TradeStream handles GET /ws/trades: upgrades to a WebSocket and joins
// the broadcast hub.
func (h *Handler) TradeStream(c *gin.Context) {
	h.hub.ServeWS(c.Writer, c.Request)
}
