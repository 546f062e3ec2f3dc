package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/kirillm/signalbot/internal/domain"
	"github.com/kirillm/signalbot/internal/execution"
	"github.com/kirillm/signalbot/internal/monitor"
	"github.com/kirillm/signalbot/internal/notify"
	"github.com/kirillm/signalbot/internal/risk"
	"github.com/kirillm/signalbot/pkg/utils"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// EventReader отдаёт журнал действий риск-движка
type EventReader interface {
	RecentEvents(ctx context.Context, symbol string, limit int) ([]domain.RiskEvent, error)
}

// Deps источники данных для API
type Deps struct {
	Trades     domain.TradeReader
	Events     EventReader
	States     risk.StateStore
	Monitor    interface{ Stats() monitor.Stats }
	Delivery   interface{ Stats() notify.Stats }
	KillSwitch *execution.KillSwitch
	DryRun     bool
}

// Server локальный HTTP API только для чтения
type Server struct {
	logger  *utils.Logger
	deps    Deps
	port    int
	started time.Time
	router  *gin.Engine
	server  *http.Server
}

type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// StateView состояние риска по символу
type StateView struct {
	Symbol string `json:"symbol"`
	risk.StateSnapshot
}

func NewServer(logger *utils.Logger, deps Deps, port int) *Server {
	s := &Server{
		logger:  logger,
		deps:    deps,
		port:    port,
		started: time.Now(),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), s.accessLog())

	r.GET("/health", s.handleHealth)
	r.GET("/status", s.handleStatus)
	r.GET("/trades", s.handleTrades)
	r.GET("/trades/:symbol/state", s.handleTradeState)
	r.GET("/history", s.handleHistory)
	r.GET("/events", s.handleEvents)

	r.NoRoute(func(c *gin.Context) {
		sendError(c, "Not found", http.StatusNotFound)
	})
	return r
}

// Handler для тестов и встраивания
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start блокируется до остановки сервера
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("Starting HTTP server on %s", addr)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown аккуратно останавливает сервер
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("RequestID", id)
		c.Writer.Header().Set("X-Request-ID", id)
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("[API] %s %s %d %s id=%s", c.Request.Method, c.Request.URL.Path,
			c.Writer.Status(), time.Since(start), c.GetString("RequestID"))
	}
}

// handleHealth - health check endpoint
func (s *Server) handleHealth(c *gin.Context) {
	sendSuccess(c, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

// handleStatus - monitoring and delivery counters
func (s *Server) handleStatus(c *gin.Context) {
	status := gin.H{
		"dry_run":   s.deps.DryRun,
		"timestamp": time.Now().Unix(),
	}
	if s.deps.Monitor != nil {
		status["monitor"] = s.deps.Monitor.Stats()
	}
	if s.deps.Delivery != nil {
		status["notifications"] = s.deps.Delivery.Stats()
	}
	if s.deps.KillSwitch != nil {
		status["kill_switch"] = s.deps.KillSwitch.Status()
	}
	if s.deps.Trades != nil {
		trades, err := s.deps.Trades.ListActiveTrades(c.Request.Context())
		if err != nil {
			s.internalError(c, "Failed to get trades", err)
			return
		}
		status["active_trades"] = len(trades)
	}
	sendSuccess(c, status)
}

// handleTrades - active trades
func (s *Server) handleTrades(c *gin.Context) {
	if s.deps.Trades == nil {
		sendError(c, "Trade storage not available", http.StatusServiceUnavailable)
		return
	}
	trades, err := s.deps.Trades.ListActiveTrades(c.Request.Context())
	if err != nil {
		s.internalError(c, "Failed to get trades", err)
		return
	}
	if trades == nil {
		trades = []domain.Trade{}
	}
	sendSuccess(c, trades)
}

// handleTradeState - risk flags and price history for one symbol
func (s *Server) handleTradeState(c *gin.Context) {
	if s.deps.States == nil {
		sendError(c, "Risk state not available", http.StatusServiceUnavailable)
		return
	}
	symbol := c.Param("symbol")
	st, ok := s.deps.States.Peek(symbol)
	if !ok {
		sendError(c, fmt.Sprintf("No risk state for %s", symbol), http.StatusNotFound)
		return
	}
	view := StateView{Symbol: symbol, StateSnapshot: st.Snapshot()}
	sendSuccess(c, view)
}

// handleHistory - closed trades, newest first
func (s *Server) handleHistory(c *gin.Context) {
	if s.deps.Trades == nil {
		sendError(c, "Trade storage not available", http.StatusServiceUnavailable)
		return
	}
	limit, err := queryLimit(c)
	if err != nil {
		sendError(c, err.Error(), http.StatusBadRequest)
		return
	}
	history, err := s.deps.Trades.RecentHistory(c.Request.Context(), limit)
	if err != nil {
		s.internalError(c, "Failed to get history", err)
		return
	}
	if history == nil {
		history = []domain.TradeHistory{}
	}
	sendSuccess(c, history)
}

// handleEvents - risk engine actions, optionally filtered by symbol
func (s *Server) handleEvents(c *gin.Context) {
	if s.deps.Events == nil {
		sendError(c, "Event log not available", http.StatusServiceUnavailable)
		return
	}
	limit, err := queryLimit(c)
	if err != nil {
		sendError(c, err.Error(), http.StatusBadRequest)
		return
	}
	events, err := s.deps.Events.RecentEvents(c.Request.Context(), c.Query("symbol"), limit)
	if err != nil {
		s.internalError(c, "Failed to get events", err)
		return
	}
	if events == nil {
		events = []domain.RiskEvent{}
	}
	sendSuccess(c, events)
}

func (s *Server) internalError(c *gin.Context, message string, err error) {
	s.logger.Error("[API] %s: %v", message, err)
	sendError(c, message, http.StatusInternalServerError)
}

func queryLimit(c *gin.Context) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultListLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 || limit > maxListLimit {
		return 0, fmt.Errorf("limit must be between 1 and %d", maxListLimit)
	}
	return limit, nil
}

// Helper methods
func sendSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    data,
	})
}

func sendError(c *gin.Context, message string, statusCode int) {
	c.AbortWithStatusJSON(statusCode, Response{
		Success: false,
		Error:   message,
	})
}
