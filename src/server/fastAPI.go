package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"signal-relay/src/helpers"
	"signal-relay/src/interfaces"
	"signal-relay/src/logger"
	"signal-relay/src/metrics"
	"signal-relay/src/models"
	"signal-relay/src/signal"
	"signal-relay/src/utils"

	"github.com/gin-gonic/gin"
)

// -----------------------------------------------------------------------------
// FastAPIServer
// -----------------------------------------------------------------------------

// FastAPIServer is the HTTP face of the relay: the webhook twin of the TCP
// signal path, health/stats for dashboards, admin switches, the websocket
// live feed and prometheus. The name is a leftover from the FastAPI days.
type FastAPIServer struct {
	Config  *models.MConfig
	Logger  *logger.Logger
	Service *signal.Service
	DB      interfaces.IDatabase

	engine  *gin.Engine
	httpSrv *http.Server

	// WebSocket clients
	clients    map[*Client]struct{}
	broadcast  chan *models.MSignalEvent // Strongly typed and buffered queue
	register   chan *Client
	unregister chan *Client

	// Replay history for dashboards that just connected. Owned by the Hub
	// goroutine, no locking needed.
	history *utils.EventRing
}

// -----------------------------------------------------------------------------
// Constructor
// -----------------------------------------------------------------------------

func NewFastAPIServer(cfg *models.MConfig, svc *signal.Service, db interfaces.IDatabase, log *logger.Logger) *FastAPIServer {
	// Set Gin mode
	if cfg.LogLevel != "DEBUG" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &FastAPIServer{
		Config:  cfg,
		Logger:  log,
		Service: svc,
		DB:      db,
		engine:  gin.Default(),
		clients: make(map[*Client]struct{}),
		// Buffered channel so Publish never blocks the signal path
		broadcast:  make(chan *models.MSignalEvent, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		history:    utils.NewEventRing(50),
	}

	// Add CORS Middleware for local dashboards
	s.engine.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if strings.HasPrefix(origin, "http://127.0.0.1:") {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Secret-Key")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// setup web routes
	s.setupRoutes()
	return s
}

// -----------------------------------------------------------------------------
// Route Setup
// -----------------------------------------------------------------------------

func (s *FastAPIServer) setupRoutes() {
	// Signal webhook + public endpoints
	s.engine.POST("/signal", s.postSignal)
	s.engine.GET("/health", s.getHealth)
	s.engine.GET("/stats", s.getStats)

	// Admin endpoints
	admin := s.engine.Group("/admin")
	admin.POST("/pause", s.setBotActive(false))
	admin.POST("/resume", s.setBotActive(true))
	admin.GET("/reports", s.getReports)

	// WebSocket live feed
	s.engine.GET("/ws", s.handleWebSocket)

	// Prometheus
	s.engine.GET("/metrics", gin.WrapH(metrics.Handler()))
}

// -----------------------------------------------------------------------------
// Server Lifecycle
// -----------------------------------------------------------------------------

func (s *FastAPIServer) Start() error {
	addr := fmt.Sprintf("%s:%d", s.Config.HTTP.Host, s.Config.HTTP.Port)
	s.httpSrv = &http.Server{Addr: addr, Handler: s.engine}

	go s.runHub()
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.Logger.Error("HTTP server failed: %v", err)
		}
	}()

	s.Logger.Info("HTTP API listening on %s", addr)
	return nil
}

// -----------------------------------------------------------------------------

// Stop drains in-flight requests. Websocket pumps end with their
// connections.
func (s *FastAPIServer) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// -----------------------------------------------------------------------------
// Signal Webhook
// -----------------------------------------------------------------------------

// postSignal runs the same checks as the TCP path, with outcomes mapped onto
// status codes instead of framed envelopes. Failures here are synchronous:
// an HTTP caller can simply re-POST, so nothing is queued for retry.
func (s *FastAPIServer) postSignal(c *gin.Context) {
	var req models.MSignalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	s.Logger.Info("Signal received from %s: %s %s @ %.5f", c.ClientIP(), req.Action, req.Symbol, req.Price)

	// 1. Authentication
	if req.SecretKey != s.Config.Security.SecretKey {
		s.Logger.Warning("Unauthorized signal attempt from %s", c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Invalid secret key"})
		return
	}

	// 2. Validation
	action := strings.ToUpper(req.Action)
	if action != utils.ActionBuy && action != utils.ActionSell && action != utils.ActionClose {
		s.Logger.Warning("Invalid action received: %s", req.Action)
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Action must be BUY, SELL, or CLOSE"})
		return
	}

	// 3. Processing
	var signalID int64
	var message string

	switch action {
	case utils.ActionBuy, utils.ActionSell:
		allowed, reason, err := s.Service.Admission.CanAccept(req.Symbol)
		if err != nil {
			s.Logger.Error("Admission check failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "An internal server error occurred."})
			return
		}
		if !allowed {
			s.Logger.Warning("Signal rejected: %s", reason)
			c.JSON(http.StatusTooManyRequests, gin.H{"detail": reason})
			return
		}

		signalID, err = s.Service.ProcessNewSignal(envelopeFrom(&req, action))
		if err != nil {
			s.Logger.Error("An unexpected error occurred while processing signal: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "An internal server error occurred."})
			return
		}
		message = fmt.Sprintf("Signal %s processed successfully", action)

	case utils.ActionClose:
		if req.OpenSignalID == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "open_signal_id is required for CLOSE action"})
			return
		}

		if _, err := s.Service.ProcessCloseSignal(req.Symbol, req.Price, req.OpenSignalID); err != nil {
			if helpers.IsNonRetryable(err) {
				c.JSON(http.StatusNotFound, gin.H{"detail": fmt.Sprintf("Signal #%d not found or already closed", req.OpenSignalID)})
				return
			}
			s.Logger.Error("An unexpected error occurred while processing signal: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "An internal server error occurred."})
			return
		}
		signalID = req.OpenSignalID
		message = fmt.Sprintf("Close signal for #%d processed successfully", signalID)
	}

	// 4. Response
	c.JSON(http.StatusOK, models.MWebhookResponse{
		Status:       utils.StatusSuccess,
		Message:      message,
		SignalID:     signalID,
		SignalsToday: s.todaySignalCount(),
	})
}

// -----------------------------------------------------------------------------

// envelopeFrom converts the HTTP body into the envelope shape the service
// processes, so both transports run the identical path.
func envelopeFrom(req *models.MSignalRequest, action string) models.MEnvelope {
	return models.MEnvelope{
		"action":        action,
		"symbol":        req.Symbol,
		"price":         req.Price,
		"sl":            req.SL,
		"tp1":           req.TP1,
		"tp2":           req.TP2,
		"tp3":           req.TP3,
		"atr":           req.ATR,
		"client_msg_id": req.ClientMsgID,
	}
}

// -----------------------------------------------------------------------------
// Public Endpoints
// -----------------------------------------------------------------------------

func (s *FastAPIServer) getHealth(c *gin.Context) {
	active, err := s.DB.GetBotActive()
	if err != nil {
		active = true // missing state reads as running
	}

	c.JSON(http.StatusOK, models.MHealthResponse{
		Status:    "healthy",
		BotActive: active,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// -----------------------------------------------------------------------------

func (s *FastAPIServer) getStats(c *gin.Context) {
	stats, err := s.DB.GetTodayStats()
	if err != nil {
		s.Logger.Error("Failed to load stats: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "An internal server error occurred."})
		return
	}
	active, err := s.DB.GetBotActive()
	if err != nil {
		active = true
	}

	c.JSON(http.StatusOK, models.MStatsResponse{
		Date:      time.Now().UTC().Format("2006-01-02"),
		Stats:     *stats,
		BotActive: active,
		Limits: models.MStatsLimits{
			MaxSignalsPerDay:         s.Config.Admission.MaxSignalsPerDay,
			MinSecondsBetweenSignals: s.Config.Admission.MinSecondsBetweenSignals,
		},
	})
}

// -----------------------------------------------------------------------------
// Admin Endpoints
// -----------------------------------------------------------------------------

// setBotActive builds the pause/resume handler. Both flip the persisted flag
// the admission controller reads on every signal.
func (s *FastAPIServer) setBotActive(active bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.MAdminRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
			return
		}
		if req.SecretKey != s.Config.Security.SecretKey {
			c.JSON(http.StatusUnauthorized, gin.H{"detail": "Invalid secret key"})
			return
		}

		if err := s.DB.SetBotActive(active); err != nil {
			s.Logger.Error("Failed to persist bot state: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "An internal server error occurred."})
			return
		}

		state := "paused"
		if active {
			state = "resumed"
		}
		s.Logger.Info("Bot %s by admin from %s", state, c.ClientIP())
		c.JSON(http.StatusOK, gin.H{"status": utils.StatusSuccess, "bot_active": active})
	}
}

// -----------------------------------------------------------------------------

func (s *FastAPIServer) getReports(c *gin.Context) {
	if c.GetHeader("X-Secret-Key") != s.Config.Security.SecretKey {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Invalid secret key"})
		return
	}

	limit := 20
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 200 {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "limit must be between 1 and 200"})
			return
		}
		limit = n
	}

	reports, err := s.DB.GetRecentReports(limit)
	if err != nil {
		s.Logger.Error("Failed to load reports: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "An internal server error occurred."})
		return
	}

	c.JSON(http.StatusOK, gin.H{"reports": reports})
}

// -----------------------------------------------------------------------------

func (s *FastAPIServer) todaySignalCount() int {
	stats, err := s.DB.GetTodayStats()
	if err != nil {
		s.Logger.Warning("Could not load today's stats: %v", err)
		return 0
	}
	return stats.TotalSignals
}
