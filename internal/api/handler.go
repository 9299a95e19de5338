package api

import (
	"net/http"
	"time"

	"tradeguard/internal/events"
	"tradeguard/internal/journal"
	"tradeguard/internal/monitor"
	"tradeguard/internal/risk"
	"tradeguard/pkg/db"

	"github.com/gin-gonic/gin"
)

// Server wires HTTP endpoints around the risk engine and the journal.
type Server struct {
	Router    *gin.Engine
	Bus       *events.Bus
	DB        *db.Database
	Risk      *risk.Engine
	Journal   *journal.Service
	Metrics   *monitor.SystemMetrics
	JWTSecret string
	Meta      SystemMeta
}

// SystemMeta describes runtime status exposed to the UI.
type SystemMeta struct {
	Version string
}

func NewServer(bus *events.Bus, database *db.Database, riskEngine *risk.Engine, journalSvc *journal.Service, metrics *monitor.SystemMetrics, meta SystemMeta, jwtSecret string) *Server {
	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger(metrics)) // after the request ID is set
	r.Use(RateLimitMiddleware())
	r.Use(TimeoutMiddleware(30 * time.Second))
	r.Use(CORSMiddleware())

	s := &Server{
		Router:    r,
		Bus:       bus,
		DB:        database,
		Risk:      riskEngine,
		Journal:   journalSvc,
		Metrics:   metrics,
		JWTSecret: jwtSecret,
		Meta:      meta,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)

	api := s.Router.Group("/api/v1")
	{
		// Auth endpoints (no auth required)
		auth := api.Group("/auth")
		{
			auth.POST("/register", s.registerUser)
			auth.POST("/login", s.loginUser)
		}

		// Protected API
		protected := api.Group("")
		protected.Use(AuthMiddleware(s.JWTSecret))
		{
			protected.GET("/risk/profile", s.getRiskProfile)
			protected.PATCH("/risk/profile/limits", s.updateRiskLimits)
			protected.POST("/risk/profile/reset", s.resetRiskProfile)

			protected.POST("/trades", s.openTrade)
			protected.POST("/trades/:id/close", s.closeTrade)
			protected.GET("/trades", s.listTrades)
			protected.GET("/trades/stats", s.getTradeStats)

			protected.GET("/metrics", s.getMetrics)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": s.Meta.Version})
}

func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
