package controlplane

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/HeadyMe/heady-mcp-router/internal/auth"
	"github.com/HeadyMe/heady-mcp-router/internal/governance"
	"github.com/HeadyMe/heady-mcp-router/internal/mcp"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ServerConfig configures the HTTP facade.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigins  []string
	RateLimit    RateLimitConfig
	Auth         auth.Config
}

// DefaultServerConfig returns the standard listener settings.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:         "127.0.0.1:3300",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		CORSOrigins:  []string{"*"},
		RateLimit:    DefaultRateLimitConfig(),
		Auth:         auth.DefaultConfig(),
	}
}

// Server provides the HTTP API of the router.
type Server struct {
	service *Service
	cfg     ServerConfig
	logger  *zap.Logger
	engine  *gin.Engine
	server  *http.Server
}

// NewServer creates the HTTP server and registers its routes.
func NewServer(service *Service, cfg ServerConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		service: service,
		cfg:     cfg,
		logger:  logger,
	}
	s.engine = s.routes()
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.logger), corsMiddleware(s.cfg.CORSOrigins))
	if m := s.service.Metrics(); m != nil {
		r.Use(m.Middleware())
		r.GET("/metrics", gin.WrapH(m.Handler()))
	}
	if s.cfg.RateLimit.Enabled {
		r.Use(rateLimit(s.cfg.RateLimit))
	}
	r.Use(auth.Middleware(s.cfg.Auth))
	if g := s.service.Governance(); g != nil {
		r.Use(g.Middleware(auth.IdentityPresent))
	}

	r.GET("/health", s.handleHealth)

	tools := r.Group("/tools")
	tools.GET("/:service", s.handleListTools)
	tools.POST("/:service", s.handleCallTool)

	api := r.Group("/api/mcp")
	api.GET("/services", s.handleServices)
	api.GET("/presets", s.handlePresets)
	api.GET("/servers", s.handleServers)
	api.POST("/servers/:name/connect", s.handleConnect)
	api.POST("/servers/:name/disconnect", s.handleDisconnect)
	api.POST("/recommend", s.handleRecommend)
	api.POST("/validate", s.handleValidate)
	api.POST("/select", s.handleSelect)
	api.POST("/call", s.handleCall)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "not found"})
	})
	return r
}

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.engine,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	s.logger.Info("starting headyrouter daemon", zap.String("addr", s.cfg.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) fail(c *gin.Context, err error) {
	st := StatusOf(err)
	body := gin.H{"success": false, "error": st.Message}
	if st.Reason != "" {
		body["reason"] = st.Reason
	}
	c.JSON(st.Code, body)
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
}

// --- Health ---

func (s *Server) handleHealth(c *gin.Context) {
	h := s.service.Health()
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"status":     h.Status,
		"service":    h.Service,
		"version":    h.Version,
		"uptime":     h.Uptime,
		"connected":  h.Connected,
		"configured": h.Configured,
		"registered": h.Registered,
		"governance": h.Governance,
		"supervisor": h.Supervisor,
		"time":       h.Time,
	})
}

// --- Tools ---

type callToolRequest struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

func (s *Server) handleListTools(c *gin.Context) {
	service := c.Param("service")
	tools, err := s.service.ListTools(c.Request.Context(), service)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "service": service, "tools": tools})
}

func (s *Server) handleCallTool(c *gin.Context) {
	var req callToolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	s.call(c, c.Param("service"), req.Name, req.Args)
}

// --- Registry ---

func (s *Server) handleServices(c *gin.Context) {
	services := s.service.Services()
	c.JSON(http.StatusOK, gin.H{"success": true, "count": len(services), "services": services})
}

func (s *Server) handlePresets(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "presets": s.service.Presets()})
}

func (s *Server) handleServers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "servers": s.service.Servers()})
}

func (s *Server) handleConnect(c *gin.Context) {
	st, err := s.service.Connect(c.Request.Context(), c.Param("name"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "server": st})
}

func (s *Server) handleDisconnect(c *gin.Context) {
	if err := s.service.Disconnect(c.Param("name")); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// --- Selection ---

type recommendRequest struct {
	Task    string     `json:"task"`
	History []mcp.Turn `json:"history"`
}

func (s *Server) handleRecommend(c *gin.Context) {
	var req recommendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	rec := s.service.Recommend(req.Task, req.History)
	c.JSON(http.StatusOK, gin.H{"success": true, "recommendation": rec})
}

type validateRequest struct {
	Services []string `json:"services"`
}

func (s *Server) handleValidate(c *gin.Context) {
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "validation": s.service.Validate(req.Services)})
}

type selectRequest struct {
	Preset   string     `json:"preset"`
	Services []string   `json:"services"`
	Task     string     `json:"task"`
	History  []mcp.Turn `json:"history"`
}

func (s *Server) handleSelect(c *gin.Context) {
	var req selectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	sel := s.service.Select(c.Request.Context(), mcp.CombinationOptions{
		Services: req.Services,
		Preset:   req.Preset,
		Task:     req.Task,
		Context:  mcp.RecommendContext{History: req.History},
	})
	c.JSON(http.StatusOK, gin.H{"success": true, "selection": sel})
}

type callRequest struct {
	Server string         `json:"server"`
	Tool   string         `json:"tool"`
	Args   map[string]any `json:"args"`
}

func (s *Server) handleCall(c *gin.Context) {
	var req callRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	s.call(c, req.Server, req.Tool, req.Args)
}

func (s *Server) call(c *gin.Context, service, tool string, args map[string]any) {
	result, err := s.service.CallTool(c.Request.Context(), CallRequest{
		Service:        service,
		Tool:           tool,
		Args:           args,
		Confirmed:      governance.Confirmed(c.GetHeader(governance.HeaderConfirmed)),
		ClientIdentity: auth.IdentityPresent(c),
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "service": service, "tool": tool, "result": result})
}
