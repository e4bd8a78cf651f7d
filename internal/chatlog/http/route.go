package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// initRouter 初始化所有路由
func (s *Service) initRouter() {
	log.Debug().Msg("initializing router")
	s.initBaseRouter()
	s.initAPIRouter()
	s.initMetricsRouter()
	s.initMCPRouter()
}

// initBaseRouter 初始化基础路由
func (s *Service) initBaseRouter() {
	log.Debug().Msg("initializing base router")
	s.router.GET("/health", func(ctx *gin.Context) { ctx.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	s.router.NoRoute(func(c *gin.Context) {
		path := c.Request.URL.Path
		log.Debug().Str("path", path).Msg("no route found")
		if strings.HasPrefix(path, "/api") {
			c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
			return
		}
		c.Redirect(http.StatusFound, "/health")
	})
}

// initAPIRouter 初始化 API 路由
func (s *Service) initAPIRouter() {
	log.Debug().Msg("initializing API router")
	api := s.router.Group("/api/v1", s.checkDBStateMiddleware())
	{
		api.GET("/databases", s.handleDatabases)
		api.GET("/contacts", s.handleContacts)
		api.GET("/contacts/:key", s.handleContact)
		api.GET("/contacts/:key/messages", s.handleMessages)
		api.GET("/contacts/:key/diagnose", s.handleDiagnose)
		api.GET("/databases/:db/tables", s.handleTables)
		api.POST("/databases/:db/query", s.handleQuery)
	}
}

// initMetricsRouter 暴露加载过程的 prometheus 指标
func (s *Service) initMetricsRouter() {
	s.router.GET("/metrics", func(c *gin.Context) {
		data := s.db.Data()
		if data == nil {
			c.Status(http.StatusServiceUnavailable)
			return
		}
		promhttp.HandlerFor(data.Metrics().Registry, promhttp.HandlerOpts{}).ServeHTTP(c.Writer, c.Request)
	})
}

// initMCPRouter 初始化 MCP 路由
func (s *Service) initMCPRouter() {
	if s.mcp == nil {
		return
	}
	log.Debug().Msg("initializing MCP router")
	s.router.Any("/mcp", func(c *gin.Context) { s.mcpStreamableServer.ServeHTTP(c.Writer, c.Request) })
	s.router.Any("/sse", func(c *gin.Context) { s.mcpSSEServer.ServeHTTP(c.Writer, c.Request) })
	s.router.Any("/message", func(c *gin.Context) { s.mcpSSEServer.ServeHTTP(c.Writer, c.Request) })
}
