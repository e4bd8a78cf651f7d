package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog/log"

	"github.com/takeaway1/wxchat/internal/chatlog/database"
	"github.com/takeaway1/wxchat/internal/chatlog/mcp"
)

type Config interface {
	GetHTTPAddr() string
}

type Service struct {
	conf   Config
	db     *database.Service
	mcp    *mcp.Service
	router *gin.Engine
	server *http.Server

	mcpStreamableServer *server.StreamableHTTPServer
	mcpSSEServer        *server.SSEServer
}

func NewService(conf Config, db *database.Service, mcpService *mcp.Service) *Service {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestIDMiddleware(), loggerMiddleware())

	s := &Service{
		conf:   conf,
		db:     db,
		mcp:    mcpService,
		router: router,
	}
	if mcpService != nil {
		s.mcpStreamableServer = server.NewStreamableHTTPServer(mcpService.MCPServer())
		s.mcpSSEServer = server.NewSSEServer(mcpService.MCPServer())
	}
	s.initRouter()
	return s
}

func (s *Service) Handler() http.Handler {
	return s.router
}

// Start 启动 HTTP 服务，阻塞直到服务关闭
func (s *Service) Start() error {
	s.server = &http.Server{
		Addr:              s.conf.GetHTTPAddr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Info().Str("addr", s.server.Addr).Msg("http server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Err(err).Msg("http server failed")
		return err
	}
	return nil
}

func (s *Service) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	log.Debug().Msg("stopping http server")
	return s.server.Shutdown(ctx)
}
