package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/takeaway1/wxchat/internal/errors"
)

func (s *Service) handleDatabases(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"databases":  s.db.Databases(),
		"messageDbs": s.db.MessageDBs(),
	})
}

// handleTables 列出聊天表，validate=true 时只返回通过结构校验的表
func (s *Service) handleTables(c *gin.Context) {
	db := c.Param("db")
	validate, _ := strconv.ParseBool(c.DefaultQuery("validate", "false"))
	log.Debug().Str("db", db).Bool("validate", validate).Msg("handling tables request")

	tables, err := s.db.ChatTables(c.Request.Context(), db, validate)
	if err != nil {
		errors.Err(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": tables})
}

// handleQuery 在指定库上执行只读 SQL
func (s *Service) handleQuery(c *gin.Context) {
	db := c.Param("db")
	var req struct {
		SQL string `json:"sql" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.Err(c, errors.InvalidArg("sql"))
		return
	}
	log.Debug().Str("db", db).Str("sql", req.SQL).Msg("handling query request")

	result, err := s.db.Query(c.Request.Context(), db, req.SQL)
	if err != nil {
		errors.Err(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
