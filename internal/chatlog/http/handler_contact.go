package http

import (
	"encoding/csv"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/takeaway1/wxchat/internal/errors"
	"github.com/takeaway1/wxchat/internal/model"
)

func (s *Service) handleContacts(c *gin.Context) {
	log.Debug().Msg("handling contacts request")
	q := struct {
		Keyword string `form:"keyword"`
		Limit   int    `form:"limit"`
		Offset  int    `form:"offset"`
		Format  string `form:"format"`
	}{}

	if err := c.BindQuery(&q); err != nil {
		errors.Err(c, errors.InvalidArg("query"))
		return
	}

	list, err := s.db.GetContacts(c.Request.Context(), strings.TrimSpace(q.Keyword), q.Limit, q.Offset)
	if err != nil {
		errors.Err(c, err)
		return
	}

	switch format(q.Format) {
	case "csv":
		s.renderContactsCSV(c, list.Items)
	default:
		c.JSON(http.StatusOK, list)
	}
}

// renderContactsCSV 渲染联系人列表为 CSV
func (s *Service) renderContactsCSV(c *gin.Context, items []*model.Contact) {
	c.Writer.Header().Set("Content-Type", "text/csv; charset=utf-8")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.WriteHeader(http.StatusOK)

	csvWriter := csv.NewWriter(c.Writer)
	csvWriter.Write([]string{"ID", "DisplayName", "Remark", "NickName", "Type", "LastActive"})
	for _, contact := range items {
		lastActive := ""
		if contact.LastActiveTime != nil {
			lastActive = contact.LastActiveTime.Format(time.RFC3339)
		}
		csvWriter.Write([]string{
			contact.ID,
			contact.DisplayName,
			contact.Remark,
			contact.NickName,
			string(contact.ContactType),
			lastActive,
		})
	}
	csvWriter.Flush()
}

func (s *Service) handleContact(c *gin.Context) {
	key := c.Param("key")
	log.Debug().Str("key", key).Msg("handling contact request")
	contact, err := s.db.FindContact(c.Request.Context(), key)
	if err != nil {
		errors.Err(c, err)
		return
	}
	c.JSON(http.StatusOK, contact)
}

// handleDiagnose 返回联系人的标识、候选表名以及各库中命中的表
func (s *Service) handleDiagnose(c *gin.Context) {
	key := c.Param("key")
	log.Debug().Str("key", key).Msg("handling diagnose request")
	list, err := s.db.Diagnose(c.Request.Context(), key)
	if err != nil {
		errors.Err(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": list})
}

func format(f string) string {
	f = strings.ToLower(strings.TrimSpace(f))
	if f == "" {
		return "json"
	}
	return f
}
