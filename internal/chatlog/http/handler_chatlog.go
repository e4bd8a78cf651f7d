package http

import (
	"encoding/csv"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/takeaway1/wxchat/internal/errors"
	"github.com/takeaway1/wxchat/internal/model"
)

const timeLayout = "2006-01-02 15:04:05"

func (s *Service) handleMessages(c *gin.Context) {
	key := c.Param("key")
	log.Debug().Str("key", key).Msg("handling messages request")
	q := struct {
		Limit  int    `form:"limit"`
		Offset int    `form:"offset"`
		Format string `form:"format"`
	}{}

	if err := c.BindQuery(&q); err != nil {
		errors.Err(c, errors.InvalidArg("query"))
		return
	}
	if q.Limit < 0 {
		q.Limit = 0
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	resp, err := s.db.GetMessages(c.Request.Context(), key, q.Limit, q.Offset)
	if err != nil {
		errors.Err(c, err)
		return
	}

	switch format(q.Format) {
	case "csv":
		s.renderMessagesCSV(c, resp.Items)
	case "text":
		s.renderMessagesText(c, resp.Items)
	default:
		c.JSON(http.StatusOK, resp)
	}
}

func (s *Service) renderMessagesCSV(c *gin.Context, messages []*model.Message) {
	c.Writer.Header().Set("Content-Type", "text/csv; charset=utf-8")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.WriteHeader(http.StatusOK)

	csvWriter := csv.NewWriter(c.Writer)
	csvWriter.Write([]string{"Time", "Sender", "SenderID", "Type", "Content", "Source", "Table"})
	for _, m := range messages {
		csvWriter.Write([]string{
			m.Time.Local().Format(timeLayout),
			m.SenderDisplayName,
			m.SenderID,
			string(m.Type),
			m.Content,
			m.Source,
			m.Table,
		})
	}
	csvWriter.Flush()
}

// renderMessagesText 每条消息一行，时间不准确的消息带 ~ 前缀
func (s *Service) renderMessagesText(c *gin.Context, messages []*model.Message) {
	c.Writer.Header().Set("Content-Type", "text/plain; charset=utf-8")
	c.Writer.WriteHeader(http.StatusOK)
	for _, m := range messages {
		c.Writer.WriteString(FormatMessage(m))
		c.Writer.WriteString("\n")
	}
}

func FormatMessage(m *model.Message) string {
	approx := ""
	if m.TimestampApprox {
		approx = "~"
	}
	return fmt.Sprintf("%s%s %s: %s", approx, m.Time.Local().Format(timeLayout), m.SenderDisplayName, m.Content)
}

