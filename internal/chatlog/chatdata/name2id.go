package chatdata

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/takeaway1/wxchat/internal/model"
	"github.com/takeaway1/wxchat/internal/wechatdb/dbm"
	"github.com/takeaway1/wxchat/internal/wechatdb/fieldmap"
	"github.com/takeaway1/wxchat/internal/wechatdb/parser"
)

// Name2IDTable v4 消息库中 real_sender_id 保存的是该表的 rowid
const Name2IDTable = "Name2Id"

// loadSenderNames 读取 Name2Id 的 rowid -> user_name 映射，库中没有该表时返回 nil
func (s *Service) loadSenderNames(ctx context.Context, dbID string, tables []*model.TableInfo) map[string]string {
	var table *model.TableInfo
	for _, t := range tables {
		if strings.EqualFold(t.Name, Name2IDTable) {
			table = t
			break
		}
	}
	if table == nil {
		return nil
	}

	column := "user_name"
	m := fieldmap.Map(table.Columns, parser.ContactRules)
	if c, ok := m.Column(table.Columns, parser.FieldUserName); ok {
		column = c
	}
	query := fmt.Sprintf("SELECT rowid, %s FROM %s", dbm.QuoteIdent(column), dbm.QuoteIdent(table.Name))
	result, err := s.source.RunQuery(ctx, dbID, query)
	if err != nil {
		log.Warn().Err(err).Str("db", dbID).Msg("load Name2Id failed, senders keep raw ids")
		s.metrics.SoftErrors.WithLabelValues("name2id").Inc()
		return nil
	}

	names := make(map[string]string, len(result.Rows))
	for _, row := range result.Rows {
		if len(row) < 2 {
			continue
		}
		id, ok := parser.Text(row[0])
		if !ok {
			continue
		}
		if name, ok := parser.Text(row[1]); ok {
			names[id] = name
		}
	}
	log.Debug().Str("db", dbID).Int("names", len(names)).Msg("Name2Id loaded")
	return names
}
