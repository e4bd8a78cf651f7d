package chatdata

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/takeaway1/wxchat/internal/errors"
	"github.com/takeaway1/wxchat/internal/model"
	"github.com/takeaway1/wxchat/internal/wechatdb/parser"
	"github.com/takeaway1/wxchat/internal/wechatdb/resolver"
)

// Service 把联系人解析到聊天表并组装消息
type Service struct {
	source   Source
	registry *ConnectionRegistry
	opts     Options
	metrics  *Metrics

	cache map[string][]*model.Message
	mutex sync.RWMutex
}

func New(source Source, opts Options, metrics *Metrics) *Service {
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Service{
		source:   source,
		registry: NewConnectionRegistry(source),
		opts:     opts.withDefaults(),
		metrics:  metrics,
		cache:    make(map[string][]*model.Message),
	}
}

func (s *Service) Options() Options {
	return s.opts
}

func (s *Service) Metrics() *Metrics {
	return s.metrics
}

func (s *Service) Registry() *ConnectionRegistry {
	return s.registry
}

// LoadContacts 读取联系人库中最像联系人表的表；找不到联系人表时返回错误
func (s *Service) LoadContacts(ctx context.Context, dbID string) ([]*model.Contact, error) {
	log.Debug().Str("db", dbID).Msg("loading contacts")
	if err := s.registry.EnsureConnected(ctx, dbID); err != nil {
		return nil, err
	}
	tables, err := s.source.ListTables(ctx, dbID)
	if err != nil {
		return nil, err
	}
	table := resolver.FindContactTable(tables)
	if table == nil {
		return nil, errors.ContactTableNotFound(dbID)
	}

	result, err := s.source.QueryRows(ctx, dbID, table.Name, 0, 0)
	if err != nil {
		return nil, err
	}
	contacts := parser.ParseContacts(result)
	log.Debug().Str("db", dbID).Str("table", table.Name).Int("rows", len(result.Rows)).Int("contacts", len(contacts)).Msg("contacts loaded")
	return contacts, nil
}

// ChatTables 列出库中的聊天表，validate 为 true 时只返回通过结构校验的表
func (s *Service) ChatTables(ctx context.Context, dbID string, validate bool) ([]*model.TableInfo, error) {
	if err := s.registry.EnsureConnected(ctx, dbID); err != nil {
		return nil, err
	}
	tables, err := s.source.ListTables(ctx, dbID)
	if err != nil {
		return nil, err
	}
	if validate {
		return resolver.GetValidChatTables(ctx, s.source, dbID, tables, s.opts.ValidateSample), nil
	}
	return resolver.FindChatTables(tables), nil
}

// DiagnoseChatMapping 逐库给出候选表名及命中情况，连接失败的库只带标识和候选
func (s *Service) DiagnoseChatMapping(ctx context.Context, contact *model.Contact, dbIDs []string) ([]*resolver.Diagnosis, error) {
	if contact == nil {
		return nil, errors.ErrContactEmpty
	}
	if len(dbIDs) == 0 {
		return []*resolver.Diagnosis{resolver.DiagnoseChatMapping(contact, nil)}, nil
	}
	out := make([]*resolver.Diagnosis, 0, len(dbIDs))
	for _, id := range dbIDs {
		var tables []*model.TableInfo
		if err := s.registry.EnsureConnected(ctx, id); err != nil {
			log.Warn().Err(err).Str("db", id).Msg("diagnose: connect failed")
		} else if tables, err = s.source.ListTables(ctx, id); err != nil {
			log.Warn().Err(err).Str("db", id).Msg("diagnose: list tables failed")
		}
		d := resolver.DiagnoseChatMapping(contact, tables)
		d.Database = id
		out = append(out, d)
	}
	return out, nil
}

// RunQuery 只读的临时查询，用于诊断
func (s *Service) RunQuery(ctx context.Context, dbID, query string) (*model.QueryResult, error) {
	if err := s.registry.EnsureConnected(ctx, dbID); err != nil {
		return nil, err
	}
	return s.source.RunQuery(ctx, dbID, query)
}

// Invalidate 数据库文件变化后丢弃连接状态和消息缓存
func (s *Service) Invalidate(dbID string) {
	s.registry.Forget(dbID)
	s.ResetCache()
}

func (s *Service) ResetCache() {
	s.mutex.Lock()
	s.cache = make(map[string][]*model.Message)
	s.mutex.Unlock()
}

func cacheKey(contact *model.Contact, dbIDs []string) string {
	return contact.ID + "\x00" + strings.Join(dbIDs, "\x00")
}

func (s *Service) cached(key string) ([]*model.Message, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	msgs, ok := s.cache[key]
	return msgs, ok
}

func (s *Service) store(key string, msgs []*model.Message) {
	s.mutex.Lock()
	s.cache[key] = msgs
	s.mutex.Unlock()
}
