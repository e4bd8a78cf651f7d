package chatdata

import (
	"context"
	"sort"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/takeaway1/wxchat/internal/errors"
	"github.com/takeaway1/wxchat/internal/model"
	"github.com/takeaway1/wxchat/internal/wechatdb/parser"
	"github.com/takeaway1/wxchat/internal/wechatdb/resolver"
)

// messageLoad 一次 LoadMessages 调用内各库共享的状态
type messageLoad struct {
	logger     zerolog.Logger
	contact    *model.Contact
	dir        *parser.Directory
	candidates []string
	seq        *parser.Sequence
	collected  atomic.Int64
}

// LoadMessages 在所有消息库中找出属于 contact 的聊天表并分页读取，结果按时间升序。
// 单个库或表失败只记录日志；ctx 取消时返回已读到的部分结果且不缓存。
func (s *Service) LoadMessages(ctx context.Context, contact *model.Contact, dbIDs []string, allContacts []*model.Contact) ([]*model.Message, error) {
	if contact == nil {
		return nil, errors.ErrContactEmpty
	}
	if len(dbIDs) == 0 {
		return nil, errors.ErrNoMessageDatabases
	}

	key := cacheKey(contact, dbIDs)
	if msgs, ok := s.cached(key); ok {
		s.metrics.CacheHits.Inc()
		log.Debug().Str("contact", contact.ID).Int("messages", len(msgs)).Msg("messages served from cache")
		return msgs, nil
	}

	start := time.Now()
	load := &messageLoad{
		logger:     log.With().Str("op", uuid.NewString()).Str("contact", contact.ID).Logger(),
		contact:    contact,
		dir:        parser.NewDirectory(allContacts),
		candidates: resolver.GenerateCandidateTableNames(contact),
		seq:        &parser.Sequence{},
	}
	load.logger.Debug().Strs("dbs", dbIDs).Int("candidates", len(load.candidates)).Msg("loading messages")

	results := make([][]*model.Message, len(dbIDs))
	var g errgroup.Group
	g.SetLimit(s.opts.Workers)
	for i, id := range dbIDs {
		g.Go(func() error {
			results[i] = s.loadDatabase(ctx, load, id)
			return nil
		})
	}
	g.Wait()

	merged := make([]*model.Message, 0, load.collected.Load())
	for _, r := range results {
		merged = append(merged, r...)
	}
	merged = dedupMessages(merged)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Time.Before(merged[j].Time)
	})
	if len(merged) > s.opts.MessageCap {
		merged = merged[:s.opts.MessageCap]
	}
	s.metrics.LoadDuration.Observe(time.Since(start).Seconds())

	if ctx.Err() != nil {
		load.logger.Debug().Int("messages", len(merged)).Msg("load cancelled, returning partial result")
		return merged, nil
	}
	s.store(key, merged)
	load.logger.Debug().Int("messages", len(merged)).Dur("elapsed", time.Since(start)).Msg("messages loaded")
	return merged, nil
}

// loadDatabase 候选表名命中的表视为该联系人专属表，只扫这些表；否则扫描所有有效聊天表并按收发方过滤
func (s *Service) loadDatabase(ctx context.Context, load *messageLoad, dbID string) []*model.Message {
	if ctx.Err() != nil {
		return nil
	}
	logger := load.logger.With().Str("db", dbID).Logger()

	if err := s.registry.EnsureConnected(ctx, dbID); err != nil {
		logger.Warn().Err(err).Msg("skip database: connect failed")
		s.metrics.SoftErrors.WithLabelValues("connect").Inc()
		return nil
	}
	tables, err := s.source.ListTables(ctx, dbID)
	if err != nil {
		logger.Warn().Err(err).Msg("skip database: list tables failed")
		s.metrics.SoftErrors.WithLabelValues("list_tables").Inc()
		return nil
	}

	names := s.loadSenderNames(ctx, dbID, tables)
	valid := resolver.GetValidChatTables(ctx, s.source, dbID, tables, s.opts.ValidateSample)
	owned := resolver.MatchCandidates(load.candidates, valid)
	scan, isOwned := valid, false
	if len(owned) > 0 {
		scan, isOwned = owned, true
	}
	logger.Debug().Int("valid", len(valid)).Int("owned", len(owned)).Msg("chat tables resolved")

	msgs := make([]*model.Message, 0)
	for _, t := range scan {
		if ctx.Err() != nil || s.capReached(load) {
			break
		}
		msgs = append(msgs, s.loadTable(ctx, load, logger, dbID, t.Name, isOwned, names)...)
	}
	return msgs
}

func (s *Service) loadTable(ctx context.Context, load *messageLoad, logger zerolog.Logger, dbID, table string, owned bool, names map[string]string) []*model.Message {
	msgs := make([]*model.Message, 0)
	batch := s.opts.BatchSize
	for offset := 0; ; offset += batch {
		if ctx.Err() != nil || s.capReached(load) {
			return msgs
		}
		s.metrics.PageQueries.Inc()
		result, err := s.source.QueryRows(ctx, dbID, table, batch, offset)
		if err != nil {
			logger.Warn().Err(err).Str("table", table).Int("offset", offset).Msg("skip table: query failed")
			s.metrics.SoftErrors.WithLabelValues("query").Inc()
			return msgs
		}

		page, stats := parser.ParseMessages(result, load.contact, load.dir, parser.MessageOptions{
			SourceID:    dbID,
			Table:       table,
			StartIndex:  offset,
			SelfID:      s.opts.SelfID,
			Owned:       owned,
			SenderNames: names,
			Sequence:    load.seq,
		})
		msgs = append(msgs, page...)
		load.collected.Add(int64(len(page)))

		s.metrics.MessagesKept.Add(float64(stats.Kept))
		s.metrics.RowsDropped.Add(float64(stats.Dropped()))
		logger.Debug().Str("table", table).Int("offset", offset).Int("rows", stats.Rows).Int("kept", stats.Kept).Int("dropped", stats.Dropped()).Msg("page parsed")
		if stats.ApproxTimestamps > 0 {
			s.metrics.ApproxTimestamps.Add(float64(stats.ApproxTimestamps))
			logger.Warn().Str("table", table).Int("count", stats.ApproxTimestamps).Msg("unparsable timestamps replaced by load time")
		}

		if len(result.Rows) < batch {
			return msgs
		}
	}
}

func (s *Service) capReached(load *messageLoad) bool {
	return load.collected.Load() >= int64(s.opts.MessageCap)
}

// dedupMessages 同一条消息可能同时存在于多个库，优先按服务端 id 去重；
// 本地 id 只在所属库表内有意义，带上 Source 和 Table；都没有时按 时间+发送方+内容 的指纹
func dedupMessages(msgs []*model.Message) []*model.Message {
	seen := make(map[string]struct{}, len(msgs))
	out := msgs[:0]
	for _, m := range msgs {
		key := messageKey(m)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, m)
	}
	return out
}

func messageKey(m *model.Message) string {
	if m.ServerID != "" && m.ServerID != "0" {
		return "s:" + m.ServerID
	}
	if m.LocalID != "" {
		return "l:" + m.Source + "\x00" + m.Table + "\x00" + m.LocalID
	}
	sum := xxhash.Sum64String(strconv.FormatInt(m.Time.UnixNano(), 10) + "\x00" + m.SenderID + "\x00" + m.Content)
	return "h:" + strconv.FormatUint(sum, 16)
}
