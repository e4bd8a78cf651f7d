package chatdata

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/takeaway1/wxchat/internal/model"
	"github.com/takeaway1/wxchat/internal/wechatdb/dbm"
	"github.com/takeaway1/wxchat/internal/wechatdb/fieldmap"
	"github.com/takeaway1/wxchat/internal/wechatdb/parser"
	"github.com/takeaway1/wxchat/internal/wechatdb/resolver"
)

// Activity 抽样得到的最近活跃时间，Senders 以发送方标识为键，Tables 以小写表名为键
type Activity struct {
	Senders map[string]time.Time
	Tables  map[string]time.Time
}

func NewActivity() *Activity {
	return &Activity{
		Senders: make(map[string]time.Time),
		Tables:  make(map[string]time.Time),
	}
}

func (a *Activity) observe(table, sender string, t time.Time) {
	if sender != "" && t.After(a.Senders[sender]) {
		a.Senders[sender] = t
	}
	key := strings.ToLower(table)
	if t.After(a.Tables[key]) {
		a.Tables[key] = t
	}
}

func (a *Activity) merge(o *Activity) {
	for k, t := range o.Senders {
		if t.After(a.Senders[k]) {
			a.Senders[k] = t
		}
	}
	for k, t := range o.Tables {
		if t.After(a.Tables[k]) {
			a.Tables[k] = t
		}
	}
}

// Lookup 联系人的最近活跃时间：发送方标识命中，或其候选表名命中某张表
func (a *Activity) Lookup(c *model.Contact) (time.Time, bool) {
	var latest time.Time
	ids := append(c.Identifiers(), resolver.Identifiers(c)...)
	for _, id := range ids {
		if t, ok := a.Senders[id]; ok && t.After(latest) {
			latest = t
		}
	}
	if len(a.Tables) > 0 {
		for _, name := range resolver.GenerateCandidateTableNames(c) {
			if t, ok := a.Tables[strings.ToLower(name)]; ok && t.After(latest) {
				latest = t
			}
		}
	}
	return latest, !latest.IsZero()
}

// GetActiveContactsHeuristic 每张聊天表只取最近的若干行，估算各发送方的最近活跃时间。
// 没有落在抽样窗口内的联系人视为无活动。
func (s *Service) GetActiveContactsHeuristic(ctx context.Context, dbIDs []string, sampleSize int) (*Activity, error) {
	if sampleSize <= 0 {
		sampleSize = s.opts.ActivitySample
	}
	activity := NewActivity()
	var mutex sync.Mutex
	var g errgroup.Group
	g.SetLimit(s.opts.Workers)
	for _, id := range dbIDs {
		g.Go(func() error {
			a := s.sampleDatabase(ctx, id, sampleSize)
			mutex.Lock()
			activity.merge(a)
			mutex.Unlock()
			return nil
		})
	}
	g.Wait()
	log.Debug().Int("senders", len(activity.Senders)).Int("tables", len(activity.Tables)).Msg("activity sampled")
	return activity, nil
}

func (s *Service) sampleDatabase(ctx context.Context, dbID string, sampleSize int) *Activity {
	a := NewActivity()
	if err := s.registry.EnsureConnected(ctx, dbID); err != nil {
		log.Warn().Err(err).Str("db", dbID).Msg("activity: connect failed")
		s.metrics.SoftErrors.WithLabelValues("connect").Inc()
		return a
	}
	tables, err := s.source.ListTables(ctx, dbID)
	if err != nil {
		log.Warn().Err(err).Str("db", dbID).Msg("activity: list tables failed")
		s.metrics.SoftErrors.WithLabelValues("list_tables").Inc()
		return a
	}
	valid := resolver.GetValidChatTables(ctx, s.source, dbID, tables, s.opts.ValidateSample)
	if len(valid) == 0 {
		return a
	}
	names := s.loadSenderNames(ctx, dbID, tables)
	per := sampleSize / len(valid)
	if per < 1 {
		per = 1
	}

	for _, t := range valid {
		if ctx.Err() != nil {
			break
		}
		query, ok := activityQuery(t, per)
		if !ok {
			continue
		}
		result, err := s.source.RunQuery(ctx, dbID, query)
		if err != nil {
			log.Warn().Err(err).Str("db", dbID).Str("table", t.Name).Msg("activity: query failed")
			s.metrics.SoftErrors.WithLabelValues("activity").Inc()
			continue
		}
		m := fieldmap.Map(result.Columns, parser.MessageRules)
		for _, row := range result.Rows {
			v, _ := m.Value(row, parser.FieldTimestamp)
			ts, ok := parser.ParseTimestamp(v)
			if !ok {
				continue
			}
			sv, _ := m.Value(row, parser.FieldSender)
			sender, _ := parser.Text(sv)
			if name, ok := names[sender]; ok {
				sender = name
			}
			a.observe(t.Name, sender, ts)
		}
	}
	return a
}

// activityQuery 取最近 n 行的 发送方、时间 两列；缺少时间列的表无法排序，跳过
func activityQuery(t *model.TableInfo, n int) (string, bool) {
	m := fieldmap.Map(t.Columns, parser.MessageRules)
	ts, ok := m.Column(t.Columns, parser.FieldTimestamp)
	if !ok {
		return "", false
	}
	cols := dbm.QuoteIdent(ts)
	if sender, ok := m.Column(t.Columns, parser.FieldSender); ok {
		cols = dbm.QuoteIdent(sender) + ", " + cols
	}
	return fmt.Sprintf("SELECT %s FROM %s ORDER BY %s DESC LIMIT %d", cols, dbm.QuoteIdent(t.Name), dbm.QuoteIdent(ts), n), true
}

// LoadContactsWithHeuristicSorting 并发加载联系人与活跃度，有活动的按时间倒序排在前面，其余按中文名称排序
func (s *Service) LoadContactsWithHeuristicSorting(ctx context.Context, contactDB string, dbIDs []string) ([]*model.Contact, error) {
	var contacts []*model.Contact
	var activity *Activity
	var g errgroup.Group
	g.Go(func() error {
		var err error
		contacts, err = s.LoadContacts(ctx, contactDB)
		return err
	})
	g.Go(func() error {
		activity, _ = s.GetActiveContactsHeuristic(ctx, dbIDs, s.opts.ActivitySample)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, c := range contacts {
		if t, ok := activity.Lookup(c); ok {
			c.SetLastActive(t)
		}
	}
	SortContacts(contacts)
	return contacts, nil
}

// SortContacts 有活跃时间的在前（倒序），其余按简体中文排序规则比较显示名
func SortContacts(contacts []*model.Contact) {
	col := collate.New(language.SimplifiedChinese)
	sort.SliceStable(contacts, func(i, j int) bool {
		a, b := contacts[i], contacts[j]
		switch {
		case a.LastActiveTime != nil && b.LastActiveTime != nil:
			if !a.LastActiveTime.Equal(*b.LastActiveTime) {
				return a.LastActiveTime.After(*b.LastActiveTime)
			}
		case a.LastActiveTime != nil:
			return true
		case b.LastActiveTime != nil:
			return false
		}
		return col.CompareString(a.DisplayName, b.DisplayName) < 0
	})
}
