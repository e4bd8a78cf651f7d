package resolver

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/takeaway1/wxchat/internal/model"
)

// DefaultValidateSample 结构校验时抽样的行数
const DefaultValidateSample = 5

// RowQuerier 是结构校验所需的最小数据库能力
type RowQuerier interface {
	QueryRows(ctx context.Context, dbID, table string, limit, offset int) (*model.QueryResult, error)
}

var chatNN = regexp.MustCompile(`^chat[0-9]+$`)

type tableRule struct {
	name  string
	match func(lower string) bool
}

// chatTableRules 聊天表命名规则，任一命中即视为候选聊天表
var chatTableRules = []tableRule{
	{"chat_ prefix", func(n string) bool { return strings.HasPrefix(n, "chat_") }},
	{"chat", func(n string) bool { return n == "chat" }},
	{"chatNN", chatNN.MatchString},
	{"chatroom_ prefix", func(n string) bool { return strings.HasPrefix(n, "chatroom_") }},
	{"message_ prefix", func(n string) bool { return strings.HasPrefix(n, "message_") }},
	{"chat+room", func(n string) bool { return strings.Contains(n, "chat") && strings.Contains(n, "room") }},
	{"msg_ prefix", func(n string) bool { return strings.HasPrefix(n, "msg_") }},
	{"msg", func(n string) bool { return n == "msg" }},
}

// contactTableRules 按优先级排列，越靠前越可信
var contactTableRules = []tableRule{
	{"contact", func(n string) bool { return n == "contact" }},
	{"contact prefix", func(n string) bool { return strings.HasPrefix(n, "contact") }},
	{"contains contact", func(n string) bool { return strings.Contains(n, "contact") }},
	{"friend", func(n string) bool { return strings.Contains(n, "friend") }},
	{"联系人", func(n string) bool { return strings.Contains(n, "联系人") }},
}

// wechatKeywords 只在微信数据库中出现的表名片段
var wechatKeywords = []string{"wechat", "weixin", "wxid", "name2id", "chatroom", "fmessage", "sessiontable"}

var (
	senderColumns  = []string{"sender", "talker", "from", "user_name", "username"}
	contentColumns = []string{"content", "message", "text", "body"}
)

// IsChatTableName 判断表名是否符合聊天表命名规则
func IsChatTableName(name string) bool {
	lower := strings.ToLower(name)
	for _, r := range chatTableRules {
		if r.match(lower) {
			return true
		}
	}
	return false
}

// FindChatTables 按名称粗筛聊天表，chat_ 前缀的排在最前，其余按字典序
func FindChatTables(tables []*model.TableInfo) []*model.TableInfo {
	out := make([]*model.TableInfo, 0)
	for _, t := range tables {
		if t != nil && IsChatTableName(t.Name) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		li, lj := strings.ToLower(out[i].Name), strings.ToLower(out[j].Name)
		pi, pj := strings.HasPrefix(li, "chat_"), strings.HasPrefix(lj, "chat_")
		if pi != pj {
			return pi
		}
		if li != lj {
			return li < lj
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// FindContactTable 返回最像联系人表的表，找不到时返回 nil
func FindContactTable(tables []*model.TableInfo) *model.TableInfo {
	for _, r := range contactTableRules {
		for _, t := range tables {
			if t != nil && r.match(strings.ToLower(t.Name)) {
				return t
			}
		}
	}
	return nil
}

// IsWeChatDatabase 在做昂贵的逐库处理前的廉价判断
func IsWeChatDatabase(tables []*model.TableInfo) bool {
	if len(FindChatTables(tables)) > 0 || FindContactTable(tables) != nil {
		return true
	}
	for _, t := range tables {
		if t == nil {
			continue
		}
		lower := strings.ToLower(t.Name)
		for _, k := range wechatKeywords {
			if strings.Contains(lower, k) {
				return true
			}
		}
	}
	return false
}

// HasChatColumns 列集合中同时存在发送方、时间和内容类列
func HasChatColumns(columns []string) bool {
	var sender, ts, content bool
	for _, c := range columns {
		lc := strings.ToLower(c)
		if !sender && containsAny(lc, senderColumns) {
			sender = true
		}
		if !ts && strings.Contains(lc, "time") {
			ts = true
		}
		if !content && containsAny(lc, contentColumns) {
			content = true
		}
	}
	return sender && ts && content
}

// ValidateChatTable 抽样 sample 行确认表结构确实是聊天表；任何 I/O 错误都视为无效
func ValidateChatTable(ctx context.Context, q RowQuerier, dbID, table string, sample int) bool {
	if sample <= 0 {
		sample = DefaultValidateSample
	}
	result, err := q.QueryRows(ctx, dbID, table, sample, 0)
	if err != nil {
		log.Debug().Err(err).Str("db", dbID).Str("table", table).Msg("validate chat table: query failed")
		return false
	}
	if result == nil || len(result.Rows) == 0 {
		log.Debug().Str("db", dbID).Str("table", table).Msg("validate chat table: empty")
		return false
	}
	if !HasChatColumns(result.Columns) {
		log.Debug().Str("db", dbID).Str("table", table).Strs("columns", result.Columns).Msg("validate chat table: missing columns")
		return false
	}
	return true
}

// GetValidChatTables 名称粗筛 + 结构校验
func GetValidChatTables(ctx context.Context, q RowQuerier, dbID string, tables []*model.TableInfo, sample int) []*model.TableInfo {
	valid := make([]*model.TableInfo, 0)
	for _, t := range FindChatTables(tables) {
		if ctx.Err() != nil {
			break
		}
		if ValidateChatTable(ctx, q, dbID, t.Name, sample) {
			valid = append(valid, t)
		}
	}
	log.Debug().Str("db", dbID).Int("tables", len(tables)).Int("valid", len(valid)).Msg("valid chat tables")
	return valid
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
