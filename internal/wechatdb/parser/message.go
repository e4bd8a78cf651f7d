package parser

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/takeaway1/wxchat/internal/model"
	"github.com/takeaway1/wxchat/internal/wechatdb/fieldmap"
)

const (
	SelfDisplayName   = "我"
	UnknownSenderName = "未知发送者"
	selfPlaceholderID = "self"
)

// Sequence 单调递增的消息序号，同一会话内所有批次共享
type Sequence struct {
	n atomic.Int64
}

func (s *Sequence) Next() int64 {
	return s.n.Add(1)
}

// Directory 把联系人按 id / username / displayName / nickname / remark 建立索引，先到先得
type Directory struct {
	index map[string]*model.Contact
}

func NewDirectory(contacts []*model.Contact) *Directory {
	d := &Directory{index: make(map[string]*model.Contact, len(contacts)*3)}
	for _, c := range contacts {
		if c == nil {
			continue
		}
		for _, key := range []string{c.ID, c.UserName, c.DisplayName, c.NickName, c.Remark} {
			key = strings.TrimSpace(key)
			if key == "" {
				continue
			}
			if _, ok := d.index[key]; !ok {
				d.index[key] = c
			}
		}
	}
	return d
}

func (d *Directory) Lookup(id string) (*model.Contact, bool) {
	if d == nil || id == "" {
		return nil, false
	}
	c, ok := d.index[id]
	return c, ok
}

type MessageOptions struct {
	SourceID   string
	Table      string
	StartIndex int

	// SelfID 当前登录用户的标识，为空时只依赖 is_sender 列判断
	SelfID   string
	SelfName string

	// Owned 表已通过候选表名确认属于目标联系人，空的接收方默认为目标联系人
	Owned bool

	// SenderNames 发送方列存的是编号时（v4 real_sender_id -> Name2Id.rowid）换成 user_name
	SenderNames map[string]string

	Sequence *Sequence
}

type MessageStats struct {
	Rows             int
	Kept             int
	ApproxTimestamps int
}

func (s MessageStats) Dropped() int {
	return s.Rows - s.Kept
}

// ParseMessages 把消息表的一批原始行转换为 Message，只保留与 target 相关且内容非空的行
func ParseMessages(result *model.QueryResult, target *model.Contact, dir *Directory, opts MessageOptions) ([]*model.Message, MessageStats) {
	stats := MessageStats{}
	if result == nil || len(result.Rows) == 0 {
		return []*model.Message{}, stats
	}
	if opts.Sequence == nil {
		opts.Sequence = &Sequence{}
	}

	m := fieldmap.Map(result.Columns, MessageRules)
	now := time.Now().UTC()

	messages := make([]*model.Message, 0, len(result.Rows))
	for i, row := range result.Rows {
		stats.Rows++
		msg, approx := parseMessage(row, m, target, dir, opts, now)
		if approx {
			stats.ApproxTimestamps++
		}
		if strings.TrimSpace(msg.Content) == "" {
			continue
		}
		if target != nil && !target.Matches(msg.SenderID) && !target.Matches(msg.ReceiverID) {
			continue
		}
		msg.ID = fmt.Sprintf("%s-%d-%d", opts.SourceID, opts.Sequence.Next(), opts.StartIndex+i)
		messages = append(messages, msg)
	}
	stats.Kept = len(messages)
	return messages, stats
}

func parseMessage(row model.RawRow, m fieldmap.Mapping, target *model.Contact, dir *Directory, opts MessageOptions, now time.Time) (*model.Message, bool) {
	field := func(category string) (string, bool) {
		v, ok := m.Value(row, category)
		if !ok {
			return "", false
		}
		return Text(v)
	}

	msg := &model.Message{
		Source: opts.SourceID,
		Table:  opts.Table,
	}

	msg.Content, _ = field(FieldContent)
	if msg.Content == "" {
		if v, ok := m.Value(row, FieldCompressed); ok {
			msg.Content, _ = decodeLZ4(v)
		}
	}
	rawSender, _ := field(FieldSender)
	msg.SenderID = rawSender
	if name, ok := opts.SenderNames[rawSender]; ok {
		msg.SenderID = name
	}
	msg.ReceiverID, _ = field(FieldReceiver)
	msg.ServerID, _ = field(FieldMsgID)
	msg.LocalID, _ = field(FieldLocalID)

	if opts.SelfID != "" && (msg.SenderID == opts.SelfID || rawSender == opts.SelfID) {
		msg.IsOwn = true
	} else if v, ok := m.Value(row, FieldIsSender); ok && truthy(v) {
		msg.IsOwn = true
	}

	if opts.Owned && target != nil {
		if msg.SenderID == "" {
			if msg.IsOwn {
				msg.SenderID = firstNonEmpty(opts.SelfID, selfPlaceholderID)
			} else {
				msg.SenderID = target.ID
			}
		}
		if msg.ReceiverID == "" {
			msg.ReceiverID = target.ID
		}
	}

	msg.SenderDisplayName = resolveSender(msg, target, dir, opts)

	approx := false
	if v, ok := m.Value(row, FieldTimestamp); ok {
		msg.Time, ok = ParseTimestamp(v)
		approx = !ok
	} else {
		approx = true
	}
	if approx {
		msg.Time = now
		msg.TimestampApprox = true
	}

	code, hasCode := field(FieldMsgType)
	msg.Type = ResolveMessageType(code, hasCode, msg.Content)
	if msg.Content == "" {
		msg.Content = placeholders[msg.Type]
	}

	att := &model.Attachment{}
	att.FileName, _ = field(FieldFileName)
	att.URL, _ = field(FieldFilePath)
	if s, ok := field(FieldFileSize); ok {
		att.Size, _ = parseInt(s)
	}
	if att.FileName != "" || att.URL != "" || att.Size > 0 {
		msg.Attachment = att
	}

	if v, ok := m.Value(row, FieldDeleted); ok {
		msg.IsDeleted = truthy(v)
	}
	if v, ok := m.Value(row, FieldEditTime); ok {
		if t, ok := ParseTimestamp(v); ok {
			msg.EditTime = &t
		}
	}
	return msg, approx
}

func resolveSender(msg *model.Message, target *model.Contact, dir *Directory, opts MessageOptions) string {
	if msg.IsOwn {
		return firstNonEmpty(opts.SelfName, SelfDisplayName)
	}
	if c, ok := dir.Lookup(msg.SenderID); ok {
		return c.DisplayName
	}
	if target != nil && target.Matches(msg.SenderID) {
		return target.DisplayName
	}
	// 单聊的专属表里除自己外只有对方
	if opts.Owned && target != nil && target.ContactType != model.ContactTypeGroup {
		return target.DisplayName
	}
	return firstNonEmpty(msg.SenderID, UnknownSenderName)
}
