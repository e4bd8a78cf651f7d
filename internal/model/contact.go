package model

import (
	"strings"
	"time"
)

type ContactType string

const (
	ContactTypeUser     ContactType = "user"
	ContactTypeGroup    ContactType = "group"
	ContactTypeOfficial ContactType = "official"
	ContactTypeUnknown  ContactType = "unknown"
)

// Contact 是从联系人表任意行结构中归一化得到的联系人
type Contact struct {
	ID          string      `json:"id"`
	DisplayName string      `json:"displayName"`
	NickName    string      `json:"nickName,omitempty"`
	Remark      string      `json:"remark,omitempty"`
	RealName    string      `json:"realName,omitempty"`
	UserName    string      `json:"userName,omitempty"`
	OriginalID  string      `json:"originalId,omitempty"`
	PhoneNumber string      `json:"phoneNumber,omitempty"`
	Email       string      `json:"email,omitempty"`
	Avatar      string      `json:"avatar,omitempty"`
	Status      string      `json:"status,omitempty"`
	IsBlocked   bool        `json:"isBlocked,omitempty"`
	ContactType ContactType `json:"contactType"`

	// RawIDs 保存行内所有标识类列的原始值，key 为小写列名
	RawIDs map[string]string `json:"rawIds,omitempty"`

	// 仅由活跃度估算填充
	LastActiveTime *time.Time `json:"lastActiveTime,omitempty"`
}

// Identifiers 返回用于匹配消息收发方的标识集合（id / username / displayName）
func (c *Contact) Identifiers() []string {
	ids := make([]string, 0, 3)
	seen := make(map[string]struct{}, 3)
	for _, v := range []string{c.ID, c.UserName, c.DisplayName} {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		ids = append(ids, v)
	}
	return ids
}

// Matches 判断 value 是否与联系人任一标识完全相等或互为子串
func (c *Contact) Matches(value string) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return false
	}
	for _, id := range c.Identifiers() {
		if value == id || strings.Contains(value, id) {
			return true
		}
	}
	return false
}

func (c *Contact) SetLastActive(t time.Time) {
	if t.IsZero() {
		return
	}
	if c.LastActiveTime == nil || t.After(*c.LastActiveTime) {
		tt := t
		c.LastActiveTime = &tt
	}
}
