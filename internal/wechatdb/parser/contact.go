package parser

import (
	"strconv"
	"strings"

	"github.com/takeaway1/wxchat/internal/model"
	"github.com/takeaway1/wxchat/internal/wechatdb/fieldmap"
)

// UnknownContactName 没有任何可用名称时的占位，带占位名的行会被丢弃
const UnknownContactName = "未知联系人"

// ParseContacts 把联系人表的原始行转换为 Contact，没有有效显示名的行被过滤
func ParseContacts(result *model.QueryResult) []*model.Contact {
	if result == nil || len(result.Rows) == 0 {
		return []*model.Contact{}
	}

	m := fieldmap.Map(result.Columns, ContactRules)
	idColumns := identifierColumnIndexes(result.Columns)

	contacts := make([]*model.Contact, 0, len(result.Rows))
	for i, row := range result.Rows {
		if c := parseContact(row, m, idColumns, i); c != nil {
			contacts = append(contacts, c)
		}
	}
	return contacts
}

func parseContact(row model.RawRow, m fieldmap.Mapping, idColumns map[int]string, index int) *model.Contact {
	field := func(category string) string {
		v, ok := m.Value(row, category)
		if !ok {
			return ""
		}
		s, _ := Text(v)
		return s
	}

	c := &model.Contact{
		Remark:      field(FieldRemark),
		NickName:    field(FieldNickName),
		RealName:    field(FieldRealName),
		UserName:    field(FieldUserName),
		PhoneNumber: field(FieldPhone),
		Email:       field(FieldEmail),
		Avatar:      field(FieldAvatar),
		Status:      field(FieldStatus),
	}
	contactID := field(FieldContactID)
	c.OriginalID = firstNonEmpty(contactID, c.UserName)

	if v, ok := m.Value(row, FieldBlocked); ok {
		c.IsBlocked = truthy(v)
	}

	c.DisplayName = firstNonEmpty(c.Remark, c.NickName, c.RealName, c.UserName, UnknownContactName)
	if strings.TrimSpace(c.DisplayName) == "" || c.DisplayName == UnknownContactName {
		return nil
	}

	c.ContactType = ClassifyContact(c.DisplayName, c.UserName)

	c.ID = firstNonEmpty(contactID, c.UserName, c.DisplayName, "contact_"+strconv.Itoa(index))

	for i, name := range idColumns {
		if i >= len(row) {
			continue
		}
		if s, ok := Text(row[i]); ok {
			if c.RawIDs == nil {
				c.RawIDs = make(map[string]string, len(idColumns))
			}
			c.RawIDs[name] = s
		}
	}
	return c
}

func identifierColumnIndexes(columns []string) map[int]string {
	known := make(map[string]struct{}, len(IdentifierColumns))
	for _, c := range IdentifierColumns {
		known[c] = struct{}{}
	}
	out := make(map[int]string)
	for i, c := range columns {
		lc := strings.ToLower(c)
		if _, ok := known[lc]; ok {
			out[i] = lc
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
