package resolver

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/takeaway1/wxchat/internal/model"
)

// TablePrefixes 聊天表名可能使用的前缀，Msg_ 为 v4 的实际命名
var TablePrefixes = []string{"Chat_", "chat_", "ChatRoom_", "chat", "message_", "Msg_"}

// identifierFields 按优先级排列的原始标识列（小写），覆盖历史版本的多种列名
var identifierFields = []string{
	"username", "user_name", "usrname", "strusrname", "wxid", "talker",
	"encrypt_username", "encryptusername", "alias", "contactid", "contact_id",
}

// Identifiers 收集联系人所有非空标识，去重并保持顺序
func Identifiers(c *model.Contact) []string {
	if c == nil {
		return nil
	}
	ids := make([]string, 0, 4)
	seen := make(map[string]struct{})
	add := func(v string) {
		v = strings.TrimSpace(v)
		if v == "" {
			return
		}
		if _, ok := seen[v]; ok {
			return
		}
		seen[v] = struct{}{}
		ids = append(ids, v)
	}
	for _, f := range identifierFields {
		add(c.RawIDs[f])
	}
	add(c.UserName)
	add(c.OriginalID)
	return ids
}

// GenerateCandidateTableNames 生成可能保存该联系人消息的表名。
// 标识到表名的映射依赖版本且无文档，这里刻意多生成，由 Locator 按存在性和结构确认。
func GenerateCandidateTableNames(c *model.Contact) []string {
	ids := Identifiers(c)
	if len(ids) == 0 {
		return []string{}
	}

	out := make([]string, 0, len(ids)*len(TablePrefixes)*16)
	seen := make(map[string]struct{})
	emit := func(name string) {
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}

	for _, id := range ids {
		for _, h := range hashVariants(id) {
			upper := strings.ToUpper(h)
			for _, p := range TablePrefixes {
				emit(p + h)
				emit(p + upper)
				emit(p + h[:8])
				emit(p + h[:16])
			}
		}
		stripped := stripPunct(id)
		lower := strings.ToLower(id)
		upper := strings.ToUpper(id)
		for _, p := range TablePrefixes {
			emit(p + id)
			if stripped != "" {
				emit(p + stripped)
			}
			emit(p + lower)
			emit(p + upper)
		}
	}
	return out
}

// hashVariants md5(规范化标识)、md5(大写原值)、md5(小写原值)
func hashVariants(id string) []string {
	variants := []string{normalizeIdentifier(id), strings.ToUpper(id), strings.ToLower(id)}
	out := make([]string, 0, len(variants))
	seen := make(map[string]struct{}, len(variants))
	for _, v := range variants {
		if v == "" {
			continue
		}
		h := md5Hex(v)
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	return out
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// normalizeIdentifier trim + NFC + 去掉内部空白
func normalizeIdentifier(id string) string {
	s := norm.NFC.String(strings.TrimSpace(id))
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func stripPunct(id string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, id)
}
