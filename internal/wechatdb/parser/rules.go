package parser

import (
	"strings"

	"github.com/takeaway1/wxchat/internal/model"
	"github.com/takeaway1/wxchat/internal/wechatdb/fieldmap"
)

// 联系人表语义字段
const (
	FieldRemark     = "remark"
	FieldNickName   = "nickname"
	FieldRealName   = "realname"
	FieldUserName   = "username"
	FieldContactID  = "contactid"
	FieldAvatar     = "avatar"
	FieldPhone      = "phone"
	FieldEmail      = "email"
	FieldType       = "type"
	FieldStatus     = "status"
	FieldBlocked    = "blocked"
	FieldLastActive = "lastactive"
)

// 消息表语义字段
const (
	FieldContent    = "content"
	FieldCompressed = "compressed"
	FieldSender     = "sender"
	FieldReceiver   = "receiver"
	FieldTimestamp  = "timestamp"
	FieldMsgType    = "type"
	FieldSubType    = "subtype"
	FieldMsgStatus  = "status"
	FieldIsSender   = "issender"
	FieldDeleted    = "deleted"
	FieldFileName   = "filename"
	FieldFileSize   = "filesize"
	FieldFilePath   = "filepath"
	FieldMsgID      = "msgid"
	FieldLocalID    = "localid"
	FieldEditTime   = "edittime"
)

var ContactRules = fieldmap.Rules{
	{Category: FieldRemark, Patterns: []string{"remark", "备注"}},
	{Category: FieldNickName, Patterns: []string{"nickname", "nick_name", "nick", "昵称"}},
	{Category: FieldRealName, Patterns: []string{"realname", "real_name", "truename", "fullname", "姓名"}},
	{Category: FieldUserName, Patterns: []string{"username", "user_name", "usrname", "wxid", "account"}},
	{Category: FieldContactID, Patterns: []string{"contactid", "contact_id", "wxid", "userid", "user_id"}},
	{Category: FieldAvatar, Patterns: []string{"avatar", "small_head", "smallhead", "big_head", "bighead", "headimg", "head_img"}},
	{Category: FieldPhone, Patterns: []string{"phone", "mobile", "tel"}},
	{Category: FieldEmail, Patterns: []string{"email", "mail"}},
	{Category: FieldType, Patterns: []string{"local_type", "contact_type", "type"}},
	{Category: FieldStatus, Patterns: []string{"status", "state"}},
	{Category: FieldBlocked, Patterns: []string{"blocked", "blacklist", "black"}},
	{Category: FieldLastActive, Patterns: []string{"lastactive", "last_active", "last_time", "lasttime"}},
}

var MessageRules = fieldmap.Rules{
	{Category: FieldContent, Patterns: []string{"message_content", "strcontent", "content", "text", "body"}},
	{Category: FieldCompressed, Patterns: []string{"compresscontent", "compress_content"}},
	{Category: FieldSender, Patterns: []string{"real_sender", "sender_id", "senderid", "from_user", "fromuser", "strtalker", "talker", "sender", "from", "user_name", "username"}},
	{Category: FieldReceiver, Patterns: []string{"receiver", "to_user", "touser", "dest", "target"}},
	{Category: FieldTimestamp, Patterns: []string{"create_time", "createtime", "timestamp", "time", "date"}},
	{Category: FieldMsgType, Patterns: []string{"local_type", "msg_type", "msgtype", "type"}},
	{Category: FieldSubType, Patterns: []string{"subtype", "sub_type"}},
	{Category: FieldMsgStatus, Patterns: []string{"status"}},
	{Category: FieldIsSender, Patterns: []string{"issender", "is_sender", "isself", "is_self"}},
	{Category: FieldDeleted, Patterns: []string{"is_deleted", "isdeleted", "deleted", "delflag", "del_flag"}},
	{Category: FieldFileName, Patterns: []string{"filename", "file_name"}},
	{Category: FieldFileSize, Patterns: []string{"filesize", "file_size"}},
	{Category: FieldFilePath, Patterns: []string{"filepath", "file_path", "url", "path"}},
	// 服务端 id 全局唯一；local_id / msgid 是单表自增计数
	{Category: FieldMsgID, Patterns: []string{"msgsvrid", "server_id", "svrid"}},
	{Category: FieldLocalID, Patterns: []string{"localid", "local_id", "msgid", "msg_id"}},
	{Category: FieldEditTime, Patterns: []string{"edittime", "edit_time", "modify_time"}},
}

// IdentifierColumns 这些列的原始值会被保存在 Contact.RawIDs 中，供候选表名生成使用
var IdentifierColumns = []string{
	"username", "user_name", "usrname", "strusrname", "wxid", "talker",
	"alias", "encrypt_username", "encryptusername", "contactid", "contact_id",
}

type contactTypeRule struct {
	match func(name, userName string) bool
	typ   model.ContactType
}

// contactTypeRules 有序规则表，第一个命中的规则决定联系人类型
var contactTypeRules = []contactTypeRule{
	{
		match: func(name, userName string) bool {
			return strings.Contains(strings.ToLower(userName), "chatroom") ||
				strings.Contains(strings.ToLower(name), "chatroom") ||
				strings.Contains(name, "群")
		},
		typ: model.ContactTypeGroup,
	},
	{
		match: func(name, userName string) bool {
			return strings.HasPrefix(strings.ToLower(userName), "gh_") ||
				strings.Contains(name, "公众号") ||
				strings.Contains(name, "服务号")
		},
		typ: model.ContactTypeOfficial,
	},
	{
		match: func(name, userName string) bool { return userName != "" },
		typ:   model.ContactTypeUser,
	},
}

// ClassifyContact 按 contactTypeRules 判断联系人类型
func ClassifyContact(name, userName string) model.ContactType {
	for _, r := range contactTypeRules {
		if r.match(name, userName) {
			return r.typ
		}
	}
	return model.ContactTypeUnknown
}

type typeCodeRule struct {
	codes []int64
	typ   model.MessageType
}

// 微信 local_type 取值
var typeCodeRules = []typeCodeRule{
	{codes: []int64{1}, typ: model.MessageTypeText},
	{codes: []int64{3, 47}, typ: model.MessageTypeImage},
	{codes: []int64{34}, typ: model.MessageTypeVoice},
	{codes: []int64{43, 62}, typ: model.MessageTypeVideo},
	{codes: []int64{49}, typ: model.MessageTypeFile},
	{codes: []int64{10000, 10002}, typ: model.MessageTypeSystem},
}

type contentMarkerRule struct {
	markers []string
	typ     model.MessageType
}

var contentMarkerRules = []contentMarkerRule{
	{markers: []string{"[图片]", "[image]"}, typ: model.MessageTypeImage},
	{markers: []string{"[语音]", "[voice]"}, typ: model.MessageTypeVoice},
	{markers: []string{"[视频]", "[video]"}, typ: model.MessageTypeVideo},
	{markers: []string{"[文件]", "[file]"}, typ: model.MessageTypeFile},
	{markers: []string{"[系统消息]", "[system]"}, typ: model.MessageTypeSystem},
}

// placeholders 非文本消息内容为空时使用的占位内容
var placeholders = map[model.MessageType]string{
	model.MessageTypeImage:  "[image]",
	model.MessageTypeVoice:  "[voice]",
	model.MessageTypeVideo:  "[video]",
	model.MessageTypeFile:   "[file]",
	model.MessageTypeSystem: "[system]",
}

// ResolveMessageType 有类型码时按码表映射，否则根据内容中的方括号标记推断，默认 text
func ResolveMessageType(code string, hasCode bool, content string) model.MessageType {
	if hasCode {
		return typeFromCode(code)
	}
	lc := strings.ToLower(content)
	for _, r := range contentMarkerRules {
		for _, m := range r.markers {
			if strings.Contains(lc, m) {
				return r.typ
			}
		}
	}
	return model.MessageTypeText
}

func typeFromCode(code string) model.MessageType {
	code = strings.TrimSpace(code)
	if n, ok := parseInt(code); ok {
		// v4 的 local_type 高 32 位存放子类型
		n &= 0xFFFFFFFF
		for _, r := range typeCodeRules {
			for _, c := range r.codes {
				if n == c {
					return r.typ
				}
			}
		}
		return model.MessageTypeUnknown
	}
	lc := strings.ToLower(code)
	for _, t := range []model.MessageType{
		model.MessageTypeText, model.MessageTypeImage, model.MessageTypeVoice,
		model.MessageTypeVideo, model.MessageTypeFile, model.MessageTypeSystem,
	} {
		if strings.Contains(lc, string(t)) {
			return t
		}
	}
	return model.MessageTypeUnknown
}
