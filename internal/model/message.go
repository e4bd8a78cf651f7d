package model

import "time"

type MessageType string

const (
	MessageTypeText    MessageType = "text"
	MessageTypeImage   MessageType = "image"
	MessageTypeVoice   MessageType = "voice"
	MessageTypeVideo   MessageType = "video"
	MessageTypeFile    MessageType = "file"
	MessageTypeSystem  MessageType = "system"
	MessageTypeUnknown MessageType = "unknown"
)

type Attachment struct {
	FileName string `json:"filename,omitempty"`
	Size     int64  `json:"size,omitempty"`
	URL      string `json:"url,omitempty"`
}

type Message struct {
	ID                string      `json:"id"`
	ServerID          string      `json:"serverId,omitempty"`
	// LocalID 表内自增 id，只在 Source + Table 范围内唯一
	LocalID           string      `json:"localId,omitempty"`
	Source            string      `json:"source"`
	Table             string      `json:"table,omitempty"`
	Content           string      `json:"content"`
	Time              time.Time   `json:"timestamp"`
	TimestampApprox   bool        `json:"timestampApprox,omitempty"`
	SenderID          string      `json:"senderId"`
	ReceiverID        string      `json:"receiverId,omitempty"`
	SenderDisplayName string      `json:"senderDisplayName"`
	IsOwn             bool        `json:"isOwn"`
	Type              MessageType `json:"messageType"`
	Attachment        *Attachment `json:"attachment,omitempty"`
	IsDeleted         bool        `json:"isDeleted,omitempty"`
	EditTime          *time.Time  `json:"editTime,omitempty"`
}
