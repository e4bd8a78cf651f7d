package chatdata

import (
	"github.com/takeaway1/wxchat/internal/wechatdb/resolver"
)

const (
	DefaultBatchSize      = 1000
	DefaultMessageCap     = 10000
	DefaultActivitySample = 1000
	DefaultWorkers        = 4
)

type Options struct {
	// BatchSize 每次分页读取的行数
	BatchSize int
	// MessageCap 单个联系人最多返回的消息数
	MessageCap     int
	ValidateSample int
	ActivitySample int
	// Workers 并发处理的消息库数量
	Workers int
	SelfID  string
}

func DefaultOptions() Options {
	return Options{
		BatchSize:      DefaultBatchSize,
		MessageCap:     DefaultMessageCap,
		ValidateSample: resolver.DefaultValidateSample,
		ActivitySample: DefaultActivitySample,
		Workers:        DefaultWorkers,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.BatchSize <= 0 {
		o.BatchSize = d.BatchSize
	}
	if o.MessageCap <= 0 {
		o.MessageCap = d.MessageCap
	}
	if o.ValidateSample <= 0 {
		o.ValidateSample = d.ValidateSample
	}
	if o.ActivitySample <= 0 {
		o.ActivitySample = d.ActivitySample
	}
	if o.Workers <= 0 {
		o.Workers = d.Workers
	}
	return o
}
