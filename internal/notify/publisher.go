package notify

import (
	"context"
	"fmt"

	"kvstore-sol/internal/types"
)

// EventType 记录变更事件类型，同时作为编码后消息的 4 字节类型前缀
type EventType uint32

const (
	EventCreated EventType = 1
	EventUpdated EventType = 2
	EventDeleted EventType = 3
)

func (t EventType) String() string {
	switch t {
	case EventCreated:
		return "created"
	case EventUpdated:
		return "updated"
	case EventDeleted:
		return "deleted"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(t))
	}
}

// RecordEvent 一次已确认的记录变更
type RecordEvent struct {
	Type      EventType
	Address   types.Pubkey
	Data      []byte // 变更后的数据，Deleted 为空
	Signature string
	Slot      uint64
	BlockTime *int64
}

// Publisher 发布记录变更事件
type Publisher interface {
	Publish(ctx context.Context, events ...*RecordEvent) error
	Close()
}

// NopPublisher 不发送任何事件
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, ...*RecordEvent) error { return nil }
func (NopPublisher) Close()                                         {}
