package utils

import (
	"encoding/binary"
	"errors"
	"fmt"

	"google.golang.org/protobuf/proto"
)

const eventTypeLen = 4

// EncodeEvent 编码事件消息：4 字节小端事件类型 | protobuf 数据
func EncodeEvent(eventType uint32, msg proto.Message) ([]byte, error) {
	buf := make([]byte, eventTypeLen, eventTypeLen+proto.Size(msg))
	binary.LittleEndian.PutUint32(buf, eventType)

	opts := proto.MarshalOptions{Deterministic: true}
	result, err := opts.MarshalAppend(buf, msg)
	if err != nil {
		return nil, fmt.Errorf("EncodeEvent: marshal %T: %w", msg, err)
	}
	return result, nil
}

// DecodeEvent 解析事件类型前缀，并把剩余部分反序列化到 msg
func DecodeEvent(data []byte, msg proto.Message) (uint32, error) {
	if len(data) < eventTypeLen {
		return 0, errors.New("DecodeEvent: data too short")
	}
	eventType := binary.LittleEndian.Uint32(data[:eventTypeLen])
	if err := proto.Unmarshal(data[eventTypeLen:], msg); err != nil {
		return 0, fmt.Errorf("DecodeEvent: unmarshal %T: %w", msg, err)
	}
	return eventType, nil
}
