package client

import (
	"fmt"

	"github.com/near/borsh-go"
	"github.com/zeromicro/go-zero/core/jsonx"
)

// Codec 记录值与字节之间的编解码能力，类型化客户端通过它把结构化数据映射到原始字节
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// BorshCodec 二进制编码。注意 Borsh 结构体编码长度随字段内容变化，
// 更新时新值编码后的长度必须与创建时一致。
type BorshCodec struct{}

func (BorshCodec) Marshal(v any) ([]byte, error) {
	return borsh.Serialize(v)
}

func (BorshCodec) Unmarshal(data []byte, v any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("borsh panic: %v", r)
		}
	}()
	return borsh.Deserialize(v, data)
}

// JSONCodec 文本编码
type JSONCodec struct{}

func (JSONCodec) Marshal(v any) ([]byte, error) {
	return jsonx.Marshal(v)
}

func (JSONCodec) Unmarshal(data []byte, v any) error {
	return jsonx.Unmarshal(data, v)
}
