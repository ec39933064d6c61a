package config

import (
	"fmt"
	"os"

	"github.com/blocto/solana-go-sdk/types"
	"github.com/zeromicro/go-zero/core/jsonx"
)

// ReadKeypair 读取 Solana CLI 格式的密钥文件：64 个 0~255 整数组成的 JSON 数组
func ReadKeypair(path string) (types.Account, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.Account{}, fmt.Errorf("read keypair %s: %w", path, err)
	}
	return ParseKeypair(data)
}

func ParseKeypair(data []byte) (types.Account, error) {
	// encoding/json 会把 []byte 当作 base64 字符串，这里先按整数数组解析
	var ints []int
	if err := jsonx.Unmarshal(data, &ints); err != nil {
		return types.Account{}, fmt.Errorf("parse keypair: %w", err)
	}
	if len(ints) != 64 {
		return types.Account{}, fmt.Errorf("parse keypair: got %d bytes, want 64", len(ints))
	}

	raw := make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return types.Account{}, fmt.Errorf("parse keypair: byte %d out of range: %d", i, v)
		}
		raw[i] = byte(v)
	}

	account, err := types.AccountFromBytes(raw)
	if err != nil {
		return types.Account{}, fmt.Errorf("parse keypair: %w", err)
	}
	return account, nil
}
