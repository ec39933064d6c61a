package types

import (
	"fmt"

	"github.com/blocto/solana-go-sdk/common"
	"github.com/mr-tron/base58"
)

const PubkeyLength = 32

// Pubkey 表示账户地址或程序 ID（32 字节 ed25519 公钥），文本形式为 base58
type Pubkey [PubkeyLength]byte

func (p Pubkey) String() string {
	return base58.Encode(p[:])
}

func (p Pubkey) Equals(other Pubkey) bool {
	return p == other
}

func (p Pubkey) IsZero() bool {
	return p == Pubkey{}
}

// ToCommon 转换为 solana-go-sdk 的公钥类型（底层同为 [32]byte）
func (p Pubkey) ToCommon() common.PublicKey {
	return common.PublicKey(p)
}

func PubkeyFromCommon(pk common.PublicKey) Pubkey {
	return Pubkey(pk)
}

// TryPubkeyFromBase58 解析 base58 字符串为 Pubkey，失败时返回 error（用于不信任输入路径）
func TryPubkeyFromBase58(s string) (Pubkey, error) {
	data, err := base58.Decode(s)
	if err != nil {
		return Pubkey{}, fmt.Errorf("failed to decode base58 pubkey %q: %w", s, err)
	}
	if len(data) != PubkeyLength {
		return Pubkey{}, fmt.Errorf("invalid pubkey length: got %d, want 32, input=%q", len(data), s)
	}
	var p Pubkey
	copy(p[:], data)
	return p, nil
}

// PubkeyFromBase58 用于常量初始化，输入非法时直接 panic
func PubkeyFromBase58(s string) Pubkey {
	p, err := TryPubkeyFromBase58(s)
	if err != nil {
		panic(err)
	}
	return p
}

// PubkeyFromBytes 从原始字节构造 Pubkey（如 gRPC 推送的账户地址）
func PubkeyFromBytes(b []byte) (Pubkey, error) {
	if len(b) != PubkeyLength {
		return Pubkey{}, fmt.Errorf("invalid pubkey length: got %d, want 32", len(b))
	}
	var p Pubkey
	copy(p[:], b)
	return p, nil
}

// MarshalText / UnmarshalText 让 Pubkey 在 JSON / YAML 中以 base58 字符串出现
func (p Pubkey) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Pubkey) UnmarshalText(text []byte) error {
	v, err := TryPubkeyFromBase58(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}
