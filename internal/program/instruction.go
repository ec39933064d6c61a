package program

import (
	"encoding/binary"
	"fmt"

	"github.com/near/borsh-go"
)

// InstructionKind 指令判别字节
type InstructionKind uint8

const (
	KindCreate InstructionKind = 0
	KindUpdate InstructionKind = 1
	KindDelete InstructionKind = 2
)

func (k InstructionKind) String() string {
	switch k {
	case KindCreate:
		return "Create"
	case KindUpdate:
		return "Update"
	case KindDelete:
		return "Delete"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(k))
	}
}

// Instruction 表示一条 kvstore 指令。账户通过指令外的账户列表按位置引用，不内嵌在指令中。
// 构造后不可修改：Payload 在构造时已拷贝，调用方不应修改返回的切片。
type Instruction struct {
	Kind    InstructionKind
	Payload []byte // Create / Update 的原始数据，Delete 为 nil
}

func NewCreate(payload []byte) Instruction {
	return Instruction{Kind: KindCreate, Payload: clone(payload)}
}

func NewUpdate(payload []byte) Instruction {
	return Instruction{Kind: KindUpdate, Payload: clone(payload)}
}

func NewDelete() Instruction {
	return Instruction{Kind: KindDelete}
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// wireInstruction 为 Borsh 复杂枚举的线上布局：
//
//	Create(Vec<u8>) → 0x00 | u32 LE 长度 | 数据
//	Update(Vec<u8>) → 0x01 | u32 LE 长度 | 数据
//	Delete          → 0x02
//
// borsh-go 只序列化结构体类型的枚举分支，因此数据分支需包一层结构体
type wireInstruction struct {
	Enum   borsh.Enum `borsh_enum:"true"`
	Create wirePayload
	Update wirePayload
	Delete struct{}
}

type wirePayload struct {
	Data []byte
}

const (
	discriminantLen = 1
	lengthPrefixLen = 4
)

// EncodeInstruction 将指令编码为线上字节
func EncodeInstruction(ix Instruction) ([]byte, error) {
	w := wireInstruction{Enum: borsh.Enum(ix.Kind)}
	switch ix.Kind {
	case KindCreate:
		w.Create.Data = nonNil(ix.Payload)
	case KindUpdate:
		w.Update.Data = nonNil(ix.Payload)
	case KindDelete:
	default:
		return nil, fmt.Errorf("%w: unknown kind %d", ErrMalformedInstruction, ix.Kind)
	}

	data, err := borsh.Serialize(w)
	if err != nil {
		return nil, fmt.Errorf("borsh serialize %s: %w", ix.Kind, err)
	}
	return data, nil
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}

// DecodeInstruction 解析线上字节。判别字节未知、长度前缀与剩余字节数不一致（含多余尾部字节）时
// 返回 ErrMalformedInstruction，不会 panic。
func DecodeInstruction(data []byte) (ix Instruction, err error) {
	if len(data) < discriminantLen {
		return Instruction{}, fmt.Errorf("%w: empty input", ErrMalformedInstruction)
	}

	kind := InstructionKind(data[0])
	rest := data[discriminantLen:]
	switch kind {
	case KindCreate, KindUpdate:
		if len(rest) < lengthPrefixLen {
			return Instruction{}, fmt.Errorf("%w: %s missing length prefix", ErrMalformedInstruction, kind)
		}
		declared := binary.LittleEndian.Uint32(rest[:lengthPrefixLen])
		if uint64(declared) != uint64(len(rest)-lengthPrefixLen) {
			return Instruction{}, fmt.Errorf("%w: %s declared length %d, remaining %d",
				ErrMalformedInstruction, kind, declared, len(rest)-lengthPrefixLen)
		}
	case KindDelete:
		if len(rest) != 0 {
			return Instruction{}, fmt.Errorf("%w: Delete has %d trailing bytes", ErrMalformedInstruction, len(rest))
		}
		return NewDelete(), nil
	default:
		return Instruction{}, fmt.Errorf("%w: unknown discriminant %d", ErrMalformedInstruction, data[0])
	}

	// 前置校验后仍防御 borsh 解码 panic
	defer func() {
		if r := recover(); r != nil {
			ix = Instruction{}
			err = fmt.Errorf("%w: borsh panic: %v", ErrMalformedInstruction, r)
		}
	}()

	var w wireInstruction
	if err := borsh.Deserialize(&w, data); err != nil {
		return Instruction{}, fmt.Errorf("%w: %v", ErrMalformedInstruction, err)
	}

	switch kind {
	case KindCreate:
		return NewCreate(w.Create.Data), nil
	default:
		return NewUpdate(w.Update.Data), nil
	}
}
