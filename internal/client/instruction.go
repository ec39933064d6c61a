package client

import (
	"fmt"

	"kvstore-sol/internal/program"
	"kvstore-sol/internal/types"

	sdktypes "github.com/blocto/solana-go-sdk/types"
)

// CreateInstruction 初始化已分配的记录账户
//
// #0 - 记录账户（签名、可写）
func CreateInstruction(programID, record types.Pubkey, payload []byte) (sdktypes.Instruction, error) {
	data, err := program.EncodeInstruction(program.NewCreate(payload))
	if err != nil {
		return sdktypes.Instruction{}, fmt.Errorf("encode create: %w", err)
	}
	return sdktypes.Instruction{
		ProgramID: programID.ToCommon(),
		Accounts: []sdktypes.AccountMeta{
			{PubKey: record.ToCommon(), IsSigner: true, IsWritable: true},
		},
		Data: data,
	}, nil
}

// UpdateInstruction 覆盖记录数据，长度必须与分配时一致
//
// #0 - 记录账户（可写）
func UpdateInstruction(programID, record types.Pubkey, payload []byte) (sdktypes.Instruction, error) {
	data, err := program.EncodeInstruction(program.NewUpdate(payload))
	if err != nil {
		return sdktypes.Instruction{}, fmt.Errorf("encode update: %w", err)
	}
	return sdktypes.Instruction{
		ProgramID: programID.ToCommon(),
		Accounts: []sdktypes.AccountMeta{
			{PubKey: record.ToCommon(), IsSigner: false, IsWritable: true},
		},
		Data: data,
	}, nil
}

// DeleteInstruction 清空记录并把余额退回 refund
//
// #0 - 记录账户（可写）
// #1 - 退款账户（签名、可写）
func DeleteInstruction(programID, record, refund types.Pubkey) (sdktypes.Instruction, error) {
	data, err := program.EncodeInstruction(program.NewDelete())
	if err != nil {
		return sdktypes.Instruction{}, fmt.Errorf("encode delete: %w", err)
	}
	return sdktypes.Instruction{
		ProgramID: programID.ToCommon(),
		Accounts: []sdktypes.AccountMeta{
			{PubKey: record.ToCommon(), IsSigner: false, IsWritable: true},
			{PubKey: refund.ToCommon(), IsSigner: true, IsWritable: true},
		},
		Data: data,
	}, nil
}
