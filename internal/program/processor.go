package program

import (
	"fmt"

	"kvstore-sol/internal/types"
	"kvstore-sol/pkg/logger"
)

// AccountInfo 是处理器看到的单个账户视图，顺序与指令的账户列表一致。
// 处理器直接修改 Data 与 Lamports，由账本负责在整笔交易成功后提交。
type AccountInfo struct {
	Key        types.Pubkey
	Owner      types.Pubkey
	IsSigner   bool
	IsWritable bool
	Lamports   uint64
	Data       []byte
}

// Processor 是 kvstore 程序的状态机。程序 ID 由外部注入，
// 不同部署、不同测试可以使用不同的 ID。
type Processor struct {
	programID types.Pubkey
}

func NewProcessor(programID types.Pubkey) *Processor {
	return &Processor{programID: programID}
}

func (p *Processor) ProgramID() types.Pubkey {
	return p.programID
}

// Process 解析并执行一条指令。任何前置条件失败都直接返回错误，由账本回滚整笔交易。
func (p *Processor) Process(accounts []*AccountInfo, input []byte) error {
	logger.Debugf("[kvstore] input: %v", input)

	ix, err := DecodeInstruction(input)
	if err != nil {
		logger.Warnf("[kvstore] decode instruction failed: %v", err)
		return err
	}

	switch ix.Kind {
	case KindCreate:
		return p.processCreate(accounts, ix.Payload)
	case KindUpdate:
		return p.processUpdate(accounts, ix.Payload)
	default:
		return p.processDelete(accounts)
	}
}

// #0 - 记录账户（必须由本程序拥有，且必须签名）
func (p *Processor) processCreate(accounts []*AccountInfo, payload []byte) error {
	if len(accounts) < 1 {
		return fmt.Errorf("%w: create expects 1 account, got %d", ErrNotEnoughAccountKeys, len(accounts))
	}
	state := accounts[0]

	if state.Owner != p.programID {
		logger.Warnf("[kvstore:Create] account does not have the correct program id: account=%s owner=%s", state.Key, state.Owner)
		return ErrIncorrectOwner
	}
	// 只有新账户自己签名才能初始化，防止抢注他人预分配的地址
	if !state.IsSigner {
		logger.Warnf("[kvstore:Create] account is not signer: account=%s", state.Key)
		return ErrMissingSignature
	}
	if len(state.Data) != len(payload) {
		logger.Warnf("[kvstore:Create] account data is not the correct length: account=%s have=%d want=%d",
			state.Key, len(state.Data), len(payload))
		return ErrSizeMismatch
	}

	copy(state.Data, payload)
	return nil
}

// #0 - 记录账户（必须由本程序拥有，不要求签名）
//
// 注意：Update 不校验签名者，任何能在交易中引用该地址的人都可以覆盖数据。
func (p *Processor) processUpdate(accounts []*AccountInfo, payload []byte) error {
	if len(accounts) < 1 {
		return fmt.Errorf("%w: update expects 1 account, got %d", ErrNotEnoughAccountKeys, len(accounts))
	}
	state := accounts[0]

	if state.Owner != p.programID {
		logger.Warnf("[kvstore:Update] account does not have the correct program id: account=%s owner=%s", state.Key, state.Owner)
		return ErrIncorrectOwner
	}
	if len(state.Data) != len(payload) {
		logger.Warnf("[kvstore:Update] account data is not the correct length: account=%s have=%d want=%d",
			state.Key, len(state.Data), len(payload))
		return ErrSizeMismatch
	}

	copy(state.Data, payload)
	return nil
}

// #0 - 记录账户（必须由本程序拥有）
// #1 - 退款账户（接收记录账户的全部 lamports）
//
// 注意：两者都不校验签名者，与 Update 相同。
func (p *Processor) processDelete(accounts []*AccountInfo) error {
	if len(accounts) < 2 {
		return fmt.Errorf("%w: delete expects 2 accounts, got %d", ErrNotEnoughAccountKeys, len(accounts))
	}
	state := accounts[0]
	refund := accounts[1]

	if state.Owner != p.programID {
		logger.Warnf("[kvstore:Delete] account does not have the correct program id: account=%s owner=%s", state.Key, state.Owner)
		return ErrIncorrectOwner
	}

	clear(state.Data)

	// 同一账户既是记录又是退款目标时余额不变
	if state == refund {
		return nil
	}
	refund.Lamports = saturatingAdd(refund.Lamports, state.Lamports)
	state.Lamports = 0
	return nil
}

func saturatingAdd(a, b uint64) uint64 {
	if sum := a + b; sum >= a {
		return sum
	}
	return ^uint64(0)
}
