package memledger

import (
	"encoding/binary"
	"fmt"

	"kvstore-sol/internal/consts"
	"kvstore-sol/internal/ledger"
	"kvstore-sol/internal/program"
	"kvstore-sol/internal/types"

	"github.com/near/borsh-go"
)

// 系统程序指令序号（u32 LE）
const (
	systemCreateAccount uint32 = 0
	systemTransfer      uint32 = 2
)

type createAccountParams struct {
	Lamports uint64
	Space    uint64
	Owner    [32]byte
}

type transferParams struct {
	Lamports uint64
}

// systemProgram 是账本内置的系统程序，只实现 kvstore 需要的账户分配与转账。
// 它代表两阶段协议中的第一阶段：预留固定容量存储并注资。
type systemProgram struct{}

func (systemProgram) Process(accounts []*program.AccountInfo, data []byte) (err error) {
	if len(data) < 4 {
		return ledger.ErrInvalidInstructionData
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ledger.ErrInvalidInstructionData, r)
		}
	}()

	switch binary.LittleEndian.Uint32(data[:4]) {
	case systemCreateAccount:
		var params createAccountParams
		if err := borsh.Deserialize(&params, data[4:]); err != nil {
			return fmt.Errorf("%w: %v", ledger.ErrInvalidInstructionData, err)
		}
		return createAccount(accounts, params)
	case systemTransfer:
		var params transferParams
		if err := borsh.Deserialize(&params, data[4:]); err != nil {
			return fmt.Errorf("%w: %v", ledger.ErrInvalidInstructionData, err)
		}
		return transfer(accounts, params.Lamports)
	default:
		return ledger.ErrInvalidInstructionData
	}
}

// #0 - 出资账户（签名、可写）
// #1 - 新账户（签名、可写）
func createAccount(accounts []*program.AccountInfo, params createAccountParams) error {
	if len(accounts) < 2 {
		return program.ErrNotEnoughAccountKeys
	}
	from, to := accounts[0], accounts[1]

	if !from.IsSigner || !to.IsSigner {
		return ledger.ErrMissingRequiredSignature
	}
	if to.Lamports != 0 || len(to.Data) != 0 || to.Owner != consts.SystemProgram {
		return ledger.ErrAccountAlreadyInUse
	}
	if params.Space > consts.MaxPermittedDataLength {
		return fmt.Errorf("%w: space %d exceeds limit", ledger.ErrInvalidInstructionData, params.Space)
	}
	if from.Lamports < params.Lamports {
		return ledger.ErrInsufficientFunds
	}

	from.Lamports -= params.Lamports
	to.Lamports = params.Lamports
	to.Data = make([]byte, params.Space)
	to.Owner = types.Pubkey(params.Owner)
	return nil
}

// #0 - 转出账户（签名、可写、系统程序拥有）
// #1 - 转入账户（可写）
func transfer(accounts []*program.AccountInfo, lamports uint64) error {
	if len(accounts) < 2 {
		return program.ErrNotEnoughAccountKeys
	}
	from, to := accounts[0], accounts[1]

	if !from.IsSigner {
		return ledger.ErrMissingRequiredSignature
	}
	if from.Owner != consts.SystemProgram || len(from.Data) != 0 {
		return ledger.ErrInvalidAccountData
	}
	if from.Lamports < lamports {
		return ledger.ErrInsufficientFunds
	}
	if from == to {
		return nil
	}

	from.Lamports -= lamports
	to.Lamports += lamports
	return nil
}
