package ledger

import (
	"context"
	"errors"
	"fmt"

	"kvstore-sol/internal/types"

	sdktypes "github.com/blocto/solana-go-sdk/types"
)

// Ledger 是账本协作方的最小契约：排序并最终确认原子交易、提供账户读取。
// 客户端只依赖此接口，具体可以是远端 RPC 集群或进程内账本。
type Ledger interface {
	// GetMinimumBalanceForRentExemption 返回 dataLen 字节账户免租所需的最低余额
	GetMinimumBalanceForRentExemption(ctx context.Context, dataLen uint64) (uint64, error)
	// GetLatestBlockhash 返回当前 recent blockhash（交易的时效令牌）
	GetLatestBlockhash(ctx context.Context) (string, error)
	// SendTransaction 提交已签名交易并等待确认；账本拒绝时返回 *RejectedError
	SendTransaction(ctx context.Context, tx sdktypes.Transaction) (*Receipt, error)
	// GetAccount 读取账户，不存在时返回 ErrAccountNotFound
	GetAccount(ctx context.Context, address types.Pubkey) (*Account, error)
	// GetMultipleAccounts 批量读取，结果与入参一一对应，不存在的账户为 nil
	GetMultipleAccounts(ctx context.Context, addresses []types.Pubkey) ([]*Account, error)
}

// Account 账本上的账户记录
type Account struct {
	Address    types.Pubkey
	Owner      types.Pubkey
	Lamports   uint64
	Executable bool
	Data       []byte
}

// Clone 深拷贝，避免调用方与账本共享 Data
func (a *Account) Clone() *Account {
	c := *a
	c.Data = make([]byte, len(a.Data))
	copy(c.Data, a.Data)
	return &c
}

// Receipt 表示已确认交易的记录
type Receipt struct {
	Signature   string   `json:"signature"`
	Slot        uint64   `json:"slot"`
	BlockTime   *int64   `json:"block_time,omitempty"`
	Fee         uint64   `json:"fee"`
	LogMessages []string `json:"log_messages"`
}

var (
	ErrLedgerRejected  = errors.New("ledger rejected transaction")
	ErrAccountNotFound = errors.New("account not found")

	// 账本层面的拒绝原因
	ErrBlockhashNotFound        = errors.New("BlockhashNotFound")
	ErrAlreadyProcessed         = errors.New("AlreadyProcessed")
	ErrSignatureFailure         = errors.New("SignatureFailure")
	ErrInsufficientFundsForFee  = errors.New("InsufficientFundsForFee")
	ErrAccountAlreadyInUse      = errors.New("AccountAlreadyInUse")
	ErrInsufficientFunds        = errors.New("InsufficientFunds")
	ErrInvalidProgram           = errors.New("InvalidProgramForExecution")
	ErrReadonlyDataModified     = errors.New("ReadonlyDataModified")
	ErrReadonlyLamportChange    = errors.New("ReadonlyLamportChange")
	ErrExternalDataModified     = errors.New("ExternalAccountDataModified")
	ErrExternalLamportSpend     = errors.New("ExternalAccountLamportSpend")
	ErrUnbalancedInstruction    = errors.New("UnbalancedInstruction")
	ErrAccountDataSizeChanged   = errors.New("AccountDataSizeChanged")
	ErrInvalidAccountData       = errors.New("InvalidAccountData")
	ErrInvalidInstructionData   = errors.New("InvalidInstructionData")
	ErrMissingRequiredSignature = errors.New("MissingRequiredSignature")
	ErrTransactionTimeout       = errors.New("transaction confirmation timeout")
)

// RejectedError 表示账本拒绝了整笔交易。Reason 为具体原因：
// 指令级失败时为程序返回的错误（可用 errors.Is 与 program 包的哨兵错误比较）。
type RejectedError struct {
	Signature        string
	InstructionIndex int // 失败指令序号，交易级失败为 -1
	Reason           error
	Logs             []string
}

func (e *RejectedError) Error() string {
	if e.InstructionIndex >= 0 {
		return fmt.Sprintf("ledger rejected transaction %s: instruction %d: %v", e.Signature, e.InstructionIndex, e.Reason)
	}
	return fmt.Sprintf("ledger rejected transaction %s: %v", e.Signature, e.Reason)
}

func (e *RejectedError) Unwrap() []error {
	return []error{ErrLedgerRejected, e.Reason}
}

func Reject(signature string, reason error) *RejectedError {
	return &RejectedError{Signature: signature, InstructionIndex: -1, Reason: reason}
}

func RejectInstruction(signature string, index int, reason error, logs []string) *RejectedError {
	return &RejectedError{Signature: signature, InstructionIndex: index, Reason: reason, Logs: logs}
}
