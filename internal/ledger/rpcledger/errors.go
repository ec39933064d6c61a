package rpcledger

import (
	"errors"
	"fmt"

	"kvstore-sol/internal/ledger"
	"kvstore-sol/internal/program"
	"kvstore-sol/internal/types"

	"github.com/blocto/solana-go-sdk/rpc"
	sdktypes "github.com/blocto/solana-go-sdk/types"
)

// programInstructions 交易中由 kvstore 程序执行的指令下标
type programInstructions map[int]bool

func programInstructionsOf(tx sdktypes.Transaction, programID types.Pubkey) programInstructions {
	ours := programInstructions{}
	for i, ix := range tx.Message.Instructions {
		if ix.ProgramIDIndex < len(tx.Message.Accounts) &&
			types.PubkeyFromCommon(tx.Message.Accounts[ix.ProgramIDIndex]) == programID {
			ours[i] = true
		}
	}
	return ours
}

// 账本原生错误名 → 哨兵错误
var ledgerErrors = map[string]error{}

func init() {
	for _, err := range []error{
		ledger.ErrBlockhashNotFound,
		ledger.ErrAlreadyProcessed,
		ledger.ErrSignatureFailure,
		ledger.ErrInsufficientFundsForFee,
		ledger.ErrAccountAlreadyInUse,
		ledger.ErrInsufficientFunds,
		ledger.ErrInvalidProgram,
		ledger.ErrReadonlyDataModified,
		ledger.ErrReadonlyLamportChange,
		ledger.ErrExternalDataModified,
		ledger.ErrExternalLamportSpend,
		ledger.ErrUnbalancedInstruction,
		ledger.ErrAccountDataSizeChanged,
		ledger.ErrInvalidAccountData,
		ledger.ErrInvalidInstructionData,
		ledger.ErrMissingRequiredSignature,
	} {
		ledgerErrors[err.Error()] = err
	}
}

// rejectedFromRpcError 解析 sendTransaction 预检失败的 JSON-RPC 错误：
//
//	{"code":-32002,"message":"Transaction simulation failed: ...",
//	 "data":{"err":{"InstructionError":[1,"InvalidAccountData"]},"logs":[...]}}
//
// 不是交易错误（如限流、参数错误）时返回 nil
func rejectedFromRpcError(rpcErr *rpc.JsonRpcError, ours programInstructions) *ledger.RejectedError {
	data, ok := rpcErr.Data.(map[string]any)
	if !ok {
		return nil
	}
	txErr, ok := data["err"]
	if !ok || txErr == nil {
		return nil
	}

	var logs []string
	if raw, ok := data["logs"].([]any); ok {
		for _, l := range raw {
			if s, ok := l.(string); ok {
				logs = append(logs, s)
			}
		}
	}
	return rejectedFromTxError("", txErr, logs, ours)
}

// rejectedFromTxError 解析 TransactionError 的 JSON 形式：
// 交易级错误为字符串（"BlockhashNotFound"），指令级错误为 {"InstructionError":[index, reason]}
func rejectedFromTxError(sig string, txErr any, logs []string, ours programInstructions) *ledger.RejectedError {
	switch v := txErr.(type) {
	case string:
		return &ledger.RejectedError{Signature: sig, InstructionIndex: -1, Reason: errorFromName(v), Logs: logs}
	case map[string]any:
		if ixErr, ok := v["InstructionError"].([]any); ok && len(ixErr) == 2 {
			index := -1
			if f, ok := ixErr[0].(float64); ok {
				index = int(f)
			}
			return ledger.RejectInstruction(sig, index, instructionReason(ixErr[1], ours[index]), logs)
		}
		for name := range v {
			// 如 {"InsufficientFundsForRent":{"account_index":1}}
			return &ledger.RejectedError{Signature: sig, InstructionIndex: -1, Reason: errorFromName(name), Logs: logs}
		}
	}
	return &ledger.RejectedError{Signature: sig, InstructionIndex: -1, Reason: fmt.Errorf("unknown transaction error: %v", txErr), Logs: logs}
}

// instructionReason 指令错误为 "Name" 或 {"Custom": code}。
// 只有 kvstore 指令的错误才映射回程序哨兵错误，系统程序同名错误保持账本语义
func instructionReason(reason any, fromProgram bool) error {
	switch v := reason.(type) {
	case string:
		if fromProgram {
			if pe, ok := program.ProgramErrorFromName(v); ok {
				return pe
			}
		}
		return errorFromName(v)
	case map[string]any:
		if code, ok := v["Custom"].(float64); ok {
			return fmt.Errorf("custom program error: 0x%x", uint32(code))
		}
	}
	return fmt.Errorf("unknown instruction error: %v", reason)
}

func errorFromName(name string) error {
	if err, ok := ledgerErrors[name]; ok {
		return err
	}
	return errors.New(name)
}
