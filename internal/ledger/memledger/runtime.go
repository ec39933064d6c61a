package memledger

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"fmt"

	"kvstore-sol/internal/consts"
	"kvstore-sol/internal/ledger"
	"kvstore-sol/internal/program"
	"kvstore-sol/internal/types"

	sdktypes "github.com/blocto/solana-go-sdk/types"
	"github.com/mr-tron/base58"
)

// accountSnapshot 记录指令执行前的账户状态，用于执行后的运行时校验
type accountSnapshot struct {
	owner    types.Pubkey
	lamports uint64
	data     []byte
}

// execute 必须在持锁状态下调用
func (l *Ledger) execute(ctx context.Context, tx sdktypes.Transaction) (*ledger.Receipt, error) {
	if len(tx.Signatures) == 0 {
		return nil, ledger.Reject("", ledger.ErrSignatureFailure)
	}
	sig := base58.Encode(tx.Signatures[0])
	msg := tx.Message

	// ================= 交易级校验 =================
	numSigners := int(msg.Header.NumRequireSignatures)
	if numSigners == 0 || len(tx.Signatures) != numSigners || len(msg.Accounts) < numSigners {
		return nil, ledger.Reject(sig, ledger.ErrSignatureFailure)
	}
	msgBytes, err := msg.Serialize()
	if err != nil {
		return nil, ledger.Reject(sig, fmt.Errorf("%w: %v", ledger.ErrSignatureFailure, err))
	}
	for i := 0; i < numSigners; i++ {
		pk := msg.Accounts[i]
		if len(tx.Signatures[i]) != ed25519.SignatureSize || !ed25519.Verify(pk[:], msgBytes, tx.Signatures[i]) {
			return nil, ledger.Reject(sig, ledger.ErrSignatureFailure)
		}
	}
	if _, ok := l.processed[sig]; ok {
		return nil, ledger.Reject(sig, ledger.ErrAlreadyProcessed)
	}
	if !l.blockhashValid(msg.RecentBlockHash) {
		return nil, ledger.Reject(sig, ledger.ErrBlockhashNotFound)
	}

	// ================= 加载账户 =================
	infos := make([]*program.AccountInfo, len(msg.Accounts))
	for i, key := range msg.Accounts {
		acc, err := l.loadAccount(ctx, types.PubkeyFromCommon(key))
		if err != nil {
			return nil, err
		}
		infos[i] = &program.AccountInfo{
			Key:        acc.Address,
			Owner:      acc.Owner,
			IsSigner:   i < numSigners,
			IsWritable: isWritable(msg.Header, len(msg.Accounts), i),
			Lamports:   acc.Lamports,
			Data:       acc.Data,
		}
	}

	payer := infos[0]
	fee := consts.LamportsPerSignature * uint64(numSigners)
	if !payer.IsWritable || payer.Owner != consts.SystemProgram || payer.Lamports < fee {
		return nil, ledger.Reject(sig, ledger.ErrInsufficientFundsForFee)
	}
	payer.Lamports -= fee

	// ================= 顺序执行指令 =================
	var logs []string
	for i, ix := range msg.Instructions {
		if ix.ProgramIDIndex < 0 || ix.ProgramIDIndex >= len(infos) {
			return nil, ledger.RejectInstruction(sig, i, ledger.ErrInvalidProgram, logs)
		}
		programID := infos[ix.ProgramIDIndex].Key
		prog, ok := l.programs[programID]
		if !ok {
			return nil, ledger.RejectInstruction(sig, i, ledger.ErrInvalidProgram, logs)
		}

		ixAccounts := make([]*program.AccountInfo, 0, len(ix.Accounts))
		for _, idx := range ix.Accounts {
			if idx < 0 || idx >= len(infos) {
				return nil, ledger.RejectInstruction(sig, i, program.ErrNotEnoughAccountKeys, logs)
			}
			ixAccounts = append(ixAccounts, infos[idx])
		}

		logs = append(logs, programLog(programID, "invoke [1]"))
		snapshots := takeSnapshots(ixAccounts)
		if err := invoke(prog, ixAccounts, ix.Data); err != nil {
			logs = append(logs, programLog(programID, "failed: %v", err))
			return nil, ledger.RejectInstruction(sig, i, err, logs)
		}
		if err := verifyAccounts(programID, snapshots); err != nil {
			logs = append(logs, programLog(programID, "failed: %v", err))
			return nil, ledger.RejectInstruction(sig, i, err, logs)
		}
		logs = append(logs, programLog(programID, "success"))
	}

	// ================= 原子提交 =================
	commits := make([]*ledger.Account, 0, len(infos))
	for _, info := range infos {
		if !info.IsWritable {
			continue
		}
		commits = append(commits, &ledger.Account{
			Address:  info.Key,
			Owner:    info.Owner,
			Lamports: info.Lamports,
			Data:     info.Data,
		})
	}
	if err := l.store.Commit(ctx, commits); err != nil {
		return nil, fmt.Errorf("commit transaction %s: %w", sig, err)
	}

	l.processed[sig] = struct{}{}
	l.advance(tx.Signatures[0])

	return &ledger.Receipt{
		Signature:   sig,
		Slot:        l.slot,
		BlockTime:   blockTimeNow(),
		Fee:         fee,
		LogMessages: logs,
	}, nil
}

// isWritable 按消息头推导账户是否可写：
// 签名账户中最后 NumReadonlySignedAccounts 个只读，非签名账户中最后 NumReadonlyUnsignedAccounts 个只读
func isWritable(h sdktypes.MessageHeader, numAccounts, i int) bool {
	numSigners := int(h.NumRequireSignatures)
	if i < numSigners {
		return i < numSigners-int(h.NumReadonlySignedAccounts)
	}
	return i < numAccounts-int(h.NumReadonlyUnsignedAccounts)
}

func invoke(prog Program, accounts []*program.AccountInfo, data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("program panicked: %v", r)
		}
	}()
	return prog.Process(accounts, data)
}

type accountRef struct {
	info *program.AccountInfo
	pre  accountSnapshot
}

// takeSnapshots 按账户去重后拍快照（同一账户在指令中可能出现多次）
func takeSnapshots(accounts []*program.AccountInfo) []accountRef {
	refs := make([]accountRef, 0, len(accounts))
	seen := make(map[*program.AccountInfo]struct{}, len(accounts))
	for _, info := range accounts {
		if _, ok := seen[info]; ok {
			continue
		}
		seen[info] = struct{}{}
		refs = append(refs, accountRef{
			info: info,
			pre: accountSnapshot{
				owner:    info.Owner,
				lamports: info.Lamports,
				data:     bytes.Clone(info.Data),
			},
		})
	}
	return refs
}

// verifyAccounts 校验运行时账户规则
func verifyAccounts(programID types.Pubkey, refs []accountRef) error {
	var preTotal, postTotal uint64
	for _, ref := range refs {
		info, pre := ref.info, ref.pre
		preTotal += pre.lamports
		postTotal += info.Lamports

		dataChanged := !bytes.Equal(pre.data, info.Data) || pre.owner != info.Owner
		if !info.IsWritable {
			if dataChanged {
				return ledger.ErrReadonlyDataModified
			}
			if pre.lamports != info.Lamports {
				return ledger.ErrReadonlyLamportChange
			}
			continue
		}
		if pre.owner != programID {
			if dataChanged {
				return ledger.ErrExternalDataModified
			}
			if info.Lamports < pre.lamports {
				return ledger.ErrExternalLamportSpend
			}
		}
		// 只有系统程序可以分配空间
		if programID != consts.SystemProgram && len(pre.data) != len(info.Data) {
			return ledger.ErrAccountDataSizeChanged
		}
	}
	if preTotal != postTotal {
		return ledger.ErrUnbalancedInstruction
	}
	return nil
}
