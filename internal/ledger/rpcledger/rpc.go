package rpcledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"kvstore-sol/internal/config"
	"kvstore-sol/internal/ledger"
	"kvstore-sol/internal/types"
	"kvstore-sol/pkg/logger"

	"github.com/blocto/solana-go-sdk/client"
	"github.com/blocto/solana-go-sdk/rpc"
	sdktypes "github.com/blocto/solana-go-sdk/types"
)

const maxRetries = 3

// RpcLedger 通过 Solana JSON-RPC 与真实集群交互。
// SendTransaction 提交后轮询签名状态，直到达到配置的 commitment、交易失败或 blockhash 过期。
type RpcLedger struct {
	client       *client.Client
	programID    types.Pubkey
	commitment   rpc.Commitment
	timeout      time.Duration
	pollInterval time.Duration

	// blockhash → 该 blockhash 最后有效的区块高度，用于判断未落块交易是否已过期
	validHeights sync.Map
}

func New(cfg *config.Config) *RpcLedger {
	return &RpcLedger{
		client:       client.NewClient(cfg.JsonRpcURL),
		programID:    cfg.ProgramPubkey(),
		commitment:   rpc.Commitment(cfg.Commitment),
		timeout:      time.Duration(cfg.TimeConf.ConfirmTimeoutSec) * time.Second,
		pollInterval: time.Duration(cfg.TimeConf.ConfirmPollIntervalMs) * time.Millisecond,
	}
}

func (r *RpcLedger) GetMinimumBalanceForRentExemption(ctx context.Context, dataLen uint64) (uint64, error) {
	var (
		lamports uint64
		err      error
	)
	for attempt := 0; attempt < maxRetries; attempt++ {
		lamports, err = r.client.GetMinimumBalanceForRentExemption(ctx, dataLen)
		if err == nil || !retryable(ctx, err) {
			break
		}
		logger.Warnf("[RpcLedger] getMinimumBalanceForRentExemption 失败, 重试 %d/%d: %v", attempt+1, maxRetries, err)
		sleepCtx(ctx, r.pollInterval)
	}
	if err != nil {
		return 0, fmt.Errorf("getMinimumBalanceForRentExemption failed: %w", err)
	}
	return lamports, nil
}

func (r *RpcLedger) GetLatestBlockhash(ctx context.Context) (string, error) {
	res, err := r.client.GetLatestBlockhashWithConfig(ctx, client.GetLatestBlockhashConfig{
		Commitment: r.commitment,
	})
	if err != nil {
		return "", fmt.Errorf("getLatestBlockhash failed: %w", err)
	}
	r.validHeights.Store(res.Blockhash, res.LatestValidBlockHeight)
	return res.Blockhash, nil
}

func (r *RpcLedger) GetAccount(ctx context.Context, address types.Pubkey) (*ledger.Account, error) {
	info, err := r.client.GetAccountInfoWithConfig(ctx, address.String(), client.GetAccountInfoConfig{
		Commitment: r.commitment,
	})
	if err != nil {
		return nil, fmt.Errorf("getAccountInfo %s failed: %w", address, err)
	}
	acc := toAccount(address, info)
	if acc == nil {
		return nil, ledger.ErrAccountNotFound
	}
	return acc, nil
}

func (r *RpcLedger) GetMultipleAccounts(ctx context.Context, addresses []types.Pubkey) ([]*ledger.Account, error) {
	keys := make([]string, len(addresses))
	for i, addr := range addresses {
		keys[i] = addr.String()
	}

	infos, err := r.client.GetMultipleAccountsWithConfig(ctx, keys, client.GetMultipleAccountsConfig{
		Commitment: r.commitment,
	})
	if err != nil {
		return nil, fmt.Errorf("getMultipleAccounts failed: %w", err)
	}
	if len(infos) != len(addresses) {
		return nil, fmt.Errorf("返回账户数与请求不一致: got=%d want=%d", len(infos), len(addresses))
	}

	result := make([]*ledger.Account, len(addresses))
	for i, info := range infos {
		result[i] = toAccount(addresses[i], info)
	}
	return result, nil
}

// SendTransaction 提交交易并等待确认。预检失败与链上执行失败都返回 *ledger.RejectedError
func (r *RpcLedger) SendTransaction(ctx context.Context, tx sdktypes.Transaction) (*ledger.Receipt, error) {
	sig, err := r.client.SendTransactionWithConfig(ctx, tx, client.SendTransactionConfig{
		PreflightCommitment: r.commitment,
	})
	if err != nil {
		var rpcErr *rpc.JsonRpcError
		if errors.As(err, &rpcErr) {
			if rejected := rejectedFromRpcError(rpcErr, programInstructionsOf(tx, r.programID)); rejected != nil {
				return nil, rejected
			}
		}
		return nil, fmt.Errorf("sendTransaction failed: %w", err)
	}
	logger.Debugf("[RpcLedger] 交易已提交: sig=%s", sig)

	slot, err := r.waitConfirmation(ctx, sig, tx)
	if err != nil {
		return nil, err
	}
	return r.fetchReceipt(ctx, sig, slot), nil
}

// waitConfirmation 轮询签名状态，返回交易所在 slot
func (r *RpcLedger) waitConfirmation(ctx context.Context, sig string, tx sdktypes.Transaction) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		status, err := r.client.GetSignatureStatus(ctx, sig)
		switch {
		case err != nil:
			logger.Warnf("[RpcLedger] getSignatureStatus 失败: sig=%s err=%v", sig, err)
		case status != nil:
			if status.Err != nil {
				return 0, rejectedFromTxError(sig, status.Err, nil, programInstructionsOf(tx, r.programID))
			}
			if reached(status.ConfirmationStatus, r.commitment) {
				return status.Slot, nil
			}
		default:
			if r.blockhashExpired(ctx, tx.Message.RecentBlockHash) {
				return 0, ledger.Reject(sig, ledger.ErrBlockhashNotFound)
			}
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return 0, fmt.Errorf("%w: sig=%s", ledger.ErrTransactionTimeout, sig)
			}
			return 0, ctx.Err()
		case <-ticker.C:
		}
	}
}

// blockhashExpired 当前区块高度超过 blockhash 的最后有效高度时，交易不可能再落块
func (r *RpcLedger) blockhashExpired(ctx context.Context, blockhash string) bool {
	v, ok := r.validHeights.Load(blockhash)
	if !ok {
		return false
	}
	res, err := r.client.RpcClient.GetBlockHeightWithConfig(ctx, rpc.GetBlockHeightConfig{Commitment: r.commitment})
	if err == nil && res.Error != nil {
		err = res.Error
	}
	if err != nil {
		logger.Warnf("[RpcLedger] getBlockHeight 失败: %v", err)
		return false
	}
	return res.Result > v.(uint64)
}

// fetchReceipt 查询已确认交易的费用与日志；查询失败时只返回签名与 slot
func (r *RpcLedger) fetchReceipt(ctx context.Context, sig string, slot uint64) *ledger.Receipt {
	receipt := &ledger.Receipt{Signature: sig, Slot: slot}

	// getTransaction 不支持 processed
	commitment := r.commitment
	if commitment == rpc.CommitmentProcessed {
		commitment = rpc.CommitmentConfirmed
	}
	tx, err := r.client.GetTransactionWithConfig(ctx, sig, client.GetTransactionConfig{
		Commitment: commitment,
	})
	if err != nil || tx == nil {
		logger.Warnf("[RpcLedger] getTransaction 失败: sig=%s err=%v", sig, err)
		return receipt
	}

	receipt.Slot = tx.Slot
	receipt.BlockTime = tx.BlockTime
	if tx.Meta != nil {
		receipt.Fee = tx.Meta.Fee
		receipt.LogMessages = tx.Meta.LogMessages
	}
	return receipt
}

// toAccount 账户不存在时 RPC 返回零值
func toAccount(address types.Pubkey, info client.AccountInfo) *ledger.Account {
	owner := types.PubkeyFromCommon(info.Owner)
	if info.Lamports == 0 && owner.IsZero() && len(info.Data) == 0 {
		return nil
	}
	return &ledger.Account{
		Address:    address,
		Owner:      owner,
		Lamports:   info.Lamports,
		Executable: info.Executable,
		Data:       info.Data,
	}
}

var commitmentRank = map[rpc.Commitment]int{
	rpc.CommitmentProcessed: 0,
	rpc.CommitmentConfirmed: 1,
	rpc.CommitmentFinalized: 2,
}

func reached(status *rpc.Commitment, want rpc.Commitment) bool {
	if status == nil {
		return false
	}
	return commitmentRank[*status] >= commitmentRank[want]
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var rpcErr *rpc.JsonRpcError
	return !errors.As(err, &rpcErr)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
