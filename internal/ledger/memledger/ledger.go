package memledger

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"kvstore-sol/internal/consts"
	"kvstore-sol/internal/ledger"
	"kvstore-sol/internal/program"
	"kvstore-sol/internal/types"
	"kvstore-sol/pkg/logger"

	sdktypes "github.com/blocto/solana-go-sdk/types"
)

// Program 是可以挂载到本地账本上的程序
type Program interface {
	Process(accounts []*program.AccountInfo, input []byte) error
}

// Ledger 是进程内账本：串行排序交易、原子提交，并在本地直接执行已注册的程序。
// 用于本地开发与测试，行为与远端集群保持一致的部分：
//   - 签名校验与签名去重（防重放）；
//   - recent blockhash 过期（超过 MaxRecentBlockhashes 个 slot）即拒绝；
//   - 交易内指令按顺序执行，任一失败则整笔交易不产生任何状态变化；
//   - 运行时账户规则：只读账户不可修改、只有 owner 程序能修改数据或扣减余额、lamports 总量守恒。
type Ledger struct {
	mu         sync.Mutex
	store      AccountStore
	programs   map[types.Pubkey]Program
	slot       uint64
	blockhash  types.Hash
	blockSlots map[string]uint64 // blockhash → 产生该 blockhash 的 slot
	history    []string          // 按 slot 顺序的 blockhash，用于淘汰
	processed  map[string]struct{}
}

func New(store AccountStore) *Ledger {
	l := &Ledger{
		store:      store,
		programs:   make(map[types.Pubkey]Program),
		blockSlots: make(map[string]uint64),
		processed:  make(map[string]struct{}),
	}
	l.programs[consts.SystemProgram] = systemProgram{}
	l.blockhash = sha256.Sum256([]byte("kvstore-local-genesis"))
	l.recordBlockhash()
	return l
}

// RegisterProgram 挂载程序，programID 由调用方注入
func (l *Ledger) RegisterProgram(programID types.Pubkey, p Program) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.programs[programID] = p
}

// Slot 返回当前 slot
func (l *Ledger) Slot() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.slot
}

// AdvanceSlots 推进 n 个空 slot（模拟时间流逝，使旧 blockhash 过期）
func (l *Ledger) AdvanceSlots(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := 0; i < n; i++ {
		l.advance(nil)
	}
}

// Airdrop 向地址注入 lamports（本地账本的资金来源）
func (l *Ledger) Airdrop(ctx context.Context, address types.Pubkey, lamports uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	acc, err := l.loadAccount(ctx, address)
	if err != nil {
		return err
	}
	acc.Lamports += lamports
	if err := l.store.Commit(ctx, []*ledger.Account{acc}); err != nil {
		return err
	}
	l.advance(nil)
	return nil
}

func (l *Ledger) GetMinimumBalanceForRentExemption(_ context.Context, dataLen uint64) (uint64, error) {
	return consts.MinimumBalanceForRentExemption(dataLen), nil
}

func (l *Ledger) GetLatestBlockhash(_ context.Context) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.blockhash.String(), nil
}

func (l *Ledger) GetAccount(ctx context.Context, address types.Pubkey) (*ledger.Account, error) {
	return l.store.Get(ctx, address)
}

func (l *Ledger) GetMultipleAccounts(ctx context.Context, addresses []types.Pubkey) ([]*ledger.Account, error) {
	result := make([]*ledger.Account, len(addresses))
	for i, addr := range addresses {
		acc, err := l.store.Get(ctx, addr)
		if errors.Is(err, ledger.ErrAccountNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		result[i] = acc
	}
	return result, nil
}

// SendTransaction 在锁内串行执行交易；本地账本执行即确认
func (l *Ledger) SendTransaction(ctx context.Context, tx sdktypes.Transaction) (*ledger.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	receipt, err := l.execute(ctx, tx)
	if err != nil {
		logger.Warnf("[memledger] transaction rejected: %v", err)
		return nil, err
	}
	logger.Debugf("[memledger] transaction confirmed: sig=%s slot=%d", receipt.Signature, receipt.Slot)
	return receipt, nil
}

// loadAccount 读取账户，不存在时返回系统程序拥有的空账户
func (l *Ledger) loadAccount(ctx context.Context, address types.Pubkey) (*ledger.Account, error) {
	acc, err := l.store.Get(ctx, address)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return &ledger.Account{Address: address, Owner: consts.SystemProgram, Data: []byte{}}, nil
	}
	if err != nil {
		return nil, err
	}
	return acc, nil
}

// advance 进入下一个 slot 并生成新的 blockhash，淘汰超出窗口的旧 blockhash
func (l *Ledger) advance(seed []byte) {
	l.slot++

	buf := make([]byte, 0, 32+8+len(seed))
	buf = append(buf, l.blockhash[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, l.slot)
	buf = append(buf, seed...)
	l.blockhash = sha256.Sum256(buf)
	l.recordBlockhash()
}

func (l *Ledger) recordBlockhash() {
	s := l.blockhash.String()
	l.blockSlots[s] = l.slot
	l.history = append(l.history, s)

	for len(l.history) > consts.MaxRecentBlockhashes+1 {
		delete(l.blockSlots, l.history[0])
		l.history = l.history[1:]
	}
}

func (l *Ledger) blockhashValid(blockhash string) bool {
	slot, ok := l.blockSlots[blockhash]
	return ok && l.slot-slot <= consts.MaxRecentBlockhashes
}

func blockTimeNow() *int64 {
	ts := time.Now().Unix()
	return &ts
}

func programLog(id types.Pubkey, format string, args ...interface{}) string {
	return fmt.Sprintf("Program %s "+format, append([]interface{}{id}, args...)...)
}
