package memledger

import (
	"context"
	"sync"

	"kvstore-sol/internal/ledger"
	"kvstore-sol/internal/types"
)

// AccountStore 保存账本的账户状态。Commit 必须原子地写入一整笔交易涉及的全部账户。
type AccountStore interface {
	Get(ctx context.Context, key types.Pubkey) (*ledger.Account, error) // 不存在时返回 ledger.ErrAccountNotFound
	Commit(ctx context.Context, accounts []*ledger.Account) error
}

// MemStore 纯内存实现
type MemStore struct {
	mu       sync.RWMutex
	accounts map[types.Pubkey]*ledger.Account
}

func NewMemStore() *MemStore {
	return &MemStore{
		accounts: make(map[types.Pubkey]*ledger.Account),
	}
}

func (s *MemStore) Get(_ context.Context, key types.Pubkey) (*ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok := s.accounts[key]
	if !ok {
		return nil, ledger.ErrAccountNotFound
	}
	return acc.Clone(), nil
}

func (s *MemStore) Commit(_ context.Context, accounts []*ledger.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, acc := range accounts {
		s.accounts[acc.Address] = acc.Clone()
	}
	return nil
}

func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.accounts)
}
