package memledger

import (
	"context"
	"errors"
	"fmt"

	"kvstore-sol/internal/ledger"
	"kvstore-sol/internal/types"

	"github.com/near/borsh-go"
	"github.com/redis/go-redis/v9"
)

// Redis key 前缀
const accountPrefix = "ledger:account"

// RedisStore 将账户状态持久化到 Redis，使本地账本可以跨进程复用
type RedisStore struct {
	rdb *redis.Client
}

// accountRecord 为账户在 Redis 中的 borsh 编码布局
type accountRecord struct {
	Owner      [32]byte
	Lamports   uint64
	Executable bool
	Data       []byte
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (r *RedisStore) getKey(key types.Pubkey) string {
	return fmt.Sprintf("%s:%s", accountPrefix, key)
}

func (r *RedisStore) Get(ctx context.Context, key types.Pubkey) (*ledger.Account, error) {
	val, err := r.rdb.Get(ctx, r.getKey(key)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, ledger.ErrAccountNotFound
	case err != nil:
		return nil, fmt.Errorf("redis get error: %w", err)
	}

	rec, err := decodeAccountRecord(val)
	if err != nil {
		return nil, fmt.Errorf("decode account %s: %w", key, err)
	}
	return &ledger.Account{
		Address:    key,
		Owner:      rec.Owner,
		Lamports:   rec.Lamports,
		Executable: rec.Executable,
		Data:       rec.Data,
	}, nil
}

// Commit 使用 MULTI/EXEC 事务写入，保证一笔交易的账户要么全部落盘要么全部不写
func (r *RedisStore) Commit(ctx context.Context, accounts []*ledger.Account) error {
	values := make(map[string][]byte, len(accounts))
	for _, acc := range accounts {
		data := acc.Data
		if data == nil {
			data = []byte{}
		}
		val, err := borsh.Serialize(accountRecord{
			Owner:      acc.Owner,
			Lamports:   acc.Lamports,
			Executable: acc.Executable,
			Data:       data,
		})
		if err != nil {
			return fmt.Errorf("encode account %s: %w", acc.Address, err)
		}
		values[r.getKey(acc.Address)] = val
	}

	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for key, val := range values {
			pipe.Set(ctx, key, val, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis commit error: %w", err)
	}
	return nil
}

func decodeAccountRecord(val []byte) (rec accountRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("borsh panic: %v", r)
		}
	}()
	err = borsh.Deserialize(&rec, val)
	return rec, err
}
