package svc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kvstore-sol/internal/client"
	"kvstore-sol/internal/config"
	"kvstore-sol/internal/ledger"
	"kvstore-sol/internal/ledger/memledger"
	"kvstore-sol/internal/ledger/rpcledger"
	"kvstore-sol/internal/notify"
	"kvstore-sol/internal/program"
	"kvstore-sol/internal/types"
	"kvstore-sol/pkg/logger"

	sdktypes "github.com/blocto/solana-go-sdk/types"
	"github.com/redis/go-redis/v9"
)

const (
	// local 模式下付费账户余额低于阈值时自动补充
	localAirdropThreshold uint64 = 1_000_000_000
	localAirdropLamports  uint64 = 10_000_000_000
)

// ServiceContext 包含命令运行所需的全部资源
type ServiceContext struct {
	Config    *config.Config
	Payer     sdktypes.Account
	Ledger    ledger.Ledger
	Client    *client.Client
	Publisher notify.Publisher

	closers []func()
}

// NewServiceContext 按配置装配：密钥 → 账本 → 事件发布 → 客户端
func NewServiceContext(ctx context.Context, c *config.Config) (*ServiceContext, error) {
	if err := logger.Init(c.LogConf.ToLogOption()); err != nil {
		return nil, err
	}

	// 1. 签名账户
	payer, err := config.ReadKeypair(c.KeypairPath)
	if err != nil {
		return nil, err
	}

	sc := &ServiceContext{Config: c, Payer: payer}

	// 2. 账本
	switch c.Ledger {
	case config.LedgerLocal:
		l, err := sc.newLocalLedger(ctx)
		if err != nil {
			sc.Close()
			return nil, err
		}
		sc.Ledger = l
	default:
		sc.Ledger = rpcledger.New(c)
	}

	// 3. 记录变更事件
	sc.Publisher = notify.NopPublisher{}
	if c.KafkaProducerConf.Enabled() {
		timeout := time.Duration(c.TimeConf.EventSendTimeoutMs) * time.Millisecond
		pub, err := notify.NewKafkaPublisher(c.KafkaProducerConf, timeout)
		if err != nil {
			logger.Errorf("Kafka producer 初始化失败: %v", err)
			sc.Close()
			return nil, err
		}
		sc.Publisher = pub
		sc.closers = append(sc.closers, pub.Close)
	}

	// 4. 客户端
	sc.Client = client.New(sc.Ledger, c.ProgramPubkey(), payer,
		client.WithPublisher(sc.Publisher),
		client.WithLabeler(c.Label),
	)

	logger.Debugf("service context ready: ledger=%s program=%s payer=%s",
		c.Ledger, c.Label(c.ProgramPubkey()), c.Label(types.PubkeyFromCommon(payer.PublicKey)))
	return sc, nil
}

// newLocalLedger 进程内账本：配置了 redis_addr 时账户状态持久化到 Redis，否则纯内存
func (sc *ServiceContext) newLocalLedger(ctx context.Context) (*memledger.Ledger, error) {
	c := sc.Config

	var store memledger.AccountStore = memledger.NewMemStore()
	if c.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: c.RedisAddr})
		sc.closers = append(sc.closers, func() { _ = rdb.Close() })
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping %s: %w", c.RedisAddr, err)
		}
		store = memledger.NewRedisStore(rdb)
	} else {
		logger.Warnf("local ledger without redis_addr: state is lost when the process exits")
	}

	programID := c.ProgramPubkey()
	l := memledger.New(store)
	l.RegisterProgram(programID, program.NewProcessor(programID))

	payer := types.PubkeyFromCommon(sc.Payer.PublicKey)
	var balance uint64
	acc, err := l.GetAccount(ctx, payer)
	switch {
	case err == nil:
		balance = acc.Lamports
	case !errors.Is(err, ledger.ErrAccountNotFound):
		return nil, err
	}
	if balance < localAirdropThreshold {
		if err := l.Airdrop(ctx, payer, localAirdropLamports); err != nil {
			return nil, fmt.Errorf("airdrop to %s: %w", c.Label(payer), err)
		}
		logger.Infof("airdropped %d lamports to %s", localAirdropLamports, c.Label(payer))
	}
	return l, nil
}

// Close 逆序释放资源
func (sc *ServiceContext) Close() {
	for i := len(sc.closers) - 1; i >= 0; i-- {
		sc.closers[i]()
	}
	sc.closers = nil
	logger.Sync()
}
