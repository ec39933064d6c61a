package client

import (
	"context"
	"errors"
	"fmt"

	"kvstore-sol/internal/ledger"
	"kvstore-sol/internal/notify"
	"kvstore-sol/internal/types"
	"kvstore-sol/pkg/logger"

	"github.com/blocto/solana-go-sdk/program/system"
	sdktypes "github.com/blocto/solana-go-sdk/types"
)

// Client 组装、签名并提交 kvstore 交易，同时提供直接读取记录的查询路径。
// 除签名账户外不持有可变状态，可以并发使用；同一地址上的并发写由账本排序决定结果。
type Client struct {
	ledger    ledger.Ledger
	programID types.Pubkey
	payer     sdktypes.Account
	publisher notify.Publisher
	label     func(types.Pubkey) string
}

type Option func(*Client)

// WithPublisher 交易确认后发布记录变更事件
func WithPublisher(p notify.Publisher) Option {
	return func(c *Client) {
		c.publisher = p
	}
}

// WithLabeler 日志中使用地址标签
func WithLabeler(label func(types.Pubkey) string) Option {
	return func(c *Client) {
		c.label = label
	}
}

// CreateResult 新记录的地址与确认回执
type CreateResult struct {
	Address types.Pubkey    `json:"address"`
	Receipt *ledger.Receipt `json:"receipt"`
}

func New(l ledger.Ledger, programID types.Pubkey, payer sdktypes.Account, opts ...Option) *Client {
	c := &Client{
		ledger:    l,
		programID: programID,
		payer:     payer,
		publisher: notify.NopPublisher{},
		label:     types.Pubkey.String,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) ProgramID() types.Pubkey {
	return c.programID
}

func (c *Client) Payer() types.Pubkey {
	return types.PubkeyFromCommon(c.payer.PublicKey)
}

// Create 生成新地址，在同一笔交易中完成两个阶段：
//  1. 系统程序分配 len(payload) 字节并注入免租余额，owner 设为本程序；
//  2. kvstore Create 写入数据。
//
// 交易由付费账户与新账户共同签名。
func (c *Client) Create(ctx context.Context, payload []byte) (*CreateResult, error) {
	record := sdktypes.NewAccount()
	address := types.PubkeyFromCommon(record.PublicKey)
	space := uint64(len(payload))

	rent, err := c.ledger.GetMinimumBalanceForRentExemption(ctx, space)
	if err != nil {
		return nil, err
	}

	createIx, err := CreateInstruction(c.programID, address, payload)
	if err != nil {
		return nil, err
	}
	allocIx := system.CreateAccount(system.CreateAccountParam{
		From:     c.payer.PublicKey,
		New:      record.PublicKey,
		Owner:    c.programID.ToCommon(),
		Lamports: rent,
		Space:    space,
	})

	receipt, err := c.submit(ctx, []sdktypes.Account{c.payer, record}, allocIx, createIx)
	if err != nil {
		logger.Warnf("[client] create %s failed: %v", c.label(address), err)
		return nil, err
	}
	logger.Infof("[client] created %s, len=%d, rent=%d, sig=%s", c.label(address), space, rent, receipt.Signature)

	c.publish(ctx, notify.EventCreated, address, payload, receipt)
	return &CreateResult{Address: address, Receipt: receipt}, nil
}

// Update 覆盖记录数据，只由付费账户签名
func (c *Client) Update(ctx context.Context, address types.Pubkey, payload []byte) (*ledger.Receipt, error) {
	ix, err := UpdateInstruction(c.programID, address, payload)
	if err != nil {
		return nil, err
	}

	receipt, err := c.submit(ctx, []sdktypes.Account{c.payer}, ix)
	if err != nil {
		logger.Warnf("[client] update %s failed: %v", c.label(address), err)
		return nil, err
	}
	logger.Infof("[client] updated %s, len=%d, sig=%s", c.label(address), len(payload), receipt.Signature)

	c.publish(ctx, notify.EventUpdated, address, payload, receipt)
	return receipt, nil
}

// Delete 清空记录，余额退回付费账户
func (c *Client) Delete(ctx context.Context, address types.Pubkey) (*ledger.Receipt, error) {
	ix, err := DeleteInstruction(c.programID, address, c.Payer())
	if err != nil {
		return nil, err
	}

	receipt, err := c.submit(ctx, []sdktypes.Account{c.payer}, ix)
	if err != nil {
		logger.Warnf("[client] delete %s failed: %v", c.label(address), err)
		return nil, err
	}
	logger.Infof("[client] deleted %s, sig=%s", c.label(address), receipt.Signature)

	c.publish(ctx, notify.EventDeleted, address, nil, receipt)
	return receipt, nil
}

// Get 直接读取记录数据。地址不存在返回 ErrNotFound；数据为空或全零（已删除）返回 ErrAccountEmpty
func (c *Client) Get(ctx context.Context, address types.Pubkey) ([]byte, error) {
	acc, err := c.ledger.GetAccount(ctx, address)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, address)
	}
	if err != nil {
		return nil, err
	}
	return recordData(acc)
}

// GetMany 批量读取，结果与入参一一对应；单个地址的失败记录在 errs 中，不影响其他地址
func (c *Client) GetMany(ctx context.Context, addresses []types.Pubkey) (data [][]byte, errs []error, err error) {
	accounts, err := c.ledger.GetMultipleAccounts(ctx, addresses)
	if err != nil {
		return nil, nil, err
	}

	data = make([][]byte, len(addresses))
	errs = make([]error, len(addresses))
	for i, acc := range accounts {
		if acc == nil {
			errs[i] = fmt.Errorf("%w: %s", ErrNotFound, addresses[i])
			continue
		}
		data[i], errs[i] = recordData(acc)
	}
	return data, errs, nil
}

// recordData 余额为 0 或数据为空视为已删除；全零数据是合法记录
func recordData(acc *ledger.Account) ([]byte, error) {
	if acc.Lamports == 0 || len(acc.Data) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrAccountEmpty, acc.Address)
	}
	return acc.Data, nil
}

// submit 获取最新 blockhash，签名并提交，不做自动重试
func (c *Client) submit(ctx context.Context, signers []sdktypes.Account, ixs ...sdktypes.Instruction) (*ledger.Receipt, error) {
	blockhash, err := c.ledger.GetLatestBlockhash(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := sdktypes.NewTransaction(sdktypes.NewTransactionParam{
		Message: sdktypes.NewMessage(sdktypes.NewMessageParam{
			FeePayer:        c.payer.PublicKey,
			RecentBlockhash: blockhash,
			Instructions:    ixs,
		}),
		Signers: signers,
	})
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}

	return c.ledger.SendTransaction(ctx, tx)
}

// publish 失败只记录日志，不影响已确认的结果
func (c *Client) publish(ctx context.Context, typ notify.EventType, address types.Pubkey, data []byte, receipt *ledger.Receipt) {
	err := c.publisher.Publish(ctx, &notify.RecordEvent{
		Type:      typ,
		Address:   address,
		Data:      data,
		Signature: receipt.Signature,
		Slot:      receipt.Slot,
		BlockTime: receipt.BlockTime,
	})
	if err != nil {
		logger.Warnf("[client] publish %s event for %s failed: %v", typ, c.label(address), err)
	}
}
