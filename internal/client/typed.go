package client

import (
	"context"
	"fmt"

	"kvstore-sol/internal/ledger"
	"kvstore-sol/internal/types"
)

// TypedClient 在原始字节客户端之上按 Codec 编解码结构化记录
type TypedClient struct {
	raw   *Client
	codec Codec
}

func NewTyped(raw *Client, codec Codec) *TypedClient {
	return &TypedClient{raw: raw, codec: codec}
}

func NewBorsh(raw *Client) *TypedClient {
	return NewTyped(raw, BorshCodec{})
}

func NewJSON(raw *Client) *TypedClient {
	return NewTyped(raw, JSONCodec{})
}

func (t *TypedClient) Raw() *Client {
	return t.raw
}

func (t *TypedClient) Create(ctx context.Context, v any) (*CreateResult, error) {
	data, err := t.codec.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return t.raw.Create(ctx, data)
}

func (t *TypedClient) Update(ctx context.Context, address types.Pubkey, v any) (*ledger.Receipt, error) {
	data, err := t.codec.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return t.raw.Update(ctx, address, data)
}

func (t *TypedClient) Delete(ctx context.Context, address types.Pubkey) (*ledger.Receipt, error) {
	return t.raw.Delete(ctx, address)
}

// Get 读取并解码到 out，存储内容无法解码时返回 ErrDecode
func (t *TypedClient) Get(ctx context.Context, address types.Pubkey, out any) error {
	data, err := t.raw.Get(ctx, address)
	if err != nil {
		return err
	}
	if err := t.codec.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDecode, address, err)
	}
	return nil
}
