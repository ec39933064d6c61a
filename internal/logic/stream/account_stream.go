package stream

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"kvstore-sol/internal/config"
	"kvstore-sol/internal/types"
	"kvstore-sol/pkg/logger"

	"github.com/mr-tron/base58"
	pb "github.com/rpcpool/yellowstone-grpc/examples/golang/proto"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
)

// RecordUpdate 一次记录账户状态变化
type RecordUpdate struct {
	Address   types.Pubkey `json:"address"`
	Owner     types.Pubkey `json:"owner"`
	Lamports  uint64       `json:"lamports"`
	Data      []byte       `json:"data"`
	Slot      uint64       `json:"slot"`
	Signature string       `json:"signature,omitempty"`
	IsStartup bool         `json:"is_startup,omitempty"`
}

// AccountStreamManager 通过 Yellowstone gRPC 订阅 kvstore 记录账户的变化，断线自动重连。
// 实现 go-zero service.Service。
type AccountStreamManager struct {
	mu                sync.Mutex
	conn              *grpc.ClientConn
	client            pb.GeyserClient
	stream            pb.Geyser_SubscribeClient
	stopped           bool
	reconnectAttempts int
	connCtx           context.Context
	connCancel        context.CancelFunc

	reconnectInterval time.Duration
	pingInterval      time.Duration
	sendTimeout       time.Duration
	xToken            string

	request *pb.SubscribeRequest
	updates chan<- *RecordUpdate
}

// NewAccountStreamManager accounts 为空时订阅 programID 拥有的全部账户
func NewAccountStreamManager(
	cfg config.GrpcConfig,
	commitment string,
	programID types.Pubkey,
	accounts []types.Pubkey,
	updates chan<- *RecordUpdate,
) (*AccountStreamManager, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("grpc endpoint is not configured")
	}

	dialCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ConnectTimeoutSec)*time.Second)
	defer cancel()

	target, creds := transportCredentials(cfg.Endpoint)
	conn, err := grpc.DialContext(
		dialCtx,
		target,
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(cfg.MaxCallRecvMsgSize)),
		grpc.WithBlock(),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                time.Duration(cfg.KeepalivePingIntervalSec) * time.Second,
			Timeout:             time.Duration(cfg.KeepalivePingTimeoutSec) * time.Second,
			PermitWithoutStream: true,
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect %s: %w", cfg.Endpoint, err)
	}

	return &AccountStreamManager{
		conn:              conn,
		client:            pb.NewGeyserClient(conn),
		reconnectInterval: time.Duration(cfg.ReconnectIntervalSec) * time.Second,
		pingInterval:      time.Duration(cfg.StreamPingIntervalSec) * time.Second,
		sendTimeout:       time.Duration(cfg.SendTimeoutSec) * time.Second,
		xToken:            cfg.XToken,
		request:           buildSubscribeRequest(programID, accounts, commitment),
		updates:           updates,
	}, nil
}

// transportCredentials http:// 前缀使用明文连接，其余走 TLS
func transportCredentials(endpoint string) (string, credentials.TransportCredentials) {
	if target, ok := strings.CutPrefix(endpoint, "http://"); ok {
		return target, insecure.NewCredentials()
	}
	target := strings.TrimPrefix(endpoint, "https://")
	return target, credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
}

func (m *AccountStreamManager) Start() {
	m.mustConnect()
}

func (m *AccountStreamManager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopped = true
	if m.connCancel != nil {
		m.connCancel()
		m.connCancel = nil
	}
	if m.conn != nil {
		_ = m.conn.Close()
	}
}

// mustConnect 循环直到连接成功或已停止
func (m *AccountStreamManager) mustConnect() {
	for {
		m.mu.Lock()
		if m.stopped {
			m.mu.Unlock()
			return
		}
		attempts := m.reconnectAttempts
		m.mu.Unlock()

		if attempts > 0 {
			if attempts > 3 {
				time.Sleep(m.reconnectInterval * 2)
			} else {
				time.Sleep(m.reconnectInterval)
			}
		}
		logger.Infof("[AccountStream] connecting, attempt %d", attempts+1)

		err := m.connect()
		if err == nil {
			return
		}
		logger.Warnf("[AccountStream] connect failed: %v, will retry", err)
	}
}

// connect 只尝试一次
func (m *AccountStreamManager) connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return errors.New("manager is stopped")
	}
	m.reconnectAttempts++

	if m.connCancel != nil {
		m.connCancel()
		m.connCancel = nil
	}
	m.connCtx, m.connCancel = context.WithCancel(context.Background())

	metaCtx := metadata.NewOutgoingContext(m.connCtx, metadata.New(map[string]string{"x-token": m.xToken}))
	stream, err := m.client.Subscribe(metaCtx)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	if err := sendWithTimeout(m.connCtx, stream.Send, m.request, m.sendTimeout); err != nil {
		return fmt.Errorf("send subscribe request: %w", err)
	}

	m.stream = stream
	m.reconnectAttempts = 0
	logger.Infof("[AccountStream] connection established")

	go m.pingLoop(m.connCtx, stream)
	go m.recvLoop(m.connCtx, stream)
	return nil
}

func (m *AccountStreamManager) recvLoop(ctx context.Context, stream pb.Geyser_SubscribeClient) {
	for {
		update, err := stream.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, io.EOF) {
				logger.Warnf("[AccountStream] stream closed by server, will reconnect")
			} else {
				logger.Warnf("[AccountStream] stream error: %v, will reconnect", err)
			}
			m.reconnect()
			return
		}

		u, ok := update.GetUpdateOneof().(*pb.SubscribeUpdate_Account)
		if !ok {
			continue
		}
		record, err := toRecordUpdate(u.Account)
		if err != nil {
			logger.Warnf("[AccountStream] skip malformed account update: %v", err)
			continue
		}

		select {
		case m.updates <- record:
		case <-ctx.Done():
			return
		}
	}
}

func (m *AccountStreamManager) pingLoop(ctx context.Context, stream pb.Geyser_SubscribeClient) {
	ticker := time.NewTicker(m.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ping := &pb.SubscribeRequest{Ping: &pb.SubscribeRequestPing{Id: 1}}
			if err := sendWithTimeout(ctx, stream.Send, ping, m.sendTimeout); err != nil {
				// 只记录，由 recvLoop 的错误触发重连
				logger.Warnf("[AccountStream] ping failed: %v", err)
			}
		}
	}
}

func (m *AccountStreamManager) reconnect() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	if m.connCancel != nil {
		m.connCancel()
		m.connCancel = nil
	}
	m.mu.Unlock()

	go m.mustConnect()
}

func buildSubscribeRequest(programID types.Pubkey, accounts []types.Pubkey, commitment string) *pb.SubscribeRequest {
	filter := &pb.SubscribeRequestFilterAccounts{}
	if len(accounts) > 0 {
		for _, acc := range accounts {
			filter.Account = append(filter.Account, acc.String())
		}
	} else {
		filter.Owner = []string{programID.String()}
	}

	level := commitmentLevel(commitment)
	return &pb.SubscribeRequest{
		Accounts:   map[string]*pb.SubscribeRequestFilterAccounts{"kvstore": filter},
		Commitment: &level,
	}
}

func commitmentLevel(commitment string) pb.CommitmentLevel {
	switch commitment {
	case "processed":
		return pb.CommitmentLevel_PROCESSED
	case "finalized":
		return pb.CommitmentLevel_FINALIZED
	default:
		return pb.CommitmentLevel_CONFIRMED
	}
}

func toRecordUpdate(u *pb.SubscribeUpdateAccount) (*RecordUpdate, error) {
	info := u.GetAccount()
	if info == nil {
		return nil, errors.New("missing account info")
	}
	address, err := types.PubkeyFromBytes(info.GetPubkey())
	if err != nil {
		return nil, fmt.Errorf("pubkey: %w", err)
	}
	owner, err := types.PubkeyFromBytes(info.GetOwner())
	if err != nil {
		return nil, fmt.Errorf("owner: %w", err)
	}

	record := &RecordUpdate{
		Address:   address,
		Owner:     owner,
		Lamports:  info.GetLamports(),
		Data:      info.GetData(),
		Slot:      u.GetSlot(),
		IsStartup: u.GetIsStartup(),
	}
	if sig := info.GetTxnSignature(); len(sig) > 0 {
		record.Signature = base58.Encode(sig)
	}
	return record, nil
}

// sendWithTimeout 带超时的 Send
func sendWithTimeout[T any](ctx context.Context, send func(T) error, req T, timeout time.Duration) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- send(req)
	}()

	select {
	case <-timeoutCtx.Done():
		return timeoutCtx.Err()
	case err := <-done:
		return err
	}
}
