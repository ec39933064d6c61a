package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"kvstore-sol/internal/consts"
	"kvstore-sol/internal/types"
	"kvstore-sol/pkg/logger"

	"gopkg.in/yaml.v3"
)

const (
	LedgerRpc   = "rpc"   // 通过 JSON-RPC 连接真实集群
	LedgerLocal = "local" // 进程内账本（开发/测试），可选 Redis 持久化
)

type LogConfig struct {
	Format   string `yaml:"format"`   // 日志格式，支持 "console" 或 "json"
	LogDir   string `yaml:"log_dir"`  // 日志目录（可为相对路径或绝对路径）
	Level    string `yaml:"level"`    // 日志级别：debug / info / warn / error
	Compress bool   `yaml:"compress"` // 是否压缩旧日志文件
}

func (c *LogConfig) ToLogOption() logger.LogOption {
	return logger.LogOption{
		Format:   c.Format,
		LogDir:   c.LogDir,
		Level:    c.Level,
		Compress: c.Compress,
	}
}

// KafkaProducerConfig 表示记录变更事件的 Kafka 生产者配置，Brokers 为空时不发送事件
type KafkaProducerConfig struct {
	Brokers    string `yaml:"brokers"`    // Kafka broker 地址，多个用英文逗号分隔
	BatchSize  int    `yaml:"batch_size"` // 批处理大小（单位字节）
	LingerMs   int    `yaml:"linger_ms"`  // 批处理最大延迟（毫秒）
	Topic      string `yaml:"topic"`      // 记录变更事件 topic
	Partitions int    `yaml:"partitions"` // topic 分区数
}

func (c *KafkaProducerConfig) Enabled() bool {
	return c.Brokers != ""
}

// GrpcConfig 账户变更订阅（Yellowstone gRPC）相关配置
type GrpcConfig struct {
	Endpoint string `yaml:"endpoint"` // gRPC 服务端地址
	XToken   string `yaml:"x_token"`  // x-token 认证

	StreamPingIntervalSec    int `yaml:"stream_ping_interval_sec"`    // 应用层 ping 心跳间隔（秒）
	KeepalivePingIntervalSec int `yaml:"keepalive_ping_interval_sec"` // 底层 keepalive 间隔（秒）
	KeepalivePingTimeoutSec  int `yaml:"keepalive_ping_timeout_sec"`  // 底层 keepalive 超时（秒）
	MaxCallRecvMsgSize       int `yaml:"max_call_recv_msg_size"`      // 单条消息最大接收字节数
	ReconnectIntervalSec     int `yaml:"reconnect_interval_sec"`      // 重连最小间隔（秒）
	ConnectTimeoutSec        int `yaml:"connect_timeout_sec"`         // 连接建立超时（秒）
	SendTimeoutSec           int `yaml:"send_timeout_sec"`            // 发送超时（秒）
}

// TimeConfig 表示各种超时配置
type TimeConfig struct {
	ConfirmTimeoutSec     int `yaml:"confirm_timeout_sec"`      // 等待交易确认的最长时间（秒）
	ConfirmPollIntervalMs int `yaml:"confirm_poll_interval_ms"` // 轮询签名状态的间隔（毫秒）
	EventSendTimeoutMs    int `yaml:"event_send_timeout_ms"`    // 单条事件发送到 Kafka 并等待 ack 的超时时间
}

// Config 与 Solana CLI 的 config.yml 兼容，并扩展 kvstore 自身的配置项
type Config struct {
	JsonRpcURL    string            `yaml:"json_rpc_url"`   // JSON-RPC 地址
	WebsocketURL  string            `yaml:"websocket_url"`  // 推送地址（Solana CLI 字段，watch 优先使用 grpc.endpoint）
	KeypairPath   string            `yaml:"keypair_path"`   // 签名密钥文件（64 字节 JSON 数组）
	AddressLabels map[string]string `yaml:"address_labels"` // 地址 → 标签，仅用于日志展示
	Commitment    string            `yaml:"commitment"`     // processed / confirmed / finalized

	ProgramID string `yaml:"program_id"` // kvstore 程序地址，为空时使用默认部署
	Ledger    string `yaml:"ledger"`     // rpc / local
	RedisAddr string `yaml:"redis_addr"` // local 模式下账户状态持久化用的 Redis，为空则纯内存

	LogConf           LogConfig           `yaml:"logger"`         // 日志配置
	KafkaProducerConf KafkaProducerConfig `yaml:"kafka_producer"` // Kafka 生产者配置
	Grpc              GrpcConfig          `yaml:"grpc"`           // gRPC 订阅配置
	TimeConf          TimeConfig          `yaml:"time_conf"`      // 时间相关配置
}

// DefaultPath 返回 Solana CLI 默认配置路径：$HOME/.config/solana/cli/config.yml
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".config", "solana", "cli", "config.yml"), nil
}

// Load 读取并校验配置文件，path 为空时使用 DefaultPath
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse 解析 yaml 内容，补全默认值后校验
func Parse(data []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.fillDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) fillDefaults() {
	if c.Commitment == "" {
		c.Commitment = "confirmed"
	}
	if c.ProgramID == "" {
		c.ProgramID = consts.DefaultProgramIDStr
	}
	if c.Ledger == "" {
		c.Ledger = LedgerRpc
	}
	// CLI 默认只输出告警，避免干扰命令输出
	if c.LogConf.Level == "" {
		c.LogConf.Level = "warn"
	}
	if c.KafkaProducerConf.Partitions <= 0 {
		c.KafkaProducerConf.Partitions = 1
	}
	if c.KafkaProducerConf.Topic == "" {
		c.KafkaProducerConf.Topic = "kvstore_sol_record"
	}

	t := &c.TimeConf
	if t.ConfirmTimeoutSec <= 0 {
		t.ConfirmTimeoutSec = 60
	}
	if t.ConfirmPollIntervalMs <= 0 {
		t.ConfirmPollIntervalMs = 500
	}
	if t.EventSendTimeoutMs <= 0 {
		t.EventSendTimeoutMs = 3000
	}

	g := &c.Grpc
	if g.StreamPingIntervalSec <= 0 {
		g.StreamPingIntervalSec = 10
	}
	if g.KeepalivePingIntervalSec <= 0 {
		g.KeepalivePingIntervalSec = 30
	}
	if g.KeepalivePingTimeoutSec <= 0 {
		g.KeepalivePingTimeoutSec = 10
	}
	if g.MaxCallRecvMsgSize <= 0 {
		g.MaxCallRecvMsgSize = 64 * 1024 * 1024
	}
	if g.ReconnectIntervalSec <= 0 {
		g.ReconnectIntervalSec = 2
	}
	if g.ConnectTimeoutSec <= 0 {
		g.ConnectTimeoutSec = 10
	}
	if g.SendTimeoutSec <= 0 {
		g.SendTimeoutSec = 5
	}
}

// Validate 检查必填项与枚举值
func (c *Config) Validate() error {
	switch c.Ledger {
	case LedgerRpc:
		if c.JsonRpcURL == "" {
			return errors.New("config: json_rpc_url is required for rpc ledger")
		}
	case LedgerLocal:
	default:
		return fmt.Errorf("config: unknown ledger %q", c.Ledger)
	}

	switch c.Commitment {
	case "processed", "confirmed", "finalized":
	default:
		return fmt.Errorf("config: unknown commitment %q", c.Commitment)
	}

	if c.KeypairPath == "" {
		return errors.New("config: keypair_path is required")
	}
	if _, err := types.TryPubkeyFromBase58(c.ProgramID); err != nil {
		return fmt.Errorf("config: invalid program_id: %w", err)
	}
	for addr := range c.AddressLabels {
		if _, err := types.TryPubkeyFromBase58(addr); err != nil {
			return fmt.Errorf("config: invalid address_labels key: %w", err)
		}
	}
	return nil
}

// ProgramPubkey 返回程序地址（Validate 已保证合法）
func (c *Config) ProgramPubkey() types.Pubkey {
	return types.PubkeyFromBase58(c.ProgramID)
}

// Label 返回地址的展示名：有标签时为 "label(address)"，否则为 base58 地址
func (c *Config) Label(addr types.Pubkey) string {
	s := addr.String()
	if label, ok := c.AddressLabels[s]; ok && label != "" {
		return fmt.Sprintf("%s(%s)", label, s)
	}
	return s
}
