package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogOption 日志初始化参数
type LogOption struct {
	Format   string // "console" 或 "json"
	LogDir   string // 日志目录，为空时仅输出到 stderr
	Level    string // debug / info / warn / error
	Compress bool   // 是否压缩旧日志文件
}

const logFileName = "kvstore.log"

var (
	mu    sync.RWMutex
	sugar = newDefault()
)

// 未初始化时只向 stderr 输出 warn 以上，避免污染 CLI 的 stdout
func newDefault() *zap.SugaredLogger {
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(newEncoderConfig()),
		zapcore.Lock(os.Stderr),
		zapcore.WarnLevel,
	)
	return zap.New(core).Sugar()
}

func newEncoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000")
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return cfg
}

func parseLevel(level string) (zapcore.Level, error) {
	if level == "" {
		return zapcore.InfoLevel, nil
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return l, nil
}

// Init 按配置初始化全局 logger，可重复调用（后一次覆盖前一次）
func Init(opt LogOption) error {
	level, err := parseLevel(opt.Level)
	if err != nil {
		return err
	}

	var encoder zapcore.Encoder
	switch opt.Format {
	case "", "console":
		encoder = zapcore.NewConsoleEncoder(newEncoderConfig())
	case "json":
		encoder = zapcore.NewJSONEncoder(newEncoderConfig())
	default:
		return fmt.Errorf("invalid log format %q", opt.Format)
	}

	// stderr 始终保留，文件输出可选
	syncers := []zapcore.WriteSyncer{zapcore.Lock(os.Stderr)}
	if opt.LogDir != "" {
		if err := os.MkdirAll(opt.LogDir, 0o755); err != nil {
			return fmt.Errorf("create log dir %s: %w", opt.LogDir, err)
		}
		syncers = append(syncers, zapcore.AddSync(&lumberjack.Logger{
			Filename:   filepath.Join(opt.LogDir, logFileName),
			MaxSize:    100, // MB
			MaxBackups: 10,
			MaxAge:     7, // 天
			Compress:   opt.Compress,
			LocalTime:  true,
		}))
	}

	core := zapcore.NewCore(encoder, zapcore.NewMultiWriteSyncer(syncers...), level)
	l := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))

	mu.Lock()
	sugar = l.Sugar()
	mu.Unlock()
	return nil
}

func get() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

func Debugf(template string, args ...interface{}) { get().Debugf(template, args...) }
func Infof(template string, args ...interface{})  { get().Infof(template, args...) }
func Warnf(template string, args ...interface{})  { get().Warnf(template, args...) }
func Errorf(template string, args ...interface{}) { get().Errorf(template, args...) }

// Sync 刷新缓冲区，进程退出前调用
func Sync() {
	_ = get().Sync()
}
