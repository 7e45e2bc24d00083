package logger

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel 定义日志级别类型
type LogLevel int

// 日志级别常量定义
const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

// LogLevelNames 日志级别名称映射
var LogLevelNames = map[LogLevel]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
}

// Options 日志输出选项
type Options struct {
	Format string // 日志格式 (json, text)
	File   string // 日志文件路径，为空时仅输出到标准错误
}

var (
	globalMu      sync.RWMutex
	globalLevel   *LogLevel
	globalOptions = Options{Format: "text"}
)

// SetGlobalLevel 设置全局日志级别覆盖，之后新建的 Logger 统一使用该级别
func SetGlobalLevel(level LogLevel) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLevel = &level
}

// SetGlobalOptions 设置之后新建 Logger 的输出格式与文件
func SetGlobalOptions(opts Options) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalOptions = opts
}

// Logger 日志记录器结构体
// 对外保持 printf 风格接口，底层使用 zap 输出结构化日志
type Logger struct {
	level  zap.AtomicLevel
	sugar  *zap.SugaredLogger
	closer func() error
}

// NewLogger 创建新的日志记录器实例
func NewLogger(level LogLevel) *Logger {
	globalMu.RLock()
	if globalLevel != nil {
		level = *globalLevel
	}
	opts := globalOptions
	globalMu.RUnlock()
	return NewLoggerWithOptions(level, opts)
}

// NewLoggerWithOptions 按指定格式与文件输出创建日志记录器
func NewLoggerWithOptions(level LogLevel, opts Options) *Logger {
	atomic := zap.NewAtomicLevelAt(toZapLevel(level))

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	if strings.EqualFold(opts.Format, "json") {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), atomic),
	}

	var closer func() error
	if opts.File != "" {
		// 文件输出按大小轮转，始终使用 JSON 便于采集
		rotating := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    50,
			MaxBackups: 3,
			MaxAge:     14,
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(rotating), atomic))
		closer = rotating.Close
	}

	base := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1))
	return &Logger{
		level:  atomic,
		sugar:  base.Sugar(),
		closer: closer,
	}
}

// ParseLogLevel 从字符串解析日志级别
func ParseLogLevel(levelStr string) LogLevel {
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO // 默认级别
	}
}

func toZapLevel(level LogLevel) zapcore.Level {
	switch level {
	case DEBUG:
		return zapcore.DebugLevel
	case WARN:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func fromZapLevel(level zapcore.Level) LogLevel {
	switch level {
	case zapcore.DebugLevel:
		return DEBUG
	case zapcore.WarnLevel:
		return WARN
	case zapcore.InfoLevel:
		return INFO
	default:
		return ERROR
	}
}

// Debug 记录DEBUG级别日志
func (l *Logger) Debug(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

// Info 记录INFO级别日志
func (l *Logger) Info(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

// Warn 记录WARN级别日志
func (l *Logger) Warn(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

// Error 记录ERROR级别日志
func (l *Logger) Error(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

// With 返回附带固定字段的子记录器，与父记录器共享级别
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{
		level: l.level,
		sugar: l.sugar.With(keysAndValues...),
	}
}

// SetLevel 设置日志级别
func (l *Logger) SetLevel(level LogLevel) {
	l.level.SetLevel(toZapLevel(level))
}

// GetLevel 获取当前日志级别
func (l *Logger) GetLevel() LogLevel {
	return fromZapLevel(l.level.Level())
}

// Sync 刷新缓冲并关闭日志文件
func (l *Logger) Sync() error {
	_ = l.sugar.Sync()
	if l.closer != nil {
		if err := l.closer(); err != nil {
			return fmt.Errorf("close log file: %w", err)
		}
	}
	return nil
}
