package logs

import (
	"fmt"
	"log"
	"os"
	"strings"
)

// LogLevel 日志级别
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Logger 日志接口
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// StandardLogger 标准日志实现
type StandardLogger struct {
	level       LogLevel
	enableDebug bool
	logger      *log.Logger
}

// NewLogger 创建日志器
func NewLogger(level LogLevel, enableDebug bool) Logger {
	return &StandardLogger{
		level:       level,
		enableDebug: enableDebug,
		logger:      log.New(os.Stdout, "[ApplePay] ", log.LstdFlags|log.Lshortfile),
	}
}

// Debug 调试日志
func (l *StandardLogger) Debug(msg string, args ...interface{}) {
	if !l.enableDebug || l.level != LogLevelDebug {
		return
	}
	l.logger.Printf("[DEBUG] %s", withFields(msg, args))
}

// Info 信息日志
func (l *StandardLogger) Info(msg string, args ...interface{}) {
	if l.shouldLog(LogLevelInfo) {
		l.logger.Printf("[INFO] %s", withFields(msg, args))
	}
}

// Warn 警告日志
func (l *StandardLogger) Warn(msg string, args ...interface{}) {
	if l.shouldLog(LogLevelWarn) {
		l.logger.Printf("[WARN] %s", withFields(msg, args))
	}
}

// Error 错误日志
func (l *StandardLogger) Error(msg string, args ...interface{}) {
	if l.shouldLog(LogLevelError) {
		l.logger.Printf("[ERROR] %s", withFields(msg, args))
	}
}

// withFields 把键值对参数以key=value形式追加到消息尾部，
// 落单的参数原样追加
func withFields(msg string, args []interface{}) string {
	if len(args) == 0 {
		return msg
	}

	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i+1 < len(args); i += 2 {
		fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
	}
	if len(args)%2 != 0 {
		fmt.Fprintf(&b, " %v", args[len(args)-1])
	}

	return b.String()
}

// shouldLog 判断是否应该记录日志
func (l *StandardLogger) shouldLog(level LogLevel) bool {
	levelOrder := map[LogLevel]int{
		LogLevelDebug: 0,
		LogLevelInfo:  1,
		LogLevelWarn:  2,
		LogLevelError: 3,
	}

	currentLevel, exists := levelOrder[l.level]
	if !exists {
		return true
	}

	targetLevel, exists := levelOrder[level]
	if !exists {
		return true
	}

	return targetLevel >= currentLevel
}

// NopLogger 空日志实现，用于无需输出的场景
type NopLogger struct{}

// NewNopLogger 创建空日志器
func NewNopLogger() Logger {
	return &NopLogger{}
}

// Debug 调试日志（不执行任何操作）
func (l *NopLogger) Debug(msg string, args ...interface{}) {}

// Info 信息日志（不执行任何操作）
func (l *NopLogger) Info(msg string, args ...interface{}) {}

// Warn 警告日志（不执行任何操作）
func (l *NopLogger) Warn(msg string, args ...interface{}) {}

// Error 错误日志（不执行任何操作）
func (l *NopLogger) Error(msg string, args ...interface{}) {}
