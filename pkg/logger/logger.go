package logger

import (
	"context"

	"go.uber.org/zap"

	"webmail/pkg/trace"
)

// Log 是进程级 logger，main 初始化后供没有注入 logger 的地方使用
var Log = zap.NewNop()

// NewLogger 按环境创建 logger：local 使用 development 配置，其余使用 production
func NewLogger(env string) *zap.Logger {
	var (
		l   *zap.Logger
		err error
	)
	if env == "local" {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}
	Log = l
	return l
}

// WithTrace 从 context 中提取 trace_id 并添加到 logger
func WithTrace(ctx context.Context, logger *zap.Logger) *zap.Logger {
	if traceID := trace.FromContext(ctx); traceID != "" {
		return logger.With(zap.String("trace_id", traceID))
	}
	return logger
}
