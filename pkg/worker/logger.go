package worker

import (
	"context"

	"github.com/yusufsyaifudin/ylog"
)

type Logger interface {
	Debug(ctx context.Context, msg string)
}

type NoopLogger struct{}

func (NoopLogger) Debug(context.Context, string) {}

// YLog forwards to the global ylog logger.
type YLog struct{}

func (YLog) Debug(ctx context.Context, msg string) {
	ylog.Debug(ctx, msg)
}
