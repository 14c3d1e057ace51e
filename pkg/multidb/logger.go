package multidb

import (
	"context"

	sqldblogger "github.com/simukti/sqldb-logger"
	"github.com/yusufsyaifudin/ylog"
)

// QueryLogger forwards every statement to ylog at debug level.
type QueryLogger struct{}

func (q *QueryLogger) Log(ctx context.Context, level sqldblogger.Level, msg string, data map[string]interface{}) {
	ylog.Debug(ctx, msg, ylog.KV("level", level.String()), ylog.KV("sql", data))
}

var _ sqldblogger.Logger = (*QueryLogger)(nil)
