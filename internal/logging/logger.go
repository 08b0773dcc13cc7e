// Package logging provides structured logging for Pentagon, including a
// context-scoped logger carrying the request id and current stage so
// every log line the pipeline and HTTP layer emit for one execute call
// can be correlated without threading a logger through every signature.
package logging

import (
	"context"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger *zap.Logger
	sugar  *zap.SugaredLogger
	once   sync.Once
)

// Init initializes the global logger. Safe to call multiple times.
func Init() {
	once.Do(func() {
		var cfg zap.Config
		if os.Getenv("ENVIRONMENT") == "production" {
			cfg = zap.NewProductionConfig()
			cfg.EncoderConfig.TimeKey = "ts"
			cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		} else {
			cfg = zap.NewDevelopmentConfig()
			cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}

		var err error
		logger, err = cfg.Build(zap.AddCallerSkip(1))
		if err != nil {
			// Fallback to nop logger
			logger = zap.NewNop()
		}
		sugar = logger.Sugar()
	})
}

// L returns the global structured logger
func L() *zap.Logger {
	if logger == nil {
		Init()
	}
	return logger
}

// S returns the global sugared logger (printf-style)
func S() *zap.SugaredLogger {
	if sugar == nil {
		Init()
	}
	return sugar
}

// Sync flushes any buffered log entries. Call before app exit.
func Sync() {
	if logger != nil {
		_ = logger.Sync()
	}
}

type ctxKey struct{}

// WithRequestID returns a context carrying a logger tagged with
// request_id, for the lifetime of one POST /execute call. The api
// handler attaches this before invoking the pipeline engine so every
// stage log line it emits can be correlated back to the request.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, L().With(zap.String("request_id", requestID)))
}

// FromContext returns the request-scoped logger attached by
// WithRequestID, or the global logger if the context carries none.
func FromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok {
		return l
	}
	return L()
}

// ForStage returns l tagged with the stage index and program about to
// run, so a stage's spawn/result/error log lines share one field set.
func ForStage(l *zap.Logger, index int, program string) *zap.Logger {
	return l.With(zap.Int("stage", index), zap.String("program", program))
}
