// Package log provides the module-scoped leveled logger used throughout
// numi-core. The call convention (NewModuleLogger + variadic key/value
// context) mirrors the logging style used across the klaytn codebase this
// module grew out of; the backend is go.uber.org/zap's sugared logger.
package log

import (
	"fmt"
	"os"
	"sync"

	"github.com/go-stack/stack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Module identifiers, grouped here the same way klaytn's log package
// enumerates its module constants.
const (
	Common = "common"
	Crypto = "crypto"
	Store  = "store"
	Mempool = "mempool"
	Miner  = "miner"
	Consensus = "consensus"
	Engine = "engine"
	Keystore = "keystore"
	API    = "api"
	Node   = "node"
	DataSync = "datasync"
)

// Logger is the interface every numi-core subsystem logs through.
type Logger interface {
	Trace(msg string, ctx ...interface{})
	Debug(msg string, ctx ...interface{})
	Info(msg string, ctx ...interface{})
	Warn(msg string, ctx ...interface{})
	Error(msg string, ctx ...interface{})
	// Crit logs at fatal severity and terminates the process. Reserved for
	// detected storage corruption and other states the writer cannot safely
	// continue past (spec.md §7 "Recovery").
	Crit(msg string, ctx ...interface{})
	With(ctx ...interface{}) Logger
}

var (
	baseOnce sync.Once
	base     *zap.Logger
)

func rootLogger() *zap.Logger {
	baseOnce.Do(func() {
		cfg := zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		l, err := cfg.Build(zap.AddCallerSkip(2))
		if err != nil {
			// zap construction failure should never happen with the
			// production config; fall back to an unbuffered stderr logger
			// rather than panic before logging exists.
			l = zap.NewExample()
		}
		base = l
	})
	return base
}

type moduleLogger struct {
	module string
	z      *zap.Logger
}

// NewModuleLogger returns a Logger scoped to module, the same pattern as
// klaytn's log.NewModuleLogger(log.Common) call sites.
func NewModuleLogger(module string) Logger {
	return &moduleLogger{module: module, z: rootLogger().With(zap.String("module", module))}
}

func fields(ctx []interface{}) []zap.Field {
	fs := make([]zap.Field, 0, len(ctx)/2)
	for i := 0; i+1 < len(ctx); i += 2 {
		key, ok := ctx[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", ctx[i])
		}
		fs = append(fs, zap.Any(key, ctx[i+1]))
	}
	return fs
}

func (l *moduleLogger) Trace(msg string, ctx ...interface{}) { l.z.Debug(msg, fields(ctx)...) }
func (l *moduleLogger) Debug(msg string, ctx ...interface{}) { l.z.Debug(msg, fields(ctx)...) }
func (l *moduleLogger) Info(msg string, ctx ...interface{})  { l.z.Info(msg, fields(ctx)...) }
func (l *moduleLogger) Warn(msg string, ctx ...interface{})  { l.z.Warn(msg, fields(ctx)...) }
func (l *moduleLogger) Error(msg string, ctx ...interface{}) { l.z.Error(msg, fields(ctx)...) }

func (l *moduleLogger) Crit(msg string, ctx ...interface{}) {
	c := stack.Caller(1)
	fs := append(fields(ctx), zap.String("at", fmt.Sprintf("%+v", c)))
	l.z.Error(msg, fs...)
	l.z.Sync()
	os.Exit(1)
}

func (l *moduleLogger) With(ctx ...interface{}) Logger {
	return &moduleLogger{module: l.module, z: l.z.With(fields(ctx)...)}
}
