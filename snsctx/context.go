package snsctx

import (
	"context"
	"encoding/hex"
	"log/slog"
)

type ctxIndex int

const (
	ctxIndexVerbose ctxIndex = iota
	ctxIndexDevice
)

func IsVerbose(ctx context.Context) bool {
	val := ctx.Value(ctxIndexVerbose)
	if val == nil {
		return false
	}
	return val.(bool)
}

func SetVerbose(ctx context.Context, value bool) context.Context {
	return context.WithValue(ctx, ctxIndexVerbose, value)
}

// WithDevice tags the context with the name of the device being addressed so
// that transport level traces can say who they talk to.
func WithDevice(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, ctxIndexDevice, name)
}

func Device(ctx context.Context) string {
	val := ctx.Value(ctxIndexDevice)
	if val == nil {
		return ""
	}
	return val.(string)
}

// Dump logs a hex dump of a bus buffer when the context is verbose.
func Dump(ctx context.Context, direction string, buf []byte) {
	if !IsVerbose(ctx) {
		return
	}
	slog.Debug("bus exchange", "device", Device(ctx), "dir", direction, "len", len(buf), "data", hex.EncodeToString(buf))
}
