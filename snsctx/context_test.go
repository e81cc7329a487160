package snsctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerbose(t *testing.T) {
	ctx := context.Background()
	assert.False(t, IsVerbose(ctx))
	assert.True(t, IsVerbose(SetVerbose(ctx, true)))
	assert.False(t, IsVerbose(SetVerbose(SetVerbose(ctx, true), false)))
}

func TestDevice(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, "", Device(ctx))
	ctx = WithDevice(ctx, "ecg")
	assert.Equal(t, "ecg", Device(ctx))
	// verbose flag survives device tagging
	ctx = WithDevice(SetVerbose(context.Background(), true), "imu")
	assert.True(t, IsVerbose(ctx))
	Dump(ctx, "tx", []byte{0x80, 0x00})
}
