package rpctrace

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextClientTraceNoneSet(t *testing.T) {
	hooks := ContextClientTrace(context.Background())
	require.NotNil(t, hooks)
	require.NotNil(t, hooks.ConnectStart)
	assert.NotPanics(t, func() { hooks.ConnectStart("target") })
}

func TestContextClientTraceMergesPartial(t *testing.T) {
	var got string
	partial := &ClientHooks{
		ConnectStart: func(target string) { got = target },
	}
	ctx := WithClientTrace(context.Background(), partial)
	hooks := ContextClientTrace(ctx)

	hooks.ConnectStart("unix:///tmp/x")
	assert.Equal(t, "unix:///tmp/x", got)

	require.NotNil(t, hooks.InvokeDone)
	assert.NotPanics(t, func() { hooks.InvokeDone(0, 0, true, time.Millisecond) })
}

func TestContextServerTraceMergesPartial(t *testing.T) {
	var gotFd int
	partial := &ServerHooks{
		Accepted: func(fd int, err error) { gotFd = fd },
	}
	ctx := WithServerTrace(context.Background(), partial)
	hooks := ContextServerTrace(ctx)

	hooks.Accepted(7, nil)
	assert.Equal(t, 7, gotFd)

	require.NotNil(t, hooks.Dispatch)
	assert.NotPanics(t, func() { hooks.Dispatch(7, 0, 0) })
}

func TestResolveNilReturnsNoOp(t *testing.T) {
	assert.Same(t, NoOpClientHooks, ResolveClientHooks(nil))
	assert.Same(t, NoOpServerHooks, ResolveServerHooks(nil))
}
