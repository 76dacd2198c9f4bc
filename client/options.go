package client

import (
	"time"

	"github.com/ShimQ88/apteryx/rpctrace"
)

type config struct {
	timeout time.Duration
	hooks   *rpctrace.ClientHooks
}

// DefaultConfig is a value callers can inspect or start from directly
// instead of going through the functional options below. The original
// transport's receive timeout (RPC_TIMEOUT_US) has no documented default;
// one second is a conservative choice for a LAN-local RPC call and is
// trivially overridden with WithTimeout.
var DefaultConfig = config{
	timeout: time.Second,
	hooks:   rpctrace.NoOpClientHooks,
}

// Option configures a Client at connect time.
type Option func(*config)

// WithTimeout sets the receive deadline measured from the moment a request
// finishes sending. It is the Go analogue of RPC_TIMEOUT_US.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithTrace installs hooks the client reports connect and invoke events
// through.
func WithTrace(hooks *rpctrace.ClientHooks) Option {
	return func(c *config) { c.hooks = rpctrace.ResolveClientHooks(hooks) }
}
