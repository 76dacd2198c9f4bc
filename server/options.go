package server

import "github.com/ShimQ88/apteryx/rpctrace"

type config struct {
	numWorkers int
	stopFd     int
	stopChan   <-chan struct{}
	hooks      *rpctrace.ServerHooks
	readBufLen int
}

// DefaultConfig is a value callers can inspect or start from directly
// instead of going through the functional options below.
var DefaultConfig = config{
	numWorkers: 4,
	stopFd:     -1,
	hooks:      rpctrace.NoOpServerHooks,
	readBufLen: 4096,
}

// Option configures a Server at construction time.
type Option func(*config)

// WithWorkers sets the size of the worker pool. Zero selects inline mode:
// the event loop invokes ready callbacks itself rather than handing them to
// workers.
func WithWorkers(n int) Option {
	return func(c *config) { c.numWorkers = n }
}

// WithStopFd registers an externally owned, readiness-pollable file
// descriptor as an additional stop trigger: readability on it stops the
// server exactly as calling Stop does.
func WithStopFd(fd int) Option {
	return func(c *config) { c.stopFd = fd }
}

// WithStopChannel registers a channel as a stop trigger: its closing, or a
// value sent on it, stops the server exactly as calling Stop does. It is
// the Go-idiomatic alternative to WithStopFd for callers that already have
// a shutdown channel rather than a raw descriptor.
func WithStopChannel(stop <-chan struct{}) Option {
	return func(c *config) { c.stopChan = stop }
}

// WithTrace installs hooks the server reports lifecycle and per-request
// events through.
func WithTrace(hooks *rpctrace.ServerHooks) Option {
	return func(c *config) { c.hooks = rpctrace.ResolveServerHooks(hooks) }
}

// WithReadBufferSize overrides the per-read chunk size used to drain a
// readable connection.
func WithReadBufferSize(n int) Option {
	return func(c *config) { c.readBufLen = n }
}
