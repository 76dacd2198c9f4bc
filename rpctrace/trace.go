// Package rpctrace provides hook-based tracing for the server and client
// halves of the transport, in the style of net/http/httptrace: a struct of
// optional callback fields, attached to a context.Context, merged against a
// no-op default so callers only need to populate the hooks they care about.
package rpctrace

import (
	"context"
	"log"
	"time"

	"github.com/imdario/mergo"
)

type clientTraceKey struct{}
type serverTraceKey struct{}

// ClientHooks defines the events a client.Client reports as it connects,
// sends requests, and receives responses.
type ClientHooks struct {
	// ConnectStart is called before dialing target.
	ConnectStart func(target string)
	// ConnectDone is called once the dial attempt completes.
	ConnectDone func(target string, err error, d time.Duration)
	// InvokeStart is called before a request is sent.
	InvokeStart func(methodIndex, requestID uint32)
	// InvokeDone is called after a response has been received, timed out,
	// or failed.
	InvokeDone func(methodIndex, requestID uint32, ok bool, d time.Duration)
	// Error is called whenever an error condition is observed.
	Error func(context, target string, err error)
}

// ServerHooks defines the events a server.Server reports as it accepts
// connections and processes frames.
type ServerHooks struct {
	// Listening is called once a listener has been bound, or failed to
	// bind.
	Listening func(url string, err error)
	// Accepted is called after a new connection has been accepted.
	Accepted func(fd int, err error)
	// ConnectionClosed is called when a connection is dropped, with the
	// reason (nil for a clean read of EOF).
	ConnectionClosed func(fd int, err error)
	// Dispatch is called before a decoded request is handed to the
	// service.
	Dispatch func(fd int, methodIndex, requestID uint32)
	// Responded is called after a response has been written (or the
	// attempt abandoned).
	Responded func(fd int, methodIndex, requestID uint32, err error)
	// Error is called whenever an error condition is observed.
	Error func(context string, err error)
}

// DefaultClientHooks logs errors through the standard log package and is
// silent otherwise.
var DefaultClientHooks = &ClientHooks{
	Error: func(context, target string, err error) {
		log.Printf("apteryx-client: %s target=%s err=%v", context, target, err)
	},
}

// NoOpClientHooks does nothing for every event.
var NoOpClientHooks = &ClientHooks{
	ConnectStart: func(target string) {},
	ConnectDone:  func(target string, err error, d time.Duration) {},
	InvokeStart:  func(methodIndex, requestID uint32) {},
	InvokeDone:   func(methodIndex, requestID uint32, ok bool, d time.Duration) {},
	Error:        func(context, target string, err error) {},
}

// DefaultServerHooks logs errors through the standard log package and is
// silent otherwise.
var DefaultServerHooks = &ServerHooks{
	Error: func(context string, err error) {
		log.Printf("apteryx-server: %s err=%v", context, err)
	},
}

// NoOpServerHooks does nothing for every event.
var NoOpServerHooks = &ServerHooks{
	Listening:        func(url string, err error) {},
	Accepted:         func(fd int, err error) {},
	ConnectionClosed: func(fd int, err error) {},
	Dispatch:         func(fd int, methodIndex, requestID uint32) {},
	Responded:        func(fd int, methodIndex, requestID uint32, err error) {},
	Error:            func(context string, err error) {},
}

// WithClientTrace returns a context carrying the supplied hooks.
func WithClientTrace(ctx context.Context, hooks *ClientHooks) context.Context {
	return context.WithValue(ctx, clientTraceKey{}, hooks)
}

// ContextClientTrace returns the ClientHooks associated with ctx, with any
// unset fields filled in from NoOpClientHooks so callers never need a nil
// check before invoking a hook.
func ContextClientTrace(ctx context.Context) *ClientHooks {
	hooks, _ := ctx.Value(clientTraceKey{}).(*ClientHooks)
	return mergeClientHooks(hooks)
}

func mergeClientHooks(hooks *ClientHooks) *ClientHooks {
	if hooks == nil {
		return NoOpClientHooks
	}
	merged := *hooks
	_ = mergo.Merge(&merged, *NoOpClientHooks)
	return &merged
}

// WithServerTrace returns a context carrying the supplied hooks.
func WithServerTrace(ctx context.Context, hooks *ServerHooks) context.Context {
	return context.WithValue(ctx, serverTraceKey{}, hooks)
}

// ContextServerTrace returns the ServerHooks associated with ctx, with any
// unset fields filled in from NoOpServerHooks.
func ContextServerTrace(ctx context.Context) *ServerHooks {
	hooks, _ := ctx.Value(serverTraceKey{}).(*ServerHooks)
	return mergeServerHooks(hooks)
}

func mergeServerHooks(hooks *ServerHooks) *ServerHooks {
	if hooks == nil {
		return NoOpServerHooks
	}
	merged := *hooks
	_ = mergo.Merge(&merged, *NoOpServerHooks)
	return &merged
}

// ResolveClientHooks is a non-context convenience used by server.Option/client.Option
// plumbing: it merges a possibly-partial hook set against the relevant
// no-op default, without requiring a context round-trip.
func ResolveClientHooks(hooks *ClientHooks) *ClientHooks { return mergeClientHooks(hooks) }

// ResolveServerHooks merges a possibly-partial hook set against
// NoOpServerHooks.
func ResolveServerHooks(hooks *ServerHooks) *ServerHooks { return mergeServerHooks(hooks) }
