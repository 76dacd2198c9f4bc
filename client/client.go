//go:build linux

// Package client implements the transport's client half: one nonblocking
// connected socket with a single request in flight at a time, serialized
// behind a mutex, with a receive deadline measured from the moment the
// request finished sending.
package client

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/ShimQ88/apteryx/addr"
	"github.com/ShimQ88/apteryx/iobuf"
	"github.com/ShimQ88/apteryx/internal/sockio"
	"github.com/ShimQ88/apteryx/service"
	"github.com/ShimQ88/apteryx/wire"
)

// Client is a single connected stream implementing service.Service: Invoke
// sends a framed request and blocks the caller until a response arrives or
// the configured timeout elapses.
type Client struct {
	cfg  config
	desc *service.Descriptor

	fd     int
	target string

	mu        sync.Mutex
	requestID uint32
	in        iobuf.Buffer
}

// Connect dials url and waits for the connection to complete. desc supplies
// the method table used to encode requests and decode responses.
func Connect(url string, desc *service.Descriptor, opts ...Option) (*Client, error) {
	cfg := DefaultConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	cfg.hooks.ConnectStart(url)
	start := time.Now()

	a, err := addr.Parse(url)
	if err != nil {
		cfg.hooks.ConnectDone(url, err, time.Since(start))
		return nil, err
	}

	fd, err := sockio.Connect(a)
	if err != nil {
		cfg.hooks.ConnectDone(url, err, time.Since(start))
		return nil, err
	}

	if err := waitConnected(fd); err != nil {
		sockio.Close(fd)
		cfg.hooks.ConnectDone(url, err, time.Since(start))
		return nil, err
	}

	cfg.hooks.ConnectDone(url, nil, time.Since(start))
	return &Client{cfg: cfg, desc: desc, fd: fd, target: url}, nil
}

// waitConnected blocks until a nonblocking connect finishes, tolerating the
// EINPROGRESS reported by Connect, and reports any asynchronous connect
// failure surfaced through SO_ERROR.
func waitConnected(fd int) error {
	pfd := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
	if _, err := sockio.Poll(pfd, -1); err != nil {
		return err
	}
	errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return errors.Wrap(err, "client: getsockopt SO_ERROR")
	}
	if errno != 0 {
		return errors.Wrapf(unix.Errno(errno), "client: connect")
	}
	return nil
}

// Close closes the client's socket. The client is not usable afterward.
func (c *Client) Close() error {
	sockio.Close(c.fd)
	return nil
}

// Descriptor returns the method table supplied to Connect, satisfying
// service.Service.
func (c *Client) Descriptor() *service.Descriptor {
	return c.desc
}

// Invoke sends a framed request for methodIndex and blocks until a
// response is decoded, the connection errors, or the receive deadline
// elapses. closure is always called exactly once: with the decoded
// response, or with nil on any failure. Only one Invoke may be in flight
// at a time; concurrent callers are serialized by c's mutex.
func (c *Client) Invoke(methodIndex uint32, input interface{}, closure service.Closure) {
	c.mu.Lock()
	defer c.mu.Unlock()

	method, ok := c.desc.Method(methodIndex)
	if !ok {
		c.cfg.hooks.Error("invoke", c.target, errors.Errorf("client: method index %d out of range", methodIndex))
		closure(nil)
		return
	}

	c.requestID++
	requestID := c.requestID

	c.cfg.hooks.InvokeStart(methodIndex, requestID)
	start := time.Now()

	resp, err := c.invokeLocked(methodIndex, requestID, method, input)
	c.cfg.hooks.InvokeDone(methodIndex, requestID, err == nil, time.Since(start))
	if err != nil {
		c.cfg.hooks.Error("invoke", c.target, err)
		closure(nil)
		return
	}
	closure(resp)
}

func (c *Client) invokeLocked(methodIndex, requestID uint32, method service.Method, input interface{}) (interface{}, error) {
	size := method.Input.Size(input)
	frame := make([]byte, wire.HeaderLen, wire.HeaderLen+size)
	wire.PackHeader(wire.Header{MethodIndex: methodIndex, MessageLength: uint32(size), RequestID: requestID}, frame)
	frame, err := method.Input.Marshal(frame, input)
	if err != nil {
		return nil, errors.Wrap(err, "client: encode request payload")
	}

	if err := c.send(frame); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(c.cfg.timeout)
	hdr, payload, err := c.receive(deadline)
	if err != nil {
		return nil, err
	}

	out, err := method.Output.Unmarshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "client: decode response payload")
	}
	_ = hdr // request_id/method_index are not matched: clients are strictly one-in-flight.
	return out, nil
}

// send writes frame in full, retrying EINTR/EAGAIN and advancing the
// offset and remaining length together on every short write.
func (c *Client) send(frame []byte) error {
	off, remaining := 0, len(frame)
	for remaining > 0 {
		n, wouldBlock, err := sockio.Write(c.fd, frame[off:])
		if err != nil {
			return errors.Wrap(err, "client: send")
		}
		if wouldBlock {
			continue
		}
		off += n
		remaining -= n
	}
	return nil
}

// receive accumulates bytes until a complete response frame is available
// or deadline passes. The header decode is guarded behind
// StatusLen+HeaderLen bytes, since the wire header begins 4 bytes into the
// response, after the status word.
func (c *Client) receive(deadline time.Time) (wire.Header, []byte, error) {
	buf := make([]byte, 8192)
	for {
		if c.in.Len() >= wire.ResponsePrefixLen {
			hdr := wire.UnpackHeader(c.in.Bytes()[wire.StatusLen:])
			total := wire.ResponsePrefixLen + int(hdr.MessageLength)
			if c.in.Len() >= total {
				payload := make([]byte, hdr.MessageLength)
				copy(payload, c.in.Bytes()[wire.ResponsePrefixLen:total])
				c.in.Consume(total)
				return hdr, payload, nil
			}
		}

		if time.Now().After(deadline) {
			c.in.Reset()
			return wire.Header{}, nil, errors.New("client: receive timeout")
		}

		n, closed, wouldBlock, err := sockio.Read(c.fd, buf)
		if err != nil {
			return wire.Header{}, nil, err
		}
		if closed {
			return wire.Header{}, nil, errors.New("client: connection closed")
		}
		if wouldBlock {
			time.Sleep(time.Millisecond)
			continue
		}
		c.in.Append(buf[:n])
	}
}
