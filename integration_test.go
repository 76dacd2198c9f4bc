//go:build linux

package apteryx

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/ShimQ88/apteryx/client"
	"github.com/ShimQ88/apteryx/server"
	"github.com/ShimQ88/apteryx/service"
)

func echoDescriptor() *service.Descriptor {
	return &service.Descriptor{Methods: []service.Method{
		{Input: service.RawBytes, Output: service.RawBytes},
	}}
}

type echoService struct{}

func (echoService) Descriptor() *service.Descriptor { return echoDescriptor() }
func (echoService) Invoke(methodIndex uint32, input interface{}, closure service.Closure) {
	closure(input)
}

func tempSocketURL(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), fmt.Sprintf("apteryx-%d.sock", time.Now().UnixNano()))
	return "unix://" + path
}

// startServer binds url, runs ProvideService in the background, and
// arranges for a clean shutdown at test end.
func startServer(t *testing.T, url string, svc service.Service, opts ...server.Option) *server.Server {
	t.Helper()
	s, err := server.New(svc, opts...)
	require.NoError(t, err)
	require.NoError(t, s.BindURL(url))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.ProvideService()
	}()
	t.Cleanup(func() {
		s.Stop()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("server did not shut down")
		}
	})

	// Give the loop goroutine a moment to start polling before the first
	// connect attempt.
	time.Sleep(10 * time.Millisecond)
	return s
}

func TestUnixEchoRoundTrip(t *testing.T) {
	url := tempSocketURL(t)
	startServer(t, url, echoService{})

	c, err := client.Connect(url, echoDescriptor())
	require.NoError(t, err)
	defer c.Close()

	var got interface{}
	c.Invoke(0, []byte("hello"), func(resp interface{}) { got = resp })
	assert.Equal(t, []byte("hello"), got)
}

func TestIPv4TwoRequestOrdering(t *testing.T) {
	url := "tcp://127.0.0.1:18372"
	startServer(t, url, echoService{})

	c, err := client.Connect(url, echoDescriptor())
	require.NoError(t, err)
	defer c.Close()

	var gotA, gotB interface{}
	c.Invoke(0, []byte("A"), func(resp interface{}) { gotA = resp })
	c.Invoke(0, []byte("B"), func(resp interface{}) { gotB = resp })

	assert.Equal(t, []byte("A"), gotA)
	assert.Equal(t, []byte("B"), gotB)
}

func TestBadMethodIndexClosesConnection(t *testing.T) {
	url := tempSocketURL(t)
	startServer(t, url, echoService{})

	a, err := addrParse(url)
	require.NoError(t, err)
	fd, err := dialRaw(a)
	require.NoError(t, err)
	defer unix.Close(fd)

	// method_index = 1, out of range for a one-method descriptor.
	request := []byte{1, 0, 0, 0, 0, 0, 0, 0, 1, 0, 0, 0}
	require.NoError(t, writeAll(fd, request))

	require.Eventually(t, func() bool {
		buf := make([]byte, 1)
		n, err := unix.Read(fd, buf)
		return n == 0 && err == nil
	}, 2*time.Second, 10*time.Millisecond, "expected EOF after bad method index")

	// The server itself must still accept new, well-behaved connections.
	c, err := client.Connect(url, echoDescriptor())
	require.NoError(t, err)
	defer c.Close()
	var got interface{}
	c.Invoke(0, []byte("still alive"), func(resp interface{}) { got = resp })
	assert.Equal(t, []byte("still alive"), got)
}

func TestClientTimeoutOnUnresponsiveServer(t *testing.T) {
	url := tempSocketURL(t)
	// A service that never calls its closure: the server never responds.
	blackhole := blackholeService{}
	startServer(t, url, blackhole)

	c, err := client.Connect(url, echoDescriptor(), client.WithTimeout(50*time.Millisecond))
	require.NoError(t, err)
	defer c.Close()

	start := time.Now()
	var called bool
	var got interface{}
	c.Invoke(0, []byte("hello"), func(resp interface{}) {
		called = true
		got = resp
	})
	elapsed := time.Since(start)

	assert.True(t, called)
	assert.Nil(t, got)
	assert.GreaterOrEqual(t, elapsed, 45*time.Millisecond)
}

type blackholeService struct{}

func (blackholeService) Descriptor() *service.Descriptor { return echoDescriptor() }
func (blackholeService) Invoke(uint32, interface{}, service.Closure) {
	// Never calls closure.
}

func TestGracefulShutdownWithIdleConnections(t *testing.T) {
	url := tempSocketURL(t)
	s := startServer(t, url, echoService{}, server.WithWorkers(4))

	clients := make([]*client.Client, 8)
	for i := range clients {
		c, err := client.Connect(url, echoDescriptor())
		require.NoError(t, err)
		clients[i] = c
	}
	defer func() {
		for _, c := range clients {
			c.Close()
		}
	}()

	// One request through to confirm the pool is actually servicing
	// connections before shutdown.
	var got interface{}
	clients[0].Invoke(0, []byte("ping"), func(resp interface{}) { got = resp })
	assert.Equal(t, []byte("ping"), got)

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stop did not return")
	}
}

func writeAll(fd int, buf []byte) error {
	off := 0
	for off < len(buf) {
		n, err := unix.Write(fd, buf[off:])
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				time.Sleep(time.Millisecond)
				continue
			}
			return err
		}
		off += n
	}
	return nil
}

// addrParse and dialRaw give the bad-method-index test a connection that
// bypasses client.Client, since it needs to send a deliberately malformed
// frame that client.Client would refuse to build.
func addrParse(url string) (path string, err error) {
	const prefix = "unix://"
	if len(url) <= len(prefix) {
		return "", fmt.Errorf("not a unix url: %q", url)
	}
	return url[len(prefix):], nil
}

func dialRaw(path string) (int, error) {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, err
	}
	if err := unix.Connect(fd, &unix.SockaddrUnix{Name: path}); err != nil {
		unix.Close(fd)
		return -1, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}
