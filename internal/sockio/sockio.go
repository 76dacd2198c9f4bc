//go:build linux

// Package sockio wraps the raw, nonblocking socket and readiness-polling
// primitives the server and client engines are built on. Everything here
// talks directly to the kernel through golang.org/x/sys/unix rather than
// net.Listener/net.Conn, because the event loop needs real file
// descriptors it can hand to poll(2) alongside a self-pipe — something the
// net package's abstractions do not expose.
package sockio

import (
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/ShimQ88/apteryx/addr"
)

const backlog = 255

// Listen creates a nonblocking, listening socket for the given address.
// For UNIX domain sockets, any stale path is removed before binding (the
// teardown side, Unlink, is exposed separately so that callers of an
// already-listening socket can defer it to unbind time instead).
func Listen(a *addr.Address) (fd int, err error) {
	domain, sa, err := toSockaddr(a)
	if err != nil {
		return -1, err
	}

	fd, err = unix.Socket(domain, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, errors.Wrap(err, "sockio: socket")
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, errors.Wrap(err, "sockio: setsockopt SO_REUSEADDR")
	}

	if a.Family == addr.Unix {
		_ = unix.Unlink(a.Path)
	}

	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, errors.Wrap(err, "sockio: bind")
	}

	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return -1, errors.Wrap(err, "sockio: listen")
	}

	if err := SetNonblock(fd); err != nil {
		unix.Close(fd)
		return -1, err
	}

	return fd, nil
}

// Unlink removes the filesystem path of a UNIX domain socket. It is a
// no-op, returning nil, for non-UNIX addresses.
func Unlink(a *addr.Address) error {
	if a.Family != addr.Unix {
		return nil
	}
	if err := unix.Unlink(a.Path); err != nil && !errors.Is(err, unix.ENOENT) {
		return errors.Wrap(err, "sockio: unlink")
	}
	return nil
}

// Accept accepts one pending connection on a nonblocking listening socket.
// EINTR is retried transparently. A nil error with fd == -1 indicates a
// spurious wakeup (EAGAIN) that yields no new connection.
func Accept(listenFd int) (fd int, err error) {
	for {
		fd, _, err := unix.Accept(listenFd)
		if err == nil {
			if serr := SetNonblock(fd); serr != nil {
				unix.Close(fd)
				return -1, serr
			}
			return fd, nil
		}
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if errors.Is(err, unix.EAGAIN) {
			return -1, nil
		}
		return -1, errors.Wrap(err, "sockio: accept")
	}
}

// Connect creates a nonblocking socket and begins connecting it to a, not
// waiting for the connection to complete: EINPROGRESS is treated as
// success, matching nonblocking connect semantics where completion is
// observed later through poll(2)/writability.
func Connect(a *addr.Address) (fd int, err error) {
	domain, sa, err := toSockaddr(a)
	if err != nil {
		return -1, err
	}

	fd, err = unix.Socket(domain, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, errors.Wrap(err, "sockio: socket")
	}

	if err := SetNonblock(fd); err != nil {
		unix.Close(fd)
		return -1, err
	}

	err = unix.Connect(fd, sa)
	if err != nil && !errors.Is(err, unix.EINPROGRESS) {
		unix.Close(fd)
		return -1, errors.Wrap(err, "sockio: connect")
	}

	return fd, nil
}

// SetNonblock marks fd as non-blocking.
func SetNonblock(fd int) error {
	if err := unix.SetNonblock(fd, true); err != nil {
		return errors.Wrap(err, "sockio: set nonblocking")
	}
	return nil
}

func toSockaddr(a *addr.Address) (domain int, sa unix.Sockaddr, err error) {
	switch a.Family {
	case addr.Unix:
		return unix.AF_UNIX, &unix.SockaddrUnix{Name: a.Path}, nil
	case addr.IPv4:
		var ip [4]byte
		copy(ip[:], a.IP.To4())
		return unix.AF_INET, &unix.SockaddrInet4{Port: a.Port, Addr: ip}, nil
	case addr.IPv6:
		var ip [16]byte
		copy(ip[:], a.IP.To16())
		return unix.AF_INET6, &unix.SockaddrInet6{Port: a.Port, Addr: ip}, nil
	default:
		return 0, nil, errors.Errorf("sockio: unknown address family %v", a.Family)
	}
}

// Pipe returns the read and write ends of a nonblocking self-pipe, used as
// the server's wake pipe: a real fd that can sit in a poll(2) set, so
// workers and the stop path can force the event loop to reconsider its
// descriptor list.
func Pipe() (r, w int, err error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return -1, -1, errors.Wrap(err, "sockio: pipe2")
	}
	return fds[0], fds[1], nil
}

// Wake writes a single byte to the write end of a wake pipe. Producers
// call this under no lock; the event loop drains and discards every byte
// it finds.
func Wake(writeFd int) {
	var b [1]byte
	for {
		_, err := unix.Write(writeFd, b[:])
		if err == nil || errors.Is(err, unix.EAGAIN) {
			return
		}
		if errors.Is(err, unix.EINTR) {
			continue
		}
		return
	}
}

// DrainWake empties the read end of a wake pipe after a readiness
// notification, discarding every byte available.
func DrainWake(readFd int) {
	var buf [64]byte
	for {
		n, err := unix.Read(readFd, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

// Poll wraps poll(2), retrying transparently on EINTR.
func Poll(fds []unix.PollFd, timeoutMs int) (n int, err error) {
	for {
		n, err = unix.Poll(fds, timeoutMs)
		if err == nil {
			return n, nil
		}
		if errors.Is(err, unix.EINTR) {
			continue
		}
		return 0, errors.Wrap(err, "sockio: poll")
	}
}

// Read attempts one read from fd into buf. closed reports a clean
// end-of-stream (zero bytes, no error); wouldBlock reports EAGAIN, which
// callers should treat as "no progress, try again later" rather than an
// error. EINTR is retried transparently.
func Read(fd int, buf []byte) (n int, closed, wouldBlock bool, err error) {
	for {
		n, err = unix.Read(fd, buf)
		switch {
		case err == nil && n == 0:
			return 0, true, false, nil
		case err == nil:
			return n, false, false, nil
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			return 0, false, true, nil
		default:
			return 0, false, false, errors.Wrap(err, "sockio: read")
		}
	}
}

// Write attempts one write from buf to fd. wouldBlock reports EAGAIN.
// EINTR is retried transparently. A short write is reported as n < len(buf)
// with a nil error; callers must advance their own offset and remaining
// length together and call Write again.
func Write(fd int, buf []byte) (n int, wouldBlock bool, err error) {
	for {
		n, err = unix.Write(fd, buf)
		switch {
		case err == nil:
			return n, false, nil
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			return 0, true, nil
		default:
			return 0, false, errors.Wrap(err, "sockio: write")
		}
	}
}

// Close closes fd, discarding the error from a peer that has already gone
// away.
func Close(fd int) {
	_ = unix.Close(fd)
}

// Semaphore is a counting semaphore with POSIX sem_t semantics: Post
// increments the count and wakes one waiter; Wait blocks until the count
// is positive, then decrements it. Go has no equivalent in the standard
// library, so it is built from a sync.Cond over an integer count, the way
// one would in any runtime lacking an unnamed-semaphore primitive.
type Semaphore struct {
	mu    sync.Mutex
	cond  *sync.Cond
	count int
}

// NewSemaphore returns a Semaphore initialised to the given count.
func NewSemaphore(initial int) *Semaphore {
	s := &Semaphore{count: initial}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Post increments the semaphore and wakes one waiter, if any.
func (s *Semaphore) Post() {
	s.mu.Lock()
	s.count++
	s.mu.Unlock()
	s.cond.Signal()
}

// Wait blocks until the semaphore is positive, then decrements it.
func (s *Semaphore) Wait() {
	s.mu.Lock()
	for s.count == 0 {
		s.cond.Wait()
	}
	s.count--
	s.mu.Unlock()
}
