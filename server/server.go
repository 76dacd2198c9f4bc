//go:build linux

// Package server implements the transport's server half: a single-threaded
// readiness-polling event loop over one or more bound listeners, a fixed
// worker pool that runs the service handler off the loop thread, and the
// per-connection framed read/response state machine.
package server

import (
	"container/list"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/ShimQ88/apteryx/addr"
	"github.com/ShimQ88/apteryx/iobuf"
	"github.com/ShimQ88/apteryx/internal/sockio"
	"github.com/ShimQ88/apteryx/service"
)

// callbackEntry is the opaque (fd, handler) pair the event loop and workers
// pass between the pending and working sets. Exactly one entry exists per
// registered fd at any instant.
type callbackEntry struct {
	fd int
	// onReady runs the handler for a readable fd and reports whether the
	// entry should be returned to the pending set (true) or dropped
	// (false). A dropped entry's fd has already been closed by the time
	// onReady returns false.
	onReady func(s *Server) bool
}

type listener struct {
	fd   int
	addr *addr.Address
}

type connection struct {
	fd int
	in iobuf.Buffer
}

// Server runs a single bound service. The zero value is not usable; create
// one with New.
type Server struct {
	cfg config
	svc service.Service

	mu           sync.Mutex
	listeners    []*listener
	pending      *list.List
	pendingIndex map[int]*list.Element
	working      *list.List
	workingIndex map[int]*list.Element
	running      bool

	sem *sockio.Semaphore
	wg  sync.WaitGroup

	wakeR, wakeW int
	stopR, stopW int
}

// New creates a Server that dispatches decoded requests to svc. Bind at
// least one listener with BindURL before calling ProvideService.
func New(svc service.Service, opts ...Option) (*Server, error) {
	cfg := DefaultConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	wakeR, wakeW, err := sockio.Pipe()
	if err != nil {
		return nil, err
	}
	stopR, stopW, err := sockio.Pipe()
	if err != nil {
		sockio.Close(wakeR)
		sockio.Close(wakeW)
		return nil, err
	}

	return &Server{
		cfg:          cfg,
		svc:          svc,
		pending:      list.New(),
		pendingIndex: make(map[int]*list.Element),
		working:      list.New(),
		workingIndex: make(map[int]*list.Element),
		wakeR:        wakeR,
		wakeW:        wakeW,
		stopR:        stopR,
		stopW:        stopW,
	}, nil
}

// BindURL parses url, opens a nonblocking listening socket for it, and
// registers the listener as a pending callback entry.
func (s *Server) BindURL(url string) error {
	a, err := addr.Parse(url)
	if err != nil {
		return err
	}

	fd, err := sockio.Listen(a)
	if err != nil {
		s.cfg.hooks.Listening(url, err)
		return err
	}

	l := &listener{fd: fd, addr: a}
	entry := &callbackEntry{fd: fd, onReady: l.onReady}

	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	el := s.pending.PushBack(entry)
	s.pendingIndex[fd] = el
	s.mu.Unlock()

	s.cfg.hooks.Listening(url, nil)
	sockio.Wake(s.wakeW)
	return nil
}

// UnbindURL closes the listener previously bound for url and, for a
// unix:// URL, removes its filesystem path.
func (s *Server) UnbindURL(url string) error {
	a, err := addr.Parse(url)
	if err != nil {
		return err
	}

	s.mu.Lock()
	idx := -1
	for i, l := range s.listeners {
		if l.addr.Equal(a) {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return errors.Errorf("server: no listener bound for %q", url)
	}
	l := s.listeners[idx]
	s.listeners = append(s.listeners[:idx], s.listeners[idx+1:]...)
	if el, ok := s.pendingIndex[l.fd]; ok {
		s.pending.Remove(el)
		delete(s.pendingIndex, l.fd)
	}
	s.mu.Unlock()

	sockio.Close(l.fd)
	sockio.Wake(s.wakeW)
	return sockio.Unlink(l.addr)
}

// ProvideService runs the event loop until Stop is called, the configured
// stop fd becomes readable, or an unrecoverable polling error occurs. It
// blocks the calling goroutine, matching the original transport's
// provide_service contract.
func (s *Server) ProvideService() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server: already running")
	}
	s.running = true
	s.mu.Unlock()

	if s.cfg.numWorkers > 0 {
		s.sem = sockio.NewSemaphore(0)
		s.wg.Add(s.cfg.numWorkers)
		for i := 0; i < s.cfg.numWorkers; i++ {
			go s.workerLoop()
		}
	}

	if s.cfg.stopFd >= 0 {
		go s.watchExternalStop(s.cfg.stopFd)
	}
	if s.cfg.stopChan != nil {
		go s.watchStopChannel(s.cfg.stopChan)
	}

	err := s.loop()
	s.shutdown()
	return err
}

// Stop requests that the event loop exit. It is safe to call from any
// goroutine, any number of times.
func (s *Server) Stop() {
	sockio.Wake(s.stopW)
}

func (s *Server) watchStopChannel(stop <-chan struct{}) {
	<-stop
	s.Stop()
}

func (s *Server) watchExternalStop(fd int) {
	pfd := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	for {
		n, err := sockio.Poll(pfd, -1)
		if err != nil {
			return
		}
		if n > 0 {
			s.Stop()
			return
		}
	}
}

// loop is the single-threaded readiness-polling core described by the
// event loop component: snapshot pending under the mutex, poll without a
// timeout, restart on a changed pending set, and otherwise hand every
// ready entry to a worker (or run it inline with zero workers).
func (s *Server) loop() error {
	for {
		s.mu.Lock()
		snapshotLen := s.pending.Len()
		fds := make([]int, 0, snapshotLen)
		for el := s.pending.Front(); el != nil; el = el.Next() {
			fds = append(fds, el.Value.(*callbackEntry).fd)
		}
		s.mu.Unlock()

		pollfds := make([]unix.PollFd, 0, snapshotLen+2)
		pollfds = append(pollfds, unix.PollFd{Fd: int32(s.wakeR), Events: unix.POLLIN})
		pollfds = append(pollfds, unix.PollFd{Fd: int32(s.stopR), Events: unix.POLLIN})
		for _, fd := range fds {
			pollfds = append(pollfds, unix.PollFd{Fd: int32(fd), Events: unix.POLLIN})
		}

		if _, err := sockio.Poll(pollfds, -1); err != nil {
			return err
		}

		if pollfds[0].Revents&unix.POLLIN != 0 {
			sockio.DrainWake(s.wakeR)
			continue
		}
		if pollfds[1].Revents&unix.POLLIN != 0 {
			sockio.DrainWake(s.stopR)
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
			return nil
		}

		s.mu.Lock()
		if s.pending.Len() != snapshotLen {
			s.mu.Unlock()
			continue
		}

		var ready []*callbackEntry
		for i, fd := range fds {
			pfd := pollfds[i+2]
			if pfd.Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) == 0 {
				continue
			}
			el, ok := s.pendingIndex[fd]
			if !ok {
				continue
			}
			entry := el.Value.(*callbackEntry)
			s.pending.Remove(el)
			delete(s.pendingIndex, fd)
			ready = append(ready, entry)
			if s.cfg.numWorkers > 0 {
				workEl := s.working.PushBack(entry)
				s.workingIndex[fd] = workEl
			}
		}
		s.mu.Unlock()

		if s.cfg.numWorkers > 0 {
			for range ready {
				s.sem.Post()
			}
			continue
		}

		// Inline mode: run every ready callback on the loop thread itself.
		for _, entry := range ready {
			if entry.onReady(s) {
				s.reinstate(entry)
			}
		}
	}
}

func (s *Server) workerLoop() {
	defer s.wg.Done()
	for {
		s.sem.Wait()

		s.mu.Lock()
		running := s.running
		s.mu.Unlock()
		if !running {
			return
		}

		s.mu.Lock()
		el := s.working.Front()
		if el == nil {
			s.mu.Unlock()
			continue
		}
		entry := el.Value.(*callbackEntry)
		s.working.Remove(el)
		delete(s.workingIndex, entry.fd)
		s.mu.Unlock()

		if entry.onReady(s) {
			s.reinstate(entry)
		}
	}
}

// reinstate returns entry to the pending set and wakes the event loop so
// it rebuilds its poll list to include it.
func (s *Server) reinstate(entry *callbackEntry) {
	s.mu.Lock()
	el := s.pending.PushBack(entry)
	s.pendingIndex[entry.fd] = el
	s.mu.Unlock()
	sockio.Wake(s.wakeW)
}

func (s *Server) shutdown() {
	s.mu.Lock()
	listeners := s.listeners
	s.listeners = nil
	s.mu.Unlock()
	for _, l := range listeners {
		sockio.Close(l.fd)
		_ = sockio.Unlink(l.addr)
	}

	if s.cfg.numWorkers > 0 {
		for i := 0; i < s.cfg.numWorkers; i++ {
			s.sem.Post()
		}
		s.wg.Wait()
	}

	s.mu.Lock()
	for el := s.pending.Front(); el != nil; el = el.Next() {
		sockio.Close(el.Value.(*callbackEntry).fd)
	}
	for el := s.working.Front(); el != nil; el = el.Next() {
		sockio.Close(el.Value.(*callbackEntry).fd)
	}
	s.pending.Init()
	s.pendingIndex = make(map[int]*list.Element)
	s.working.Init()
	s.workingIndex = make(map[int]*list.Element)
	s.mu.Unlock()

	sockio.Close(s.wakeR)
	sockio.Close(s.wakeW)
	sockio.Close(s.stopR)
	sockio.Close(s.stopW)
}

// onReady accepts every pending connection on the listener, tolerating
// spurious wakeups, and registers each as a new pending entry. It always
// asks to remain registered; an accept error is reported through the Error
// hook and does not unregister the listener.
func (l *listener) onReady(s *Server) bool {
	for {
		fd, err := sockio.Accept(l.fd)
		if err != nil {
			s.cfg.hooks.Error("accept", err)
			return true
		}
		if fd < 0 {
			return true
		}

		conn := &connection{fd: fd}
		entry := &callbackEntry{fd: fd, onReady: conn.onReady}

		s.mu.Lock()
		el := s.pending.PushBack(entry)
		s.pendingIndex[fd] = el
		s.mu.Unlock()

		s.cfg.hooks.Accepted(fd, nil)
		sockio.Wake(s.wakeW)
	}
}

// onReady drains the connection's socket into its inbound buffer, frames
// and dispatches every complete request found, and reports whether the
// connection should remain registered.
func (c *connection) onReady(s *Server) bool {
	readBuf := make([]byte, s.cfg.readBufLen)
	for {
		n, closed, wouldBlock, err := sockio.Read(c.fd, readBuf)
		if wouldBlock {
			break
		}
		if closed {
			s.closeConnection(c, nil)
			return false
		}
		if err != nil {
			s.closeConnection(c, err)
			return false
		}
		c.in.Append(readBuf[:n])
	}

	if err := s.frameAndDispatch(c); err != nil {
		s.closeConnection(c, err)
		return false
	}
	return true
}

func (s *Server) closeConnection(c *connection, err error) {
	sockio.Close(c.fd)
	s.cfg.hooks.ConnectionClosed(c.fd, err)
}
