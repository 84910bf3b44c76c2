package ioqueue_test

import (
	"sync"
	"testing"
	"time"

	"github.com/brickingsoft/ioqueue"
	"github.com/brickingsoft/ioqueue/pkg/sys"
	"golang.org/x/sys/unix"
)

var backends = []ioqueue.Backend{ioqueue.BackendDefault, ioqueue.BackendPoll}

// eachBackend runs fn once per readiness backend available here.
func eachBackend(t *testing.T, fn func(t *testing.T, options ...ioqueue.Option)) {
	for _, backend := range backends {
		name := string(backend)
		if name == "" {
			name = "default"
		}
		t.Run(name, func(t *testing.T) {
			fn(t, ioqueue.WithBackend(backend))
		})
	}
}

func newQueue(t *testing.T, options ...ioqueue.Option) *ioqueue.Queue {
	t.Helper()
	q, err := ioqueue.New(64, options...)
	if err != nil {
		t.Fatal(err)
	}
	return q
}

func closeQueue(t *testing.T, q *ioqueue.Queue) {
	t.Helper()
	if err := q.Close(); err != nil {
		t.Error("close queue:", err)
	}
}

func closeFd(fds ...int) {
	for _, fd := range fds {
		_ = unix.Close(fd)
	}
}

func socketPair(t *testing.T, sotype int) (a int, b int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, sotype, 0)
	if err != nil {
		t.Fatal(err)
	}
	return fds[0], fds[1]
}

// tcpPair returns both ends of an established loopback connection. Both are
// non-blocking.
func tcpPair(t *testing.T) (client int, server int) {
	t.Helper()
	ln, addr, err := sys.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer closeFd(ln)

	client, err = sys.NewSocket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatal(err)
	}
	sa, _ := sys.AddrToSockaddr(addr)
	if err = unix.Connect(client, sa); err != nil && err != unix.EINPROGRESS {
		closeFd(client)
		t.Fatal(err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		server, _, err = sys.Accept(ln)
		if err == nil {
			break
		}
		if !sys.IsAgain(err) || time.Now().After(deadline) {
			closeFd(client)
			t.Fatal("accept:", err)
		}
		time.Sleep(time.Millisecond)
	}
	// wait for the client side to see the handshake done
	fds := []unix.PollFd{{Fd: int32(client), Events: unix.POLLOUT}}
	if _, err = unix.Poll(fds, 5000); err != nil {
		closeFd(client, server)
		t.Fatal(err)
	}
	return
}

// recorder collects completions.
type recorder struct {
	mu      sync.Mutex
	results []ioqueue.Completion
}

func (r *recorder) Handle(c ioqueue.Completion) {
	r.mu.Lock()
	r.results = append(r.results, c)
	r.mu.Unlock()
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.results)
}

func (r *recorder) get(i int) ioqueue.Completion {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.results[i]
}

// pollUntil polls until cond holds or the deadline passes.
func pollUntil(t *testing.T, q *ioqueue.Queue, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached before deadline")
		}
		if _, err := q.Poll(50 * time.Millisecond); err != nil {
			t.Fatal(err)
		}
	}
}
