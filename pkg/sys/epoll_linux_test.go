package sys_test

import (
	"testing"

	"github.com/brickingsoft/ioqueue/pkg/sys"
	"golang.org/x/sys/unix"
)

func TestEPoll(t *testing.T) {
	p, err := sys.OpenEPoll()
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	const data = uint64(7)<<32 | 3
	if err = p.Add(fds[0], unix.EPOLLIN|unix.EPOLLONESHOT, data); err != nil {
		t.Fatal(err)
	}
	events := make([]unix.EpollEvent, 4)
	if n, _ := p.Wait(events, 0); n != 0 {
		t.Error("unexpected event")
	}
	if err = p.Wakeup(); err != nil {
		t.Fatal(err)
	}
	if n, _ := p.Wait(events, 100); n != 0 {
		t.Error("wakeup surfaced as an event")
	}
	if _, err = unix.Write(fds[1], []byte("x")); err != nil {
		t.Fatal(err)
	}
	n, err := p.Wait(events, 1000)
	if err != nil || n != 1 {
		t.Fatal("wait:", n, err)
	}
	if got := sys.EventData(events[0]); got != data {
		t.Error("event data", got)
	}
	// one shot until modified
	if n, _ = p.Wait(events, 0); n != 0 {
		t.Error("one shot event fired twice")
	}
	if err = p.Mod(fds[0], unix.EPOLLIN|unix.EPOLLONESHOT, data); err != nil {
		t.Fatal(err)
	}
	if n, _ = p.Wait(events, 1000); n != 1 {
		t.Error("re-armed event missing")
	}
	if err = p.Del(fds[0]); err != nil {
		t.Error(err)
	}
}
