package sys_test

import (
	"net"
	"testing"

	"github.com/brickingsoft/ioqueue/pkg/sys"
	"golang.org/x/sys/unix"
)

func TestResolveAddr(t *testing.T) {
	cases := []struct {
		network string
		address string
		family  int
	}{
		{"tcp", "127.0.0.1:80", unix.AF_INET},
		{"tcp6", "[::1]:80", unix.AF_INET6},
		{"udp", ":53", unix.AF_INET},
		{"unix", "/tmp/ioqueue.sock", unix.AF_UNIX},
	}
	for _, c := range cases {
		addr, family, err := sys.ResolveAddr(c.network, c.address)
		if err != nil {
			t.Error(c.network, c.address, err)
			continue
		}
		if family != c.family {
			t.Error(c.network, c.address, "family", family)
		}
		if sys.AddrFamily(addr) != c.family {
			t.Error(c.network, c.address, "addr family", sys.AddrFamily(addr))
		}
		t.Log(addr)
	}
	if _, _, err := sys.ResolveAddr("sctp", "127.0.0.1:1"); err == nil {
		t.Error("unknown network accepted")
	}
	if _, _, err := sys.ResolveAddr("tcp", " "); err == nil {
		t.Error("empty address accepted")
	}
}

func TestSockaddrRoundTrip(t *testing.T) {
	addrs := []net.Addr{
		&net.TCPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 8080},
		&net.UDPAddr{IP: net.ParseIP("2001:db8::1"), Port: 5060},
		&net.UnixAddr{Net: "unix", Name: "/tmp/ioqueue.sock"},
	}
	sotypes := []int{unix.SOCK_STREAM, unix.SOCK_DGRAM, unix.SOCK_STREAM}
	for i, addr := range addrs {
		sa, err := sys.AddrToSockaddr(addr)
		if err != nil {
			t.Fatal(err)
		}
		back := sys.SockaddrToAddr(sotypes[i], sa)
		if back == nil || back.String() != addr.String() || back.Network() != addr.Network() {
			t.Error("round trip changed", addr, "into", back)
		}
	}
	if _, err := sys.AddrToSockaddr(&net.IPAddr{IP: net.IPv4(1, 2, 3, 4)}); err == nil {
		t.Error("ip address accepted")
	}
}

func TestListen(t *testing.T) {
	fd, addr, err := sys.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer unix.Close(fd)
	tcp, ok := addr.(*net.TCPAddr)
	if !ok || tcp.Port == 0 {
		t.Fatal("unexpected listen address:", addr)
	}
	if sys.SocketType(fd) != unix.SOCK_STREAM {
		t.Error("unexpected socket type")
	}
	if _, _, acceptErr := sys.Accept(fd); !sys.IsAgain(acceptErr) {
		t.Error("expected would block, got", acceptErr)
	}

	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	if err = sys.SocketError(fd); err != nil {
		t.Error(err)
	}
	t.Log(sys.MaxListenerBacklog())
}

func TestSocketTypeOfPipe(t *testing.T) {
	var p [2]int
	if err := unix.Pipe(p[:]); err != nil {
		t.Fatal(err)
	}
	defer unix.Close(p[0])
	defer unix.Close(p[1])
	if sys.SocketType(p[0]) != -1 {
		t.Error("pipe reported as socket")
	}
	if n, err := sys.Write(p[1], []byte("abc")); err != nil || n != 3 {
		t.Fatal(n, err)
	}
	buf := make([]byte, 8)
	if n, err := sys.Read(p[0], buf); err != nil || string(buf[:n]) != "abc" {
		t.Error(n, err)
	}
}
