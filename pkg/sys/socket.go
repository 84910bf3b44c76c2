package sys

import (
	"net"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

func NewSocket(family int, sotype int, proto int) (sock int, err error) {
	syscall.ForkLock.RLock()
	sock, err = unix.Socket(family, sotype, proto)
	if err == nil {
		unix.CloseOnExec(sock)
	}
	syscall.ForkLock.RUnlock()
	if err != nil {
		err = os.NewSyscallError("socket", err)
		return
	}
	if err = SetNonblock(sock); err != nil {
		_ = unix.Close(sock)
		sock = -1
	}
	return
}

func SetNonblock(fd int) error {
	if err := unix.SetNonblock(fd, true); err != nil {
		return os.NewSyscallError("setnonblock", err)
	}
	return nil
}

// SocketError fetches and clears the pending SO_ERROR of fd.
func SocketError(fd int) error {
	n, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return os.NewSyscallError("getsockopt", err)
	}
	if n != 0 {
		return os.NewSyscallError("connect", unix.Errno(n))
	}
	return nil
}

// SocketType returns SO_TYPE, or -1 for descriptors that are not sockets.
func SocketType(fd int) int {
	n, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_TYPE)
	if err != nil {
		return -1
	}
	return n
}

func LocalAddr(fd int, sotype int) net.Addr {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return nil
	}
	return SockaddrToAddr(sotype, sa)
}

func RemoteAddr(fd int, sotype int) net.Addr {
	sa, err := unix.Getpeername(fd)
	if err != nil {
		return nil
	}
	return SockaddrToAddr(sotype, sa)
}

// Listen opens a non-blocking socket bound to address. Stream sockets are put
// into listening state; datagram sockets are only bound.
func Listen(network string, address string) (fd int, addr net.Addr, err error) {
	// addr
	resolved, family, resolveErr := ResolveAddr(network, address)
	if resolveErr != nil {
		err = resolveErr
		return
	}
	sotype := unix.SOCK_STREAM
	switch network {
	case "udp", "udp4", "udp6", "unixgram":
		sotype = unix.SOCK_DGRAM
		break
	case "unixpacket":
		sotype = unix.SOCK_SEQPACKET
		break
	}
	// sock
	if fd, err = NewSocket(family, sotype, 0); err != nil {
		return
	}
	// reuse addr
	if family != unix.AF_UNIX {
		if err = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
			_ = unix.Close(fd)
			err = os.NewSyscallError("setsockopt", err)
			return
		}
	}
	// bind
	sa, saErr := AddrToSockaddr(resolved)
	if saErr != nil {
		_ = unix.Close(fd)
		err = saErr
		return
	}
	if err = unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		err = os.NewSyscallError("bind", err)
		return
	}
	// listen
	if sotype != unix.SOCK_DGRAM {
		if err = unix.Listen(fd, MaxListenerBacklog()); err != nil {
			_ = unix.Close(fd)
			err = os.NewSyscallError("listen", err)
			return
		}
	}
	addr = LocalAddr(fd, sotype)
	if addr == nil {
		addr = resolved
	}
	return
}
