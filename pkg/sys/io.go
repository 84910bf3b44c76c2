package sys

import (
	"golang.org/x/sys/unix"
)

// The wrappers below retry EINTR and hand every other errno back untouched, so
// callers can tell EAGAIN apart from real failures.

func Read(fd int, b []byte) (n int, err error) {
	for {
		n, err = unix.Read(fd, b)
		if err != unix.EINTR {
			break
		}
	}
	if n < 0 {
		n = 0
	}
	return
}

func Recvfrom(fd int, b []byte, flags int) (n int, from unix.Sockaddr, err error) {
	for {
		n, from, err = unix.Recvfrom(fd, b, flags)
		if err != unix.EINTR {
			break
		}
	}
	if n < 0 {
		n = 0
	}
	return
}

func Write(fd int, b []byte) (n int, err error) {
	for {
		n, err = unix.Write(fd, b)
		if err != unix.EINTR {
			break
		}
	}
	if n < 0 {
		n = 0
	}
	return
}

// Send writes b to fd, or to `to` for unconnected sockets.
func Send(fd int, b []byte, flags int, to unix.Sockaddr) (n int, err error) {
	for {
		n, err = unix.SendmsgN(fd, b, nil, to, flags|sendFlags)
		if err != unix.EINTR {
			break
		}
	}
	if n < 0 {
		n = 0
	}
	return
}

// Connect starts a non-blocking connect. EINTR is returned as is: the connect
// keeps going in the kernel and must be treated as in progress.
func Connect(fd int, sa unix.Sockaddr) error {
	return unix.Connect(fd, sa)
}

// IsAgain reports a would-block errno.
func IsAgain(err error) bool {
	return err == unix.EAGAIN || err == unix.EWOULDBLOCK
}
