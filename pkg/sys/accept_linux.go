//go:build linux

package sys

import (
	"golang.org/x/sys/unix"
)

const sendFlags = unix.MSG_NOSIGNAL

// Accept returns a non-blocking, close-on-exec descriptor for the next
// pending connection.
func Accept(fd int) (nfd int, sa unix.Sockaddr, err error) {
	for {
		nfd, sa, err = unix.Accept4(fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != unix.EINTR {
			break
		}
	}
	return
}
