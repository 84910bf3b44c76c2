package sys

import (
	"bufio"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/brickingsoft/ioqueue/pkg/kernel"
	"golang.org/x/sys/unix"
)

var (
	somaxconn   = unix.SOMAXCONN
	backlogOnce = sync.Once{}
)

// MaxListenerBacklog reads net.core.somaxconn where available, capped at what
// the running kernel accepts.
func MaxListenerBacklog() int {
	backlogOnce.Do(func() {
		fd, err := os.Open("/proc/sys/net/core/somaxconn")
		if err != nil {
			return
		}
		defer func() {
			_ = fd.Close()
		}()
		line, readErr := bufio.NewReader(fd).ReadString('\n')
		if readErr != nil && line == "" {
			return
		}
		n, parseErr := strconv.Atoi(strings.TrimSpace(line))
		if parseErr != nil || n < 1 {
			return
		}
		somaxconn = maxAckBacklog(n)
	})
	return somaxconn
}

func maxAckBacklog(n int) int {
	size := 16
	if ok, _ := kernel.Check(4, 1, 0); ok {
		size = 32
	}
	maxAck := 1<<size - 1
	if n > maxAck {
		n = maxAck
	}
	return n
}
