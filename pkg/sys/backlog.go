//go:build linux

package sys

import (
	"bufio"
	"os"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sys/unix"
)

var (
	somaxconn   = unix.SOMAXCONN
	backlogOnce sync.Once
)

// MaxListenerBacklog reads the system listen backlog, once.
func MaxListenerBacklog() int {
	backlogOnce.Do(func() {
		fd, openErr := os.Open("/proc/sys/net/core/somaxconn")
		if openErr != nil {
			return
		}
		defer func() {
			_ = fd.Close()
		}()
		line, readErr := bufio.NewReader(fd).ReadString('\n')
		if readErr != nil {
			return
		}
		n, parseErr := strconv.Atoi(strings.TrimSpace(line))
		if parseErr != nil || n == 0 {
			return
		}
		// the kernel stores backlog in a 16-bit field
		if n > 1<<16-1 {
			n = 1<<16 - 1
		}
		somaxconn = n
	})
	return somaxconn
}
