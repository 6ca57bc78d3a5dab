//go:build linux

package sys

import (
	"net"
	"os"

	"github.com/brickingsoft/errors"
	"golang.org/x/sys/unix"
)

// Listen performs the synchronous OS glue for a stream listener: resolve,
// socket, address reuse, bind, listen. It returns the raw descriptor, the
// resolved local address, and the socket family. Pure setup, no cancellation
// concerns.
func Listen(network string, address string) (sock int, laddr net.Addr, family int, err error) {
	addr, fam, resolveErr := ResolveTCPAddr(network, address)
	if resolveErr != nil {
		err = errors.New("listen failed", errors.WithWrap(resolveErr))
		return
	}
	family = fam
	sock, err = unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		err = os.NewSyscallError("socket", err)
		return
	}
	if err = unix.SetsockoptInt(sock, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(sock)
		err = os.NewSyscallError("setsockopt", err)
		return
	}
	sa, saErr := TCPAddrToSockaddr(family, addr)
	if saErr != nil {
		_ = unix.Close(sock)
		err = saErr
		return
	}
	if err = unix.Bind(sock, sa); err != nil {
		_ = unix.Close(sock)
		err = os.NewSyscallError("bind", err)
		return
	}
	if err = unix.Listen(sock, MaxListenerBacklog()); err != nil {
		_ = unix.Close(sock)
		err = os.NewSyscallError("listen", err)
		return
	}
	if bound, boundErr := unix.Getsockname(sock); boundErr == nil {
		laddr = SockaddrToAddr(network, bound)
	} else {
		laddr = addr
	}
	return
}
