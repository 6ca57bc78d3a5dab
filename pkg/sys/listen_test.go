//go:build linux

package sys_test

import (
	"net"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/brickingsoft/riv/pkg/sys"
)

func TestListen(t *testing.T) {
	sock, laddr, family, err := sys.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		_ = unix.Close(sock)
	}()
	if family != unix.AF_INET {
		t.Error("family:", family)
	}
	tcpAddr, ok := laddr.(*net.TCPAddr)
	if !ok {
		t.Fatalf("laddr %T", laddr)
	}
	if tcpAddr.Port == 0 {
		t.Error("port not assigned")
	}

	// the socket really listens
	conn, dialErr := net.Dial("tcp", tcpAddr.String())
	if dialErr != nil {
		t.Fatal(dialErr)
	}
	_ = conn.Close()
}

func TestListenInvalid(t *testing.T) {
	if _, _, _, err := sys.Listen("tcp", "invalid-host-name-.:0"); err == nil {
		t.Error("bogus address accepted")
	}
	if _, _, _, err := sys.Listen("udp", "127.0.0.1:0"); err == nil {
		t.Error("udp accepted")
	}
}

func TestMaxListenerBacklog(t *testing.T) {
	n := sys.MaxListenerBacklog()
	if n < 1 || n > 1<<16-1 {
		t.Error("backlog:", n)
	}
}
