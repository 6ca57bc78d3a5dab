package sys_test

import (
	"net"
	"testing"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/brickingsoft/riv/pkg/sys"
)

func TestResolveTCPAddr(t *testing.T) {
	addr, family, err := sys.ResolveTCPAddr("tcp", "127.0.0.1:8080")
	if err != nil {
		t.Fatal(err)
	}
	if family != unix.AF_INET {
		t.Error("family:", family)
	}
	if addr.Port != 8080 || !addr.IP.Equal(net.IPv4(127, 0, 0, 1)) {
		t.Error("addr:", addr)
	}

	addr, family, err = sys.ResolveTCPAddr("tcp", "[::1]:9090")
	if err != nil {
		t.Fatal(err)
	}
	if family != unix.AF_INET6 {
		t.Error("family:", family)
	}
	if addr.Port != 9090 {
		t.Error("addr:", addr)
	}

	// wildcard picks v4 unless the network pins v6
	_, family, err = sys.ResolveTCPAddr("tcp", ":0")
	if err != nil {
		t.Fatal(err)
	}
	if family != unix.AF_INET {
		t.Error("wildcard family:", family)
	}
	_, family, err = sys.ResolveTCPAddr("tcp6", ":0")
	if err != nil {
		t.Fatal(err)
	}
	if family != unix.AF_INET6 {
		t.Error("tcp6 wildcard family:", family)
	}

	if _, _, err = sys.ResolveTCPAddr("unix", "/tmp/x.sock"); err == nil {
		t.Error("unknown network accepted")
	}
	if _, _, err = sys.ResolveTCPAddr("tcp", ""); err == nil {
		t.Error("empty address accepted")
	}
}

func TestRawToSockaddrInet4(t *testing.T) {
	rsa := new(unix.RawSockaddrAny)
	pp := (*unix.RawSockaddrInet4)(unsafe.Pointer(rsa))
	pp.Family = unix.AF_INET
	pp.Addr = [4]byte{192, 168, 1, 20}
	port := (*[2]byte)(unsafe.Pointer(&pp.Port))
	port[0] = 0x1f
	port[1] = 0x90

	sa, err := sys.RawToSockaddr(rsa)
	if err != nil {
		t.Fatal(err)
	}
	sa4, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		t.Fatalf("decoded %T", sa)
	}
	if sa4.Port != 8080 {
		t.Error("port:", sa4.Port)
	}
	if sa4.Addr != [4]byte{192, 168, 1, 20} {
		t.Error("addr:", sa4.Addr)
	}

	addr := sys.SockaddrToAddr("tcp", sa)
	tcpAddr, ok := addr.(*net.TCPAddr)
	if !ok {
		t.Fatalf("mapped %T", addr)
	}
	if tcpAddr.Port != 8080 || !tcpAddr.IP.Equal(net.IPv4(192, 168, 1, 20)) {
		t.Error("addr:", tcpAddr)
	}
}

// Decoding is pure: the raw storage may be a shared scratch buffer reused
// by the next accept, so the decoder must never write into it.
func TestRawToSockaddrUnixKeepsScratch(t *testing.T) {
	rsa := new(unix.RawSockaddrAny)
	pp := (*unix.RawSockaddrUnix)(unsafe.Pointer(rsa))
	pp.Family = unix.AF_UNIX
	for i, b := range []byte("@ring") {
		if i == 0 {
			// abstract socket, leading NUL
			pp.Path[0] = 0
			continue
		}
		pp.Path[i] = int8(b)
	}

	sa, err := sys.RawToSockaddr(rsa)
	if err != nil {
		t.Fatal(err)
	}
	saUnix, ok := sa.(*unix.SockaddrUnix)
	if !ok {
		t.Fatalf("decoded %T", sa)
	}
	if saUnix.Name != "@ring" {
		t.Error("name:", saUnix.Name)
	}
	if pp.Path[0] != 0 {
		t.Error("decode wrote into the scratch buffer:", pp.Path[0])
	}

	// a second decode of the same scratch sees the same peer
	again, err := sys.RawToSockaddr(rsa)
	if err != nil {
		t.Fatal(err)
	}
	if again.(*unix.SockaddrUnix).Name != "@ring" {
		t.Error("second decode:", again.(*unix.SockaddrUnix).Name)
	}
}

func TestRawToSockaddrUnsupported(t *testing.T) {
	rsa := new(unix.RawSockaddrAny)
	rsa.Addr.Family = unix.AF_PACKET
	if _, err := sys.RawToSockaddr(rsa); err == nil {
		t.Error("unsupported family decoded")
	}
}
