package sys

import (
	"net"
	"strings"
	"unsafe"

	"github.com/brickingsoft/errors"
	"golang.org/x/sys/unix"
)

// ResolveTCPAddr resolves a tcp/tcp4/tcp6 address and decides the socket
// family the way the net package does: 4-in-6 literals collapse to v4 unless
// the network pins v6.
func ResolveTCPAddr(network string, address string) (addr *net.TCPAddr, family int, err error) {
	address = strings.TrimSpace(address)
	if address == "" {
		err = errors.New("address is invalid")
		return
	}
	switch network {
	case "tcp", "tcp4", "tcp6":
	default:
		err = net.UnknownNetworkError(network)
		return
	}
	ipv6only := strings.HasSuffix(network, "6")
	a, resolveErr := net.ResolveTCPAddr(network, address)
	if resolveErr != nil {
		err = resolveErr
		return
	}
	if !ipv6only && a.AddrPort().Addr().Is4In6() {
		a.IP = a.IP.To4()
	}
	switch len(a.IP) {
	case net.IPv4len:
		family = unix.AF_INET
	case net.IPv6len:
		family = unix.AF_INET6
	case 0:
		family = unix.AF_INET
		a.IP = net.IPv4zero.To4()
		if ipv6only {
			family = unix.AF_INET6
			a.IP = net.IPv6zero
		}
	default:
		err = errors.New("ip is invalid")
		return
	}
	addr = a
	return
}

// TCPAddrToSockaddr builds the bindable sockaddr for the resolved family.
func TCPAddrToSockaddr(family int, a *net.TCPAddr) (unix.Sockaddr, error) {
	switch family {
	case unix.AF_INET:
		sa := &unix.SockaddrInet4{Port: a.Port}
		if ip := a.IP.To4(); ip != nil {
			copy(sa.Addr[:], ip)
		}
		return sa, nil
	case unix.AF_INET6:
		sa := &unix.SockaddrInet6{Port: a.Port}
		if ip := a.IP.To16(); ip != nil {
			copy(sa.Addr[:], ip)
		}
		if a.Zone != "" {
			if ifi, ifiErr := net.InterfaceByName(a.Zone); ifiErr == nil {
				sa.ZoneId = uint32(ifi.Index)
			}
		}
		return sa, nil
	}
	return nil, errors.New("address family is invalid")
}

// RawToSockaddr decodes the raw storage the kernel filled during an accept.
func RawToSockaddr(rsa *unix.RawSockaddrAny) (unix.Sockaddr, error) {
	switch rsa.Addr.Family {
	case unix.AF_INET:
		pp := (*unix.RawSockaddrInet4)(unsafe.Pointer(rsa))
		sa := new(unix.SockaddrInet4)
		p := (*[2]byte)(unsafe.Pointer(&pp.Port))
		sa.Port = int(p[0])<<8 + int(p[1])
		sa.Addr = pp.Addr
		return sa, nil
	case unix.AF_INET6:
		pp := (*unix.RawSockaddrInet6)(unsafe.Pointer(rsa))
		sa := new(unix.SockaddrInet6)
		p := (*[2]byte)(unsafe.Pointer(&pp.Port))
		sa.Port = int(p[0])<<8 + int(p[1])
		sa.ZoneId = pp.Scope_id
		sa.Addr = pp.Addr
		return sa, nil
	case unix.AF_UNIX:
		pp := (*unix.RawSockaddrUnix)(unsafe.Pointer(rsa))
		sa := new(unix.SockaddrUnix)
		// decode from a copy; the raw storage is shared scratch and must
		// not be altered
		path := pp.Path
		if path[0] == 0 {
			// abstract socket, rewrite the leading NUL for display
			path[0] = '@'
		}
		n := 0
		for n < len(path) && path[n] != 0 {
			n++
		}
		name := make([]byte, n)
		for i := 0; i < n; i++ {
			name[i] = byte(path[i])
		}
		sa.Name = string(name)
		return sa, nil
	}
	return nil, unix.EAFNOSUPPORT
}

// SockaddrToAddr maps a decoded sockaddr onto the net address type of the
// listener's network.
func SockaddrToAddr(network string, sa unix.Sockaddr) (addr net.Addr) {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		switch network {
		case "tcp", "tcp4":
			addr = &net.TCPAddr{IP: append([]byte{}, sa.Addr[:]...), Port: sa.Port}
		case "udp", "udp4":
			addr = &net.UDPAddr{IP: append([]byte{}, sa.Addr[:]...), Port: sa.Port}
		}
	case *unix.SockaddrInet6:
		var zone string
		if sa.ZoneId != 0 {
			if ifi, ifiErr := net.InterfaceByIndex(int(sa.ZoneId)); ifiErr == nil {
				zone = ifi.Name
			}
		}
		switch network {
		case "tcp", "tcp6":
			addr = &net.TCPAddr{IP: append([]byte{}, sa.Addr[:]...), Port: sa.Port, Zone: zone}
		case "udp", "udp6":
			addr = &net.UDPAddr{IP: append([]byte{}, sa.Addr[:]...), Port: sa.Port, Zone: zone}
		}
	case *unix.SockaddrUnix:
		addr = &net.UnixAddr{Net: network, Name: sa.Name}
	}
	return
}
