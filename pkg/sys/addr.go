package sys

import (
	"net"
	"strings"

	"github.com/brickingsoft/errors"
	"golang.org/x/sys/unix"
)

var (
	ErrInvalidAddr    = errors.Define("address is invalid")
	ErrInvalidNetwork = errors.Define("network is invalid")
)

func ResolveAddr(network string, address string) (addr net.Addr, family int, err error) {
	address = strings.TrimSpace(address)
	if address == "" {
		err = ErrInvalidAddr
		return
	}
	switch network {
	case "tcp", "tcp4", "tcp6":
		a, resolveErr := net.ResolveTCPAddr(network, address)
		if resolveErr != nil {
			err = errors.From(ErrInvalidAddr, errors.WithWrap(resolveErr))
			return
		}
		a.IP, family = normalizeIP(a.IP, network)
		addr = a
		break
	case "udp", "udp4", "udp6":
		a, resolveErr := net.ResolveUDPAddr(network, address)
		if resolveErr != nil {
			err = errors.From(ErrInvalidAddr, errors.WithWrap(resolveErr))
			return
		}
		a.IP, family = normalizeIP(a.IP, network)
		addr = a
		break
	case "unix", "unixgram", "unixpacket":
		family = unix.AF_UNIX
		addr, err = net.ResolveUnixAddr(network, address)
		if err != nil {
			err = errors.From(ErrInvalidAddr, errors.WithWrap(err))
			return
		}
		break
	default:
		err = ErrInvalidNetwork
		return
	}
	return
}

func normalizeIP(ip net.IP, network string) (net.IP, int) {
	if len(ip) == 0 {
		if strings.HasSuffix(network, "6") {
			return net.IPv6zero, unix.AF_INET6
		}
		return net.IPv4zero.To4(), unix.AF_INET
	}
	if ip4 := ip.To4(); ip4 != nil && !strings.HasSuffix(network, "6") {
		return ip4, unix.AF_INET
	}
	return ip.To16(), unix.AF_INET6
}

// AddrFamily reports the socket family an address needs.
func AddrFamily(addr net.Addr) int {
	switch a := addr.(type) {
	case *net.TCPAddr:
		if a.IP.To4() != nil || len(a.IP) == 0 {
			return unix.AF_INET
		}
		return unix.AF_INET6
	case *net.UDPAddr:
		if a.IP.To4() != nil || len(a.IP) == 0 {
			return unix.AF_INET
		}
		return unix.AF_INET6
	case *net.UnixAddr:
		return unix.AF_UNIX
	default:
		return unix.AF_UNSPEC
	}
}

func AddrToSockaddr(a net.Addr) (sa unix.Sockaddr, err error) {
	var (
		ip   net.IP
		port int
		zone string
	)
	switch addr := a.(type) {
	case *net.TCPAddr:
		ip, port, zone = addr.IP, addr.Port, addr.Zone
		break
	case *net.UDPAddr:
		ip, port, zone = addr.IP, addr.Port, addr.Zone
		break
	case *net.UnixAddr:
		sa = &unix.SockaddrUnix{Name: addr.Name}
		return
	default:
		err = ErrInvalidAddr
		return
	}
	if ip4 := ip.To4(); ip4 != nil || len(ip) == 0 {
		sa4 := &unix.SockaddrInet4{Port: port}
		if ip4 != nil {
			copy(sa4.Addr[:], ip4)
		}
		sa = sa4
		return
	}
	if len(ip) != net.IPv6len {
		err = ErrInvalidAddr
		return
	}
	sa6 := &unix.SockaddrInet6{Port: port}
	copy(sa6.Addr[:], ip)
	if zone != "" {
		if ifi, ifiErr := net.InterfaceByName(zone); ifiErr == nil {
			sa6.ZoneId = uint32(ifi.Index)
		}
	}
	sa = sa6
	return
}

// SockaddrToAddr converts sa into the net.Addr flavour matching sotype.
func SockaddrToAddr(sotype int, sa unix.Sockaddr) (addr net.Addr) {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		ip := append(net.IP{}, sa.Addr[:]...)
		if sotype == unix.SOCK_DGRAM {
			addr = &net.UDPAddr{IP: ip, Port: sa.Port}
		} else {
			addr = &net.TCPAddr{IP: ip, Port: sa.Port}
		}
		break
	case *unix.SockaddrInet6:
		var zone string
		if sa.ZoneId != 0 {
			if ifi, err := net.InterfaceByIndex(int(sa.ZoneId)); err == nil {
				zone = ifi.Name
			}
		}
		ip := append(net.IP{}, sa.Addr[:]...)
		if sotype == unix.SOCK_DGRAM {
			addr = &net.UDPAddr{IP: ip, Port: sa.Port, Zone: zone}
		} else {
			addr = &net.TCPAddr{IP: ip, Port: sa.Port, Zone: zone}
		}
		break
	case *unix.SockaddrUnix:
		network := "unix"
		switch sotype {
		case unix.SOCK_DGRAM:
			network = "unixgram"
			break
		case unix.SOCK_SEQPACKET:
			network = "unixpacket"
			break
		}
		addr = &net.UnixAddr{Net: network, Name: sa.Name}
		break
	}
	return
}
