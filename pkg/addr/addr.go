// Package addr defines the host/port address value shared by the protocol layers.
package addr

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"strconv"
)

var ErrNotIPv4 = errors.New("addr: not an IPv4 address")

// AppAddr is a comparable host/port pair. The zero value is NoAddr.
type AppAddr struct {
	Host string
	Port uint16
}

// NoAddr is the "no address" sentinel. Compare against it; never use nil.
var NoAddr = AppAddr{}

// IsNone reports whether a carries no usable address.
func (a AppAddr) IsNone() bool {
	return a.Port == 0 && (a.Host == "" || a.Host == "0.0.0.0")
}

func (a AppAddr) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(int(a.Port)))
}

// Parse reads "host:port".
func Parse(s string) (AppAddr, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return NoAddr, fmt.Errorf("addr: parse %q: %w", s, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return NoAddr, fmt.Errorf("addr: parse port %q: %w", portStr, err)
	}
	return AppAddr{Host: host, Port: uint16(port)}, nil
}

// FromNetAddr converts a *net.UDPAddr or *net.TCPAddr.
func FromNetAddr(na net.Addr) AppAddr {
	switch a := na.(type) {
	case *net.UDPAddr:
		return AppAddr{Host: a.IP.String(), Port: uint16(a.Port)}
	case *net.TCPAddr:
		return AppAddr{Host: a.IP.String(), Port: uint16(a.Port)}
	case nil:
		return NoAddr
	default:
		parsed, err := Parse(na.String())
		if err != nil {
			return NoAddr
		}
		return parsed
	}
}

// UDPAddr resolves a to a *net.UDPAddr without DNS for literal IPs.
func (a AppAddr) UDPAddr() (*net.UDPAddr, error) {
	return net.ResolveUDPAddr("udp", a.String())
}

// Packed returns the IPv4 address as a big-endian uint32 plus the port, the
// form addresses take inside registration frames.
func (a AppAddr) Packed() (uint32, uint16, error) {
	if a.IsNone() {
		return 0, 0, nil
	}
	host := a.Host
	if host == "" {
		host = "0.0.0.0"
	}
	ip := net.ParseIP(host)
	if ip == nil {
		ips, err := net.LookupIP(host)
		if err != nil || len(ips) == 0 {
			return 0, 0, fmt.Errorf("addr: resolve %q: %w", host, ErrNotIPv4)
		}
		ip = ips[0]
	}
	if ip.IsUnspecified() {
		return 0, a.Port, nil
	}
	v4 := ip.To4()
	if v4 == nil {
		return 0, 0, fmt.Errorf("addr: %q: %w", host, ErrNotIPv4)
	}
	return binary.BigEndian.Uint32(v4), a.Port, nil
}

// Unpack is the inverse of Packed. A zero ip and port yields NoAddr.
func Unpack(ip uint32, port uint16) AppAddr {
	if ip == 0 && port == 0 {
		return NoAddr
	}
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], ip)
	return AppAddr{Host: net.IP(b[:]).String(), Port: port}
}
