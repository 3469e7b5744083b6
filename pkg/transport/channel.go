// Package transport moves framed messages over TCP, UDP and subnet broadcast.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/morezero/cluster-supervisor/pkg/addr"
)

var ErrChannelClosed = errors.New("transport: channel closed")

// Kind is the transport a request arrived on and its reply leaves by.
type Kind int

const (
	KindTCP Kind = iota
	KindUDP
	KindBroadcast
)

func (k Kind) String() string {
	switch k {
	case KindTCP:
		return "tcp"
	case KindUDP:
		return "udp"
	case KindBroadcast:
		return "broadcast"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// ConnectionInfo describes one side of an exchange.
type ConnectionInfo struct {
	Source addr.AppAddr
	Dest   addr.AppAddr
	Kind   Kind
}

// Channel is the reply capability bound to one inbound request.
type Channel interface {
	Info() ConnectionInfo
	Send(ctx context.Context, payload []byte) error
	Close() error
}

// tcpChannel writes on the accepted connection the request came from.
type tcpChannel struct {
	info ConnectionInfo
	conn net.Conn

	mu     sync.Mutex
	closed bool
}

// NewTCPChannel wraps an open connection.
func NewTCPChannel(conn net.Conn) Channel {
	return &tcpChannel{
		conn: conn,
		info: ConnectionInfo{
			Source: addr.FromNetAddr(conn.LocalAddr()),
			Dest:   addr.FromNetAddr(conn.RemoteAddr()),
			Kind:   KindTCP,
		},
	}
}

func (c *tcpChannel) Info() ConnectionInfo { return c.info }

func (c *tcpChannel) Send(ctx context.Context, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrChannelClosed
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(dl)
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	if _, err := c.conn.Write(payload); err != nil {
		return fmt.Errorf("transport: tcp write to %s: %w", c.info.Dest, err)
	}
	return nil
}

func (c *tcpChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

// udpChannel sends each payload from a freshly dialled datagram socket.
type udpChannel struct {
	info ConnectionInfo
}

// NewUDPChannel replies to dest by unicast.
func NewUDPChannel(source, dest addr.AppAddr) Channel {
	return &udpChannel{info: ConnectionInfo{Source: source, Dest: dest, Kind: KindUDP}}
}

func (c *udpChannel) Info() ConnectionInfo { return c.info }

func (c *udpChannel) Send(ctx context.Context, payload []byte) error {
	var d net.Dialer
	return sendDatagram(ctx, d, "udp", c.info.Dest.String(), payload)
}

func (c *udpChannel) Close() error { return nil }

// broadcastChannel sends to <broadcast host>:<port> with SO_BROADCAST set.
type broadcastChannel struct {
	info ConnectionInfo
}

// NewBroadcastChannel replies to whoever listens on port at the broadcast
// address. host is normally 255.255.255.255; tests point it at loopback.
func NewBroadcastChannel(source addr.AppAddr, host string, port uint16) Channel {
	return &broadcastChannel{info: ConnectionInfo{
		Source: source,
		Dest:   addr.AppAddr{Host: host, Port: port},
		Kind:   KindBroadcast,
	}}
}

func (c *broadcastChannel) Info() ConnectionInfo { return c.info }

func (c *broadcastChannel) Send(ctx context.Context, payload []byte) error {
	d := net.Dialer{Control: broadcastControl}
	return sendDatagram(ctx, d, "udp4", c.info.Dest.String(), payload)
}

func (c *broadcastChannel) Close() error { return nil }

func sendDatagram(ctx context.Context, d net.Dialer, network, address string, payload []byte) error {
	conn, err := d.DialContext(ctx, network, address)
	if err != nil {
		return fmt.Errorf("transport: dial %s %s: %w", network, address, err)
	}
	defer conn.Close()
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(dl)
	}
	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("transport: send %s %s: %w", network, address, err)
	}
	return nil
}
