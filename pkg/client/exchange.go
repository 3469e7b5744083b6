// Package client performs one-shot discovery requests against a Supervisor
// and correlates the replies.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/morezero/cluster-supervisor/pkg/addr"
	"github.com/morezero/cluster-supervisor/pkg/message"
	"github.com/morezero/cluster-supervisor/pkg/transport"
)

const logPrefix = "client:exchange"

const (
	DefaultTimeout = 5 * time.Second
	readBufferSize = 64 * 1024
)

// Request describes one exchange.
type Request struct {
	// Kind is transport.KindTCP or transport.KindUDP.
	Kind transport.Kind
	Dest addr.AppAddr
	// Build returns the request message. callback is the bound callback
	// listener, or NoAddr when Callback is empty.
	Build func(callback addr.AppAddr) (*message.Message, error)
	// Callback, when set on a UDP request, is where the request socket binds;
	// its port is what Build sees. Otherwise UDP binds an ephemeral port.
	Callback string
	// Reply is the descriptor of the prefix-less reply frames.
	Reply *message.Descriptor
	// StopAfterFirst returns as soon as one reply is decoded.
	StopAfterFirst bool
	Timeout        time.Duration
	Limits         transport.Limits
}

// Exchange sends one request and accumulates replies until the peer closes,
// the first reply arrives (StopAfterFirst), or the deadline passes. It
// succeeds iff at least one reply was decoded. It never retries.
func Exchange(ctx context.Context, req Request) Result[[]*message.Message] {
	if req.Timeout <= 0 {
		req.Timeout = DefaultTimeout
	}
	if req.Limits.MaxBufferedBytes <= 0 {
		req.Limits = transport.DefaultLimits()
	}
	ctx, cancel := context.WithTimeout(ctx, req.Timeout)
	defer cancel()
	deadline, _ := ctx.Deadline()

	var (
		callback net.PacketConn
		cbAddr   = addr.NoAddr
	)
	if req.Callback != "" {
		pc, err := net.ListenPacket("udp4", req.Callback)
		if err != nil {
			return Fail[[]*message.Message]("listen callback %s: %v", req.Callback, err)
		}
		defer pc.Close()
		callback = pc
		cbAddr = addr.FromNetAddr(pc.LocalAddr())
	}

	m, err := req.Build(cbAddr)
	if err != nil {
		return Fail[[]*message.Message]("build request: %v", err)
	}
	payload, err := message.Serialize(m, false)
	if err != nil {
		return Fail[[]*message.Message]("encode %s: %v", m.Descriptor.Name(), err)
	}

	var (
		read    func() ([]*message.Message, error)
		sendErr error
	)
	if req.Kind == transport.KindTCP {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", req.Dest.String())
		if err != nil {
			return Fail[[]*message.Message]("connect tcp %s: %v", req.Dest, err)
		}
		defer conn.Close()
		_ = conn.SetDeadline(deadline)
		stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
		defer stop()

		_, sendErr = conn.Write(payload)
		read = func() ([]*message.Message, error) { return readStream(ctx, conn, req) }
	} else {
		// Replies may come from any source port, so the socket stays unconnected.
		if callback == nil {
			pc, err := net.ListenPacket("udp4", ":0")
			if err != nil {
				return Fail[[]*message.Message]("listen udp: %v", err)
			}
			defer pc.Close()
			callback = pc
		}
		dest, err := net.ResolveUDPAddr("udp4", req.Dest.String())
		if err != nil {
			return Fail[[]*message.Message]("connect udp %s: %v", req.Dest, err)
		}
		_ = callback.SetDeadline(deadline)
		stop := context.AfterFunc(ctx, func() { _ = callback.SetDeadline(time.Now()) })
		defer stop()

		_, sendErr = callback.WriteTo(payload, dest)
		read = func() ([]*message.Message, error) { return readDatagrams(ctx, callback, req) }
	}
	if sendErr != nil {
		return Fail[[]*message.Message]("send %s to %s: %v", m.Descriptor.Name(), req.Dest, sendErr)
	}
	if req.Reply == nil {
		return Fail[[]*message.Message]("%s expects no reply", m.Descriptor.Name())
	}

	msgs, err := read()
	if len(msgs) > 0 {
		if err != nil {
			slog.Debug(fmt.Sprintf("%s - %s: %d replies, then %v", logPrefix, m.Descriptor.Name(), len(msgs), err))
		}
		return OK(msgs)
	}
	if err == nil {
		err = errors.New("no reply")
	}
	return Fail[[]*message.Message]("%s to %s: %v", m.Descriptor.Name(), req.Dest, err)
}

// Send delivers one framed message over UDP and expects nothing back.
func Send(ctx context.Context, dest addr.AppAddr, m *message.Message) Result[struct{}] {
	payload, err := message.Serialize(m, false)
	if err != nil {
		return Fail[struct{}]("encode %s: %v", m.Descriptor.Name(), err)
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", dest.String())
	if err != nil {
		return Fail[struct{}]("connect udp %s: %v", dest, err)
	}
	defer conn.Close()
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(dl)
	}
	if _, err := conn.Write(payload); err != nil {
		return Fail[struct{}]("send %s to %s: %v", m.Descriptor.Name(), dest, err)
	}
	return OK(struct{}{})
}

// readStream reassembles reply bodies until the peer closes.
func readStream(ctx context.Context, conn net.Conn, req Request) ([]*message.Message, error) {
	r := transport.NewBodyReassembler(req.Reply, req.Limits)
	var out []*message.Message
	buf := make([]byte, readBufferSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			msgs, ferr := r.Feed(buf[:n])
			out = append(out, msgs...)
			if ferr != nil {
				return out, ferr
			}
			if req.StopAfterFirst && len(out) > 0 {
				return out[:1], nil
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return out, err
			}
			if r.Buffered() > 0 {
				return out, fmt.Errorf("peer closed with %d unconsumed bytes", r.Buffered())
			}
			return out, nil
		}
	}
}

// readDatagrams decodes each datagram, from any sender, as one reply body
// until the deadline.
func readDatagrams(ctx context.Context, pc net.PacketConn, req Request) ([]*message.Message, error) {
	var out []*message.Message
	buf := make([]byte, readBufferSize)
	for {
		n, _, err := pc.ReadFrom(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				return out, context.DeadlineExceeded
			}
			return out, err
		}
		m, _, derr := message.DeserializeBody(buf[:n], req.Reply)
		if derr != nil {
			slog.Warn(fmt.Sprintf("%s - dropped %d-byte reply: %v", logPrefix, n, derr))
			continue
		}
		out = append(out, m)
		if req.StopAfterFirst {
			return out, nil
		}
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
	}
}
