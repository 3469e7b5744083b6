package client

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morezero/cluster-supervisor/pkg/addr"
	"github.com/morezero/cluster-supervisor/pkg/component"
	"github.com/morezero/cluster-supervisor/pkg/message"
	"github.com/morezero/cluster-supervisor/pkg/transport"
)

func livenessBody(t *testing.T, id uint64) []byte {
	t.Helper()
	m, err := message.NewMessage(message.LivenessReply, int32(component.CellApp), id, int8(component.StateRunning))
	require.NoError(t, err)
	b, err := message.Serialize(m, true)
	require.NoError(t, err)
	return b
}

// serveOnce accepts one connection, reads the request, writes replies and
// optionally closes.
func serveOnce(t *testing.T, replies []byte, closeAfter bool) addr.AppAddr {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		buf := make([]byte, 64)
		_, _ = conn.Read(buf)
		// Split the reply to exercise reassembly.
		half := len(replies) / 2
		_, _ = conn.Write(replies[:half])
		time.Sleep(10 * time.Millisecond)
		_, _ = conn.Write(replies[half:])
		if closeAfter {
			conn.Close()
			return
		}
		time.Sleep(2 * time.Second)
		conn.Close()
	}()
	return addr.FromNetAddr(ln.Addr())
}

func lookApp(addr.AppAddr) (*message.Message, error) {
	return message.NewMessage(message.LookApp)
}

func TestResult(t *testing.T) {
	ok := OK(3)
	assert.True(t, ok.Success)
	assert.Equal(t, "ok: 3", ok.String())

	bad := Fail[int]("connect %s", "x")
	assert.False(t, bad.Success)
	assert.Equal(t, "connect x", bad.Text)
	assert.Equal(t, "failed: connect x", bad.String())
}

func TestExchangeReadsUntilClose(t *testing.T) {
	replies := append(livenessBody(t, 1), livenessBody(t, 2)...)
	dest := serveOnce(t, replies, true)

	res := Exchange(context.Background(), Request{
		Kind:    transport.KindTCP,
		Dest:    dest,
		Build:   lookApp,
		Reply:   message.LivenessReply,
		Timeout: 2 * time.Second,
	})
	require.True(t, res.Success, res.Text)
	require.Len(t, res.Value, 2)
	id, err := message.ValueAs[uint64](res.Value[1], "componentID")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), id)
}

func TestExchangeStopAfterFirst(t *testing.T) {
	dest := serveOnce(t, livenessBody(t, 7), false)

	start := time.Now()
	res := Exchange(context.Background(), Request{
		Kind:           transport.KindTCP,
		Dest:           dest,
		Build:          lookApp,
		Reply:          message.LivenessReply,
		StopAfterFirst: true,
		Timeout:        time.Second,
	})
	require.True(t, res.Success, res.Text)
	assert.Len(t, res.Value, 1)
	assert.Less(t, time.Since(start), time.Second)
}

func TestExchangeDeadlineKeepsPartialResults(t *testing.T) {
	dest := serveOnce(t, livenessBody(t, 7), false)

	res := Exchange(context.Background(), Request{
		Kind:    transport.KindTCP,
		Dest:    dest,
		Build:   lookApp,
		Reply:   message.LivenessReply,
		Timeout: 200 * time.Millisecond,
	})
	require.True(t, res.Success, res.Text)
	assert.Len(t, res.Value, 1)
}

func TestExchangeConnectFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	dest := addr.FromNetAddr(ln.Addr())
	ln.Close()

	res := Exchange(context.Background(), Request{
		Kind:    transport.KindTCP,
		Dest:    dest,
		Build:   lookApp,
		Reply:   message.LivenessReply,
		Timeout: time.Second,
	})
	assert.False(t, res.Success)
	assert.True(t, strings.HasPrefix(res.Text, "connect"), res.Text)
}

func TestExchangeUDPTimeoutWithoutReply(t *testing.T) {
	pc, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()

	res := Exchange(context.Background(), Request{
		Kind:     transport.KindUDP,
		Dest:     addr.FromNetAddr(pc.LocalAddr()),
		Callback: "127.0.0.1:0",
		Build:    lookApp,
		Reply:    message.LivenessReply,
		Timeout:  100 * time.Millisecond,
	})
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Text)
}

func TestExchangeUDPCallback(t *testing.T) {
	pc, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()
	reply := livenessBody(t, 5)

	go func() {
		buf := make([]byte, 64)
		n, _, err := pc.ReadFrom(buf)
		if err != nil {
			return
		}
		m, _, err := message.Deserialize(buf[:n], message.BuildCatalog().Table(component.Supervisor))
		if err != nil {
			return
		}
		port, err := message.ValueAs[uint16](m, "callbackPort")
		if err != nil {
			return
		}
		conn, err := net.Dial("udp", addr.AppAddr{Host: "127.0.0.1", Port: port}.String())
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = conn.Write(reply)
	}()

	res := Exchange(context.Background(), Request{
		Kind:     transport.KindUDP,
		Dest:     addr.FromNetAddr(pc.LocalAddr()),
		Callback: "127.0.0.1:0",
		Build: func(cb addr.AppAddr) (*message.Message, error) {
			return message.NewMessage(message.AllocateID, int32(component.CellApp), uint64(0), int32(0), cb.Port)
		},
		Reply:          message.LivenessReply,
		StopAfterFirst: true,
		Timeout:        2 * time.Second,
	})
	require.True(t, res.Success, res.Text)
	id, err := message.ValueAs[uint64](res.Value[0], "componentID")
	require.NoError(t, err)
	assert.Equal(t, uint64(5), id)
}

func TestExchangeUDPReplyFromOtherPort(t *testing.T) {
	pc, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()
	reply := livenessBody(t, 6)

	go func() {
		buf := make([]byte, 64)
		_, from, err := pc.ReadFrom(buf)
		if err != nil {
			return
		}
		conn, err := net.Dial("udp", from.String())
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = conn.Write(reply)
	}()

	res := Exchange(context.Background(), Request{
		Kind:           transport.KindUDP,
		Dest:           addr.FromNetAddr(pc.LocalAddr()),
		Build:          lookApp,
		Reply:          message.LivenessReply,
		StopAfterFirst: true,
		Timeout:        2 * time.Second,
	})
	require.True(t, res.Success, res.Text)
	id, err := message.ValueAs[uint64](res.Value[0], "componentID")
	require.NoError(t, err)
	assert.Equal(t, uint64(6), id)
}

func TestLivenessUnknownProbe(t *testing.T) {
	c := New(Options{})
	res := c.Liveness(context.Background(), component.Client, addr.NoAddr)
	assert.False(t, res.Success)
	assert.Contains(t, res.Text, "no probe")
}

func TestSendRegister(t *testing.T) {
	pc, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()

	c := New(Options{UDPAddr: addr.FromNetAddr(pc.LocalAddr())})
	res := c.Register(context.Background(), component.Info{Type: component.CellApp, ID: 3})
	require.True(t, res.Success, res.Text)

	_ = pc.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1024)
	n, _, err := pc.ReadFrom(buf)
	require.NoError(t, err)
	m, rest, err := message.Deserialize(buf[:n], message.BuildCatalog().Table(component.Supervisor))
	require.NoError(t, err)
	assert.Empty(t, rest)
	assert.Equal(t, message.IDRegister, m.Descriptor.ID())
	info, err := component.InfoFromValues(m.Values)
	require.NoError(t, err)
	assert.Equal(t, component.ID(3), info.ID)
}

func TestDeregisterOptionalID(t *testing.T) {
	pc, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()
	c := New(Options{UDPAddr: addr.FromNetAddr(pc.LocalAddr())})

	res := c.Deregister(context.Background(), component.CellApp, component.SomeID(component.NoID))
	assert.False(t, res.Success)
	assert.Contains(t, res.Text, "deregister")

	for _, tc := range []struct {
		typ  component.Type
		id   component.OptionalID
		wire uint64
	}{
		{component.Logger, component.NoneID(), 0},
		{component.CellApp, component.SomeID(21), 21},
	} {
		res := c.Deregister(context.Background(), tc.typ, tc.id)
		require.True(t, res.Success, res.Text)

		_ = pc.SetReadDeadline(time.Now().Add(2 * time.Second))
		buf := make([]byte, 64)
		n, _, err := pc.ReadFrom(buf)
		require.NoError(t, err)
		m, _, err := message.Deserialize(buf[:n], message.BuildCatalog().Table(component.Supervisor))
		require.NoError(t, err)
		id, err := message.ValueAs[uint64](m, "componentID")
		require.NoError(t, err)
		assert.Equal(t, tc.wire, id, "%s %s", tc.typ, tc.id)
	}
}
