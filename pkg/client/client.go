package client

import (
	"context"
	"fmt"
	"time"

	"github.com/morezero/cluster-supervisor/pkg/addr"
	"github.com/morezero/cluster-supervisor/pkg/component"
	"github.com/morezero/cluster-supervisor/pkg/message"
	"github.com/morezero/cluster-supervisor/pkg/transport"
)

// Options configures a Client.
type Options struct {
	// UDPAddr and TCPAddr are the Supervisor's public sockets.
	UDPAddr addr.AppAddr
	TCPAddr addr.AppAddr
	// Identity is who the requests come from.
	Identity component.Info
	// CallbackHost is where broadcast replies are received, default 0.0.0.0.
	CallbackHost string
	Timeout      time.Duration
}

// Client issues discovery requests. It holds no connection state.
type Client struct {
	opts Options
}

// New creates a Client.
func New(opts Options) *Client {
	if opts.CallbackHost == "" {
		opts.CallbackHost = "0.0.0.0"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Client{opts: opts}
}

func (c *Client) callback() string {
	return addr.AppAddr{Host: c.opts.CallbackHost, Port: 0}.String()
}

// Register announces info over UDP. Nothing comes back.
func (c *Client) Register(ctx context.Context, info component.Info) Result[struct{}] {
	values, err := info.ToValues()
	if err != nil {
		return Fail[struct{}]("register: %v", err)
	}
	m, err := message.NewMessage(message.Register, values...)
	if err != nil {
		return Fail[struct{}]("register: %v", err)
	}
	return Send(ctx, c.opts.UDPAddr, m)
}

// Deregister removes a component. Singleton types may pass NoneID; the
// Supervisor rejects an absent id for any other type.
func (c *Client) Deregister(ctx context.Context, t component.Type, id component.OptionalID) Result[struct{}] {
	wire, err := id.Wire()
	if err != nil {
		return Fail[struct{}]("deregister: %v", err)
	}
	m, err := message.NewMessage(message.Deregister, int32(t), wire)
	if err != nil {
		return Fail[struct{}]("deregister: %v", err)
	}
	return Send(ctx, c.opts.UDPAddr, m)
}

// QueryAll lists every registered component, the Supervisor included.
func (c *Client) QueryAll(ctx context.Context) Result[[]component.Info] {
	res := Exchange(ctx, Request{
		Kind: transport.KindTCP,
		Dest: c.opts.TCPAddr,
		Build: func(addr.AppAddr) (*message.Message, error) {
			return message.NewMessage(message.QueryAll, c.opts.Identity.UID, c.opts.Identity.Username)
		},
		Reply:   message.ComponentInfoReply,
		Timeout: c.opts.Timeout,
	})
	return toInfos(res)
}

// AllocateID asks for a fresh component id. The request carries no id; the
// reply is broadcast to a callback port bound for this call.
func (c *Client) AllocateID(ctx context.Context, t component.Type) Result[component.ID] {
	res := Exchange(ctx, Request{
		Kind: transport.KindUDP,
		Dest: c.opts.UDPAddr,
		Build: func(cb addr.AppAddr) (*message.Message, error) {
			none, err := component.NoneID().Wire()
			if err != nil {
				return nil, err
			}
			return message.NewMessage(message.AllocateID, int32(t), none, c.opts.Identity.UID, cb.Port)
		},
		Callback:       c.callback(),
		Reply:          message.AllocateIDReply,
		StopAfterFirst: true,
		Timeout:        c.opts.Timeout,
	})
	if !res.Success {
		return Fail[component.ID]("allocate id: %s", res.Text)
	}
	raw, err := message.ValueAs[uint64](res.Value[0], "componentID")
	if err != nil {
		return Fail[component.ID]("allocate id: %v", err)
	}
	id, ok := component.IDFromWire(raw).Get()
	if !ok {
		return Fail[component.ID]("allocate id: supervisor returned no id")
	}
	return OK(id)
}

// FindAddress returns every registered instance of t. Over TCP the reply
// arrives on the request connection; over UDP it is broadcast to a callback
// port and collected until the timeout. A not-found reply yields an empty,
// successful result. Replies must echo the caller's id; a caller without an
// id accepts every reply.
func (c *Client) FindAddress(ctx context.Context, t component.Type, kind transport.Kind) Result[[]component.Info] {
	req := Request{
		Kind: kind,
		Dest: c.opts.TCPAddr,
		Build: func(cb addr.AppAddr) (*message.Message, error) {
			id := c.opts.Identity
			return message.NewMessage(message.FindAddr,
				id.UID, id.Username, int32(id.Type), uint64(id.ID), int32(t), uint32(0), cb.Port)
		},
		Reply:   message.ComponentInfoReply,
		Timeout: c.opts.Timeout,
	}
	if kind != transport.KindTCP {
		req.Dest = c.opts.UDPAddr
		req.Callback = c.callback()
	}
	res := toInfos(Exchange(ctx, req))
	if !res.Success {
		return res
	}
	self := component.IDFromWire(uint64(c.opts.Identity.ID))
	found := res.Value[:0]
	for _, info := range res.Value {
		if self.IsSome() && component.IDFromWire(uint64(info.EchoID)) != self {
			continue
		}
		if !info.IsEmpty() {
			found = append(found, info)
		}
	}
	return OK(found)
}

// Liveness is a component's answer to its own lookApp probe.
type Liveness struct {
	Type  component.Type
	ID    component.ID
	State component.State
}

func (l Liveness) String() string {
	return fmt.Sprintf("%s id=%d state=%s", l.Type, l.ID, l.State)
}

// Liveness probes a component of type t listening on dest. For the
// Supervisor dest is its internal TCP address.
func (c *Client) Liveness(ctx context.Context, t component.Type, dest addr.AppAddr) Result[Liveness] {
	d, ok := message.LookAppFor(t)
	if !ok {
		return Fail[Liveness]("liveness: %s has no probe", t)
	}
	res := Exchange(ctx, Request{
		Kind: transport.KindTCP,
		Dest: dest,
		Build: func(addr.AppAddr) (*message.Message, error) {
			return message.NewMessage(d)
		},
		Reply:          message.LivenessReply,
		StopAfterFirst: true,
		Timeout:        c.opts.Timeout,
	})
	if !res.Success {
		return Fail[Liveness]("liveness: %s", res.Text)
	}
	m := res.Value[0]
	typ, err := message.ValueAs[int32](m, "componentType")
	if err != nil {
		return Fail[Liveness]("liveness: %v", err)
	}
	id, err := message.ValueAs[uint64](m, "componentID")
	if err != nil {
		return Fail[Liveness]("liveness: %v", err)
	}
	state, err := message.ValueAs[int8](m, "state")
	if err != nil {
		return Fail[Liveness]("liveness: %v", err)
	}
	return OK(Liveness{Type: component.Type(typ), ID: component.ID(id), State: component.State(state)})
}

func toInfos(res Result[[]*message.Message]) Result[[]component.Info] {
	if !res.Success {
		return Fail[[]component.Info]("%s", res.Text)
	}
	out := make([]component.Info, 0, len(res.Value))
	for _, m := range res.Value {
		info, err := component.InfoFromValues(m.Values)
		if err != nil {
			return Fail[[]component.Info]("decode component: %v", err)
		}
		out = append(out, info)
	}
	return OK(out)
}
