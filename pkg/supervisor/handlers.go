package supervisor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/morezero/cluster-supervisor/pkg/addr"
	"github.com/morezero/cluster-supervisor/pkg/component"
	"github.com/morezero/cluster-supervisor/pkg/message"
	"github.com/morezero/cluster-supervisor/pkg/transport"
)

const handlersLogPrefix = "supervisor:handlers"

func (s *Supervisor) handleRegister(ctx context.Context, m *message.Message, ch transport.Channel) error {
	info, err := component.InfoFromValues(m.Values)
	if err != nil {
		return err
	}
	if _, err := s.reg.Register(ctx, info); err != nil {
		return err
	}
	slog.Debug(fmt.Sprintf("%s - registered %s id=%d from %s", handlersLogPrefix, info.Type, info.ID, ch.Info().Dest))
	return nil
}

func (s *Supervisor) handleDeregister(ctx context.Context, m *message.Message, _ transport.Channel) error {
	t, err := message.ValueAs[int32](m, "componentType")
	if err != nil {
		return err
	}
	id, err := message.ValueAs[uint64](m, "componentID")
	if err != nil {
		return err
	}
	typ := component.Type(t)
	if !typ.Valid() {
		return NewProtocolError(CodeInvalidArgument, fmt.Sprintf("deregister: invalid component type %d", t))
	}
	ok, err := s.reg.Deregister(ctx, typ, component.IDFromWire(id))
	if err != nil {
		return err
	}
	if !ok {
		return NewProtocolError(CodeNotFound, fmt.Sprintf("deregister: %s id=%d not registered", typ, id))
	}
	return nil
}

// handleFindAddr replies with every instance of the requested type, each
// echoing the requester's id. When nothing is registered a single empty
// sentinel is sent instead.
func (s *Supervisor) handleFindAddr(ctx context.Context, m *message.Message, ch transport.Channel) error {
	requester, err := message.ValueAs[uint64](m, "componentID")
	if err != nil {
		return err
	}
	findType, err := message.ValueAs[int32](m, "findComponentType")
	if err != nil {
		return err
	}
	ip, err := message.ValueAs[uint32](m, "addr")
	if err != nil {
		return err
	}
	port, err := message.ValueAs[uint16](m, "finderRecvPort")
	if err != nil {
		return err
	}

	found, err := s.reg.GetInfo(ctx, component.Type(findType))
	if err != nil {
		return err
	}
	if len(found) == 0 {
		found = []component.Info{component.Empty(component.ID(requester))}
	}

	out := ch
	if ch.Info().Kind != transport.KindTCP {
		out = s.udpReplyChannel(ch, ip, port)
	} else {
		defer ch.Close()
	}

	for _, info := range found {
		info.EchoID = component.ID(requester)
		if err := s.sendInfo(ctx, out, info); err != nil {
			return err
		}
	}
	return nil
}

// handleQueryAll writes one registration-shaped frame per component, then closes.
func (s *Supervisor) handleQueryAll(ctx context.Context, _ *message.Message, ch transport.Channel) error {
	defer ch.Close()
	all, err := s.reg.All(ctx)
	if err != nil {
		return err
	}
	for _, info := range all {
		if err := s.sendInfo(ctx, ch, info); err != nil {
			return err
		}
	}
	slog.Debug(fmt.Sprintf("%s - sent %d components to %s", handlersLogPrefix, len(all), ch.Info().Dest))
	return nil
}

// handleAllocateID echoes the request with a fresh id, broadcast on the
// requester's callback port.
func (s *Supervisor) handleAllocateID(ctx context.Context, m *message.Message, ch transport.Channel) error {
	port, err := message.ValueAs[uint16](m, "callbackPort")
	if err != nil {
		return err
	}
	id, err := s.reg.GenerateID(ctx)
	if err != nil {
		return err
	}

	values := append([]any(nil), m.Values...)
	values[message.AllocateIDReply.FieldIndex("componentID")] = uint64(id)
	reply, err := message.NewMessage(message.AllocateIDReply, values...)
	if err != nil {
		panic(fmt.Sprintf("%s - allocate reply: %v", handlersLogPrefix, err))
	}
	payload, err := message.Serialize(reply, true)
	if err != nil {
		return err
	}

	out := ch
	if port != 0 {
		out = transport.NewBroadcastChannel(ch.Info().Source, s.cfg.BroadcastHost, port)
	}
	slog.Debug(fmt.Sprintf("%s - allocated id %d for %s via %s", handlersLogPrefix, id, ch.Info().Dest, out.Info().Kind))
	return s.send(ctx, out, payload)
}

// handleLookApp answers about the Supervisor itself.
func (s *Supervisor) handleLookApp(ctx context.Context, _ *message.Message, ch transport.Channel) error {
	self := s.Self()
	reply, err := message.NewMessage(message.LivenessReply, int32(self.Type), uint64(self.ID), int8(self.State))
	if err != nil {
		panic(fmt.Sprintf("%s - liveness reply: %v", handlersLogPrefix, err))
	}
	payload, err := message.Serialize(reply, true)
	if err != nil {
		return err
	}
	return s.send(ctx, ch, payload)
}

// udpReplyChannel picks where a UDP find-address reply goes: the address in
// the request, else a broadcast on its receive port, else the sender.
func (s *Supervisor) udpReplyChannel(ch transport.Channel, ip uint32, port uint16) transport.Channel {
	switch {
	case port == 0:
		return ch
	case ip != 0:
		return transport.NewUDPChannel(ch.Info().Source, addr.Unpack(ip, port))
	default:
		return transport.NewBroadcastChannel(ch.Info().Source, s.cfg.BroadcastHost, port)
	}
}

func (s *Supervisor) sendInfo(ctx context.Context, ch transport.Channel, info component.Info) error {
	values, err := info.ToValues()
	if err != nil {
		return err
	}
	reply, err := message.NewMessage(message.ComponentInfoReply, values...)
	if err != nil {
		panic(fmt.Sprintf("%s - info reply: %v", handlersLogPrefix, err))
	}
	payload, err := message.Serialize(reply, true)
	if err != nil {
		return err
	}
	return s.send(ctx, ch, payload)
}

func (s *Supervisor) send(ctx context.Context, ch transport.Channel, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ReplyTimeout)
	defer cancel()
	if err := ch.Send(ctx, payload); err != nil {
		return fmt.Errorf("%s - reply to %s: %w", handlersLogPrefix, ch.Info().Dest, err)
	}
	return nil
}
