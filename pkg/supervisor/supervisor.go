// Package supervisor serves the cluster discovery protocol: registration,
// bulk query, targeted address lookup, id allocation and liveness.
//
// Three sockets are served. The public UDP and TCP sockets take requests from
// any component; the internal TCP socket is meant for peers that already know
// the Supervisor and is the only one answering liveness probes.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/morezero/cluster-supervisor/pkg/addr"
	"github.com/morezero/cluster-supervisor/pkg/component"
	"github.com/morezero/cluster-supervisor/pkg/message"
	"github.com/morezero/cluster-supervisor/pkg/metric"
	"github.com/morezero/cluster-supervisor/pkg/registry"
	"github.com/morezero/cluster-supervisor/pkg/transport"
)

const logPrefix = "supervisor:supervisor"

const (
	defaultUDPAddr       = "0.0.0.0:20086"
	defaultTCPAddr       = "0.0.0.0:20087"
	defaultInternalAddr  = "127.0.0.1:0"
	defaultBroadcastHost = "255.255.255.255"
	defaultReplyTimeout  = 5 * time.Second
)

// Socket names the listener a request arrived on.
type Socket string

const (
	SocketUDP      Socket = "public-udp"
	SocketTCP      Socket = "public-tcp"
	SocketInternal Socket = "internal-tcp"
)

// Config holds listener and reply settings. Zero values use defaults.
type Config struct {
	UDPAddr       string
	TCPAddr       string
	InternalAddr  string
	BroadcastHost string
	ReplyTimeout  time.Duration
	Limits        transport.Limits
}

// DefaultConfig returns the default listener configuration.
func DefaultConfig() Config {
	return Config{
		UDPAddr:       defaultUDPAddr,
		TCPAddr:       defaultTCPAddr,
		InternalAddr:  defaultInternalAddr,
		BroadcastHost: defaultBroadcastHost,
		ReplyTimeout:  defaultReplyTimeout,
		Limits:        transport.DefaultLimits(),
	}
}

// NewSupervisorParams holds parameters for New.
type NewSupervisorParams struct {
	Registry *registry.Registry
	Config   Config
	// Self seeds the Supervisor's own registry entry. Type, addresses and
	// state are filled in at Start; a zero ID is replaced by a generated one.
	Self    component.Info
	Metrics *metric.Metrics
}

// Addrs are the bound listener addresses.
type Addrs struct {
	UDP      addr.AppAddr
	TCP      addr.AppAddr
	Internal addr.AppAddr
}

type handlerFunc func(ctx context.Context, m *message.Message, ch transport.Channel) error

// Supervisor is the stateless dispatcher over a registry.
type Supervisor struct {
	cfg      Config
	reg      *registry.Registry
	metrics  *metric.Metrics
	table    message.Table
	handlers map[message.ID]handlerFunc
	allowed  map[Socket]map[message.ID]bool

	udp      *transport.UDPServer
	tcp      *transport.TCPServer
	internal *transport.TCPServer

	mu    sync.RWMutex
	self  component.Info
	addrs Addrs
	ready chan struct{}
}

// New wires the dispatch tables. Nothing is bound until Start.
func New(params NewSupervisorParams) *Supervisor {
	cfg := params.Config
	def := DefaultConfig()
	if cfg.UDPAddr == "" {
		cfg.UDPAddr = def.UDPAddr
	}
	if cfg.TCPAddr == "" {
		cfg.TCPAddr = def.TCPAddr
	}
	if cfg.InternalAddr == "" {
		cfg.InternalAddr = def.InternalAddr
	}
	if cfg.BroadcastHost == "" {
		cfg.BroadcastHost = def.BroadcastHost
	}
	if cfg.ReplyTimeout <= 0 {
		cfg.ReplyTimeout = def.ReplyTimeout
	}
	if cfg.Limits.MaxBufferedBytes <= 0 {
		cfg.Limits = def.Limits
	}

	self := params.Self
	self.Type = component.Supervisor
	if self.PID == 0 {
		self.PID = uint32(os.Getpid())
	}

	s := &Supervisor{
		cfg:     cfg,
		reg:     params.Registry,
		metrics: params.Metrics,
		table:   message.BuildCatalog().Table(component.Supervisor),
		self:    self,
		ready:   make(chan struct{}),
	}
	s.handlers = map[message.ID]handlerFunc{
		message.IDRegister:   s.handleRegister,
		message.IDFindAddr:   s.handleFindAddr,
		message.IDQueryAll:   s.handleQueryAll,
		message.IDAllocateID: s.handleAllocateID,
		message.IDLookApp:    s.handleLookApp,
		message.IDDeregister: s.handleDeregister,
	}
	s.allowed = map[Socket]map[message.ID]bool{
		SocketUDP: {
			message.IDRegister:   true,
			message.IDFindAddr:   true,
			message.IDAllocateID: true,
			message.IDDeregister: true,
		},
		SocketTCP: {
			message.IDFindAddr: true,
			message.IDQueryAll: true,
		},
		SocketInternal: {
			message.IDLookApp: true,
		},
	}
	return s
}

// Start binds the three sockets, registers the Supervisor itself and serves
// until ctx ends or a listener fails.
func (s *Supervisor) Start(ctx context.Context) error {
	s.udp = transport.NewUDPServer(s.serverOpts(SocketUDP))
	s.tcp = transport.NewTCPServer(s.serverOpts(SocketTCP))
	s.internal = transport.NewTCPServer(s.serverOpts(SocketInternal))

	if err := s.udp.Listen(s.cfg.UDPAddr); err != nil {
		return err
	}
	if err := s.tcp.Listen(s.cfg.TCPAddr); err != nil {
		_ = s.udp.Close()
		return err
	}
	if err := s.internal.Listen(s.cfg.InternalAddr); err != nil {
		_ = s.udp.Close()
		_ = s.tcp.Close()
		return err
	}
	s.udp.OnStopped = func(err error) {
		slog.Error(fmt.Sprintf("%s - public UDP stopped receiving: %v", logPrefix, err))
	}

	s.mu.Lock()
	s.addrs = Addrs{UDP: s.udp.Addr(), TCP: s.tcp.Addr(), Internal: s.internal.Addr()}
	s.mu.Unlock()

	if err := s.registerSelf(ctx); err != nil {
		_ = s.udp.Close()
		_ = s.tcp.Close()
		_ = s.internal.Close()
		return err
	}
	close(s.ready)

	a := s.Addrs()
	slog.Info(fmt.Sprintf("%s - Supervisor %d serving udp=%s tcp=%s internal=%s", logPrefix, s.Self().ID, a.UDP, a.TCP, a.Internal))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.udp.Serve(gctx) })
	g.Go(func() error { return s.tcp.Serve(gctx) })
	g.Go(func() error { return s.internal.Serve(gctx) })
	return g.Wait()
}

// Ready is closed once the sockets are bound and the self-entry is registered.
func (s *Supervisor) Ready() <-chan struct{} { return s.ready }

// Addrs returns the bound addresses; zero before Start.
func (s *Supervisor) Addrs() Addrs {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addrs
}

// Self returns a copy of the Supervisor's own registry entry.
func (s *Supervisor) Self() component.Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.self.Clone()
}

func (s *Supervisor) registerSelf(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.self.ID.IsSet() {
		id, err := s.reg.GenerateID(ctx)
		if err != nil {
			return fmt.Errorf("%s - failed to generate own id: %w", logPrefix, err)
		}
		s.self.ID = id
	}
	s.self.InternalAddr = s.addrs.Internal
	s.self.ExternalAddr = s.addrs.TCP
	s.self.CallbackAddr = s.addrs.UDP
	s.self.State = component.StateRunning
	if _, err := s.reg.Register(ctx, s.self); err != nil {
		return fmt.Errorf("%s - failed to register self: %w", logPrefix, err)
	}
	return nil
}

func (s *Supervisor) serverOpts(sock Socket) transport.ServerOpts {
	return transport.ServerOpts{
		Name:    string(sock),
		Table:   s.table,
		Handler: s.dispatcher(sock),
		Limits:  s.cfg.Limits,
		Metrics: s.metrics,
	}
}

// dispatcher routes decoded messages through the socket's allow-list.
func (s *Supervisor) dispatcher(sock Socket) transport.Handler {
	allowed := s.allowed[sock]
	return transport.HandlerFunc(func(ctx context.Context, m *message.Message, ch transport.Channel) {
		name := m.Descriptor.Name()
		if !allowed[m.Descriptor.ID()] {
			s.metrics.Request(name, "rejected")
			slog.Warn(fmt.Sprintf("%s - %s not served on %s (from %s)", logPrefix, name, sock, ch.Info().Dest))
			if ch.Info().Kind == transport.KindTCP {
				_ = ch.Close()
			}
			return
		}
		h, ok := s.handlers[m.Descriptor.ID()]
		if !ok {
			panic(fmt.Sprintf("%s - %s allowed on %s without a handler", logPrefix, name, sock))
		}
		if err := h(ctx, m, ch); err != nil {
			pe := classify(err)
			s.metrics.Request(name, pe.Code)
			slog.Warn(fmt.Sprintf("%s - %s from %s failed: %v", logPrefix, name, ch.Info().Dest, pe))
			return
		}
		s.metrics.Request(name, "ok")
	})
}

// Handle runs one decoded message as if it arrived on sock. Used by the
// in-process tooling and tests.
func (s *Supervisor) Handle(ctx context.Context, sock Socket, m *message.Message, ch transport.Channel) {
	s.dispatcher(sock).HandleMessage(ctx, m, ch)
}
