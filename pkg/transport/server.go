package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/morezero/cluster-supervisor/pkg/addr"
	"github.com/morezero/cluster-supervisor/pkg/message"
	"github.com/morezero/cluster-supervisor/pkg/metric"
)

const logPrefix = "transport:server"

const maxDatagram = 65536

// Handler receives every decoded inbound message together with its reply channel.
type Handler interface {
	HandleMessage(ctx context.Context, m *message.Message, ch Channel)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, m *message.Message, ch Channel)

func (f HandlerFunc) HandleMessage(ctx context.Context, m *message.Message, ch Channel) {
	f(ctx, m, ch)
}

// ServerOpts is shared by both server kinds.
type ServerOpts struct {
	// Name labels logs and metrics, e.g. "public-tcp".
	Name    string
	Table   message.Table
	Handler Handler
	Limits  Limits
	Metrics *metric.Metrics
}

// TCPServer runs one reassembly read loop per accepted connection.
type TCPServer struct {
	opts ServerOpts
	ln   net.Listener

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

func NewTCPServer(opts ServerOpts) *TCPServer {
	if opts.Limits.MaxBufferedBytes == 0 {
		opts.Limits = DefaultLimits()
	}
	return &TCPServer{opts: opts, conns: make(map[net.Conn]struct{})}
}

// Listen binds address; port 0 picks an ephemeral port.
func (s *TCPServer) Listen(address string) error {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("%s - %s listen %s: %w", logPrefix, s.opts.Name, address, err)
	}
	s.ln = ln
	return nil
}

// Addr is the bound address, NoAddr before Listen.
func (s *TCPServer) Addr() addr.AppAddr {
	if s.ln == nil {
		return addr.NoAddr
	}
	return addr.FromNetAddr(s.ln.Addr())
}

// Serve accepts until ctx ends or the listener is closed, then closes every
// open connection and waits for their loops to finish.
func (s *TCPServer) Serve(ctx context.Context) error {
	if s.ln == nil {
		return fmt.Errorf("%s - %s: Serve before Listen", logPrefix, s.opts.Name)
	}
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		_ = s.ln.Close()
	}()

	slog.Info(fmt.Sprintf("%s - %s listening on %s", logPrefix, s.opts.Name, s.Addr()))
	var serveErr error
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
				serveErr = fmt.Errorf("%s - %s accept: %w", logPrefix, s.opts.Name, err)
			}
			break
		}
		s.track(conn)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.handleConn(ctx, conn)
		}()
	}

	s.closeAll()
	s.wg.Wait()
	slog.Info(fmt.Sprintf("%s - %s stopped", logPrefix, s.opts.Name))
	return serveErr
}

// Close stops the accept loop.
func (s *TCPServer) Close() error {
	if s.ln == nil {
		return nil
	}
	return s.ln.Close()
}

func (s *TCPServer) handleConn(ctx context.Context, conn net.Conn) {
	name := s.opts.Name
	s.opts.Metrics.ConnOpened(name)
	defer s.opts.Metrics.ConnClosed(name)

	ch := NewTCPChannel(conn)
	defer ch.Close()

	r := NewReassembler(s.opts.Table, s.opts.Limits)
	r.OnMalformed = func(err error) {
		s.opts.Metrics.Malformed(name)
		slog.Warn(fmt.Sprintf("%s - %s dropped frame from %s: %v", logPrefix, name, conn.RemoteAddr(), err))
	}

	buf := make([]byte, 64*1024)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			s.opts.Metrics.Received(name, n)
			msgs, ferr := r.Feed(buf[:n])
			for _, m := range msgs {
				s.opts.Metrics.FrameDecoded(name)
				s.opts.Handler.HandleMessage(ctx, m, ch)
			}
			if ferr != nil {
				s.opts.Metrics.Desync(name)
				slog.Warn(fmt.Sprintf("%s - %s closing %s: %v", logPrefix, name, conn.RemoteAddr(), ferr))
				return
			}
		}
		if err != nil {
			if r.Buffered() > 0 && !errors.Is(err, net.ErrClosed) {
				slog.Debug(fmt.Sprintf("%s - %s %s closed with %d unconsumed bytes", logPrefix, name, conn.RemoteAddr(), r.Buffered()))
			}
			return
		}
	}
}

func (s *TCPServer) track(c net.Conn) {
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
}

func (s *TCPServer) untrack(c net.Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

func (s *TCPServer) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		_ = c.Close()
	}
}

// UDPServer treats every datagram as exactly one message.
type UDPServer struct {
	opts ServerOpts
	conn *net.UDPConn
	wg   sync.WaitGroup

	// OnStopped is called once if the socket fails for any reason other than
	// being closed.
	OnStopped func(err error)
}

func NewUDPServer(opts ServerOpts) *UDPServer {
	return &UDPServer{opts: opts}
}

// Listen binds address; port 0 picks an ephemeral port.
func (s *UDPServer) Listen(address string) error {
	ua, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return fmt.Errorf("%s - %s resolve %s: %w", logPrefix, s.opts.Name, address, err)
	}
	conn, err := net.ListenUDP("udp", ua)
	if err != nil {
		return fmt.Errorf("%s - %s listen %s: %w", logPrefix, s.opts.Name, address, err)
	}
	s.conn = conn
	return nil
}

// Addr is the bound address, NoAddr before Listen.
func (s *UDPServer) Addr() addr.AppAddr {
	if s.conn == nil {
		return addr.NoAddr
	}
	return addr.FromNetAddr(s.conn.LocalAddr())
}

// Serve reads datagrams until ctx ends or the socket is closed. Each datagram
// is handled on its own goroutine.
func (s *UDPServer) Serve(ctx context.Context) error {
	if s.conn == nil {
		return fmt.Errorf("%s - %s: Serve before Listen", logPrefix, s.opts.Name)
	}
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		_ = s.conn.Close()
	}()

	slog.Info(fmt.Sprintf("%s - %s listening on %s", logPrefix, s.opts.Name, s.Addr()))
	local := s.Addr()
	buf := make([]byte, maxDatagram)
	var serveErr error
	for {
		n, from, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
				serveErr = fmt.Errorf("%s - %s read: %w", logPrefix, s.opts.Name, err)
				if s.OnStopped != nil {
					s.OnStopped(serveErr)
				}
			}
			break
		}
		s.opts.Metrics.Received(s.opts.Name, n)
		data := make([]byte, n)
		copy(data, buf[:n])
		sender := addr.FromNetAddr(from)

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleDatagram(ctx, local, sender, data)
		}()
	}

	s.wg.Wait()
	slog.Info(fmt.Sprintf("%s - %s stopped", logPrefix, s.opts.Name))
	return serveErr
}

// Close stops the read loop.
func (s *UDPServer) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *UDPServer) handleDatagram(ctx context.Context, local, sender addr.AppAddr, data []byte) {
	name := s.opts.Name
	m, rest, err := message.Deserialize(data, s.opts.Table)
	if err != nil {
		if errors.Is(err, message.ErrUnknownMessage) || errors.Is(err, message.ErrDesync) {
			s.opts.Metrics.Desync(name)
		} else {
			s.opts.Metrics.Malformed(name)
		}
		slog.Warn(fmt.Sprintf("%s - %s dropped datagram from %s: %v", logPrefix, name, sender, err))
		return
	}
	if len(rest) > 0 {
		slog.Debug(fmt.Sprintf("%s - %s ignoring %d trailing bytes from %s", logPrefix, name, len(rest), sender))
	}
	s.opts.Metrics.FrameDecoded(name)
	s.opts.Handler.HandleMessage(ctx, m, NewUDPChannel(local, sender))
}
