package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"
	"time"

	"imgworker/internal/broadcast"
	"imgworker/internal/command"
	"imgworker/internal/daemon"
	"imgworker/internal/logging"
)

// maxEventWait caps a single Events long-poll.
const maxEventWait = 30 * time.Second

// Backend is the daemon surface the server exposes.
type Backend interface {
	Connect() string
	Disconnect(id string)
	Send(ctx context.Context, observer string, msg command.Message) error
	Events(ctx context.Context, observer string, since uint64, limit int, wait bool) ([]broadcast.Event, uint64, error)
	Status(ctx context.Context) daemon.Status
	Shutdown()
}

// Server exposes the worker via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	mu    sync.Mutex
	conns map[net.Conn]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, backend Backend, logger *slog.Logger) (*Server, error) {
	if backend == nil {
		return nil, errors.New("ipc server requires a backend")
	}
	logger = logging.NewComponentLogger(logger, "ipc")

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	rpcServer := rpc.NewServer()
	srv := &service{backend: backend, logger: logger, ctx: serverCtx}
	if err := rpcServer.RegisterName("Worker", srv); err != nil {
		cancel()
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	return &Server{
		path:      path,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		conns:     make(map[net.Conn]struct{}),
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Path returns the socket path.
func (s *Server) Path() string { return s.path }

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart the daemon if needed"))
				continue
			}
			s.track(conn, true)
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				defer s.track(c, false)
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

func (s *Server) track(conn net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[conn] = struct{}{}
		return
	}
	delete(s.conns, conn)
}

// Close stops the server, drops open connections and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.mu.Lock()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "remove the socket file manually"))
	}
}

type service struct {
	backend Backend
	logger  *slog.Logger
	ctx     context.Context
}

func (s *service) Connect(_ ConnectRequest, resp *ConnectResponse) error {
	resp.Observer = s.backend.Connect()
	return nil
}

func (s *service) Disconnect(req DisconnectRequest, _ *DisconnectResponse) error {
	s.backend.Disconnect(req.Observer)
	return nil
}

func (s *service) Send(req SendRequest, resp *SendResponse) error {
	if err := s.backend.Send(s.ctx, req.Observer, req.Message); err != nil {
		s.logger.Debug("command rejected",
			logging.String("command", req.Message.Command),
			logging.Error(err))
		return err
	}
	resp.Accepted = true
	return nil
}

// Events blocks for at most WaitMillis (capped) and returns an empty batch
// on timeout. Closing the server also releases waiting calls, so connections
// drain on shutdown.
func (s *service) Events(req EventsRequest, resp *EventsResponse) error {
	wait := time.Duration(req.WaitMillis) * time.Millisecond
	if wait > maxEventWait {
		wait = maxEventWait
	}
	ctx := s.ctx
	if wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, wait)
		defer cancel()
	}
	events, next, err := s.backend.Events(ctx, req.Observer, req.Since, req.Limit, wait > 0)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		return err
	}
	if events == nil {
		events = []broadcast.Event{}
	}
	resp.Events = events
	resp.Next = next
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	resp.Status = s.backend.Status(s.ctx)
	return nil
}

func (s *service) Shutdown(_ ShutdownRequest, resp *ShutdownResponse) error {
	s.backend.Shutdown()
	resp.Stopping = true
	s.logger.Info("shutdown requested via IPC",
		logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}
