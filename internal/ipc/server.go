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

	"github.com/google/uuid"

	"seriallinker/internal/daemon"
	"seriallinker/internal/logging"
	"seriallinker/internal/logs"
	"seriallinker/internal/resultlog"
	"seriallinker/internal/services"
)

// ServiceName is the JSON-RPC service the daemon registers.
const ServiceName = "Linker"

const (
	commandTimeout    = 10 * time.Second
	defaultEventLimit = 200
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	logger = logging.NewComponentLogger(logger, "ipc")

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: ctx}
	if err := rpcServer.RegisterName(ServiceName, srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

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
				logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart the daemon if needed"),
				)
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "remove the socket file manually"),
		)
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

// commandContext bounds a request and tags it with a correlation ID.
func (s *service) commandContext() (context.Context, context.CancelFunc) {
	ctx := services.WithRequestID(s.ctx, uuid.NewString())
	return context.WithTimeout(ctx, commandTimeout)
}

func (s *service) Start(_ StartRequest, resp *StartResponse) error {
	s.logger.Debug("station start requested")
	if err := s.daemon.Start(s.ctx); err != nil {
		resp.Started = false
		resp.Message = err.Error()
		return nil
	}
	resp.Started = true
	resp.Message = "station loop started"
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.logger.Debug("station stop requested")
	s.daemon.Stop()
	resp.Stopped = true
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	ctx, cancel := s.commandContext()
	defer cancel()
	resp.Status = s.daemon.Status(ctx)
	return nil
}

func (s *service) Login(req LoginRequest, resp *LoginResponse) error {
	ctx, cancel := s.commandContext()
	defer cancel()
	session, err := s.daemon.Login(ctx, req.Username, req.Password)
	if err != nil {
		s.logger.Info("login refused",
			logging.String(logging.FieldEventType, "login_refused"),
			logging.String("username", req.Username),
			logging.Error(err),
		)
		return err
	}
	resp.Session = session
	return nil
}

func (s *service) Logout(_ LogoutRequest, resp *LogoutResponse) error {
	ctx, cancel := s.commandContext()
	defer cancel()
	if err := s.daemon.Logout(ctx); err != nil {
		return err
	}
	resp.LoggedOut = true
	return nil
}

func (s *service) SelectBoard(req BoardRequest, resp *BoardResponse) error {
	ctx, cancel := s.commandContext()
	defer cancel()
	info, err := s.daemon.SelectBoard(ctx, req.Name)
	if err != nil {
		return err
	}
	resp.Board = info
	return nil
}

func (s *service) Boards(_ BoardsRequest, resp *BoardsResponse) error {
	resp.Boards = s.daemon.Boards()
	resp.Selected = s.daemon.Status(s.ctx).Station.Board
	return nil
}

func (s *service) Sim(req SimRequest, resp *SimResponse) error {
	result, err := s.daemon.Sim(req.Action)
	if err != nil {
		return err
	}
	resp.Result = result
	return nil
}

func (s *service) History(req HistoryRequest, resp *HistoryResponse) error {
	ctx, cancel := s.commandContext()
	defer cancel()
	var since time.Time
	if req.SinceHours > 0 {
		since = time.Now().Add(-time.Duration(req.SinceHours) * time.Hour)
	}
	records, err := s.daemon.History(ctx, resultlog.Query{
		Limit:      req.Limit,
		Board:      req.Board,
		FailedOnly: req.FailedOnly,
		Since:      since,
	})
	if err != nil {
		return err
	}
	stats, err := s.daemon.HistoryStats(ctx, since)
	if err != nil {
		return err
	}
	resp.Records = records
	resp.Stats = stats
	return nil
}

func (s *service) Events(req EventsRequest, resp *EventsResponse) error {
	limit := req.Limit
	if limit <= 0 {
		limit = defaultEventLimit
	}
	resp.Events = s.daemon.Events(req.After, limit)
	resp.Next = req.After
	if n := len(resp.Events); n > 0 {
		resp.Next = resp.Events[n-1].Sequence
	}
	return nil
}

func (s *service) LogTail(req LogTailRequest, resp *LogTailResponse) error {
	logPath := s.daemon.LogPath()
	if logPath == "" {
		resp.Offset = 0
		return nil
	}
	wait := time.Duration(req.WaitMillis) * time.Millisecond
	if wait <= 0 && req.Follow {
		wait = time.Second
	}
	ctx := s.ctx
	if req.Follow && wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, wait+500*time.Millisecond)
		defer cancel()
	}
	result, err := logs.Tail(ctx, logPath, logs.TailOptions{
		Offset: req.Offset,
		Limit:  req.Limit,
		Follow: req.Follow,
		Wait:   wait,
		Filter: req.Filter,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			resp.Offset = result.Offset
			return nil
		}
		return err
	}
	resp.Lines = result.Lines
	resp.Offset = result.Offset
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	ctx, cancel := s.commandContext()
	defer cancel()
	sent, message, err := s.daemon.TestNotification(ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}

func (s *service) Preflight(_ PreflightRequest, resp *PreflightResponse) error {
	ctx, cancel := context.WithTimeout(s.ctx, 30*time.Second)
	defer cancel()
	resp.Results = s.daemon.Preflight(ctx)
	return nil
}
