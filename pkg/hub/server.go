package hub

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/parleyhub/parley/internal/observability"
	"github.com/parleyhub/parley/pkg/protocol"
	"github.com/rs/zerolog"
)

// DefaultHost and DefaultPort are where the hub binds unless configured.
const (
	DefaultHost = "127.0.0.1"
	DefaultPort = 7777
)

// Config holds hub server configuration
type Config struct {
	Host          string
	Port          int
	IdleTimeout   time.Duration
	SweepInterval time.Duration
	Logger        zerolog.Logger
}

// Server is the relay hub: it accepts TCP connections, decodes request
// frames, and dispatches them to the session registry. Each connection is
// handled by its own goroutine; blocking actions park only that goroutine.
type Server struct {
	host        string
	port        int
	waitTimeout time.Duration

	registry   *Registry
	supervisor *Supervisor
	logger     zerolog.Logger

	ln             net.Listener
	conns          map[string]net.Conn
	connsMu        sync.Mutex
	isShuttingDown bool
	shutdownMu     sync.RWMutex
	wg             sync.WaitGroup
}

// NewServer creates a hub server from config.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}

	registry := NewRegistry()

	return &Server{
		host:        cfg.Host,
		port:        cfg.Port,
		waitTimeout: cfg.IdleTimeout,
		registry:    registry,
		supervisor:  NewSupervisor(registry, cfg.IdleTimeout, cfg.SweepInterval),
		logger:      cfg.Logger,
		conns:       make(map[string]net.Conn),
	}, nil
}

// Registry exposes the session registry, mainly for tests and diagnostics.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Addr returns the bound listener address, valid after Start.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Start binds the TCP listener and begins serving. It does not block.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", s.host, s.port))
	if err != nil {
		return fmt.Errorf("failed to bind listener: %w", err)
	}
	s.ln = ln

	if err := s.supervisor.Start(); err != nil {
		ln.Close()
		return err
	}

	s.logger.Info().
		Str("addr", ln.Addr().String()).
		Dur("idle_timeout", s.supervisor.IdleTimeout()).
		Msg("Hub listening")

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

// Stop closes the listener and all live connections, then waits for
// connection handlers to drain. Sessions owned by those connections end
// through the usual disconnect path.
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down hub")

	if s.supervisor.IsRunning() {
		_ = s.supervisor.Stop()
	}
	if s.ln != nil {
		_ = s.ln.Close()
	}

	s.connsMu.Lock()
	for _, conn := range s.conns {
		conn.Close()
	}
	s.connsMu.Unlock()

	s.wg.Wait()

	s.logger.Info().Msg("Hub stopped")
	return nil
}

func (s *Server) shuttingDown() bool {
	s.shutdownMu.RLock()
	defer s.shutdownMu.RUnlock()
	return s.isShuttingDown
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if s.shuttingDown() || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Error().Err(err).Msg("Accept failed")
			continue
		}

		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// inboundFrame carries either a decoded request or a client-caused decode
// error from the reader goroutine to the dispatch loop, which owns all
// writes on the connection.
type inboundFrame struct {
	req  *protocol.Request
	perr *protocol.Error
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()

	connID, err := gonanoid.New()
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to allocate connection ID")
		conn.Close()
		return
	}

	s.connsMu.Lock()
	s.conns[connID] = conn
	s.connsMu.Unlock()
	observability.SetConnectedClients(s.connCount())

	s.logger.Info().
		Str("conn", connID).
		Str("remote", conn.RemoteAddr().String()).
		Msg("Client connected")

	ctx, cancel := context.WithCancel(context.Background())

	defer func() {
		cancel()
		conn.Close()

		s.connsMu.Lock()
		delete(s.conns, connID)
		s.connsMu.Unlock()
		observability.SetConnectedClients(s.connCount())

		// Implicit end_session for everything this connection was party to.
		s.registry.ReleaseConn(connID)

		s.logger.Info().Str("conn", connID).Msg("Client disconnected")
	}()

	frames := make(chan inboundFrame)
	go s.readLoop(ctx, conn, frames, cancel)

	enc := protocol.NewEncoder(conn)
	for frame := range frames {
		if frame.perr != nil {
			if err := enc.EncodeError(frame.perr); err != nil {
				return
			}
			continue
		}
		s.dispatch(ctx, connID, frame.req, enc)
	}
}

// readLoop decodes frames off the wire and forwards them to the dispatch
// loop. When the peer disconnects it cancels the connection context so a
// blocked listen or wait_response releases immediately.
func (s *Server) readLoop(ctx context.Context, conn net.Conn, frames chan<- inboundFrame, cancel context.CancelFunc) {
	defer close(frames)
	defer cancel()

	dec := protocol.NewDecoder(conn)
	for {
		req, err := dec.Decode()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			var perr *protocol.Error
			if errors.As(err, &perr) {
				select {
				case frames <- inboundFrame{perr: perr}:
				case <-ctx.Done():
					return
				}
				if dec.Fatal() {
					return
				}
				continue
			}
			return
		}

		select {
		case frames <- inboundFrame{req: req}:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) connCount() int {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	return len(s.conns)
}

// dispatch routes one validated request to its handler and writes the
// response. Blocking actions run inline: the connection processes one
// request at a time, which is exactly the no-pipelining contract.
func (s *Server) dispatch(ctx context.Context, connID string, req *protocol.Request, enc *protocol.Encoder) {
	p := req.Params

	var err error
	switch req.Action {
	case protocol.ActionListen:
		err = s.handleListen(ctx, connID, p, enc)

	case protocol.ActionListSessions:
		err = enc.Encode(s.listPayload())

	case protocol.ActionConnect:
		if cerr := s.registry.Connect(p.TargetSession, p.Intent, p.MyName, connID); cerr != nil {
			err = enc.EncodeError(wireError(cerr))
			break
		}
		err = enc.Encode(protocol.ConnectAck{
			Connected:    true,
			Target:       p.TargetSession,
			Intent:       p.Intent,
			IntentBanner: IntentBanner(p.Intent, true),
		})

	case protocol.ActionSend:
		if serr := s.registry.Send(p.TargetSession, p.Message, p.MyName); serr != nil {
			err = enc.EncodeError(wireError(serr))
			break
		}
		err = enc.Encode(protocol.SendAck{Sent: true, To: p.TargetSession})

	case protocol.ActionWaitResponse:
		err = s.handleWaitResponse(ctx, p, enc)

	case protocol.ActionRespond:
		to, rerr := s.registry.Respond(p.SessionName, p.Message)
		if rerr != nil {
			err = enc.EncodeError(wireError(rerr))
			break
		}
		err = enc.Encode(protocol.SendAck{Sent: true, To: to})

	case protocol.ActionRefocus:
		key := p.SessionName
		if key == "" {
			key = p.MyName
		}
		old, rerr := s.registry.Refocus(key, p.Intent)
		if rerr != nil {
			err = enc.EncodeError(wireError(rerr))
			break
		}
		err = enc.Encode(protocol.RefocusAck{
			Updated:      true,
			OldIntent:    old,
			NewIntent:    p.Intent,
			IntentBanner: IntentBanner(p.Intent, true),
		})

	case protocol.ActionEndSession:
		s.registry.EndBy(p.SessionName, connID)
		err = enc.Encode(protocol.EndAck{Closed: true, Session: p.SessionName})
	}

	if err != nil {
		s.logger.Error().
			Err(err).
			Str("conn", connID).
			Str("action", string(req.Action)).
			Msg("Failed to write response")
	}
}

func (s *Server) listPayload() protocol.SessionList {
	infos := s.registry.List()
	out := protocol.SessionList{Sessions: make([]protocol.SessionInfo, 0, len(infos))}
	for _, info := range infos {
		out.Sessions = append(out.Sessions, protocol.SessionInfo{
			Name:        info.Name,
			Description: info.Description,
			State:       info.State,
			Busy:        info.Busy,
		})
	}
	return out
}

// handleListen registers (or re-enters) the session, acks, then parks until
// a message arrives, the session ends, or the wait times out. The second
// frame is either the delivered message or a typed error.
func (s *Server) handleListen(ctx context.Context, connID string, p protocol.Params, enc *protocol.Encoder) error {
	sess, rerr := s.registry.Register(p.SessionName, p.Description, connID)
	if rerr != nil {
		return enc.EncodeError(wireError(rerr))
	}

	if err := enc.Encode(protocol.ListenAck{Status: "listening", Session: p.SessionName}); err != nil {
		return err
	}

	delivery, werr := s.registry.WaitInbound(ctx, sess, s.waitDuration(p.TimeoutMS))
	if werr != nil {
		return enc.EncodeError(wireError(werr))
	}

	return enc.Encode(protocol.Delivery{
		Type:         protocol.TypeMessage,
		From:         delivery.Message.Sender,
		Message:      delivery.Message.Body,
		MessageID:    delivery.Message.ID,
		Intent:       delivery.Intent,
		IntentBanner: IntentBanner(delivery.Intent, s.registry.firstContact(sess)),
	})
}

func (s *Server) handleWaitResponse(ctx context.Context, p protocol.Params, enc *protocol.Encoder) error {
	delivery, werr := s.registry.WaitOutbound(ctx, p.MyName, s.waitDuration(p.TimeoutMS))
	if werr != nil {
		return enc.EncodeError(wireError(werr))
	}

	frameType := protocol.TypeResponse
	banner := ""
	if delivery.Message.Kind == KindRefocus {
		frameType = protocol.TypeRefocus
		// The refocus body is the new intent; hand the caller the banner too.
		banner = IntentBanner(delivery.Message.Body, false)
	}

	return enc.Encode(protocol.Delivery{
		Type:         frameType,
		From:         delivery.Message.Sender,
		Message:      delivery.Message.Body,
		MessageID:    delivery.Message.ID,
		IntentBanner: banner,
	})
}

// waitDuration resolves the client-requested timeout, falling back to the
// idle timeout so no wait outlives an abandoned session.
func (s *Server) waitDuration(timeoutMS int64) time.Duration {
	if timeoutMS > 0 {
		return time.Duration(timeoutMS) * time.Millisecond
	}
	return s.waitTimeout
}

// wireError maps registry sentinels to typed wire codes.
func wireError(err error) *protocol.Error {
	code := protocol.CodeMalformedRequest
	switch {
	case errors.Is(err, ErrNameTaken):
		code = protocol.CodeNameTaken
	case errors.Is(err, ErrNotFound):
		code = protocol.CodeNotFound
	case errors.Is(err, ErrNotListening):
		code = protocol.CodeNotListening
	case errors.Is(err, ErrNotConnected):
		code = protocol.CodeNotConnected
	case errors.Is(err, ErrNoCaller):
		code = protocol.CodeNoCaller
	case errors.Is(err, ErrTimeout):
		code = protocol.CodeTimeout
	case errors.Is(err, ErrSessionEnded):
		code = protocol.CodeSessionEnded
	case errors.Is(err, ErrConnectionLost):
		code = protocol.CodeConnectionLost
	}
	return &protocol.Error{Code: code, Message: err.Error()}
}
