package server

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/Achbite/Server-System/pkg/protocol"
	"github.com/Achbite/Server-System/pkg/store"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Server accepts connections and runs one worker goroutine per client.
// The account store and the session table are the only shared mutable
// state; everything else is per-connection.
type Server struct {
	store    *store.Store
	sessions *SessionManager
	config   ServerConfig
	metrics  *Metrics
	limiter  *RateLimiter
	log      zerolog.Logger

	listener   net.Listener
	httpServer *http.Server
	shutdown   chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

// NewServer creates a server around an already-loaded account store.
func NewServer(st *store.Store, config ServerConfig, logger zerolog.Logger) *Server {
	if config.MaxLineBytes == 0 {
		config.MaxLineBytes = protocol.MaxLineSize
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = protocol.DefaultReadTimeout
	}
	if config.ShutdownWait == 0 {
		config.ShutdownWait = DefaultConfig().ShutdownWait
	}

	metrics := getMetrics()
	sessions := NewSessionManager()
	sessions.SetMetrics(metrics)

	return &Server{
		store:    st,
		sessions: sessions,
		config:   config,
		metrics:  metrics,
		limiter:  NewRateLimiter(config.CommandRateLimit),
		log:      logger.With().Str("component", "server").Logger(),
		shutdown: make(chan struct{}),
	}
}

// Sessions exposes the session table, mainly for tests and tooling.
func (s *Server) Sessions() *SessionManager {
	return s.sessions
}

// Addr returns the bound TCP address, valid after Start.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Start binds the TCP listener and begins accepting connections. Failure
// to bind is the one fatal startup error. When an HTTP port is
// configured it also serves the WebSocket transport and the Prometheus
// metrics endpoint.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.TCPPort)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener
	s.log.Info().Str("addr", listener.Addr().String()).Msg("TCP server listening")

	if s.config.HTTPPort > 0 {
		mux := http.NewServeMux()
		mux.HandleFunc("/ws", s.HandleWebSocket)
		mux.Handle("/metrics", promhttp.Handler())
		s.httpServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", s.config.HTTPPort),
			Handler: mux,
		}
		go func() {
			s.log.Info().Int("port", s.config.HTTPPort).Msg("HTTP server listening (websocket + metrics)")
			if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.log.Error().Err(err).Msg("HTTP server error")
			}
		}()
	}

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Stop flips the server to stopped, closes the listening socket to
// unblock the accept loop, and waits a bounded time for the workers.
// Workers that do not drain in time are abandoned, not killed; their
// connections are closed afterwards, which unblocks any in-flight read.
// Safe to call more than once.
func (s *Server) Stop() error {
	s.stopOnce.Do(func() {
		close(s.shutdown)

		if s.listener != nil {
			s.listener.Close()
		}
		if s.httpServer != nil {
			s.httpServer.Close()
		}

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(s.config.ShutdownWait):
			s.log.Warn().Msg("shutdown wait elapsed, abandoning remaining workers")
		}

		s.sessions.CloseAll()
		s.log.Info().Msg("server stopped")
	})
	return nil
}

// acceptLoop accepts connections until the listener is closed by Stop.
func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return
			default:
				s.log.Warn().Err(err).Msg("accept error")
				continue
			}
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(conn)
		}()
	}
}

// handleConnection runs the full lifecycle of one client connection:
// session registration, welcome frame, the serve loop, and the one
// mandatory cleanup path (session removal + socket close), which runs
// no matter how the loop exits.
func (s *Server) handleConnection(conn net.Conn) {
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		tcpConn.SetNoDelay(true)
	}

	sess := s.sessions.CreateSession(conn)
	sess.Framer.ReadTimeout = s.config.ReadTimeout
	sess.Framer.MaxLineSize = s.config.MaxLineBytes
	log := s.log.With().Str("session", sess.ID[:8]).Logger()

	defer func() {
		if account := sess.Account(); account != "" {
			log.Info().Str("account", account).Msg("session ended while logged in")
		}
		s.sessions.RemoveSession(sess.ID)
		conn.Close()
		log.Info().Msg("session closed")
	}()

	log.Info().Str("remote", conn.RemoteAddr().String()).Msg("new connection")

	if err := sess.Send(protocol.NewMessage(protocol.RespWelcome, s.config.Banner, sess.ID)); err != nil {
		log.Warn().Err(err).Msg("failed to send welcome")
		return
	}

	s.serveLoop(sess, log)
}

// serveLoop is the per-connection read/dispatch/respond loop. It exits
// on transport failure (timeout, peer close, oversized frame), on
// eviction, or after a QUIT acknowledgement.
func (s *Server) serveLoop(sess *Session, log zerolog.Logger) {
	for {
		line, err := sess.Framer.ReadLine()
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				log.Info().Msg("client disconnected")
			case errors.Is(err, protocol.ErrLineTooLong):
				log.Warn().Msg("oversized message, dropping connection")
			case errors.Is(err, os.ErrDeadlineExceeded):
				log.Info().Msg("read timeout, dropping connection")
			default:
				log.Info().Err(err).Msg("read error")
			}
			return
		}

		// An evicted session already received its KICKED notice; any
		// command that was in flight when the takeover happened is
		// refused rather than honored.
		if !sess.Active() {
			sess.Send(protocol.NewMessage(protocol.RespError, "session is no longer active"))
			return
		}

		msg := protocol.ParseMessage(line)
		start := time.Now()
		resp, quit := s.dispatch(sess, msg)
		s.metrics.RecordCommand(msg.Command, time.Since(start))

		if err := sess.Send(resp); err != nil {
			log.Warn().Err(err).Msg("write failed")
			return
		}
		if quit {
			return
		}
	}
}

// dispatch routes one decoded message to its handler and returns the
// response plus whether the connection should close afterwards.
// Malformed requests (too few parameters, unknown commands) produce an
// error response and keep the connection open.
func (s *Server) dispatch(sess *Session, msg protocol.Message) (protocol.Message, bool) {
	if s.limiter != nil && !s.limiter.Allow(sess.ID) {
		return protocol.NewMessage(protocol.RespError, "rate limit exceeded, slow down"), false
	}

	switch msg.Command {
	case protocol.CmdRegister:
		if len(msg.Params) < 2 {
			return errInsufficientParams(), false
		}
		return s.handleRegister(sess, msg.Params[0], msg.Params[1]), false

	case protocol.CmdLogin:
		if len(msg.Params) < 2 {
			return errInsufficientParams(), false
		}
		return s.handleLogin(sess, msg.Params[0], msg.Params[1]), false

	case protocol.CmdForceLogin:
		if len(msg.Params) < 3 {
			return errInsufficientParams(), false
		}
		force := msg.Params[2] == "Y" || msg.Params[2] == "y"
		return s.handleForceLogin(sess, msg.Params[0], msg.Params[1], force), false

	case protocol.CmdLogout:
		return s.handleLogout(sess), false

	case protocol.CmdDelete:
		if len(msg.Params) < 2 {
			return errInsufficientParams(), false
		}
		return s.handleDelete(sess, msg.Params[0], msg.Params[1]), false

	case protocol.CmdChangePassword:
		if len(msg.Params) < 2 {
			return errInsufficientParams(), false
		}
		return s.handleChangePassword(sess, msg.Params[0], msg.Params[1]), false

	case protocol.CmdSetString:
		if len(msg.Params) < 1 {
			return errInsufficientParams(), false
		}
		return s.handleSetString(sess, msg.Params[0]), false

	case protocol.CmdGetString:
		return s.handleGetString(sess), false

	case protocol.CmdQuit:
		return protocol.NewMessage(protocol.RespGoodbye, "thanks for using the account server"), true

	default:
		return protocol.NewMessage(protocol.RespError, "unknown command: "+msg.Command), false
	}
}

func errInsufficientParams() protocol.Message {
	return protocol.NewMessage(protocol.RespError, "insufficient parameters")
}
