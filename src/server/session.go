package server

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"signal-relay/src/interfaces"
	"signal-relay/src/logger"
	"signal-relay/src/metrics"
	"signal-relay/src/models"
	"signal-relay/src/protocol"
	"signal-relay/src/utils"
)

const sessionWriteTimeout = 10 * time.Second

// -----------------------------------------------------------------------------

// Session owns one accepted producer connection: the auth handshake first,
// then the read loop. Frames are handed to the processor strictly in arrival
// order; writes can come from other goroutines (the relay answers
// asynchronously) and are serialized by writeMu.
type Session struct {
	conn       net.Conn
	remoteAddr string
	opts       *Options
	logger     *logger.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once

	authenticated bool
	lastActivity  time.Time
}

// -----------------------------------------------------------------------------

func newSession(conn net.Conn, opts *Options, log *logger.Logger) *Session {
	return &Session{
		conn:       conn,
		remoteAddr: conn.RemoteAddr().String(),
		opts:       opts,
		logger:     log,
	}
}

// -----------------------------------------------------------------------------

// Run drives the session to completion and always releases the connection,
// no matter which path ended it.
func (s *Session) Run() {
	defer s.Close()

	s.logger.Info("New connection from %s", s.remoteAddr)

	if !s.authenticate() {
		s.logger.Warning("Authentication failed for %s. Closing connection.", s.remoteAddr)
		return
	}
	s.logger.Info("Client %s authenticated successfully.", s.remoteAddr)

	metrics.SessionsActive.Inc()
	defer metrics.SessionsActive.Dec()

	s.loop()
}

// -----------------------------------------------------------------------------

// authenticate reads exactly one frame and checks its secret. The peer gets
// one error response on mismatch, then the connection dies.
func (s *Session) authenticate() bool {
	_ = s.conn.SetReadDeadline(time.Now().Add(s.opts.AuthTimeout))

	env, err := protocol.ReadMessage(s.conn, s.opts.MaxFrameBytes)
	if err != nil {
		return false
	}

	if s.opts.SecretKey == "" || env.SecretKey() != s.opts.SecretKey {
		_ = s.WriteMessage(&models.MResponse{Status: utils.StatusError, Message: "Invalid secret key"})
		return false
	}

	if err := s.WriteMessage(&models.MResponse{Status: utils.StatusSuccess, Message: "Authentication successful"}); err != nil {
		return false
	}

	s.authenticated = true
	return true
}

// -----------------------------------------------------------------------------

func (s *Session) loop() {
	for {
		if s.opts.ReadTimeout > 0 {
			_ = s.conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
		}

		env, err := protocol.ReadMessage(s.conn, s.opts.MaxFrameBytes)
		if err != nil {
			s.logReadEnd(err)
			return
		}
		s.lastActivity = time.Now()

		// Heartbeats are answered in place and never reach the processor.
		if env.Type() == utils.TypePing {
			if err := s.WriteMessage(models.MEnvelope{"type": utils.TypePong}); err != nil {
				return
			}
			continue
		}

		resp := s.opts.Processor.Process(s, env)
		if resp == nil {
			continue // the processor answers asynchronously
		}
		if resp.ClientMsgID == "" {
			resp.ClientMsgID = env.CorrelationID()
		}
		if err := s.WriteMessage(resp); err != nil {
			s.logger.Error("Failed to write response to %s: %v", s.remoteAddr, err)
			return
		}
	}
}

// -----------------------------------------------------------------------------

func (s *Session) logReadEnd(err error) {
	var netErr net.Error
	switch {
	case errors.Is(err, io.EOF):
		s.logger.Info("Client %s disconnected.", s.remoteAddr)
	case errors.As(err, &netErr) && netErr.Timeout():
		s.logger.Info("Client %s idle past the heartbeat window. Presumed dead.", s.remoteAddr)
	case protocol.IsProtocolError(err):
		s.logger.Warning("Protocol violation from %s: %v", s.remoteAddr, err)
	default:
		s.logger.Error("Read error from %s: %v", s.remoteAddr, err)
	}
}

// -----------------------------------------------------------------------------

// WriteMessage encodes and writes one frame. Safe for concurrent use.
func (s *Session) WriteMessage(v interface{}) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_ = s.conn.SetWriteDeadline(time.Now().Add(sessionWriteTimeout))
	return protocol.WriteMessage(s.conn, v)
}

// -----------------------------------------------------------------------------

func (s *Session) RemoteAddr() string {
	return s.remoteAddr
}

// -----------------------------------------------------------------------------

// Close releases the connection exactly once and fires the close hook.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		_ = s.conn.Close()
		if s.opts.OnSessionClose != nil {
			s.opts.OnSessionClose(s)
		}
		s.logger.Info("Connection with %s closed.", s.remoteAddr)
	})
}

// -----------------------------------------------------------------------------

var _ interfaces.ISession = (*Session)(nil)
