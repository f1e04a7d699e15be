package server

import (
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	"signal-relay/src/helpers"
	"signal-relay/src/interfaces"
	"signal-relay/src/logger"
	"signal-relay/src/protocol"
)

// -----------------------------------------------------------------------------

// Options configures a SignalTCPServer. The same server type backs both the
// main signal endpoint and the bridge's local acceptor, they differ only in
// the processor plugged in.
type Options struct {
	Host          string
	Port          int
	SecretKey     string
	ReadTimeout   time.Duration
	AuthTimeout   time.Duration
	MaxFrameBytes uint32
	TLSCertFile   string
	TLSKeyFile    string

	// Processor handles every authenticated non-heartbeat envelope.
	Processor interfaces.ISignalProcessor

	// OnSessionClose fires exactly once per session, used by the bridge to
	// purge correlation entries for a gone producer.
	OnSessionClose func(sess interfaces.ISession)
}

// -----------------------------------------------------------------------------

// SignalTCPServer accepts producer connections and runs one Session per
// connection until stopped.
type SignalTCPServer struct {
	Options Options
	Logger  *logger.Logger

	listener   net.Listener
	tlsEnabled bool
	wg         sync.WaitGroup

	mu       sync.Mutex
	sessions map[*Session]struct{}
	closed   bool
}

// -----------------------------------------------------------------------------

func NewSignalTCPServer(opts Options, log *logger.Logger) *SignalTCPServer {
	if opts.MaxFrameBytes == 0 {
		opts.MaxFrameBytes = protocol.DefaultMaxFrameBytes
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 60 * time.Second
	}
	if opts.AuthTimeout == 0 {
		opts.AuthTimeout = 10 * time.Second
	}

	return &SignalTCPServer{
		Options:  opts,
		Logger:   log,
		sessions: make(map[*Session]struct{}),
	}
}

// -----------------------------------------------------------------------------

func (srv *SignalTCPServer) Start() error {
	addr := fmt.Sprintf("%s:%d", srv.Options.Host, srv.Options.Port)

	// 1. Build the listener, TLS when a certificate pair is configured
	listener, err := srv.listen(addr)
	if err != nil {
		return &helpers.NetworkError{SignalRelayError: helpers.SignalRelayError{Message: fmt.Sprintf("listen on %s", addr), Cause: err}}
	}
	srv.listener = listener

	// 2. Accept connections until Stop
	srv.wg.Add(1)
	go srv.acceptLoop()

	proto := "TCP"
	if srv.tlsEnabled {
		proto = "TCPS"
	}
	srv.Logger.Info("Serving on %s using %s", listener.Addr(), proto)
	return nil
}

// -----------------------------------------------------------------------------

// listen falls back to plain TCP when the certificate cannot be loaded. A
// bad cert path should not take the signal path down with it.
func (srv *SignalTCPServer) listen(addr string) (net.Listener, error) {
	opts := &srv.Options
	if opts.TLSCertFile != "" && opts.TLSKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(opts.TLSCertFile, opts.TLSKeyFile)
		if err != nil {
			srv.Logger.Error("Error loading TLS certificate: %v. Server will start without TLS.", err)
		} else {
			srv.tlsEnabled = true
			return tls.Listen("tcp", addr, &tls.Config{Certificates: []tls.Certificate{cert}})
		}
	}
	return net.Listen("tcp", addr)
}

// -----------------------------------------------------------------------------

func (srv *SignalTCPServer) acceptLoop() {
	defer srv.wg.Done()

	for {
		conn, err := srv.listener.Accept()
		if err != nil {
			if srv.isClosed() {
				return
			}
			srv.Logger.Error("Failed to accept connection: %v", err)
			time.Sleep(100 * time.Millisecond)
			continue
		}

		sess := newSession(conn, &srv.Options, srv.Logger)
		srv.track(sess)

		srv.wg.Add(1)
		go func() {
			defer srv.wg.Done()
			defer srv.untrack(sess)
			sess.Run()
		}()
	}
}

// -----------------------------------------------------------------------------

// Stop closes the listener, tears down every live session and waits for
// their goroutines to finish.
func (srv *SignalTCPServer) Stop() {
	srv.mu.Lock()
	if srv.closed {
		srv.mu.Unlock()
		return
	}
	srv.closed = true
	open := make([]*Session, 0, len(srv.sessions))
	for sess := range srv.sessions {
		open = append(open, sess)
	}
	srv.mu.Unlock()

	if srv.listener != nil {
		_ = srv.listener.Close()
	}
	for _, sess := range open {
		sess.Close()
	}
	srv.wg.Wait()
	srv.Logger.Info("TCP server stopped.")
}

// -----------------------------------------------------------------------------

// Addr returns the bound address, useful when Port was 0.
func (srv *SignalTCPServer) Addr() string {
	if srv.listener == nil {
		return ""
	}
	return srv.listener.Addr().String()
}

// -----------------------------------------------------------------------------

func (srv *SignalTCPServer) isClosed() bool {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return srv.closed
}

// -----------------------------------------------------------------------------

func (srv *SignalTCPServer) track(sess *Session) {
	srv.mu.Lock()
	srv.sessions[sess] = struct{}{}
	srv.mu.Unlock()
}

// -----------------------------------------------------------------------------

func (srv *SignalTCPServer) untrack(sess *Session) {
	srv.mu.Lock()
	delete(srv.sessions, sess)
	srv.mu.Unlock()
}
