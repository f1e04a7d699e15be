package relay

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"signal-relay/src/logger"
	"signal-relay/src/metrics"
	"signal-relay/src/models"
	"signal-relay/src/protocol"
	"signal-relay/src/utils"
)

// -----------------------------------------------------------------------------

const (
	upstreamDialTimeout  = 10 * time.Second
	upstreamAuthTimeout  = 10 * time.Second
	upstreamWriteTimeout = 10 * time.Second
)

// UpstreamClient owns the single connection to the central server. It drains
// the shared outbound queue onto that connection, feeds every response to
// the dispatch callback, and keeps reconnecting with linear backoff until
// its context is cancelled.
type UpstreamClient struct {
	Config *models.MConfig
	Logger *logger.Logger

	outbound chan models.MEnvelope
	dispatch func(models.MEnvelope)

	mu        sync.Mutex
	connected bool

	// pending holds a frame that failed mid-write so it goes out first on
	// the next connection. Only the drain loop touches it, and drain loops
	// never overlap: serve returns before Run dials again.
	pending models.MEnvelope
}

// -----------------------------------------------------------------------------

func NewUpstreamClient(cfg *models.MConfig, log *logger.Logger, outbound chan models.MEnvelope, dispatch func(models.MEnvelope)) *UpstreamClient {
	return &UpstreamClient{
		Config:   cfg,
		Logger:   log,
		outbound: outbound,
		dispatch: dispatch,
	}
}

// -----------------------------------------------------------------------------

// Run connects, serves, reconnects, forever. Each consecutive failure
// stretches the wait by another ReconnectSeconds up to MaxReconnectSeconds;
// an authenticated connection resets the ladder.
func (uc *UpstreamClient) Run(ctx context.Context) {
	failures := 0

	for ctx.Err() == nil {
		conn, err := uc.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			metrics.UpstreamReconnectsTotal.Inc()
			wait := uc.backoff(failures)
			uc.Logger.Error("Upstream connection failed: %v. Retrying in %s.", err, wait)
			if !sleepCtx(ctx, wait) {
				return
			}
			continue
		}

		failures = 0
		uc.setConnected(true)
		uc.Logger.Info("Connected and authenticated to upstream %s", conn.RemoteAddr())

		err = uc.serve(ctx, conn)
		uc.setConnected(false)
		conn.Close()

		if ctx.Err() != nil {
			return
		}
		failures++
		metrics.UpstreamReconnectsTotal.Inc()
		wait := uc.backoff(failures)
		uc.Logger.Warning("Upstream session ended: %v. Reconnecting in %s.", err, wait)
		if !sleepCtx(ctx, wait) {
			return
		}
	}
}

// -----------------------------------------------------------------------------

// Connected reports whether an authenticated upstream session is live right
// now. The relay uses it to decide between a real response and a queued ack.
func (uc *UpstreamClient) Connected() bool {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	return uc.connected
}

// -----------------------------------------------------------------------------

func (uc *UpstreamClient) setConnected(v bool) {
	uc.mu.Lock()
	uc.connected = v
	uc.mu.Unlock()
}

// -----------------------------------------------------------------------------

// connect dials, optionally wraps in TLS, and runs the auth handshake, all
// before the connection is handed to the serve loops. A connection that
// comes back from here is ready to carry signals.
func (uc *UpstreamClient) connect(ctx context.Context) (net.Conn, error) {
	addr := fmt.Sprintf("%s:%d", uc.Config.Bridge.UpstreamHost, uc.Config.Bridge.UpstreamPort)

	dialer := net.Dialer{Timeout: upstreamDialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	if uc.Config.Bridge.UpstreamTLS {
		tlsConn := tls.Client(conn, &tls.Config{
			ServerName:         uc.Config.Bridge.UpstreamHost,
			InsecureSkipVerify: uc.Config.Bridge.TLSSkipVerify,
		})
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, fmt.Errorf("tls handshake: %v", err)
		}
		conn = tlsConn
	}

	// One deadline window covers the auth write and its reply.
	if err := conn.SetDeadline(time.Now().Add(upstreamAuthTimeout)); err != nil {
		conn.Close()
		return nil, err
	}
	auth := models.MEnvelope{"secret_key": uc.Config.Security.SecretKey}
	if err := protocol.WriteMessage(conn, auth); err != nil {
		conn.Close()
		return nil, fmt.Errorf("auth write: %v", err)
	}
	reply, err := protocol.ReadMessage(conn, protocol.DefaultMaxFrameBytes)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("auth read: %v", err)
	}
	if reply.Status() != utils.StatusSuccess {
		conn.Close()
		return nil, fmt.Errorf("auth rejected: %s", reply.Str("message"))
	}
	if err := conn.SetDeadline(time.Time{}); err != nil {
		conn.Close()
		return nil, err
	}

	return conn, nil
}

// -----------------------------------------------------------------------------

// serve runs the write and read halves of one session. Closing the
// connection is the only way to unblock a stuck reader or writer, so a
// watcher goroutine does exactly that as soon as either half fails.
func (uc *UpstreamClient) serve(ctx context.Context, conn net.Conn) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-gctx.Done()
		conn.Close()
		return nil
	})
	g.Go(func() error { return uc.drainLoop(gctx, conn) })
	g.Go(func() error { return uc.dispatchLoop(conn) })

	return g.Wait()
}

// -----------------------------------------------------------------------------

// drainLoop forwards queued frames to the upstream connection. When the
// queue stays quiet for a full heartbeat interval it sends a ping instead,
// which doubles as the liveness probe for the read side.
func (uc *UpstreamClient) drainLoop(ctx context.Context, conn net.Conn) error {
	// A frame that failed mid-write last session goes out before anything
	// else. Delivering it twice is acceptable, losing it is not.
	if uc.pending != nil {
		if err := uc.writeFrame(conn, uc.pending); err != nil {
			return err
		}
		uc.pending = nil
	}

	heartbeat := uc.heartbeatInterval()
	timer := time.NewTimer(heartbeat)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case env := <-uc.outbound:
			metrics.OutboundQueueDepth.Set(float64(len(uc.outbound)))
			if err := uc.writeFrame(conn, env); err != nil {
				uc.pending = env
				return err
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(heartbeat)

		case <-timer.C:
			if err := uc.writeFrame(conn, models.MEnvelope{"type": utils.TypePing}); err != nil {
				return err
			}
			timer.Reset(heartbeat)
		}
	}
}

// -----------------------------------------------------------------------------

// dispatchLoop reads server responses and hands them to the relay. The
// server answers our pings, so a healthy link always produces a frame
// within two heartbeat windows; silence past that means the link is dead
// even if the socket never errored.
func (uc *UpstreamClient) dispatchLoop(conn net.Conn) error {
	readTimeout := 2*uc.heartbeatInterval() + 5*time.Second

	for {
		if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return err
		}
		env, err := protocol.ReadMessage(conn, protocol.DefaultMaxFrameBytes)
		if err != nil {
			return err
		}
		if env.Type() == utils.TypePong {
			continue
		}
		uc.dispatch(env)
	}
}

// -----------------------------------------------------------------------------

func (uc *UpstreamClient) writeFrame(conn net.Conn, env models.MEnvelope) error {
	if err := conn.SetWriteDeadline(time.Now().Add(upstreamWriteTimeout)); err != nil {
		return err
	}
	return protocol.WriteMessage(conn, env)
}

// -----------------------------------------------------------------------------

func (uc *UpstreamClient) backoff(failures int) time.Duration {
	base := uc.Config.Bridge.ReconnectSeconds
	if base <= 0 {
		base = 10
	}
	max := uc.Config.Bridge.MaxReconnectSeconds
	if max <= 0 {
		max = 60
	}
	secs := failures * base
	if secs > max {
		secs = max
	}
	return time.Duration(secs) * time.Second
}

// -----------------------------------------------------------------------------

func (uc *UpstreamClient) heartbeatInterval() time.Duration {
	secs := uc.Config.Bridge.HeartbeatSeconds
	if secs <= 0 {
		secs = 30
	}
	return time.Duration(secs) * time.Second
}

// -----------------------------------------------------------------------------

// sleepCtx waits d or until ctx is cancelled, reporting whether the full
// wait elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
