package server

import (
	"encoding/binary"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-relay/src/interfaces"
	"signal-relay/src/logger"
	"signal-relay/src/models"
	"signal-relay/src/protocol"
	"signal-relay/src/utils"
)

const testSecret = "test-secret"

// -----------------------------------------------------------------------------
// Fakes
// -----------------------------------------------------------------------------

type recordingProcessor struct {
	mu      sync.Mutex
	calls   []models.MEnvelope
	nilResp bool
}

func (p *recordingProcessor) Process(sess interfaces.ISession, env models.MEnvelope) *models.MResponse {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, env)
	if p.nilResp {
		return nil
	}
	return &models.MResponse{Status: utils.StatusSuccess, Message: "ok"}
}

func (p *recordingProcessor) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

// -----------------------------------------------------------------------------

func startTestServer(t *testing.T, proc interfaces.ISignalProcessor, mutate func(*Options)) *SignalTCPServer {
	t.Helper()

	opts := Options{
		Host:        "127.0.0.1",
		Port:        0,
		SecretKey:   testSecret,
		ReadTimeout: 2 * time.Second,
		AuthTimeout: time.Second,
		Processor:   proc,
	}
	if mutate != nil {
		mutate(&opts)
	}

	cfg := &models.MConfig{LogLevel: "ERROR"}
	srv := NewSignalTCPServer(opts, logger.NewLogger(cfg, "test"))
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Stop)
	return srv
}

func dialServer(t *testing.T, srv *SignalTCPServer) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", srv.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func dialAndAuth(t *testing.T, srv *SignalTCPServer) net.Conn {
	t.Helper()
	conn := dialServer(t, srv)
	require.NoError(t, protocol.WriteMessage(conn, models.MEnvelope{"secret_key": testSecret}))
	resp, err := protocol.ReadMessage(conn, protocol.DefaultMaxFrameBytes)
	require.NoError(t, err)
	require.Equal(t, utils.StatusSuccess, resp.Status())
	require.Equal(t, "Authentication successful", resp.Str("message"))
	return conn
}

// -----------------------------------------------------------------------------
// Authentication
// -----------------------------------------------------------------------------

func TestAuthWrongSecret(t *testing.T) {
	proc := &recordingProcessor{}
	srv := startTestServer(t, proc, nil)
	conn := dialServer(t, srv)

	require.NoError(t, protocol.WriteMessage(conn, models.MEnvelope{"secret_key": "wrong"}))

	resp, err := protocol.ReadMessage(conn, protocol.DefaultMaxFrameBytes)
	require.NoError(t, err)
	assert.Equal(t, utils.StatusError, resp.Status())
	assert.Equal(t, "Invalid secret key", resp.Str("message"))

	// The server hangs up right after the error reply.
	_, err = protocol.ReadMessage(conn, protocol.DefaultMaxFrameBytes)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 0, proc.callCount())
}

// -----------------------------------------------------------------------------

func TestAuthTimeout(t *testing.T) {
	srv := startTestServer(t, &recordingProcessor{}, func(o *Options) {
		o.AuthTimeout = 200 * time.Millisecond
	})
	conn := dialServer(t, srv)

	// Send nothing; the server should give up on us.
	_, err := protocol.ReadMessage(conn, protocol.DefaultMaxFrameBytes)
	assert.ErrorIs(t, err, io.EOF)
}

// -----------------------------------------------------------------------------
// Message loop
// -----------------------------------------------------------------------------

func TestPingAnsweredWithoutProcessor(t *testing.T) {
	proc := &recordingProcessor{}
	srv := startTestServer(t, proc, nil)
	conn := dialAndAuth(t, srv)

	require.NoError(t, protocol.WriteMessage(conn, models.MEnvelope{"type": "ping"}))

	resp, err := protocol.ReadMessage(conn, protocol.DefaultMaxFrameBytes)
	require.NoError(t, err)
	assert.Equal(t, utils.TypePong, resp.Type())
	assert.Equal(t, 0, proc.callCount(), "heartbeats must not reach business logic")
}

// -----------------------------------------------------------------------------

func TestDispatchEchoesClientMsgID(t *testing.T) {
	proc := &recordingProcessor{}
	srv := startTestServer(t, proc, nil)
	conn := dialAndAuth(t, srv)

	require.NoError(t, protocol.WriteMessage(conn, models.MEnvelope{
		"action":        "BUY",
		"symbol":        "XAUUSD",
		"price":         2500.0,
		"client_msg_id": "producer-42",
	}))

	resp, err := protocol.ReadMessage(conn, protocol.DefaultMaxFrameBytes)
	require.NoError(t, err)
	assert.Equal(t, utils.StatusSuccess, resp.Status())
	assert.Equal(t, "producer-42", resp.ClientMsgID())

	require.Equal(t, 1, proc.callCount())
	assert.Equal(t, "XAUUSD", proc.calls[0].Symbol())
}

// -----------------------------------------------------------------------------

func TestFramesProcessedInOrder(t *testing.T) {
	proc := &recordingProcessor{}
	srv := startTestServer(t, proc, nil)
	conn := dialAndAuth(t, srv)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, protocol.WriteMessage(conn, models.MEnvelope{
			"action":        "BUY",
			"symbol":        "XAUUSD",
			"price":         1.0,
			"client_msg_id": id,
		}))
		resp, err := protocol.ReadMessage(conn, protocol.DefaultMaxFrameBytes)
		require.NoError(t, err)
		assert.Equal(t, id, resp.ClientMsgID())
	}

	require.Equal(t, 3, proc.callCount())
	assert.Equal(t, "a", proc.calls[0].ClientMsgID())
	assert.Equal(t, "c", proc.calls[2].ClientMsgID())
}

// -----------------------------------------------------------------------------

func TestNilProcessorResponseKeepsSessionAlive(t *testing.T) {
	proc := &recordingProcessor{nilResp: true}
	srv := startTestServer(t, proc, nil)
	conn := dialAndAuth(t, srv)

	require.NoError(t, protocol.WriteMessage(conn, models.MEnvelope{
		"action": "BUY", "symbol": "XAUUSD", "price": 1.0,
	}))

	// No response for the signal, but the session still answers pings.
	require.NoError(t, protocol.WriteMessage(conn, models.MEnvelope{"type": "ping"}))
	resp, err := protocol.ReadMessage(conn, protocol.DefaultMaxFrameBytes)
	require.NoError(t, err)
	assert.Equal(t, utils.TypePong, resp.Type())
	assert.Equal(t, 1, proc.callCount())
}

// -----------------------------------------------------------------------------
// Failure paths
// -----------------------------------------------------------------------------

func TestIdleSessionTimesOut(t *testing.T) {
	srv := startTestServer(t, &recordingProcessor{}, func(o *Options) {
		o.ReadTimeout = 200 * time.Millisecond
	})
	conn := dialAndAuth(t, srv)

	_, err := protocol.ReadMessage(conn, protocol.DefaultMaxFrameBytes)
	assert.ErrorIs(t, err, io.EOF)
}

// -----------------------------------------------------------------------------

func TestOversizedHeaderClosesConnection(t *testing.T) {
	srv := startTestServer(t, &recordingProcessor{}, nil)
	conn := dialAndAuth(t, srv)

	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, protocol.DefaultMaxFrameBytes+1)
	_, err := conn.Write(header)
	require.NoError(t, err)

	_, err = protocol.ReadMessage(conn, protocol.DefaultMaxFrameBytes)
	assert.ErrorIs(t, err, io.EOF)
}

// -----------------------------------------------------------------------------

func TestStopClosesActiveSessions(t *testing.T) {
	srv := startTestServer(t, &recordingProcessor{}, nil)
	conn := dialAndAuth(t, srv)

	srv.Stop()

	_, err := protocol.ReadMessage(conn, protocol.DefaultMaxFrameBytes)
	assert.Error(t, err)
}
