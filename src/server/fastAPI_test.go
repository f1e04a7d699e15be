package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-relay/src/logger"
	"signal-relay/src/models"
	"signal-relay/src/signal"
	"signal-relay/src/storage"
)

// -----------------------------------------------------------------------------
// Fakes
// -----------------------------------------------------------------------------

const webSecret = "web-secret"

type fakeDB struct {
	active     bool
	todayCount int
	nextID     int64
	saved      []*models.MSignal
	closePL    float64
	closeErr   error
	closedIDs  []int64
	stats      models.MDailyStats
	reportRows []models.MReport
}

func newFakeDB() *fakeDB {
	return &fakeDB{active: true, nextID: 1}
}

func (f *fakeDB) Initialize() error { return nil }

func (f *fakeDB) SaveSignal(sig *models.MSignal) (int64, error) {
	f.saved = append(f.saved, sig)
	id := f.nextID
	f.nextID++
	return id, nil
}

func (f *fakeDB) CloseSignal(id int64, closePrice float64) (float64, error) {
	if f.closeErr != nil {
		return 0, f.closeErr
	}
	f.closedIDs = append(f.closedIDs, id)
	return f.closePL, nil
}

func (f *fakeDB) GetTodaySignalCount() (int, error) { return f.todayCount, nil }

func (f *fakeDB) GetTodayStats() (*models.MDailyStats, error) {
	stats := f.stats
	return &stats, nil
}

func (f *fakeDB) GetBotActive() (bool, error) { return f.active, nil }

func (f *fakeDB) SetBotActive(active bool) error {
	f.active = active
	return nil
}

func (f *fakeDB) CreateReport(reportType string, details string) error { return nil }

func (f *fakeDB) GetRecentReports(limit int) ([]models.MReport, error) {
	if limit > len(f.reportRows) {
		limit = len(f.reportRows)
	}
	return f.reportRows[:limit], nil
}

func (f *fakeDB) Close() error { return nil }

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func newTestAPI(t *testing.T) (*FastAPIServer, *fakeDB) {
	t.Helper()

	cfg := &models.MConfig{LogLevel: "ERROR"}
	cfg.Security.SecretKey = webSecret
	cfg.Admission.MaxSignalsPerDay = 10

	db := newFakeDB()
	log := logger.NewLogger(cfg, "api-test")
	svc := signal.NewService(cfg, db, nil, nil, log)
	return NewFastAPIServer(cfg, svc, db, log), db
}

func performJSON(t *testing.T, api *FastAPIServer, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	api.engine.ServeHTTP(w, req)
	return w
}

func signalBody(action string) gin.H {
	return gin.H{
		"secret_key": webSecret,
		"action":     action,
		"symbol":     "XAUUSD",
		"price":      2500.0,
	}
}

func detailOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	detail, _ := body["detail"].(string)
	return detail
}

// -----------------------------------------------------------------------------
// POST /signal
// -----------------------------------------------------------------------------

func TestWebhookBuySuccess(t *testing.T) {
	api, db := newTestAPI(t)
	db.stats.TotalSignals = 3

	w := performJSON(t, api, http.MethodPost, "/signal", signalBody("BUY"))

	require.Equal(t, http.StatusOK, w.Code)
	var resp models.MWebhookResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, "Signal BUY processed successfully", resp.Message)
	assert.EqualValues(t, 1, resp.SignalID)
	assert.Equal(t, 3, resp.SignalsToday)

	require.Len(t, db.saved, 1)
	assert.Equal(t, "BUY", db.saved[0].Action)
	assert.Equal(t, "XAUUSD", db.saved[0].Symbol)
}

// -----------------------------------------------------------------------------

func TestWebhookLowercaseActionAccepted(t *testing.T) {
	api, db := newTestAPI(t)

	w := performJSON(t, api, http.MethodPost, "/signal", signalBody("sell"))

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, db.saved, 1)
	assert.Equal(t, "SELL", db.saved[0].Action)
}

// -----------------------------------------------------------------------------

func TestWebhookWrongSecret(t *testing.T) {
	api, db := newTestAPI(t)
	body := signalBody("BUY")
	body["secret_key"] = "wrong"

	w := performJSON(t, api, http.MethodPost, "/signal", body)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid secret key", detailOf(t, w))
	assert.Empty(t, db.saved)
}

// -----------------------------------------------------------------------------

func TestWebhookInvalidAction(t *testing.T) {
	api, _ := newTestAPI(t)
	body := signalBody("HOLD")

	w := performJSON(t, api, http.MethodPost, "/signal", body)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Action must be BUY, SELL, or CLOSE", detailOf(t, w))
}

// -----------------------------------------------------------------------------

func TestWebhookMissingPrice(t *testing.T) {
	api, _ := newTestAPI(t)
	body := signalBody("BUY")
	delete(body, "price")

	w := performJSON(t, api, http.MethodPost, "/signal", body)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// -----------------------------------------------------------------------------

func TestWebhookPausedRejected(t *testing.T) {
	api, db := newTestAPI(t)
	db.active = false

	w := performJSON(t, api, http.MethodPost, "/signal", signalBody("BUY"))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "Bot is currently paused by an admin.", detailOf(t, w))
	assert.Empty(t, db.saved)
}

// -----------------------------------------------------------------------------

func TestWebhookDailyCapRejected(t *testing.T) {
	api, db := newTestAPI(t)
	db.todayCount = 10

	w := performJSON(t, api, http.MethodPost, "/signal", signalBody("BUY"))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, detailOf(t, w), "Daily signal limit")
}

// -----------------------------------------------------------------------------

func TestWebhookCloseSuccess(t *testing.T) {
	api, db := newTestAPI(t)
	db.closePL = 12.5
	body := signalBody("CLOSE")
	body["open_signal_id"] = 5

	w := performJSON(t, api, http.MethodPost, "/signal", body)

	require.Equal(t, http.StatusOK, w.Code)
	var resp models.MWebhookResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Close signal for #5 processed successfully", resp.Message)
	assert.EqualValues(t, 5, resp.SignalID)
	assert.Equal(t, []int64{5}, db.closedIDs)
}

// -----------------------------------------------------------------------------

func TestWebhookCloseMissingID(t *testing.T) {
	api, _ := newTestAPI(t)

	w := performJSON(t, api, http.MethodPost, "/signal", signalBody("CLOSE"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "open_signal_id is required for CLOSE action", detailOf(t, w))
}

// -----------------------------------------------------------------------------

func TestWebhookCloseUnknownID(t *testing.T) {
	api, db := newTestAPI(t)
	db.closeErr = storage.ErrSignalNotFound
	body := signalBody("CLOSE")
	body["open_signal_id"] = 99

	w := performJSON(t, api, http.MethodPost, "/signal", body)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, detailOf(t, w), "not found or already closed")
}

// -----------------------------------------------------------------------------

func TestWebhookCloseBypassesPause(t *testing.T) {
	api, db := newTestAPI(t)
	db.active = false
	body := signalBody("CLOSE")
	body["open_signal_id"] = 2

	w := performJSON(t, api, http.MethodPost, "/signal", body)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []int64{2}, db.closedIDs)
}

// -----------------------------------------------------------------------------
// GET /health, GET /stats
// -----------------------------------------------------------------------------

func TestHealthEndpoint(t *testing.T) {
	api, _ := newTestAPI(t)

	w := performJSON(t, api, http.MethodGet, "/health", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp models.MHealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.True(t, resp.BotActive)
	assert.NotEmpty(t, resp.Timestamp)
}

// -----------------------------------------------------------------------------

func TestStatsEndpoint(t *testing.T) {
	api, db := newTestAPI(t)
	db.stats = models.MDailyStats{TotalSignals: 4, Buys: 3, Sells: 1, TotalPL: 1.5}

	w := performJSON(t, api, http.MethodGet, "/stats", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp models.MStatsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 4, resp.Stats.TotalSignals)
	assert.Equal(t, 3, resp.Stats.Buys)
	assert.True(t, resp.BotActive)
	assert.Equal(t, 10, resp.Limits.MaxSignalsPerDay)
	assert.Equal(t, time.Now().UTC().Format("2006-01-02"), resp.Date)
}

// -----------------------------------------------------------------------------
// Admin
// -----------------------------------------------------------------------------

func TestAdminPauseAndResume(t *testing.T) {
	api, db := newTestAPI(t)

	w := performJSON(t, api, http.MethodPost, "/admin/pause", gin.H{"secret_key": webSecret})
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, db.active)

	w = performJSON(t, api, http.MethodPost, "/admin/resume", gin.H{"secret_key": webSecret})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, db.active)
}

// -----------------------------------------------------------------------------

func TestAdminPauseWrongSecret(t *testing.T) {
	api, db := newTestAPI(t)

	w := performJSON(t, api, http.MethodPost, "/admin/pause", gin.H{"secret_key": "wrong"})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.True(t, db.active, "state must not change on a rejected request")
}

// -----------------------------------------------------------------------------

func TestReportsRequireSecretHeader(t *testing.T) {
	api, db := newTestAPI(t)
	db.reportRows = []models.MReport{
		{ID: 1, ReportType: "STALE_SIGNAL", Details: "Signal discarded as stale"},
	}

	w := performJSON(t, api, http.MethodGet, "/admin/reports", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/admin/reports?limit=1", nil)
	req.Header.Set("X-Secret-Key", webSecret)
	rec := httptest.NewRecorder()
	api.engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Reports []models.MReport `json:"reports"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Reports, 1)
	assert.Equal(t, "STALE_SIGNAL", body.Reports[0].ReportType)
}

// -----------------------------------------------------------------------------

func TestReportsRejectsBadLimit(t *testing.T) {
	api, _ := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/reports?limit=abc", nil)
	req.Header.Set("X-Secret-Key", webSecret)
	rec := httptest.NewRecorder()
	api.engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// -----------------------------------------------------------------------------
// GET /metrics
// -----------------------------------------------------------------------------

func TestMetricsEndpoint(t *testing.T) {
	api, _ := newTestAPI(t)

	w := performJSON(t, api, http.MethodGet, "/metrics", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

// -----------------------------------------------------------------------------
// WebSocket feed
// -----------------------------------------------------------------------------

func dialFeed(t *testing.T, url string) *websocket.Conn {
	t.Helper()

	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWebSocketReceivesBroadcast(t *testing.T) {
	api, _ := newTestAPI(t)
	go api.runHub()

	ts := httptest.NewServer(api.engine)
	t.Cleanup(ts.Close)

	conn := dialFeed(t, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws")

	// Whether the hub registers the client before or after this event lands,
	// the client sees it: late registrations get it from the replay ring.
	api.Publish(&models.MSignalEvent{Type: "signal", Action: "BUY", Symbol: "XAUUSD", SignalID: 1})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var ev models.MSignalEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "signal", ev.Type)
	assert.EqualValues(t, 1, ev.SignalID)
}

// -----------------------------------------------------------------------------

func TestWebSocketReplaysHistoryOnConnect(t *testing.T) {
	api, _ := newTestAPI(t)
	go api.runHub()

	ts := httptest.NewServer(api.engine)
	t.Cleanup(ts.Close)

	api.Publish(&models.MSignalEvent{Type: "signal", Action: "BUY", Symbol: "XAUUSD", SignalID: 1})
	api.Publish(&models.MSignalEvent{Type: "close", Action: "CLOSE", Symbol: "XAUUSD", SignalID: 1, ProfitLoss: 3.25})

	conn := dialFeed(t, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws")
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))

	var first, second models.MSignalEvent
	require.NoError(t, conn.ReadJSON(&first))
	require.NoError(t, conn.ReadJSON(&second))

	assert.Equal(t, "signal", first.Type)
	assert.Equal(t, "close", second.Type)
	assert.InDelta(t, 3.25, second.ProfitLoss, 1e-9)
}
