package storage

import (
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"

	"signal-relay/src/logger"
	"signal-relay/src/models"
	"signal-relay/src/utils"
)

// ErrSignalNotFound is returned by CloseSignal when the id is unknown or
// the signal was already closed. The retry queue treats it as permanent.
var ErrSignalNotFound = errors.New("signal not found")

// -----------------------------------------------------------------------------

type SQLiteDB struct {
	Config *models.MConfig
	DB     *sql.DB
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewSQLiteDB(cfg *models.MConfig, log *logger.Logger) (*SQLiteDB, error) {
	return &SQLiteDB{
		Config: cfg,
		Logger: log,
	}, nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteDB) Initialize() error {
	dsn := d.Config.Storage.DBPath

	// Open DB
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return err
	}

	if err := db.Ping(); err != nil {
		return err
	}

	d.DB = db

	// PRAGMA optimizations
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		d.Logger.Warning("Failed to set WAL mode: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL;"); err != nil {
		d.Logger.Warning("Failed to set synchronous mode: %v", err)
	}

	return d.createTables()
}

// -----------------------------------------------------------------------------

// createTables builds the schema non-destructively, existing data survives
// a restart (the signal history IS the product).
func (d *SQLiteDB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS signals (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
			action TEXT NOT NULL,
			symbol TEXT NOT NULL,
			price REAL NOT NULL,
			sl REAL DEFAULT 0,
			tp1 REAL DEFAULT 0,
			tp2 REAL DEFAULT 0,
			tp3 REAL DEFAULT 0,
			atr REAL DEFAULT 0,
			closed INTEGER DEFAULT 0,
			close_price REAL,
			close_timestamp DATETIME,
			profit_loss REAL
		);`,
		`CREATE TABLE IF NOT EXISTS system_state (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS reports (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
			report_type TEXT NOT NULL,
			details TEXT NOT NULL,
			is_read INTEGER DEFAULT 0
		);`,
		// The bot starts active unless someone paused it before.
		`INSERT OR IGNORE INTO system_state (key, value) VALUES ('bot_active', 'true');`,
	}

	for _, q := range queries {
		if _, err := d.DB.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteDB) SaveSignal(sig *models.MSignal) (int64, error) {
	ts := sig.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	res, err := d.DB.Exec(`
		INSERT INTO signals (timestamp, action, symbol, price, sl, tp1, tp2, tp3, atr)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ts, sig.Action, sig.Symbol, sig.Price, sig.SL, sig.TP1, sig.TP2, sig.TP3, sig.ATR)
	if err != nil {
		return 0, err
	}

	return res.LastInsertId()
}

// -----------------------------------------------------------------------------

func (d *SQLiteDB) CloseSignal(id int64, closePrice float64) (float64, error) {
	tx, err := d.DB.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var action string
	var openPrice float64
	err = tx.QueryRow(`
		SELECT action, price FROM signals WHERE id = ? AND closed = 0
	`, id).Scan(&action, &openPrice)
	if err == sql.ErrNoRows {
		return 0, ErrSignalNotFound
	}
	if err != nil {
		return 0, err
	}

	pnl := profitLoss(action, openPrice, closePrice)

	_, err = tx.Exec(`
		UPDATE signals
		SET closed = 1, close_price = ?, close_timestamp = ?, profit_loss = ?
		WHERE id = ?
	`, closePrice, time.Now().UTC(), pnl, id)
	if err != nil {
		return 0, err
	}

	return pnl, tx.Commit()
}

// -----------------------------------------------------------------------------

// profitLoss follows the trade direction: a BUY wins when price went up, a
// SELL when it went down.
func profitLoss(action string, openPrice, closePrice float64) float64 {
	if action == utils.ActionSell {
		return openPrice - closePrice
	}
	return closePrice - openPrice
}

// -----------------------------------------------------------------------------

func (d *SQLiteDB) GetTodaySignalCount() (int, error) {
	var count int
	err := d.DB.QueryRow(`
		SELECT COUNT(*) FROM signals WHERE DATE(timestamp) = DATE('now')
	`).Scan(&count)
	return count, err
}

// -----------------------------------------------------------------------------

func (d *SQLiteDB) GetTodayStats() (*models.MDailyStats, error) {
	stats := &models.MDailyStats{}
	err := d.DB.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN action = 'BUY' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN action = 'SELL' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN closed = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN closed = 1 AND profit_loss > 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN closed = 1 AND profit_loss < 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN closed = 1 THEN profit_loss ELSE 0 END), 0)
		FROM signals WHERE DATE(timestamp) = DATE('now')
	`).Scan(&stats.TotalSignals, &stats.Buys, &stats.Sells, &stats.Closed,
		&stats.Wins, &stats.Losses, &stats.TotalPL)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteDB) GetBotActive() (bool, error) {
	var value string
	err := d.DB.QueryRow(`
		SELECT value FROM system_state WHERE key = 'bot_active'
	`).Scan(&value)
	if err == sql.ErrNoRows {
		// Nobody ever paused it, so it is running.
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return value == "true", nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteDB) SetBotActive(active bool) error {
	value := "false"
	if active {
		value = "true"
	}
	_, err := d.DB.Exec(`
		INSERT INTO system_state (key, value, updated_at) VALUES ('bot_active', ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, value, time.Now().UTC())
	return err
}

// -----------------------------------------------------------------------------

func (d *SQLiteDB) CreateReport(reportType string, details string) error {
	_, err := d.DB.Exec(`
		INSERT INTO reports (timestamp, report_type, details) VALUES (?, ?, ?)
	`, time.Now().UTC(), reportType, details)
	return err
}

// -----------------------------------------------------------------------------

func (d *SQLiteDB) GetRecentReports(limit int) ([]models.MReport, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := d.DB.Query(`
		SELECT id, timestamp, report_type, details, is_read
		FROM reports ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []models.MReport
	for rows.Next() {
		var r models.MReport
		var isRead int
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.ReportType, &r.Details, &isRead); err != nil {
			return nil, err
		}
		r.IsRead = isRead != 0
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// -----------------------------------------------------------------------------

func (d *SQLiteDB) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}
