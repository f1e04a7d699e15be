package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"signal-relay/src/helpers"
	"signal-relay/src/logger"
	"signal-relay/src/models"
	"signal-relay/src/utils"
)

// -----------------------------------------------------------------------------

type PostgresDB struct {
	Config *models.MConfig
	DB     *sql.DB
	Schema string
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewPostgresDB(cfg *models.MConfig, log *logger.Logger) (*PostgresDB, error) {
	// Use the executable name as the schema so several deployments can
	// share one postgres instance without stepping on each other.
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to get executable name: %w", err)
	}
	name := filepath.Base(exe)
	name = strings.TrimSuffix(name, filepath.Ext(name))

	return &PostgresDB{
		Config: cfg,
		Schema: name,
		Logger: log,
	}, nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) Initialize() error {
	dsn := d.Config.Storage.DBConnectionString
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}

	// Postgres may come up after us (docker-compose ordering), so give it a
	// few tries before giving up.
	_, err = helpers.RetryWithBackoff("postgres ping", 4, 2*time.Second, func() (interface{}, error) {
		return nil, db.Ping()
	})
	if err != nil {
		return err
	}

	d.DB = db

	// Create Schema
	if _, err := d.DB.Exec(fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS "%s"`, d.Schema)); err != nil {
		return fmt.Errorf("failed to create schema %s: %w", d.Schema, err)
	}

	if err := d.createTables(); err != nil {
		return err
	}

	d.Logger.Info("PostgresDB initialized successfully (Schema: %s)", d.Schema)
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) createTables() error {
	queries := []string{
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS "%s"."signals" (
				id BIGSERIAL PRIMARY KEY,
				timestamp TIMESTAMPTZ DEFAULT now(),
				action TEXT NOT NULL,
				symbol TEXT NOT NULL,
				price DOUBLE PRECISION NOT NULL,
				sl DOUBLE PRECISION DEFAULT 0,
				tp1 DOUBLE PRECISION DEFAULT 0,
				tp2 DOUBLE PRECISION DEFAULT 0,
				tp3 DOUBLE PRECISION DEFAULT 0,
				atr DOUBLE PRECISION DEFAULT 0,
				closed BOOLEAN DEFAULT FALSE,
				close_price DOUBLE PRECISION,
				close_timestamp TIMESTAMPTZ,
				profit_loss DOUBLE PRECISION
			);
		`, d.Schema),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS "%s"."system_state" (
				key TEXT PRIMARY KEY,
				value TEXT NOT NULL,
				updated_at TIMESTAMPTZ DEFAULT now()
			);
		`, d.Schema),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS "%s"."reports" (
				id BIGSERIAL PRIMARY KEY,
				timestamp TIMESTAMPTZ DEFAULT now(),
				report_type TEXT NOT NULL,
				details TEXT NOT NULL,
				is_read BOOLEAN DEFAULT FALSE
			);
		`, d.Schema),
		fmt.Sprintf(`
			INSERT INTO "%s"."system_state" (key, value) VALUES ('bot_active', 'true')
			ON CONFLICT (key) DO NOTHING;
		`, d.Schema),
	}

	for _, q := range queries {
		if _, err := d.DB.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) SaveSignal(sig *models.MSignal) (int64, error) {
	ts := sig.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	var id int64
	err := d.DB.QueryRow(fmt.Sprintf(`
		INSERT INTO "%s"."signals" (timestamp, action, symbol, price, sl, tp1, tp2, tp3, atr)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`, d.Schema), ts, sig.Action, sig.Symbol, sig.Price, sig.SL, sig.TP1, sig.TP2, sig.TP3, sig.ATR).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) CloseSignal(id int64, closePrice float64) (float64, error) {
	tx, err := d.DB.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var action string
	var openPrice float64
	err = tx.QueryRow(fmt.Sprintf(`
		SELECT action, price FROM "%s"."signals" WHERE id = $1 AND closed = FALSE
	`, d.Schema), id).Scan(&action, &openPrice)
	if err == sql.ErrNoRows {
		return 0, ErrSignalNotFound
	}
	if err != nil {
		return 0, err
	}

	pnl := profitLoss(action, openPrice, closePrice)

	_, err = tx.Exec(fmt.Sprintf(`
		UPDATE "%s"."signals"
		SET closed = TRUE, close_price = $1, close_timestamp = $2, profit_loss = $3
		WHERE id = $4
	`, d.Schema), closePrice, time.Now().UTC(), pnl, id)
	if err != nil {
		return 0, err
	}

	return pnl, tx.Commit()
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) GetTodaySignalCount() (int, error) {
	var count int
	err := d.DB.QueryRow(fmt.Sprintf(`
		SELECT COUNT(*) FROM "%s"."signals"
		WHERE (timestamp AT TIME ZONE 'utc')::date = (now() AT TIME ZONE 'utc')::date
	`, d.Schema)).Scan(&count)
	return count, err
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) GetTodayStats() (*models.MDailyStats, error) {
	stats := &models.MDailyStats{}
	err := d.DB.QueryRow(fmt.Sprintf(`
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN action = '%s' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN action = '%s' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN closed THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN closed AND profit_loss > 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN closed AND profit_loss < 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN closed THEN profit_loss ELSE 0 END), 0)
		FROM "%s"."signals"
		WHERE (timestamp AT TIME ZONE 'utc')::date = (now() AT TIME ZONE 'utc')::date
	`, utils.ActionBuy, utils.ActionSell, d.Schema)).Scan(
		&stats.TotalSignals, &stats.Buys, &stats.Sells, &stats.Closed,
		&stats.Wins, &stats.Losses, &stats.TotalPL)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) GetBotActive() (bool, error) {
	var value string
	err := d.DB.QueryRow(fmt.Sprintf(`
		SELECT value FROM "%s"."system_state" WHERE key = 'bot_active'
	`, d.Schema)).Scan(&value)
	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return value == "true", nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) SetBotActive(active bool) error {
	value := "false"
	if active {
		value = "true"
	}
	_, err := d.DB.Exec(fmt.Sprintf(`
		INSERT INTO "%s"."system_state" (key, value, updated_at) VALUES ('bot_active', $1, $2)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, d.Schema), value, time.Now().UTC())
	return err
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) CreateReport(reportType string, details string) error {
	_, err := d.DB.Exec(fmt.Sprintf(`
		INSERT INTO "%s"."reports" (timestamp, report_type, details) VALUES ($1, $2, $3)
	`, d.Schema), time.Now().UTC(), reportType, details)
	return err
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) GetRecentReports(limit int) ([]models.MReport, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := d.DB.Query(fmt.Sprintf(`
		SELECT id, timestamp, report_type, details, is_read
		FROM "%s"."reports" ORDER BY id DESC LIMIT $1
	`, d.Schema), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []models.MReport
	for rows.Next() {
		var r models.MReport
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.ReportType, &r.Details, &r.IsRead); err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}
