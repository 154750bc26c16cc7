package journal

import (
	"context"
	"os"
	"sync"

	"autohedge/internal/models"
	"autohedge/internal/modules/config"
	"autohedge/pkg/db"
	"autohedge/pkg/logger"

	"github.com/bytedance/sonic"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const createTradesTable = `
CREATE TABLE IF NOT EXISTS closed_trades (
	id          BIGSERIAL PRIMARY KEY,
	symbol      TEXT             NOT NULL,
	entry_price DOUBLE PRECISION NOT NULL,
	exit_price  DOUBLE PRECISION NOT NULL,
	qty         DOUBLE PRECISION NOT NULL,
	pnl         DOUBLE PRECISION NOT NULL,
	pnl_pct     DOUBLE PRECISION NOT NULL,
	reason      TEXT             NOT NULL,
	entry_time  TIMESTAMPTZ      NOT NULL,
	exit_time   TIMESTAMPTZ      NOT NULL
)`

const insertTrade = `
INSERT INTO closed_trades
	(symbol, entry_price, exit_price, qty, pnl, pnl_pct, reason, entry_time, exit_time)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

// Journal appends every closed trade to an NDJSON file and, when a DSN
// is configured, mirrors it into Postgres. A sink failure never blocks
// trading; it is logged and the trade still reaches the other sink.
type Journal struct {
	mu   sync.Mutex
	path string
	txm  *db.PgTxManager
}

func New(cfg *config.Config) (*Journal, error) {
	j := &Journal{path: cfg.Journal.Path}

	if cfg.Journal.DBDSN != "" {
		pool, err := db.NewPool(context.Background(), db.PoolConfig{DSN: cfg.Journal.DBDSN})
		if err != nil {
			return nil, errors.Wrap(err, "journal db")
		}
		j.txm = db.NewPgTxManager(pool)
		if err := j.txm.Run(context.Background(), func(ctx context.Context, tx pgx.Tx) error {
			_, err := tx.Exec(ctx, createTradesTable)
			return err
		}); err != nil {
			return nil, errors.Wrap(err, "journal schema")
		}
	}
	return j, nil
}

func (j *Journal) Close() {
	if j.txm != nil {
		j.txm.Close()
	}
}

// RecordClose persists one trade record to every configured sink.
func (j *Journal) RecordClose(ct models.ClosedTrade) {
	if err := j.appendFile(ct); err != nil {
		logger.Error("[JOURNAL] file append failed: %v", err)
	}
	if j.txm != nil {
		if err := j.insertDB(ct); err != nil {
			logger.Error("[JOURNAL] db insert failed: %v", err)
		}
	}
}

func (j *Journal) appendFile(ct models.ClosedTrade) error {
	if j.path == "" {
		return nil
	}
	line, err := sonic.Marshal(ct)
	if err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
	}()
	_, err = f.Write(append(line, '\n'))
	return err
}

func (j *Journal) insertDB(ct models.ClosedTrade) error {
	return j.txm.Run(context.Background(), func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, insertTrade,
			ct.Symbol, ct.EntryPrice, ct.ExitPrice, ct.Qty,
			ct.PnL, ct.PnLPct, ct.Reason, ct.EntryTime, ct.ExitTime)
		return err
	})
}

// ReadAll loads every record from the NDJSON file, tolerating a missing
// file. Used by the replay tool.
func ReadAll(path string) ([]models.ClosedTrade, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []models.ClosedTrade
	start := 0
	for i := 0; i <= len(raw); i++ {
		if i == len(raw) || raw[i] == '\n' {
			line := raw[start:i]
			start = i + 1
			if len(line) == 0 {
				continue
			}
			var ct models.ClosedTrade
			if err := sonic.Unmarshal(line, &ct); err != nil {
				logger.Warn("[JOURNAL] skipping malformed line: %v", err)
				continue
			}
			out = append(out, ct)
		}
	}
	return out, nil
}
