package historydb

import (
	"ChatCompanion/internal/service/history"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const schema = `
CREATE TABLE IF NOT EXISTS turns (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	identity INTEGER NOT NULL,
	speaker TEXT NOT NULL,
	text TEXT NOT NULL,
	recorded_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_turns_identity_recorded ON turns(identity, recorded_at);
CREATE INDEX IF NOT EXISTS idx_turns_recorded ON turns(recorded_at);
`

// SQLite журнал реплик в SQLite (WAL). Реализует history.Store.
type SQLite struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

var _ history.Store = (*SQLite)(nil)

// Open открывает (или создаёт) базу по пути path и накатывает схему.
func Open(path string, logger *zap.SugaredLogger) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("historydb: create dir %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("historydb: open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("historydb: ping %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("historydb: init schema: %w", err)
	}
	logger.Infow("History DB opened", "path", path)
	return &SQLite{db: db, logger: logger}, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) Append(ctx context.Context, id history.Identity, t history.Turn) error {
	if t.Speaker == "" {
		return errors.New("historydb: turn without speaker")
	}
	at := t.RecordedAt
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO turns (identity, speaker, text, recorded_at) VALUES (?, ?, ?, ?)`,
		int64(id), string(t.Speaker), t.Text, at.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("historydb: insert turn: %w", err)
	}
	return nil
}

// Recent возвращает до n последних реплик, новые первыми. Для history.Global — по всем диалогам.
// Строки с неизвестной ролью пропускаются с предупреждением.
func (s *SQLite) Recent(ctx context.Context, id history.Identity, n int) ([]history.Turn, error) {
	if n <= 0 {
		return nil, nil
	}

	var (
		rows *sql.Rows
		err  error
	)
	if id == history.Global {
		rows, err = s.db.QueryContext(ctx,
			`SELECT speaker, text, recorded_at FROM turns ORDER BY recorded_at DESC, id DESC LIMIT ?`, n)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT speaker, text, recorded_at FROM turns WHERE identity = ? ORDER BY recorded_at DESC, id DESC LIMIT ?`,
			int64(id), n)
	}
	if err != nil {
		return nil, fmt.Errorf("historydb: query recent: %w", err)
	}
	defer rows.Close()

	out := make([]history.Turn, 0, n)
	for rows.Next() {
		var (
			speaker, text string
			ms            int64
		)
		if err := rows.Scan(&speaker, &text, &ms); err != nil {
			return nil, fmt.Errorf("historydb: scan turn: %w", err)
		}
		t, err := history.NewTurn(speaker, text, time.UnixMilli(ms))
		if err != nil {
			s.logger.Warnw("Пропущена реплика с неизвестной ролью", "speaker", speaker, "error", err)
			continue
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("historydb: iterate turns: %w", err)
	}
	return out, nil
}
