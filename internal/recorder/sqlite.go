package recorder

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Scrimzay/botarena/internal/types"
)

type SQLiteRecorder struct {
	db     *sql.DB
	closed atomic.Bool
}

func OpenSQLite(path string) (*SQLiteRecorder, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteRecorder{db: db}, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS games (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL,
			end_reason TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS game_stats (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			game_id INTEGER NOT NULL REFERENCES games(id) ON DELETE CASCADE,
			player_id INTEGER NOT NULL,
			size REAL NOT NULL,
			food_eaten INTEGER NOT NULL,
			kills INTEGER NOT NULL,
			deaths INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_game_stats_player ON game_stats(player_id);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// RecordGameEnd inserts the game row and its stats in one transaction.
func (s *SQLiteRecorder) RecordGameEnd(ctx context.Context, rec types.GameRecord) error {
	if s.closed.Load() {
		return ErrClosed
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO games(start_time, end_time, end_reason) VALUES (?, ?, ?)`,
		rec.StartTime.UTC().Format(time.RFC3339Nano), rec.EndTime.UTC().Format(time.RFC3339Nano), rec.EndReason)
	if err != nil {
		return fmt.Errorf("insert game: %w", err)
	}
	gameID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("game id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO game_stats(game_id, player_id, size, food_eaten, kills, deaths) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare stats: %w", err)
	}
	defer stmt.Close()
	for _, st := range rec.Stats {
		if _, err := stmt.ExecContext(ctx, gameID, st.UserID, st.Size, st.FoodEaten, st.Kills, st.Deaths); err != nil {
			return fmt.Errorf("insert stat for user %d: %w", st.UserID, err)
		}
	}
	return tx.Commit()
}

// Games returns every stored round, oldest first.
func (s *SQLiteRecorder) Games(ctx context.Context) ([]types.GameRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, start_time, end_time, end_reason FROM games ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	var games []types.GameRecord
	for rows.Next() {
		var (
			id         int64
			start, end string
			g          types.GameRecord
		)
		if err := rows.Scan(&id, &start, &end, &g.EndReason); err != nil {
			return nil, err
		}
		if g.StartTime, err = time.Parse(time.RFC3339Nano, start); err != nil {
			return nil, err
		}
		if g.EndTime, err = time.Parse(time.RFC3339Nano, end); err != nil {
			return nil, err
		}
		ids = append(ids, id)
		games = append(games, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, id := range ids {
		stats, err := s.stats(ctx, id)
		if err != nil {
			return nil, err
		}
		games[i].Stats = stats
	}
	return games, nil
}

func (s *SQLiteRecorder) stats(ctx context.Context, gameID int64) ([]types.GameStat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT player_id, size, food_eaten, kills, deaths FROM game_stats WHERE game_id = ? ORDER BY id`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.GameStat
	for rows.Next() {
		var st types.GameStat
		if err := rows.Scan(&st.UserID, &st.Size, &st.FoodEaten, &st.Kills, &st.Deaths); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *SQLiteRecorder) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}
