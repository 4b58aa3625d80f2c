package telemetry

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"

	"codeberg.org/mutker/tufctl/internal/errors"
	"codeberg.org/mutker/tufctl/internal/logger"

	_ "github.com/mattn/go-sqlite3"
)

type Repository interface {
	Store(snapshot *Snapshot) error
	Close() error
}

type sqliteRepository struct {
	db *sql.DB
	mu sync.Mutex
}

func NewRepository(cfg Config) (Repository, error) {
	errFactory := errors.New()

	logger.Debug().Msgf("Initializing telemetry repository at: %s", cfg.DBPath)

	// Ensure the directory exists
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	db, err := sql.Open("sqlite3", cfg.DBPath)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	return &sqliteRepository{
		db: db,
	}, nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
        CREATE TABLE IF NOT EXISTS thermal_decisions (
            timestamp INTEGER PRIMARY KEY,
            policy INTEGER,
            target_policy INTEGER,
            changed INTEGER,
            on_battery INTEGER,
            game_mode INTEGER,
            compiler_busy INTEGER
        )
    `)

	return err
}

func (r *sqliteRepository) Store(snapshot *Snapshot) error {
	errFactory := errors.New()
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`
        INSERT INTO thermal_decisions (
            timestamp, policy, target_policy, changed,
            on_battery, game_mode, compiler_busy
        ) VALUES (?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(timestamp) DO UPDATE SET
            policy = excluded.policy,
            target_policy = excluded.target_policy,
            changed = excluded.changed,
            on_battery = excluded.on_battery,
            game_mode = excluded.game_mode,
            compiler_busy = excluded.compiler_busy
    `,
		snapshot.Timestamp.Unix(),
		snapshot.Policy.Current,
		snapshot.Policy.Target,
		boolToInt(snapshot.Policy.Changed),
		boolToInt(snapshot.State.OnBattery),
		snapshot.State.GameMode,
		boolToInt(snapshot.State.CompilerBusy),
	)
	if err != nil {
		return errFactory.Wrap(ErrStorageAccess, err)
	}

	return nil
}

func (r *sqliteRepository) Close() error {
	errFactory := errors.New()
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.db.Close(); err != nil {
		return errFactory.Wrap(ErrStorageClose, err)
	}

	return nil
}
