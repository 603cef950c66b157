package database

import (
	"log/slog"

	"github.com/karloscodes/cartridge/cache"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"formlane/internal/config"
	"formlane/internal/forms"
	"formlane/internal/responses"
	"formlane/internal/uploads"
	"formlane/internal/users"
	"formlane/internal/visits"
)

// DBManager wraps cartridge's sqlite.Manager with formlane-specific migration methods.
type DBManager struct {
	*sqlite.Manager
	logger *slog.Logger
}

// NewDBManager creates a new database manager using cartridge's sqlite.Manager.
func NewDBManager(cfg *config.Config, logger *slog.Logger) *DBManager {
	sqliteCfg := sqlite.Config{
		Path:         cfg.DatabaseName,
		MaxOpenConns: cfg.GetMaxOpenConns(),
		MaxIdleConns: cfg.GetMaxIdleConns(),
		Logger:       logger,
		EnableWAL:    true,
		TxImmediate:  true,
		BusyTimeout:  5000,
	}

	return &DBManager{
		Manager: sqlite.NewManager(sqliteCfg),
		logger:  logger,
	}
}

// Init initializes the database connection.
func (dm *DBManager) Init() error {
	_, err := dm.Manager.Connect()
	return err
}

// MigrateDatabase runs formlane-specific migrations.
func (dm *DBManager) MigrateDatabase() error {
	db := dm.GetConnection()
	if db == nil {
		return gorm.ErrInvalidDB
	}

	// Run migrations in a transaction
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(
			&cache.CacheRecord{},
			&users.User{},
			&forms.Form{},
			&visits.Visit{},
			&responses.Response{},
			&uploads.FileUpload{},
		); err != nil {
			return err
		}

		// At most one open (incomplete) response per form and visit. The
		// partial index lets completed responses accumulate while keeping
		// concurrent submits for the same visit from forking open drafts.
		return tx.Exec(`
			CREATE UNIQUE INDEX IF NOT EXISTS uq_responses_open_visit
			ON responses (form_id, visit_id)
			WHERE is_complete = 0
		`).Error
	})
	if err != nil {
		dm.logger.Error("Failed to auto-migrate database", slog.Any("error", err))
		return err
	}

	if err := dm.CheckpointWAL("FULL"); err != nil {
		dm.logger.Warn("Failed to checkpoint WAL after migration", slog.Any("error", err))
	}

	dm.logger.Info("Database migration completed successfully")
	return nil
}
