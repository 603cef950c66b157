package jobs

import (
	"log/slog"

	"github.com/karloscodes/cartridge"
)

// Jobs is an alias for Scheduler kept for call sites that predate the name.
type Jobs = Scheduler

// NewJobs creates the background job scheduler.
func NewJobs(dbManager cartridge.DBManager, logger *slog.Logger) (*Jobs, error) {
	return NewScheduler(dbManager, logger)
}
