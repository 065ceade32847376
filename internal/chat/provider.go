package chat

import (
	"go.uber.org/zap"

	"github.com/appforge/appforge/internal/common/config"
	"github.com/appforge/appforge/internal/common/logger"
)

// ProvideRepository selects the conversation repository implementation from
// config: SQLite when a database path is set, in-memory otherwise.
func ProvideRepository(cfg *config.Config, log *logger.Logger) (Repository, error) {
	if cfg.Database.Path == "" {
		log.Info("using in-memory conversation repository")
		return NewMemoryRepository(), nil
	}

	repo, err := NewSQLiteRepository(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	log.Info("using sqlite conversation repository", zap.String("path", cfg.Database.Path))
	return repo, nil
}
