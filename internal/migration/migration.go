package migration

import (
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	policydomain "github.com/smallbiznis/flexwatch/internal/policy/domain"
	snapshotdomain "github.com/smallbiznis/flexwatch/internal/snapshot/domain"
)

// Run applies the schema at startup. Both tables are simple enough
// that gorm's auto migration is sufficient.
func Run(gdb *gorm.DB, log *zap.Logger) error {
	log = log.Named("migration")

	if err := gdb.AutoMigrate(
		&snapshotdomain.Record{},
		&policydomain.Rule{},
	); err != nil {
		log.Error("schema migration failed", zap.Error(err))
		return err
	}

	log.Info("schema migration complete")
	return nil
}

var Module = fx.Module("migration",
	fx.Invoke(Run),
)
