package eventlog

import (
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"

	"github.com/tphakala/odeflow/internal/conf"
	"github.com/tphakala/odeflow/internal/errors"
)

const componentName = "eventlog"

// Open connects to the configured database and migrates the schema.
func Open(s conf.EventLogSettings) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch s.Driver {
	case "sqlite":
		dialector = sqlite.Open(s.DSN)
	case "mysql":
		dialector = mysql.Open(s.DSN)
	default:
		return nil, errors.Newf("unsupported event log driver %q", s.Driver).
			Component(componentName).
			Category(errors.CategoryConfiguration).
			Build()
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gorm_logger.Default.LogMode(gorm_logger.Silent),
	})
	if err != nil {
		return nil, dbError(err, s.Driver, "open")
	}

	if s.Driver == "sqlite" {
		// One connection keeps in-memory databases shared.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, dbError(err, s.Driver, "open")
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&Occurrence{}); err != nil {
		_ = Close(db)
		return nil, dbError(err, s.Driver, "migrate")
	}
	return db, nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func dbError(err error, driver, op string) error {
	return errors.New(err).
		Component(componentName).
		Category(errors.CategoryDatabase).
		Context("driver", driver).
		Context("operation", op).
		Build()
}
