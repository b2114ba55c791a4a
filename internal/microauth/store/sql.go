package store

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tinyauth/microauth/internal/model"
	mysqlopts "github.com/tinyauth/microauth/pkg/component/mysql"
	postgresopts "github.com/tinyauth/microauth/pkg/component/postgres"
)

// Options selects and configures the database backend.
type Options struct {
	// Driver is one of "sqlite", "mysql", "postgres".
	Driver string `json:"driver" mapstructure:"driver"`
	// DSN is the sqlite database path (":memory:" for tests).
	DSN string `json:"dsn" mapstructure:"dsn"`

	MySQL    *mysqlopts.Options    `json:"mysql" mapstructure:"mysql"`
	Postgres *postgresopts.Options `json:"postgres" mapstructure:"postgres"`
}

// NewOptions returns options defaulting to an on-disk sqlite database.
func NewOptions() *Options {
	return &Options{
		Driver:   "sqlite",
		DSN:      "microauth.db",
		MySQL:    mysqlopts.NewOptions(),
		Postgres: postgresopts.NewOptions(),
	}
}

type sqlFactory struct {
	db *gorm.DB
}

// NewFactory opens the configured database and returns a store factory.
func NewFactory(opts *Options) (Factory, error) {
	var dialector gorm.Dialector
	switch opts.Driver {
	case "sqlite", "":
		dialector = sqlite.Open(opts.DSN)
	case "mysql":
		if err := opts.MySQL.Validate(); err != nil {
			return nil, err
		}
		dialector = mysql.Open(mysqlopts.BuildDSN(opts.MySQL))
	case "postgres":
		if err := opts.Postgres.Validate(); err != nil {
			return nil, err
		}
		dialector = postgres.Open(postgresopts.BuildDSN(opts.Postgres))
	default:
		return nil, fmt.Errorf("unknown database driver %q", opts.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if sqlDB, err := db.DB(); err == nil {
		switch opts.Driver {
		case "mysql":
			sqlDB.SetMaxIdleConns(opts.MySQL.MaxIdleConnections)
			sqlDB.SetMaxOpenConns(opts.MySQL.MaxOpenConnections)
			sqlDB.SetConnMaxLifetime(opts.MySQL.MaxConnectionLifeTime)
		case "postgres":
			sqlDB.SetMaxIdleConns(opts.Postgres.MaxIdleConnections)
			sqlDB.SetMaxOpenConns(opts.Postgres.MaxOpenConnections)
			sqlDB.SetConnMaxLifetime(opts.Postgres.MaxConnectionLifeTime)
		}
	}

	return &sqlFactory{db: db}, nil
}

// NewFactoryWithDB wraps an already-open gorm handle. Used by tests.
func NewFactoryWithDB(db *gorm.DB) Factory {
	return &sqlFactory{db: db}
}

func (f *sqlFactory) Users() UserStore           { return &users{db: f.db} }
func (f *sqlFactory) Groups() GroupStore         { return &groups{db: f.db} }
func (f *sqlFactory) AccessKeys() AccessKeyStore { return &accessKeys{db: f.db} }
func (f *sqlFactory) Policies() PolicyStore      { return &policies{db: f.db} }

// AutoMigrate creates or updates the schema for all models.
func (f *sqlFactory) AutoMigrate() error {
	return f.db.AutoMigrate(
		&model.User{},
		&model.AccessKey{},
		&model.Group{},
		&model.Policy{},
	)
}

// Close closes the underlying database connection.
func (f *sqlFactory) Close() error {
	sqlDB, err := f.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
