package database

import (
	"fmt"
	"log"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"lulufarm/internal/domain"
)

// Options tune the connection pool. Zero values keep driver defaults.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	LogLevel        logger.LogLevel
}

func Connect(dsn string) (*gorm.DB, error) {
	return ConnectWithOptions(dsn, Options{})
}

// ConnectWithOptions picks the dialect by DSN prefix:
// postgres:// | postgresql:// -> PostgreSQL, mysql:// -> MySQL, anything else -> SQLite.
func ConnectWithOptions(dsn string, opts Options) (*gorm.DB, error) {
	cfg := &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
	}
	if opts.LogLevel != 0 {
		cfg.Logger = logger.Default.LogMode(opts.LogLevel)
	}

	var (
		db     *gorm.DB
		err    error
		sqlite bool
	)
	switch {
	case strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://"):
		log.Println("Connecting to PostgreSQL...")
		db, err = gorm.Open(postgres.Open(dsn), cfg)
	case strings.HasPrefix(dsn, "mysql://"):
		log.Println("Connecting to MySQL...")
		var mcfg *mysqldriver.Config
		mcfg, err = mysqlConfig(strings.TrimPrefix(dsn, "mysql://"))
		if err != nil {
			return nil, err
		}
		db, err = gorm.Open(mysql.New(mysql.Config{DSNConfig: mcfg}), cfg)
	default:
		log.Println("Using SQLite for local development:", dsn)
		sqlite = true
		db, err = gorm.Open(
			gormsqlite.New(gormsqlite.Config{
				DriverName: "sqlite",
				DSN:        dsn,
			}),
			cfg,
		)
	}
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	if sqlite {
		// one writer; also keeps a ":memory:" database alive on a single connection
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(0)
		return db, nil
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}
	return db, nil
}

func mysqlConfig(dsn string) (*mysqldriver.Config, error) {
	mcfg, err := mysqldriver.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	mcfg.ParseTime = true
	mcfg.Loc = time.UTC
	if mcfg.Params == nil {
		mcfg.Params = map[string]string{}
	}
	if _, ok := mcfg.Params["charset"]; !ok {
		mcfg.Params["charset"] = "utf8mb4"
	}
	return mcfg, nil
}

// Models lists every persisted entity in migration order.
func Models() []interface{} {
	return []interface{}{
		&domain.Tariff{},
		&domain.TariffSchedule{},
		&domain.Slot{},
		&domain.User{},
		&domain.Booking{},
	}
}

func Migrate(db *gorm.DB) error {
	for _, model := range Models() {
		if err := db.AutoMigrate(model); err != nil {
			return fmt.Errorf("migrate %T: %w", model, err)
		}
	}
	return nil
}
