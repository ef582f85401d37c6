// Package sqlcache is a Cache backend (cache.Cache) storing job entries in a
// single MySQL table, one row per key, using the mysql package's query
// builder for the straightforward CRUD paths and hand-written parameterized
// SQL for the compare-and-swap ticket transitions the builder has no
// vocabulary for.
package sqlcache

import (
	"database/sql"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"orchestrator/cache"
)

// Config collects the MySQL connection settings; Open builds the DSN from
// them through a go-sql-driver mysql.Config, taking every value from the
// caller instead of hardcoding it.
type Config struct {
	DBName   string
	User     string
	Password string
	Addr     string
	Loc      *time.Location

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// Table is the job_cache table name. Defaults to "job_cache".
	Table string

	// LockTTL bounds how long a ticket is honored before it is considered
	// abandoned and reclaimable by another caller.
	LockTTL time.Duration
}

func (c Config) withDefaults() Config {
	if c.Loc == nil {
		c.Loc = time.UTC
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 10
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 10
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = 10 * time.Minute
	}
	if c.Table == "" {
		c.Table = "job_cache"
	}
	if c.LockTTL == 0 {
		c.LockTTL = 30 * time.Second
	}
	return c
}

// Open dials MySQL and returns a ready-to-use SQLCache.
func Open(cfg Config, codec *cache.Codec) (*SQLCache, error) {
	cfg = cfg.withDefaults()

	dsnCfg := mysql.Config{
		DBName:               cfg.DBName,
		User:                 cfg.User,
		Passwd:               cfg.Password,
		Addr:                 cfg.Addr,
		Net:                  "tcp",
		ParseTime:            true,
		Collation:            "utf8mb4_unicode_ci",
		AllowNativePasswords: true,
		Loc:                  cfg.Loc,
	}

	rawDB, err := sql.Open("mysql", dsnCfg.FormatDSN())
	if err != nil {
		return nil, err
	}
	rawDB.SetMaxOpenConns(cfg.MaxOpenConns)
	rawDB.SetMaxIdleConns(cfg.MaxIdleConns)
	rawDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	db := sqlx.NewDb(rawDB, "mysql")
	return newSQLCache(db, cfg, codec), nil
}
