package config

import (
	"strconv"
	"time"

	"github.com/smallbiznis/flexwatch/pkg/db"
)

// NewDBConfig maps the loaded environment into database settings.
func NewDBConfig(cfg Config) db.Config {
	port, err := strconv.Atoi(cfg.DBPort)
	if err != nil {
		port = 5432
	}

	return db.Config{
		Driver:   cfg.DBType,
		Host:     cfg.DBHost,
		Port:     port,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Name:     cfg.DBName,
		SSLMode:  cfg.DBSSLMode,

		MaxOpenConns:    cfg.DBMaxOpenConn,
		MaxIdleConns:    cfg.DBMaxIdleConn,
		ConnMaxLifetime: time.Duration(cfg.DBConnMaxLifetime) * time.Second,
		ConnMaxIdleTime: time.Duration(cfg.DBConnMaxIdleTime) * time.Second,
	}
}
