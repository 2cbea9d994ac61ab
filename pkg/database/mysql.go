package database

import (
	"fmt"

	"go-storefront/pkg/config"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitMySQL 初始化 MySQL 连接
func InitMySQL(cfg config.MysqlConfig, log *zap.Logger) (*gorm.DB, error) {
	// GORM 日志走 zap，开启 log_sql 时打印每条 SQL
	level := logger.Warn
	if cfg.LogSQL {
		level = logger.Info
	}
	db, err := gorm.Open(mysql.Open(cfg.DSN()), &gorm.Config{
		Logger: NewGormLogger(log, level, cfg.SlowThreshold),
		// 唯一键冲突等驱动错误转换为 gorm.ErrDuplicatedKey
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// 设置连接池
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)

	log.Info("MySQL connected", zap.String("host", cfg.Host), zap.String("db", cfg.DbName))
	return db, nil
}
