package database

import (
	"context"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"ragflow-bridge/internal/config"
	"ragflow-bridge/internal/model"
	"ragflow-bridge/pkg/log"
)

var DB *gorm.DB

// InitMySQL 初始化 MySQL 数据库连接，并按配置自动迁移镜像表。
func InitMySQL(cfg config.MySQLConfig) {
	var err error
	DB, err = gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		log.Fatal("failed to connect database", err)
	}

	// 配置连接池
	sqlDB, err := DB.DB()
	if err != nil {
		log.Fatal("failed to get sql.DB", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if cfg.AutoMigrate {
		if err := Migrate(DB); err != nil {
			log.Fatal("failed to migrate database", err)
		}
	}

	log.Info("MySQL database connected successfully")
}

// Migrate 创建或更新所有本地镜像表。
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.Dataset{},
		&model.Document{},
		&model.ChatAssistant{},
		&model.Conversation{},
	)
}

// PingMySQL 检查数据库连接是否可用。
func PingMySQL(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
