// Package repository 提供数据持久化层实现
package repository

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jimyag/vcp/internal/vcp/repository/model"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite" // 纯 Go SQLite 驱动，不需要 CGO
)

// Repository 数据库仓库
type Repository struct {
	db *gorm.DB
}

// New 创建新的 Repository 实例
func New(dbPath string) (*Repository, error) {
	// 确保数据库目录存在
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// 连接数据库（使用纯 Go SQLite 驱动，不需要 CGO）
	// 直接使用 database/sql + modernc.org/sqlite 创建连接，然后传递给 GORM
	sqlDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db, err := gorm.Open(sqlite.Dialector{
		DriverName: "sqlite",
		DSN:        dbPath,
		Conn:       sqlDB,
	}, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("open gorm database: %w", err)
	}

	repo := &Repository{db: db}
	if err := repo.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return repo, nil
}

// migrate 自动建表
func (r *Repository) migrate() error {
	return r.db.AutoMigrate(
		&model.Instance{},
		&model.Tag{},
	)
}

// DB 返回底层 gorm 连接
func (r *Repository) DB() *gorm.DB {
	return r.db
}

// Close 关闭数据库连接
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
