// Package storage 数据库工厂：按配置的数据库类型装配方言与Repository
package storage

import (
	"fmt"

	"github.com/LENAX/automation-engine/pkg/storage"
	"github.com/LENAX/automation-engine/pkg/storage/mysql"
	"github.com/LENAX/automation-engine/pkg/storage/postgres"
	"github.com/LENAX/automation-engine/pkg/storage/sqlite"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Database 已打开的数据库与其Repository集合（内部使用）
type Database struct {
	Store *storage.Store
	Repos *storage.Repositories
}

// NewDatabase 打开数据库并初始化Repository（内部方法）
// dbType: 数据库类型（sqlite/mysql/postgres）
// dsn: 数据库连接字符串
func NewDatabase(dbType, dsn string) (*Database, error) {
	dialect, err := dialectFor(dbType)
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(dialect, dsn)
	if err != nil {
		return nil, fmt.Errorf("打开%s数据库失败: %w", dialect.Name(), err)
	}

	return &Database{
		Store: store,
		Repos: store.Repos(),
	}, nil
}

// dialectFor 根据类型选择方言
func dialectFor(dbType string) (storage.Dialect, error) {
	switch dbType {
	case "sqlite", "":
		return sqlite.NewSQLiteDialect(), nil
	case "mysql":
		return mysql.NewMySQLDialect(), nil
	case "postgres", "postgresql":
		return postgres.NewPostgresDialect(), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}
}

// Close 关闭数据库连接（内部方法）
func (d *Database) Close() error {
	if d.Store != nil {
		return d.Store.Close()
	}
	return nil
}
