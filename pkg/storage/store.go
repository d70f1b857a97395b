package storage

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Store 数据库连接与方言的组合（对外导出）
// 各Repository共享同一个Store实例
type Store struct {
	db      *sqlx.DB
	dialect Dialect
}

// Open 打开数据库并初始化表结构（对外导出）
func Open(dialect Dialect, dsn string) (*Store, error) {
	db, err := sqlx.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("数据库连接失败: %w", err)
	}

	store := &Store{db: db, dialect: dialect}
	if err := store.configure(); err != nil {
		db.Close()
		return nil, fmt.Errorf("配置数据库失败: %w", err)
	}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("初始化表结构失败: %w", err)
	}
	return store, nil
}

// configure 执行方言级的连接配置（SQLite的WAL等）
func (s *Store) configure() error {
	for _, stmt := range s.dialect.ConfigureDB() {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// initSchema 初始化数据库表结构
func (s *Store) initSchema() error {
	for _, ddl := range s.dialect.Schema() {
		if _, err := s.db.Exec(ddl); err != nil {
			return fmt.Errorf("执行DDL失败: %w", err)
		}
	}
	return nil
}

// DB 获取底层数据库连接（对外导出）
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Dialect 获取当前方言（对外导出）
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Close 关闭数据库连接（对外导出）
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Repos 构建全部Repository（对外导出）
func (s *Store) Repos() *Repositories {
	return &Repositories{
		Workflow:  NewWorkflowRepo(s),
		Schedule:  NewScheduleRepo(s),
		Execution: NewExecutionRepo(s),
	}
}
