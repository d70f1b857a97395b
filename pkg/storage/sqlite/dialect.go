package sqlite

import (
	"fmt"
	"strings"

	"github.com/LENAX/automation-engine/pkg/storage"
)

// SQLiteDialect SQLite方言实现（对外导出）
type SQLiteDialect struct{}

// NewSQLiteDialect 创建SQLite方言实例
func NewSQLiteDialect() *SQLiteDialect {
	return &SQLiteDialect{}
}

// Name 返回方言名称
func (d *SQLiteDialect) Name() string {
	return "sqlite"
}

// DriverName 返回驱动名
func (d *SQLiteDialect) DriverName() string {
	return "sqlite3"
}

// Schema 返回建表DDL
func (d *SQLiteDialect) Schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS workflows (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT,
			steps TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'active',
			create_time DATETIME NOT NULL,
			update_time DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS schedules (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			cron_expression TEXT NOT NULL,
			timezone TEXT NOT NULL DEFAULT '',
			prompt TEXT,
			workflow_id TEXT,
			status TEXT NOT NULL DEFAULT 'enabled',
			next_run_at DATETIME,
			last_run_at DATETIME,
			last_error TEXT,
			create_time DATETIME NOT NULL,
			update_time DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_schedules_status ON schedules(status);`,
		`CREATE TABLE IF NOT EXISTS executions (
			id TEXT PRIMARY KEY,
			workflow_id TEXT,
			schedule_id TEXT,
			trigger_kind TEXT NOT NULL,
			steps TEXT NOT NULL,
			variables TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			current_step_index INTEGER NOT NULL DEFAULT 0,
			resumed INTEGER NOT NULL DEFAULT 0,
			started_at DATETIME,
			finished_at DATETIME,
			last_error TEXT,
			create_time DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_executions_status ON executions(status);
		CREATE INDEX IF NOT EXISTS idx_executions_workflow_id ON executions(workflow_id);`,
	}
}

// UpsertSQL 返回SQLite的UPSERT语句（ON CONFLICT DO UPDATE）
func (d *SQLiteDialect) UpsertSQL(table string, columns []string, conflictColumn string, updateColumns []string) string {
	namedPlaceholders := make([]string, len(columns))
	for i, col := range columns {
		namedPlaceholders[i] = ":" + col
	}

	updateParts := make([]string, len(updateColumns))
	for i, col := range updateColumns {
		updateParts[i] = fmt.Sprintf("%s = excluded.%s", col, col)
	}

	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(%s) DO UPDATE SET %s",
		table,
		strings.Join(columns, ", "),
		strings.Join(namedPlaceholders, ", "),
		conflictColumn,
		strings.Join(updateParts, ", "),
	)
}

// ConfigureDB 返回SQLite配置SQL
func (d *SQLiteDialect) ConfigureDB() []string {
	return []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=30000;",
		"PRAGMA wal_autocheckpoint=1000;",
		"PRAGMA synchronous=NORMAL;",
	}
}

// 确保实现接口
var _ storage.Dialect = (*SQLiteDialect)(nil)
