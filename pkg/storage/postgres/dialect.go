package postgres

import (
	"fmt"
	"strings"

	"github.com/LENAX/automation-engine/pkg/storage"
)

// PostgresDialect PostgreSQL方言实现（对外导出）
type PostgresDialect struct{}

// NewPostgresDialect 创建PostgreSQL方言实例
func NewPostgresDialect() *PostgresDialect {
	return &PostgresDialect{}
}

// Name 返回方言名称
func (d *PostgresDialect) Name() string {
	return "postgres"
}

// DriverName 返回驱动名
func (d *PostgresDialect) DriverName() string {
	return "postgres"
}

// Schema 返回建表DDL
func (d *PostgresDialect) Schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS workflows (
			id VARCHAR(64) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			description TEXT,
			steps TEXT NOT NULL,
			status VARCHAR(32) NOT NULL DEFAULT 'active',
			create_time TIMESTAMP NOT NULL,
			update_time TIMESTAMP NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS schedules (
			id VARCHAR(64) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			cron_expression VARCHAR(128) NOT NULL,
			timezone VARCHAR(64) NOT NULL DEFAULT '',
			prompt TEXT,
			workflow_id VARCHAR(64),
			status VARCHAR(32) NOT NULL DEFAULT 'enabled',
			next_run_at TIMESTAMP,
			last_run_at TIMESTAMP,
			last_error TEXT,
			create_time TIMESTAMP NOT NULL,
			update_time TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_schedules_status ON schedules(status);`,
		`CREATE TABLE IF NOT EXISTS executions (
			id VARCHAR(64) PRIMARY KEY,
			workflow_id VARCHAR(64),
			schedule_id VARCHAR(64),
			trigger_kind VARCHAR(32) NOT NULL,
			steps TEXT NOT NULL,
			variables TEXT NOT NULL,
			status VARCHAR(32) NOT NULL DEFAULT 'pending',
			current_step_index INTEGER NOT NULL DEFAULT 0,
			resumed BOOLEAN NOT NULL DEFAULT FALSE,
			started_at TIMESTAMP,
			finished_at TIMESTAMP,
			last_error TEXT,
			create_time TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_executions_status ON executions(status);
		CREATE INDEX IF NOT EXISTS idx_executions_workflow_id ON executions(workflow_id);`,
	}
}

// UpsertSQL 返回PostgreSQL的UPSERT语句（ON CONFLICT DO UPDATE）
func (d *PostgresDialect) UpsertSQL(table string, columns []string, conflictColumn string, updateColumns []string) string {
	namedPlaceholders := make([]string, len(columns))
	for i, col := range columns {
		namedPlaceholders[i] = ":" + col
	}

	updateParts := make([]string, len(updateColumns))
	for i, col := range updateColumns {
		updateParts[i] = fmt.Sprintf("%s = EXCLUDED.%s", col, col)
	}

	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		table,
		strings.Join(columns, ", "),
		strings.Join(namedPlaceholders, ", "),
		conflictColumn,
		strings.Join(updateParts, ", "),
	)
}

// ConfigureDB 返回PostgreSQL配置SQL
func (d *PostgresDialect) ConfigureDB() []string {
	return nil
}

// 确保实现接口
var _ storage.Dialect = (*PostgresDialect)(nil)
