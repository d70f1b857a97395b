package mysql

import (
	"fmt"
	"strings"

	"github.com/LENAX/automation-engine/pkg/storage"
)

// MySQLDialect MySQL方言实现（对外导出）
type MySQLDialect struct{}

// NewMySQLDialect 创建MySQL方言实例
func NewMySQLDialect() *MySQLDialect {
	return &MySQLDialect{}
}

// Name 返回方言名称
func (d *MySQLDialect) Name() string {
	return "mysql"
}

// DriverName 返回驱动名
func (d *MySQLDialect) DriverName() string {
	return "mysql"
}

// Schema 返回建表DDL
func (d *MySQLDialect) Schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS workflows (
			id VARCHAR(64) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			description TEXT,
			steps LONGTEXT NOT NULL,
			status VARCHAR(32) NOT NULL DEFAULT 'active',
			create_time DATETIME NOT NULL,
			update_time DATETIME NOT NULL
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`,
		`CREATE TABLE IF NOT EXISTS schedules (
			id VARCHAR(64) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			cron_expression VARCHAR(128) NOT NULL,
			timezone VARCHAR(64) NOT NULL DEFAULT '',
			prompt TEXT,
			workflow_id VARCHAR(64),
			status VARCHAR(32) NOT NULL DEFAULT 'enabled',
			next_run_at DATETIME,
			last_run_at DATETIME,
			last_error TEXT,
			create_time DATETIME NOT NULL,
			update_time DATETIME NOT NULL,
			INDEX idx_schedules_status (status)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`,
		`CREATE TABLE IF NOT EXISTS executions (
			id VARCHAR(64) PRIMARY KEY,
			workflow_id VARCHAR(64),
			schedule_id VARCHAR(64),
			trigger_kind VARCHAR(32) NOT NULL,
			steps LONGTEXT NOT NULL,
			variables LONGTEXT NOT NULL,
			status VARCHAR(32) NOT NULL DEFAULT 'pending',
			current_step_index INT NOT NULL DEFAULT 0,
			resumed TINYINT(1) NOT NULL DEFAULT 0,
			started_at DATETIME,
			finished_at DATETIME,
			last_error TEXT,
			create_time DATETIME NOT NULL,
			INDEX idx_executions_status (status),
			INDEX idx_executions_workflow_id (workflow_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`,
	}
}

// UpsertSQL 返回MySQL的UPSERT语句（ON DUPLICATE KEY UPDATE）
func (d *MySQLDialect) UpsertSQL(table string, columns []string, conflictColumn string, updateColumns []string) string {
	namedPlaceholders := make([]string, len(columns))
	for i, col := range columns {
		namedPlaceholders[i] = ":" + col
	}

	updateParts := make([]string, len(updateColumns))
	for i, col := range updateColumns {
		updateParts[i] = fmt.Sprintf("%s = VALUES(%s)", col, col)
	}

	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON DUPLICATE KEY UPDATE %s",
		table,
		strings.Join(columns, ", "),
		strings.Join(namedPlaceholders, ", "),
		strings.Join(updateParts, ", "),
	)
}

// ConfigureDB 返回MySQL配置SQL
func (d *MySQLDialect) ConfigureDB() []string {
	return nil
}

// 确保实现接口
var _ storage.Dialect = (*MySQLDialect)(nil)
