package storage

// Dialect SQL方言接口（对外导出）
// sqlx的NamedExec自动处理:name占位符到各驱动绑定形式的转换，
// 方言只需提供DDL、UPSERT语法和连接配置
type Dialect interface {
	// Name 方言名称（sqlite/mysql/postgres）
	Name() string
	// DriverName database/sql驱动名
	DriverName() string
	// Schema 建表与索引DDL（幂等）
	Schema() []string
	// UpsertSQL 构建命名参数形式的UPSERT语句
	UpsertSQL(table string, columns []string, conflictColumn string, updateColumns []string) string
	// ConfigureDB 连接级配置SQL
	ConfigureDB() []string
}
