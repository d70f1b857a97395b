package output

import (
	"encoding/json"
	"os"

	"github.com/fatih/color"
)

// PrintJSON 以缩进JSON输出到stdout，供--json模式与管道消费
func PrintJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	infoColor    = color.New(color.FgCyan)
	warnColor    = color.New(color.FgYellow)
)

// statusLine 带徽标的单行状态输出，与服务端日志的徽标约定一致
func statusLine(c *color.Color, badge, format string, args ...interface{}) {
	c.Printf(badge+" "+format+"\n", args...)
}

// Success 输出成功消息
func Success(format string, args ...interface{}) {
	statusLine(successColor, "✅", format, args...)
}

// Error 输出错误消息
func Error(format string, args ...interface{}) {
	statusLine(errorColor, "❌", format, args...)
}

// Info 输出提示消息
func Info(format string, args ...interface{}) {
	statusLine(infoColor, "ℹ️ ", format, args...)
}

// Warning 输出警告消息
func Warning(format string, args ...interface{}) {
	statusLine(warnColor, "⚠️ ", format, args...)
}
