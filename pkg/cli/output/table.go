package output

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// Table 终端列表输出，列宽在渲染时按内容自适应
type Table struct {
	headers []string
	rows    [][]string
}

// NewTable 创建表格，列由表头决定
func NewTable(headers []string) *Table {
	return &Table{headers: headers}
}

// AddRow 添加数据行，超出表头数量的单元格被丢弃
func (t *Table) AddRow(cells []string) {
	if len(cells) > len(t.headers) {
		cells = cells[:len(t.headers)]
	}
	t.rows = append(t.rows, cells)
}

// Render 打印表头、分隔线和全部数据行
func (t *Table) Render() {
	widths := t.columnWidths()

	head := color.New(color.FgCyan, color.Bold)
	var rule strings.Builder
	for i, h := range t.headers {
		head.Printf("%-*s  ", widths[i], h)
		rule.WriteString(strings.Repeat("-", widths[i]))
		rule.WriteString("  ")
	}
	fmt.Println()
	fmt.Println(strings.TrimRight(rule.String(), " "))

	for _, row := range t.rows {
		padded := make([]string, len(row))
		for i, cell := range row {
			padded[i] = fmt.Sprintf("%-*s", widths[i], cell)
		}
		fmt.Println(strings.TrimRight(strings.Join(padded, "  "), " "))
	}
}

// columnWidths 每列取表头与单元格内容的最大宽度
func (t *Table) columnWidths() []int {
	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = len(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}
	return widths
}
