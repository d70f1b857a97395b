package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/LENAX/automation-engine/pkg/cli/client"
	"github.com/LENAX/automation-engine/pkg/cli/output"
)

var workflowStatus string

// workflowCmd workflow子命令
var workflowCmd = &cobra.Command{
	Use:   "workflow",
	Short: "Workflow管理命令",
	Long:  `管理Workflow，包括列出、查看、删除和触发执行。`,
}

// workflowListCmd 列出Workflow
var workflowListCmd = &cobra.Command{
	Use:   "list",
	Short: "列出所有Workflow",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(serverURL)
		result, err := c.ListWorkflows(workflowStatus)
		if err != nil {
			output.Error("查询失败: %v", err)
			return err
		}

		if outputJSON {
			return output.PrintJSON(result)
		}

		if len(result.Items) == 0 {
			output.Info("暂无Workflow")
			return nil
		}

		table := output.NewTable([]string{"ID", "NAME", "STEPS", "STATUS", "CREATED"})
		for _, wf := range result.Items {
			table.AddRow([]string{
				wf.ID,
				wf.Name,
				fmt.Sprintf("%d", len(wf.Steps)),
				wf.Status,
				wf.CreatedAt.Format("2006-01-02 15:04:05"),
			})
		}
		table.Render()
		return nil
	},
}

// workflowShowCmd 查看Workflow详情
var workflowShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "查看Workflow详情",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(serverURL)
		wf, err := c.GetWorkflow(args[0])
		if err != nil {
			output.Error("查询失败: %v", err)
			return err
		}

		if outputJSON {
			return output.PrintJSON(wf)
		}

		fmt.Printf("Workflow: %s\n", wf.Name)
		fmt.Printf("ID:       %s\n", wf.ID)
		fmt.Printf("描述:     %s\n", wf.Description)
		fmt.Printf("状态:     %s\n", wf.Status)
		fmt.Println("\nSteps:")
		for _, s := range wf.Steps {
			confirm := ""
			if s.RequiresConfirmation {
				confirm = " (需确认)"
			}
			fmt.Printf("  %d. %s%s\n", s.Index, s.Kind, confirm)
		}
		return nil
	},
}

// workflowDeleteCmd 删除Workflow
var workflowDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "删除Workflow（取消在途执行，保留历史）",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(serverURL)
		if err := c.DeleteWorkflow(args[0]); err != nil {
			output.Error("删除失败: %v", err)
			return err
		}
		output.Success("Workflow已删除: %s", args[0])
		return nil
	},
}

// workflowExecuteCmd 触发Workflow
var workflowExecuteCmd = &cobra.Command{
	Use:   "execute <id>",
	Short: "手动触发Workflow执行",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(serverURL)
		exec, err := c.ExecuteWorkflow(args[0], nil)
		if err != nil {
			output.Error("触发失败: %v", err)
			return err
		}

		if outputJSON {
			return output.PrintJSON(exec)
		}
		output.Success("已触发执行: %s", exec.ID)
		return nil
	},
}

func init() {
	workflowListCmd.Flags().StringVar(&workflowStatus, "status", "", "按状态过滤 (active/disabled)")

	workflowCmd.AddCommand(workflowListCmd)
	workflowCmd.AddCommand(workflowShowCmd)
	workflowCmd.AddCommand(workflowDeleteCmd)
	workflowCmd.AddCommand(workflowExecuteCmd)
}
