package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/LENAX/automation-engine/pkg/cli/client"
	"github.com/LENAX/automation-engine/pkg/cli/output"
)

var (
	executionStatus   string
	executionWorkflow string
	confirmApproved   bool
)

// executionCmd execution子命令
var executionCmd = &cobra.Command{
	Use:   "execution",
	Short: "Execution管理命令",
	Long:  `查看执行记录，提交确认结果。`,
}

// executionListCmd 列出Execution
var executionListCmd = &cobra.Command{
	Use:   "list",
	Short: "列出Execution",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(serverURL)
		result, err := c.ListExecutions(executionWorkflow, executionStatus)
		if err != nil {
			output.Error("查询失败: %v", err)
			return err
		}

		if outputJSON {
			return output.PrintJSON(result)
		}

		if len(result.Items) == 0 {
			output.Info("暂无Execution")
			return nil
		}

		table := output.NewTable([]string{"ID", "WORKFLOW", "TRIGGER", "STATUS", "STEP", "CREATED"})
		for _, e := range result.Items {
			wfID := e.WorkflowID
			if wfID == "" {
				wfID = "(prompt)"
			}
			table.AddRow([]string{
				e.ID,
				wfID,
				e.Trigger,
				e.Status,
				fmt.Sprintf("%d", e.CurrentStepIndex),
				e.CreatedAt.Format("2006-01-02 15:04:05"),
			})
		}
		table.Render()
		return nil
	},
}

// executionShowCmd 查看Execution详情
var executionShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "查看Execution详情",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(serverURL)
		exec, err := c.GetExecution(args[0])
		if err != nil {
			output.Error("查询失败: %v", err)
			return err
		}

		if outputJSON {
			return output.PrintJSON(exec)
		}

		fmt.Printf("Execution: %s\n", exec.ID)
		fmt.Printf("Workflow:  %s\n", exec.WorkflowID)
		fmt.Printf("触发方式:  %s\n", exec.Trigger)
		fmt.Printf("状态:      %s\n", exec.Status)
		fmt.Printf("当前步骤:  %d\n", exec.CurrentStepIndex)
		if exec.Resumed {
			fmt.Println("恢复标记:  是")
		}
		if exec.LastError != "" {
			fmt.Printf("错误:      %s\n", exec.LastError)
		}
		return nil
	},
}

// executionConfirmCmd 提交确认结果
var executionConfirmCmd = &cobra.Command{
	Use:   "confirm <id>",
	Short: "对等待确认的Execution提交结果",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(serverURL)
		exec, err := c.ConfirmExecution(args[0], confirmApproved)
		if err != nil {
			output.Error("确认失败: %v", err)
			return err
		}

		if confirmApproved {
			output.Success("已批准，Execution %s 继续执行", exec.ID)
		} else {
			output.Warning("已拒绝，Execution %s 取消", exec.ID)
		}
		return nil
	},
}

func init() {
	executionListCmd.Flags().StringVar(&executionStatus, "status", "", "按状态过滤")
	executionListCmd.Flags().StringVar(&executionWorkflow, "workflow", "", "按Workflow过滤")
	executionConfirmCmd.Flags().BoolVar(&confirmApproved, "approve", true, "批准(true)或拒绝(false)")

	executionCmd.AddCommand(executionListCmd)
	executionCmd.AddCommand(executionShowCmd)
	executionCmd.AddCommand(executionConfirmCmd)
}
