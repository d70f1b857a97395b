package cmd

import (
	"github.com/spf13/cobra"

	"github.com/LENAX/automation-engine/pkg/cli/client"
	"github.com/LENAX/automation-engine/pkg/cli/output"
)

var scheduleStatus string

// scheduleCmd schedule子命令
var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Schedule管理命令",
	Long:  `管理定时触发器，包括列出和删除。`,
}

// scheduleListCmd 列出Schedule
var scheduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "列出所有Schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(serverURL)
		result, err := c.ListSchedules(scheduleStatus)
		if err != nil {
			output.Error("查询失败: %v", err)
			return err
		}

		if outputJSON {
			return output.PrintJSON(result)
		}

		if len(result.Items) == 0 {
			output.Info("暂无Schedule")
			return nil
		}

		table := output.NewTable([]string{"ID", "NAME", "CRON", "TZ", "STATUS", "NEXT RUN"})
		for _, s := range result.Items {
			nextRun := "-"
			if s.NextRunAt != nil {
				nextRun = s.NextRunAt.Format("2006-01-02 15:04:05")
			}
			tz := s.Timezone
			if tz == "" {
				tz = "UTC"
			}
			table.AddRow([]string{
				s.ID,
				s.Name,
				s.CronExpression,
				tz,
				s.Status,
				nextRun,
			})
		}
		table.Render()
		return nil
	},
}

// scheduleDeleteCmd 删除Schedule
var scheduleDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "删除Schedule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(serverURL)
		if err := c.DeleteSchedule(args[0]); err != nil {
			output.Error("删除失败: %v", err)
			return err
		}
		output.Success("Schedule已删除: %s", args[0])
		return nil
	},
}

func init() {
	scheduleListCmd.Flags().StringVar(&scheduleStatus, "status", "", "按状态过滤 (enabled/paused/disabled)")

	scheduleCmd.AddCommand(scheduleListCmd)
	scheduleCmd.AddCommand(scheduleDeleteCmd)
}
