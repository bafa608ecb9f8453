package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/roomclaw/internal/workflow"
)

func workflowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Workflow schedule helpers",
	}
	cmd.AddCommand(workflowCheckCmd())
	return cmd
}

// workflowCheckCmd validates a schedule expression the way schedule-workflow
// does and prints the upcoming runs.
func workflowCheckCmd() *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "check <expression>",
		Short: "Validate a cron expression or ISO instant and show upcoming runs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sched, err := workflow.Parse(args[0], time.Now())
			if err != nil {
				return err
			}
			fmt.Println(sched.Describe())
			if !sched.Recurring {
				return nil
			}
			next := sched.Next
			for i := 1; i < count; i++ {
				if next, err = workflow.NextAfter(sched.Expression, next); err != nil {
					return err
				}
				fmt.Printf("  then %s\n", next.Format(time.RFC3339))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 3, "number of upcoming runs to show")
	return cmd
}
