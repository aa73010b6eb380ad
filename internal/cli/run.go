package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewRunCmd создаёт группу команд для работы с runs.
func NewRunCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Inspect runs",
	}

	cmd.AddCommand(
		newRunListCmd(clientFn, outputFn),
		newRunShowCmd(clientFn, outputFn),
	)

	return cmd
}

var runHeaders = []string{"ID", "WORKFLOW_ID", "STATUS", "ERROR", "CREATED", "UPDATED"}

func runRow(r RunResponse) []string {
	return []string{
		strconv.FormatInt(r.ID, 10),
		strconv.FormatInt(r.WorkflowID, 10),
		r.Status,
		r.ErrorMessage,
		r.CreatedAt,
		r.UpdatedAt,
	}
}

func newRunListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var workflowID int64
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			runs, err := client.ListRuns(ListRunsOpts{WorkflowID: workflowID, Limit: limit})
			if err != nil {
				return err
			}

			rows := make([][]string, len(runs))
			for i, r := range runs {
				rows[i] = runRow(r)
			}

			out.Print(runHeaders, rows, runs)
			return nil
		},
	}

	cmd.Flags().Int64Var(&workflowID, "workflow-id", 0, "Filter by workflow ID")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of runs (1..200)")

	return cmd
}

func newRunShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show run details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			run, err := client.GetRun(args[0])
			if err != nil {
				return err
			}

			out.Print(runHeaders, [][]string{runRow(*run)}, run)
			return nil
		},
	}
}

// NewTriggerCmd создаёт команду отправки тестовой webhook-доставки.
func NewTriggerCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var payload string
	var idempotencyKey string

	cmd := &cobra.Command{
		Use:   "trigger TRIGGER_KEY",
		Short: "Send a test webhook delivery",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			raw, err := jsonPayload(payload)
			if err != nil {
				return err
			}

			accepted, err := client.Trigger(args[0], raw, idempotencyKey)
			if err != nil {
				return err
			}

			if accepted.Deduplicated {
				out.Success(fmt.Sprintf("Delivery deduplicated into run %d", accepted.RunID))
			} else {
				out.Success(fmt.Sprintf("Delivery accepted: run %d", accepted.RunID))
			}
			out.Print(
				[]string{"RUN_ID", "STATUS", "DEDUPLICATED"},
				[][]string{{
					strconv.FormatInt(accepted.RunID, 10),
					accepted.Status,
					strconv.FormatBool(accepted.Deduplicated),
				}},
				accepted,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&payload, "payload", "{}", "JSON payload of the delivery")
	cmd.Flags().StringVar(&idempotencyKey, "idempotency-key", "", "Explicit idempotency key")

	return cmd
}
