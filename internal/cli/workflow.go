package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// NewWorkflowCmd создаёт группу команд для управления workflows.
func NewWorkflowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Manage workflows",
	}

	cmd.AddCommand(
		newWorkflowListCmd(clientFn, outputFn),
		newWorkflowCreateCmd(clientFn, outputFn),
		newWorkflowShowCmd(clientFn, outputFn),
	)

	return cmd
}

var workflowHeaders = []string{"ID", "NAME", "TRIGGER_KEY", "METHOD", "ACTION_URL", "TIMEOUT", "CREATED"}

func workflowRow(w WorkflowResponse) []string {
	return []string{
		strconv.FormatInt(w.ID, 10),
		w.Name,
		w.TriggerKey,
		w.ActionMethod,
		w.ActionURL,
		strconv.Itoa(w.TimeoutSeconds),
		w.CreatedAt,
	}
}

func newWorkflowListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all workflows",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			workflows, err := client.ListWorkflows()
			if err != nil {
				return err
			}

			rows := make([][]string, len(workflows))
			for i, w := range workflows {
				rows[i] = workflowRow(w)
			}

			out.Print(workflowHeaders, rows, workflows)
			return nil
		},
	}
}

func newWorkflowCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var (
		name       string
		triggerKey string
		actionURL  string
		method     string
		headers    []string
		timeout    int
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a new workflow",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			req := CreateWorkflowRequest{
				Name:         name,
				TriggerKey:   triggerKey,
				ActionURL:    actionURL,
				ActionMethod: method,
			}
			if cmd.Flags().Changed("timeout") {
				req.TimeoutSeconds = &timeout
			}
			if len(headers) > 0 {
				parsed, err := parseHeaderFlags(headers)
				if err != nil {
					return err
				}
				req.ActionHeaders = parsed
			}

			workflow, err := client.CreateWorkflow(req)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Workflow created: %d", workflow.ID))
			out.Print(workflowHeaders, [][]string{workflowRow(*workflow)}, workflow)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Workflow name (required)")
	cmd.Flags().StringVar(&triggerKey, "trigger-key", "", "Trigger key (required)")
	cmd.Flags().StringVar(&actionURL, "action-url", "", "Downstream action URL (required)")
	cmd.Flags().StringVar(&method, "method", "", "Action HTTP method: POST, PUT or PATCH (default POST)")
	cmd.Flags().StringArrayVar(&headers, "header", nil, "Action header in KEY=VALUE form (repeatable)")
	cmd.Flags().IntVar(&timeout, "timeout", 0, "Action timeout in seconds (1..30)")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("trigger-key")
	cmd.MarkFlagRequired("action-url")

	return cmd
}

func newWorkflowShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show workflow details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			workflow, err := client.GetWorkflow(args[0])
			if err != nil {
				return err
			}

			out.Print(workflowHeaders, [][]string{workflowRow(*workflow)}, workflow)
			return nil
		},
	}
}

// parseHeaderFlags разбирает повторяемый флаг --header KEY=VALUE.
func parseHeaderFlags(flags []string) (map[string]string, error) {
	headers := make(map[string]string, len(flags))
	for _, f := range flags {
		key, value, ok := strings.Cut(f, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid header %q, expected KEY=VALUE", f)
		}
		headers[key] = value
	}
	return headers, nil
}

// jsonPayload валидирует и возвращает raw JSON из строки флага.
func jsonPayload(s string) (json.RawMessage, error) {
	if !json.Valid([]byte(s)) {
		return nil, fmt.Errorf("payload is not valid JSON")
	}
	return json.RawMessage(s), nil
}
