package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"mediaproc/task"

	"github.com/spf13/cobra"
)

var (
	historyStatus string
	historyJSON   bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List tasks recorded in the ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, closeFn, err := openRegistry()
		if err != nil {
			return err
		}
		defer closeFn()

		tasks, err := registry.GetAll(cmd.Context())
		if err != nil {
			return err
		}
		if historyStatus != "" {
			filtered := tasks[:0]
			for _, t := range tasks {
				if string(t.Status) == historyStatus {
					filtered = append(filtered, t)
				}
			}
			tasks = filtered
		}
		if historyJSON {
			return writeJSON(cmd.OutOrStdout(), tasks)
		}
		return writeTable(cmd.OutOrStdout(), tasks)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <task_id>",
	Short: "Show one task record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, closeFn, err := openRegistry()
		if err != nil {
			return err
		}
		defer closeFn()

		t, err := registry.GetByID(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), t)
	},
}

func init() {
	historyCmd.Flags().StringVar(&historyStatus, "status", "", "only show tasks in this status (uploaded, processing, completed, error)")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "print records as JSON")
	rootCmd.AddCommand(historyCmd, statusCmd)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeTable(w io.Writer, tasks []task.Task) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TASK ID\tSTATUS\tTYPE\tPROCESS\tCREATED\tOUTPUT / ERROR")
	for _, t := range tasks {
		detail := t.OutputFile
		if t.Status == task.StatusError {
			detail = t.ErrorMessage
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			t.ID, t.Status, t.MediaType, t.ProcessType,
			time.Unix(t.CreatedAt, 0).Format(time.DateTime), firstLine(detail))
	}
	return tw.Flush()
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
