package cli

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/reluceapp/reluce/internal/fieldmap"
	"github.com/reluceapp/reluce/internal/model"
)

var sweepCommit bool

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Scan for operations open past the auto-close limit",
	Long:  "Lists operations open longer than the auto-close limit. With --commit, closes them.",
	RunE: func(cmd *cobra.Command, args []string) error {
		api := newAPIClient(serverURL)
		method := http.MethodGet
		if sweepCommit {
			method = http.MethodPost
		}

		var result model.SweepResult
		if err := api.do(cmd.Context(), method, "/v1/sweep", nil, "", &result); err != nil {
			return err
		}

		if result.Count == 0 {
			fmt.Println("No stale operations")
			return nil
		}
		for _, swept := range result.Operations {
			op := swept.Operation
			fmt.Printf("  %s  %-12s %-10s %.1fh open\n", op.ID, op.Room, op.RoomType, swept.DurationHours)
		}
		if sweepCommit {
			green.Printf("✓ Closed %d stale operation(s)\n", result.Count)
		} else {
			yellow.Printf("! %d stale operation(s); re-run with --commit to close them\n", result.Count)
		}
		return nil
	},
}

var (
	listFrom string
	listTo   string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List operations on the server",
	RunE: func(cmd *cobra.Command, args []string) error {
		params := url.Values{}
		for _, p := range []struct{ name, value string }{
			{"from", listFrom},
			{"to", listTo},
		} {
			if p.value == "" {
				continue
			}
			if _, err := time.Parse(time.RFC3339, p.value); err != nil {
				return fmt.Errorf("--%s must be RFC 3339, e.g. 2026-08-29T00:00:00Z", p.name)
			}
			params.Set(p.name, p.value)
		}

		path := "/v1/operations"
		if len(params) > 0 {
			path += "?" + params.Encode()
		}

		api := newAPIClient(serverURL)
		var raw []map[string]any
		if err := api.do(cmd.Context(), http.MethodGet, path, nil, "", &raw); err != nil {
			return err
		}

		if len(raw) == 0 {
			fmt.Println("No operations")
			return nil
		}
		for _, entry := range raw {
			op, err := model.DecodeOperation(fieldmap.ToCanonical(entry))
			if err != nil {
				return err
			}
			printOperationLine(op)
		}
		return nil
	},
}

func init() {
	sweepCmd.Flags().BoolVar(&sweepCommit, "commit", false, "close the stale operations")
	listCmd.Flags().StringVar(&listFrom, "from", "", "only operations starting at or after this RFC 3339 time")
	listCmd.Flags().StringVar(&listTo, "to", "", "only operations starting before this RFC 3339 time")
}

func printOperationLine(op model.Operation) {
	status := yellow.Sprint("open")
	if op.Complete {
		status = green.Sprint("done")
		if op.Failed {
			status = red.Sprint("failed")
		}
	}
	done := 0
	for _, step := range op.Steps {
		if step.CompletedTime != nil {
			done++
		}
	}
	fmt.Printf("  %s  %-12s %-10s %s  %d/%d steps  %s\n",
		op.ID, op.Room, op.RoomType, op.StartTime.Format("2006-01-02 15:04"), done, len(op.Steps), status)
}
