package cmd

import (
	"context"
	"encoding/csv"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/joescharf/itrack/internal/models"
	"github.com/joescharf/itrack/internal/output"
	"github.com/joescharf/itrack/internal/service"
	"github.com/joescharf/itrack/internal/store"
)

var (
	reportFormat   string
	exportSearch   string
	exportStatus   string
	exportPriority string
	exportAssignee string
	exportSort     string
	exportOrder    string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export issues as JSON, CSV, or Markdown",
	Long:  "Export every issue matching the filters, in list order, in one of several formats.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return exportRun()
	},
}

func init() {
	exportCmd.Flags().StringVar(&reportFormat, "format", "json", "Output format: json, csv, markdown")
	exportCmd.Flags().StringVarP(&exportSearch, "search", "s", "", "Case-insensitive title substring")
	exportCmd.Flags().StringVar(&exportStatus, "status", "", "Filter by status")
	exportCmd.Flags().StringVar(&exportPriority, "priority", "", "Filter by priority")
	exportCmd.Flags().StringVar(&exportAssignee, "assignee", "", "Case-insensitive assignee substring")
	exportCmd.Flags().StringVar(&exportSort, "sort", "createdAt", "Sort by: "+strings.Join(store.SortKeys(), ", "))
	exportCmd.Flags().StringVar(&exportOrder, "order", models.OrderAsc, "Sort order: asc or desc")
	rootCmd.AddCommand(exportCmd)
}

func exportRun() error {
	svc, err := getService()
	if err != nil {
		return err
	}

	issues, err := collectIssues(context.Background(), svc, models.ListCriteria{
		Search:   exportSearch,
		Status:   models.IssueStatus(exportStatus),
		Priority: models.IssuePriority(exportPriority),
		Assignee: exportAssignee,
		SortBy:   exportSort,
		Order:    exportOrder,
	})
	if err != nil {
		return err
	}

	switch reportFormat {
	case "json":
		return printJSON(issues)
	case "csv":
		w := csv.NewWriter(ui.Out)
		_ = w.Write([]string{"ID", "Title", "Status", "Priority", "Assignee", "Created", "Updated"})
		for _, i := range issues {
			_ = w.Write([]string{i.ID, i.Title, string(i.Status), string(i.Priority), assigneeOf(i),
				i.CreatedAt.UTC().Format(time.RFC3339), i.UpdatedAt.UTC().Format(time.RFC3339)})
		}
		w.Flush()
		return w.Error()
	case "markdown":
		fmt.Fprintln(ui.Out, "# Issues")
		fmt.Fprintln(ui.Out)
		fmt.Fprintln(ui.Out, "| Title | Status | Priority | Assignee |")
		fmt.Fprintln(ui.Out, "|-------|--------|----------|----------|")
		for _, i := range issues {
			fmt.Fprintf(ui.Out, "| %s | %s | %s | %s |\n",
				markdownCell(i.Title), i.Status, i.Priority, markdownCell(output.Placeholder(assigneeOf(i))))
		}
		return nil
	default:
		return fmt.Errorf("unknown format: %s (use: json, csv, markdown)", reportFormat)
	}
}

// collectIssues walks every page of the query and returns the matches in order.
func collectIssues(ctx context.Context, svc *service.IssueService, c models.ListCriteria) ([]*models.Issue, error) {
	c.Page = 1
	c.PageSize = service.MaxPageSize

	all := []*models.Issue{}
	for {
		page, err := svc.ListIssues(ctx, c)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Issues...)
		if len(page.Issues) == 0 || len(all) >= page.Total {
			return all, nil
		}
		c.Page++
	}
}

func markdownCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarize issues by status and priority",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return reportRun()
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)
}

// issueSummary holds per-status and per-priority counts.
type issueSummary struct {
	Total      int
	ByStatus   map[models.IssueStatus]int
	ByPriority map[models.IssuePriority]int
}

func summarizeIssues(ctx context.Context, svc *service.IssueService) (*issueSummary, error) {
	sum := &issueSummary{
		ByStatus:   make(map[models.IssueStatus]int),
		ByPriority: make(map[models.IssuePriority]int),
	}

	count := func(c models.ListCriteria) (int, error) {
		c.PageSize = 1
		page, err := svc.ListIssues(ctx, c)
		if err != nil {
			return 0, err
		}
		return page.Total, nil
	}

	var err error
	if sum.Total, err = count(models.ListCriteria{}); err != nil {
		return nil, err
	}
	for _, st := range models.IssueStatuses {
		if sum.ByStatus[st], err = count(models.ListCriteria{Status: st}); err != nil {
			return nil, err
		}
	}
	for _, p := range models.IssuePriorities {
		if sum.ByPriority[p], err = count(models.ListCriteria{Priority: p}); err != nil {
			return nil, err
		}
	}
	return sum, nil
}

func reportRun() error {
	svc, err := getService()
	if err != nil {
		return err
	}

	sum, err := summarizeIssues(context.Background(), svc)
	if err != nil {
		return err
	}

	fmt.Fprintln(ui.Out, "# Issue Report")
	fmt.Fprintln(ui.Out)
	fmt.Fprintf(ui.Out, "Total: %d\n", sum.Total)
	fmt.Fprintln(ui.Out)

	fmt.Fprintln(ui.Out, "## By status")
	for _, st := range models.IssueStatuses {
		fmt.Fprintf(ui.Out, "- %s: %d\n", output.StatusColor(string(st)), sum.ByStatus[st])
	}
	fmt.Fprintln(ui.Out)

	fmt.Fprintln(ui.Out, "## By priority")
	for _, p := range models.IssuePriorities {
		fmt.Fprintf(ui.Out, "- %s: %d\n", output.PriorityColor(string(p)), sum.ByPriority[p])
	}
	return nil
}
