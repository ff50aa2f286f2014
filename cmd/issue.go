package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/joescharf/itrack/internal/errs"
	"github.com/joescharf/itrack/internal/models"
	"github.com/joescharf/itrack/internal/output"
	"github.com/joescharf/itrack/internal/service"
	"github.com/joescharf/itrack/internal/store"
)

var (
	issueTitle    string
	issuePriority string
	issueStatus   string
	issueAssignee string
	issueUnassign bool
	issueSearch   string
	issueSort     string
	issueOrder    string
	issuePage     int
	issuePageSize int
	issueJSON     bool
)

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Manage issues",
	Long:  "Create, search, update and delete issues directly against the configured store.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueListRun()
	},
}

var issueAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a new issue",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueAddRun()
	},
}

var issueListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "Search, filter and page through issues",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueListRun()
	},
}

var issueShowCmd = &cobra.Command{
	Use:   "show <issue-id>",
	Short: "Show issue details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueShowRun(args[0])
	},
}

var issueUpdateCmd = &cobra.Command{
	Use:   "update <issue-id>",
	Short: "Update an issue",
	Long:  "Update an issue. Only the flags given are changed; --unassign clears the assignee.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueUpdateRun(cmd.Flags(), args[0])
	},
}

var issueCloseCmd = &cobra.Command{
	Use:   "close <issue-id>",
	Short: "Close an issue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueCloseRun(args[0])
	},
}

var issueDeleteCmd = &cobra.Command{
	Use:     "delete <issue-id>",
	Aliases: []string{"rm"},
	Short:   "Delete an issue permanently",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueDeleteRun(args[0])
	},
}

func init() {
	issueAddCmd.Flags().StringVar(&issueTitle, "title", "", "Issue title (required)")
	issueAddCmd.Flags().StringVar(&issueStatus, "status", "", "Status: open, in-progress, closed (default open)")
	issueAddCmd.Flags().StringVar(&issuePriority, "priority", "", "Priority: low, medium, high (default medium)")
	issueAddCmd.Flags().StringVar(&issueAssignee, "assignee", "", "Assignee")
	issueAddCmd.Flags().BoolVar(&issueJSON, "json", false, "Print the created issue as JSON")
	_ = issueAddCmd.MarkFlagRequired("title")

	issueListCmd.Flags().StringVarP(&issueSearch, "search", "s", "", "Case-insensitive title substring")
	issueListCmd.Flags().StringVar(&issueStatus, "status", "", "Filter by status: open, in-progress, closed")
	issueListCmd.Flags().StringVar(&issuePriority, "priority", "", "Filter by priority: low, medium, high")
	issueListCmd.Flags().StringVar(&issueAssignee, "assignee", "", "Case-insensitive assignee substring")
	issueListCmd.Flags().StringVar(&issueSort, "sort", "updatedAt", "Sort by: "+strings.Join(store.SortKeys(), ", "))
	issueListCmd.Flags().StringVar(&issueOrder, "order", models.OrderDesc, "Sort order: asc or desc")
	issueListCmd.Flags().IntVar(&issuePage, "page", 1, "Page number, starting at 1")
	issueListCmd.Flags().IntVar(&issuePageSize, "page-size", 0, "Issues per page (default list.default_page_size)")
	issueListCmd.Flags().BoolVar(&issueJSON, "json", false, "Print the page as JSON")

	issueShowCmd.Flags().BoolVar(&issueJSON, "json", false, "Print the issue as JSON")

	issueUpdateCmd.Flags().StringVar(&issueTitle, "title", "", "New title")
	issueUpdateCmd.Flags().StringVar(&issueStatus, "status", "", "New status")
	issueUpdateCmd.Flags().StringVar(&issuePriority, "priority", "", "New priority")
	issueUpdateCmd.Flags().StringVar(&issueAssignee, "assignee", "", "New assignee")
	issueUpdateCmd.Flags().BoolVar(&issueUnassign, "unassign", false, "Clear the assignee")
	issueUpdateCmd.MarkFlagsMutuallyExclusive("assignee", "unassign")

	issueCmd.AddCommand(issueAddCmd)
	issueCmd.AddCommand(issueListCmd)
	issueCmd.AddCommand(issueShowCmd)
	issueCmd.AddCommand(issueUpdateCmd)
	issueCmd.AddCommand(issueCloseCmd)
	issueCmd.AddCommand(issueDeleteCmd)
	rootCmd.AddCommand(issueCmd)
}

func issueAddRun() error {
	svc, err := getService()
	if err != nil {
		return err
	}
	ctx := context.Background()

	in := models.IssueInput{
		Title:    issueTitle,
		Status:   models.IssueStatus(issueStatus),
		Priority: models.IssuePriority(issuePriority),
	}
	if issueAssignee != "" {
		in.Assignee = &issueAssignee
	}

	issue, err := svc.CreateIssue(ctx, in)
	if err != nil {
		return fmt.Errorf("create issue: %w", err)
	}

	if issueJSON {
		return printJSON(issue)
	}
	ui.Success("Created issue %s: %s", output.Cyan(shortID(issue.ID)), issue.Title)
	return nil
}

func issueListRun() error {
	svc, err := getService()
	if err != nil {
		return err
	}
	ctx := context.Background()

	page, err := svc.ListIssues(ctx, models.ListCriteria{
		Search:   issueSearch,
		Status:   models.IssueStatus(issueStatus),
		Priority: models.IssuePriority(issuePriority),
		Assignee: issueAssignee,
		SortBy:   issueSort,
		Order:    issueOrder,
		Page:     issuePage,
		PageSize: issuePageSize,
	})
	if err != nil {
		return err
	}

	if issueJSON {
		return printJSON(page)
	}

	if len(page.Issues) == 0 {
		if page.Total > 0 {
			ui.Info("No issues on page %d (%d matching issues).", page.Page, page.Total)
		} else {
			ui.Info("No issues found.")
		}
		return nil
	}

	table := ui.Table([]string{"ID", "Title", "Status", "Priority", "Assignee", "Updated"})
	for _, issue := range page.Issues {
		_ = table.Append([]string{
			shortID(issue.ID),
			issue.Title,
			output.StatusColor(string(issue.Status)),
			output.PriorityColor(string(issue.Priority)),
			output.Placeholder(assigneeOf(issue)),
			issue.UpdatedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	_ = table.Render()

	fmt.Fprintf(ui.Out, "\nPage %d of %d (%d issues)\n", page.Page, pageCount(page.Total, page.PageSize), page.Total)
	return nil
}

func issueShowRun(id string) error {
	svc, err := getService()
	if err != nil {
		return err
	}
	ctx := context.Background()

	issue, err := findIssue(ctx, svc, id)
	if err != nil {
		return err
	}

	if issueJSON {
		return printJSON(issue)
	}

	fmt.Fprintf(ui.Out, "%s  %s\n", output.Cyan(shortID(issue.ID)), issue.Title)
	fmt.Fprintf(ui.Out, "  Status:     %s\n", output.StatusColor(string(issue.Status)))
	fmt.Fprintf(ui.Out, "  Priority:   %s\n", output.PriorityColor(string(issue.Priority)))
	fmt.Fprintf(ui.Out, "  Assignee:   %s\n", output.Placeholder(assigneeOf(issue)))
	fmt.Fprintf(ui.Out, "  Created:    %s\n", issue.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(ui.Out, "  Updated:    %s\n", issue.UpdatedAt.Format(time.RFC3339))
	fmt.Fprintf(ui.Out, "  Full ID:    %s\n", issue.ID)

	return nil
}

// buildPatch turns the update flags that were actually given into a patch.
func buildPatch(flags *pflag.FlagSet) models.IssuePatch {
	var patch models.IssuePatch
	if flags.Changed("title") {
		patch.Title = models.Some(issueTitle)
	}
	if flags.Changed("status") {
		patch.Status = models.Some(models.IssueStatus(issueStatus))
	}
	if flags.Changed("priority") {
		patch.Priority = models.Some(models.IssuePriority(issuePriority))
	}
	if flags.Changed("assignee") {
		patch.Assignee = models.Some(issueAssignee)
	}
	if flags.Changed("unassign") && issueUnassign {
		patch.Assignee = models.Null[string]()
	}
	return patch
}

func issueUpdateRun(flags *pflag.FlagSet, id string) error {
	patch := buildPatch(flags)
	if patch.Empty() {
		return fmt.Errorf("no updates specified (use --title, --status, --priority, --assignee, or --unassign)")
	}

	svc, err := getService()
	if err != nil {
		return err
	}
	ctx := context.Background()

	issue, err := findIssue(ctx, svc, id)
	if err != nil {
		return err
	}

	updated, err := svc.UpdateIssue(ctx, issue.ID, patch)
	if err != nil {
		return fmt.Errorf("update issue: %w", err)
	}

	ui.Success("Updated issue %s", output.Cyan(shortID(updated.ID)))
	return nil
}

func issueCloseRun(id string) error {
	svc, err := getService()
	if err != nil {
		return err
	}
	ctx := context.Background()

	issue, err := findIssue(ctx, svc, id)
	if err != nil {
		return err
	}
	if issue.Status == models.IssueStatusClosed {
		ui.Info("Issue %s is already closed", output.Cyan(shortID(issue.ID)))
		return nil
	}

	closed, err := svc.UpdateIssue(ctx, issue.ID, models.IssuePatch{Status: models.Some(models.IssueStatusClosed)})
	if err != nil {
		return fmt.Errorf("close issue: %w", err)
	}

	ui.Success("Closed issue %s: %s", output.Cyan(shortID(closed.ID)), closed.Title)
	return nil
}

func issueDeleteRun(id string) error {
	svc, err := getService()
	if err != nil {
		return err
	}
	ctx := context.Background()

	issue, err := findIssue(ctx, svc, id)
	if err != nil {
		return err
	}

	if err := svc.DeleteIssue(ctx, issue.ID); err != nil {
		return fmt.Errorf("delete issue: %w", err)
	}

	ui.Success("Deleted issue %s: %s", output.Cyan(shortID(issue.ID)), issue.Title)
	return nil
}

// findIssue finds an issue by full ID or unique prefix.
func findIssue(ctx context.Context, svc *service.IssueService, id string) (*models.Issue, error) {
	issue, err := svc.GetIssue(ctx, id)
	if err == nil {
		return issue, nil
	}
	if !errors.Is(err, errs.ErrNotFound) {
		return nil, err
	}

	prefix := strings.ToLower(strings.TrimSpace(id))
	if prefix == "" {
		return nil, fmt.Errorf("issue not found: %s", id)
	}

	var matches []*models.Issue
	c := models.ListCriteria{SortBy: "id", Order: models.OrderAsc, PageSize: service.MaxPageSize}
	for c.Page = 1; ; c.Page++ {
		page, err := svc.ListIssues(ctx, c)
		if err != nil {
			return nil, err
		}
		for _, issue := range page.Issues {
			if strings.HasPrefix(strings.ToLower(issue.ID), prefix) {
				matches = append(matches, issue)
			}
		}
		if c.Page*page.PageSize >= page.Total {
			break
		}
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("issue not found: %s", id)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("ambiguous issue ID %s: matches %d issues", id, len(matches))
	}
}

// shortID returns the leading part of an issue id for display.
func shortID(id string) string {
	if len(id) > 13 {
		return id[:13]
	}
	return id
}

func assigneeOf(issue *models.Issue) string {
	if issue.Assignee == nil {
		return ""
	}
	return *issue.Assignee
}

func pageCount(total, pageSize int) int {
	if total == 0 || pageSize <= 0 {
		return 1
	}
	return (total + pageSize - 1) / pageSize
}

func printJSON(v any) error {
	enc := json.NewEncoder(ui.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
