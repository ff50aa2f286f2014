package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joescharf/itrack/internal/models"
	"github.com/joescharf/itrack/internal/output"
	"github.com/joescharf/itrack/internal/service"
)

var importDryRun bool

var issueImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import issues from a markdown or YAML file",
	Long: `Import issues from a file.

Markdown files contain issues as numbered or bulleted list items. A heading
such as "## Open", "## In progress" or "## Done" sets the status of the items
below it. A trailing "@name" assigns the issue. Priority is inferred from
keywords in the title.

YAML files (.yaml, .yml) contain a list of issues:

  - title: Login fails
    priority: high
    assignee: alice`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueImportRun(args[0])
	},
}

func init() {
	issueImportCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Preview parsed issues without creating them")
	issueCmd.AddCommand(issueImportCmd)
}

func issueImportRun(file string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	content := string(data)
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("file is empty: %s", file)
	}

	var issues []models.IssueInput
	switch strings.ToLower(filepath.Ext(file)) {
	case ".yaml", ".yml":
		issues, err = parseYAMLIssues(data)
		if err != nil {
			return err
		}
	default:
		issues = parseMarkdownIssues(content)
	}

	if len(issues) == 0 {
		ui.Info("No issues found in file.")
		return nil
	}

	// Preview table
	table := ui.Table([]string{"#", "Title", "Status", "Priority", "Assignee"})
	for i, in := range issues {
		assignee := ""
		if in.Assignee != nil {
			assignee = *in.Assignee
		}
		_ = table.Append([]string{
			fmt.Sprintf("%d", i+1),
			in.Title,
			output.StatusColor(string(in.Status)),
			output.PriorityColor(string(in.Priority)),
			output.Placeholder(assignee),
		})
	}
	_ = table.Render()

	if importDryRun {
		ui.Warning("[DRY-RUN] Would create %d issues", len(issues))
		return nil
	}

	svc, err := getService()
	if err != nil {
		return err
	}
	return createImportedIssues(context.Background(), svc, issues)
}

// yamlIssue mirrors models.IssueInput with YAML keys.
type yamlIssue struct {
	Title    string `yaml:"title"`
	Status   string `yaml:"status"`
	Priority string `yaml:"priority"`
	Assignee string `yaml:"assignee"`
}

func parseYAMLIssues(data []byte) ([]models.IssueInput, error) {
	var raw []yamlIssue
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	issues := make([]models.IssueInput, 0, len(raw))
	for _, r := range raw {
		in := models.IssueInput{
			Title:    r.Title,
			Status:   models.IssueStatus(r.Status),
			Priority: models.IssuePriority(r.Priority),
		}
		if r.Assignee != "" {
			a := r.Assignee
			in.Assignee = &a
		}
		issues = append(issues, in)
	}
	return issues, nil
}

// parseMarkdownIssues extracts numbered and bulleted list items.
func parseMarkdownIssues(content string) []models.IssueInput {
	var issues []models.IssueInput
	currentStatus := ""

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)

		// Status heading: "## Open", "### In progress", ...
		if strings.HasPrefix(line, "#") {
			heading := strings.TrimSpace(strings.TrimLeft(line, "#"))
			if status, ok := statusFromHeading(heading); ok {
				currentStatus = status
			}
			continue
		}

		title := listItemText(line)
		if title == "" {
			continue
		}

		// Checkbox items: "- [x] done thing", "- [ ] todo"
		status := currentStatus
		if rest, ok := strings.CutPrefix(title, "[x] "); ok {
			title, status = rest, string(models.IssueStatusClosed)
		} else if rest, ok := strings.CutPrefix(title, "[X] "); ok {
			title, status = rest, string(models.IssueStatusClosed)
		} else if rest, ok := strings.CutPrefix(title, "[ ] "); ok {
			title = rest
		}

		title, assignee := splitAssignee(title)
		if title == "" {
			continue
		}

		in := models.IssueInput{
			Title:    title,
			Status:   models.IssueStatus(status),
			Priority: models.IssuePriority(classifyIssuePriority(title)),
		}
		if assignee != "" {
			in.Assignee = &assignee
		}
		issues = append(issues, in)
	}

	return issues
}

// listItemText returns the text of "1. text", "1.1 text", "- text" or
// "* text" lines, or "" for anything else.
func listItemText(line string) string {
	if strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* ") {
		return strings.TrimSpace(line[2:])
	}

	i := 0
	for i < len(line) && (line[i] >= '0' && line[i] <= '9' || line[i] == '.') {
		i++
	}
	if i == 0 || i >= len(line) || line[i] != ' ' || !strings.Contains(line[:i], ".") || line[0] == '.' {
		return ""
	}
	return strings.TrimSpace(line[i:])
}

// splitAssignee removes a trailing "@name" token from title.
func splitAssignee(title string) (string, string) {
	idx := strings.LastIndex(title, " @")
	if idx < 0 {
		return title, ""
	}
	name := strings.TrimSpace(title[idx+2:])
	if name == "" || strings.ContainsAny(name, " \t") {
		return title, ""
	}
	return strings.TrimSpace(title[:idx]), name
}

// createImportedIssues creates each issue, skipping the ones the service rejects.
func createImportedIssues(ctx context.Context, svc *service.IssueService, issues []models.IssueInput) error {
	created := 0
	skipped := 0

	for _, in := range issues {
		if _, err := svc.CreateIssue(ctx, in); err != nil {
			if service.IsInternal(err) {
				return fmt.Errorf("create issue %q: %w", in.Title, err)
			}
			ui.Warning("Skipping issue %q: %v", in.Title, err)
			skipped++
			continue
		}
		created++
	}

	ui.Success("Created %d issues", created)
	if skipped > 0 {
		ui.Warning("Skipped %d issues", skipped)
	}
	return nil
}
