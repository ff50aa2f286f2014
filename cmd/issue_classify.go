package cmd

import "strings"

// classifyIssuePriority infers the issue priority from the title using keyword heuristics.
// High keywords are checked before low keywords. Defaults to "medium".
func classifyIssuePriority(title string) string {
	lower := strings.ToLower(title)

	highKeywords := []string{
		"critical", "urgent", "blocker", "crash", "security",
		"data loss", "production down", "p0", "p1",
	}
	for _, kw := range highKeywords {
		if strings.Contains(lower, kw) {
			return "high"
		}
	}

	lowKeywords := []string{
		"minor", "nice to have", "cosmetic", "trivial",
		"low priority", "cleanup", "clean up", "typo",
	}
	for _, kw := range lowKeywords {
		if strings.Contains(lower, kw) {
			return "low"
		}
	}

	return "medium"
}

// statusFromHeading maps a markdown section heading such as "In progress"
// to an issue status. ok is false for headings that name no status.
func statusFromHeading(heading string) (status string, ok bool) {
	h := strings.ToLower(strings.TrimSpace(heading))
	h = strings.NewReplacer("_", "-", " ", "-").Replace(h)
	switch h {
	case "open", "todo", "to-do", "backlog":
		return "open", true
	case "in-progress", "doing", "wip":
		return "in-progress", true
	case "closed", "done":
		return "closed", true
	}
	return "", false
}
