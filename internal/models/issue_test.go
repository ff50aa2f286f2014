package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueStatus_Valid(t *testing.T) {
	assert.True(t, IssueStatusOpen.Valid())
	assert.True(t, IssueStatusInProgress.Valid())
	assert.True(t, IssueStatusClosed.Valid())
	assert.False(t, IssueStatus("in_progress").Valid())
	assert.False(t, IssueStatus("").Valid())
}

func TestIssuePriority_Valid(t *testing.T) {
	assert.True(t, IssuePriorityLow.Valid())
	assert.True(t, IssuePriorityHigh.Valid())
	assert.False(t, IssuePriority("urgent").Valid())
}

func TestIssue_JSONFieldNames(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	issue := Issue{
		ID:        "abc",
		Title:     "Login fails",
		Status:    IssueStatusOpen,
		Priority:  IssuePriorityHigh,
		CreatedAt: ts,
		UpdatedAt: ts,
	}

	data, err := json.Marshal(issue)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "2024-03-01T12:00:00Z", raw["createdAt"])
	assert.Equal(t, "2024-03-01T12:00:00Z", raw["updatedAt"])
	assert.Contains(t, raw, "assignee")
	assert.Nil(t, raw["assignee"])
	assert.NotContains(t, raw, "created_at")
}

func TestIssuePatch_DecodePresence(t *testing.T) {
	var p IssuePatch
	require.NoError(t, json.Unmarshal([]byte(`{"status":"closed"}`), &p))

	assert.True(t, p.Status.Set)
	assert.Equal(t, IssueStatusClosed, p.Status.Value)
	assert.False(t, p.Title.Set)
	assert.False(t, p.Priority.Set)
	assert.False(t, p.Assignee.Set)
	assert.False(t, p.Empty())
}

func TestIssuePatch_DecodeNullAssignee(t *testing.T) {
	var p IssuePatch
	require.NoError(t, json.Unmarshal([]byte(`{"assignee":null}`), &p))

	assert.True(t, p.Assignee.Set)
	assert.True(t, p.Assignee.Null)
}

func TestIssuePatch_Empty(t *testing.T) {
	var p IssuePatch
	require.NoError(t, json.Unmarshal([]byte(`{}`), &p))
	assert.True(t, p.Empty())
}

func TestIssuePatch_Apply(t *testing.T) {
	alice := "alice"
	issue := &Issue{
		Title:    "old",
		Status:   IssueStatusOpen,
		Priority: IssuePriorityLow,
		Assignee: &alice,
	}

	IssuePatch{Title: Some("new")}.Apply(issue)
	assert.Equal(t, "new", issue.Title)
	assert.Equal(t, IssueStatusOpen, issue.Status)
	assert.Equal(t, IssuePriorityLow, issue.Priority)
	require.NotNil(t, issue.Assignee)
	assert.Equal(t, "alice", *issue.Assignee)

	IssuePatch{Assignee: Some("bob")}.Apply(issue)
	require.NotNil(t, issue.Assignee)
	assert.Equal(t, "bob", *issue.Assignee)

	IssuePatch{Assignee: Null[string]()}.Apply(issue)
	assert.Nil(t, issue.Assignee)
}

func TestOptional_MarshalJSON(t *testing.T) {
	data, err := json.Marshal(Some("x"))
	require.NoError(t, err)
	assert.JSONEq(t, `"x"`, string(data))

	data, err = json.Marshal(Optional[string]{})
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))
}
