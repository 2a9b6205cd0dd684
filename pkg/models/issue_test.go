package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validIssueJSON() []byte {
	return []byte(`{
		"issue_id": "acme/widget#101",
		"repo": "acme/widget",
		"issue_number": 101,
		"title": "Add dark mode",
		"body": "Users want a dark theme.",
		"labels": ["ui", "enhancement", "ui"],
		"url": "https://github.com/acme/widget/issues/101",
		"source": "mock"
	}`)
}

func TestParseIssue(t *testing.T) {
	issue, err := ParseIssue(validIssueJSON())
	require.NoError(t, err)

	assert.Equal(t, "acme/widget#101", issue.IssueID)
	assert.Equal(t, 101, issue.IssueNumber)
	assert.Equal(t, SourceMock, issue.Source)
	// Labels deduplicate and sort.
	assert.Equal(t, []string{"enhancement", "ui"}, issue.Labels)
}

func TestParseIssueRejectsUnknownFields(t *testing.T) {
	data := []byte(`{
		"issue_id": "a/b#1", "repo": "a/b", "issue_number": 1,
		"title": "t", "url": "u", "source": "file",
		"priority": "high"
	}`)
	_, err := ParseIssue(data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "priority")
}

func TestParseIssueRequiredFields(t *testing.T) {
	cases := map[string]string{
		"missing issue_id": `{"repo":"a/b","issue_number":1,"title":"t","url":"u","source":"file"}`,
		"blank title":      `{"issue_id":"a/b#1","repo":"a/b","issue_number":1,"title":"  ","url":"u","source":"file"}`,
		"zero number":      `{"issue_id":"a/b#1","repo":"a/b","issue_number":0,"title":"t","url":"u","source":"file"}`,
		"bad source":       `{"issue_id":"a/b#1","repo":"a/b","issue_number":1,"title":"t","url":"u","source":"github"}`,
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseIssue([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestParseIssueRejectsMalformedJSON(t *testing.T) {
	_, err := ParseIssue([]byte(`{"issue_id": "x/y#1",`))
	assert.Error(t, err)
}

// Round-trip: parse, serialize, parse again — canonical form is stable
// (labels are a set, so they come back sorted either way).
func TestIssueRoundTrip(t *testing.T) {
	issue, err := ParseIssue(validIssueJSON())
	require.NoError(t, err)

	data, err := json.Marshal(issue)
	require.NoError(t, err)

	again, err := ParseIssue(data)
	require.NoError(t, err)
	assert.Equal(t, issue, again)
}
