// Package models defines the wire-visible data shapes shared across
// the pipeline: issues, stage outputs, token accounting records, and
// the Result artifact. JSON tags are part of the external contract.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
)

// IssueSource tags where an issue came from.
type IssueSource string

// Issue sources.
const (
	SourceMock   IssueSource = "mock"
	SourceRemote IssueSource = "remote"
	SourceFile   IssueSource = "file"
	SourceManual IssueSource = "manual"
)

// ValidSource reports whether s is a member of the closed source set.
func ValidSource(s IssueSource) bool {
	switch s {
	case SourceMock, SourceRemote, SourceFile, SourceManual:
		return true
	}
	return false
}

// Issue is the canonical work item. All front-ends normalize their
// input to this shape before a run starts.
type Issue struct {
	IssueID     string      `json:"issue_id"`
	Repo        string      `json:"repo"`
	IssueNumber int         `json:"issue_number"`
	Title       string      `json:"title"`
	Body        string      `json:"body"`
	Labels      []string    `json:"labels"`
	URL         string      `json:"url"`
	Source      IssueSource `json:"source"`
}

// Validate checks the required fields and canonicalizes labels to a
// sorted, deduplicated set.
func (i *Issue) Validate() error {
	if strings.TrimSpace(i.IssueID) == "" {
		return fmt.Errorf("issue_id is required")
	}
	if strings.TrimSpace(i.Repo) == "" {
		return fmt.Errorf("repo is required")
	}
	if i.IssueNumber < 1 {
		return fmt.Errorf("issue_number must be >= 1, got %d", i.IssueNumber)
	}
	if strings.TrimSpace(i.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if strings.TrimSpace(i.URL) == "" {
		return fmt.Errorf("url is required")
	}
	if !ValidSource(i.Source) {
		return fmt.Errorf("source must be one of mock, remote, file, manual; got %q", i.Source)
	}

	if len(i.Labels) > 0 {
		seen := make(map[string]struct{}, len(i.Labels))
		labels := make([]string, 0, len(i.Labels))
		for _, l := range i.Labels {
			if _, ok := seen[l]; ok {
				continue
			}
			seen[l] = struct{}{}
			labels = append(labels, l)
		}
		sort.Strings(labels)
		i.Labels = labels
	}
	return nil
}

// ParseIssue decodes and validates a canonical Issue document. Unknown
// fields are rejected, as is trailing content after the object.
func ParseIssue(data []byte) (*Issue, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var issue Issue
	if err := dec.Decode(&issue); err != nil {
		return nil, fmt.Errorf("decode issue: %w", err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("unexpected content after issue object")
	}
	if err := issue.Validate(); err != nil {
		return nil, fmt.Errorf("invalid issue: %w", err)
	}
	return &issue, nil
}
