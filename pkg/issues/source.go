// Package issues loads work items from the supported sources — mock
// files, arbitrary JSON files, and the remote issue tracker — and
// normalizes them to the canonical Issue schema.
package issues

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/triadworks/triad/pkg/fault"
	"github.com/triadworks/triad/pkg/models"
)

// Selector names one issue in one source. Exactly one group of fields
// is meaningful, discriminated by Kind.
type Selector struct {
	Kind SelectorKind

	// Kind == SelectMock
	MockName string

	// Kind == SelectFile
	Path string

	// Kind == SelectRemote
	Owner  string
	Repo   string
	Number int
}

// SelectorKind discriminates Selector.
type SelectorKind string

// Selector kinds.
const (
	SelectMock   SelectorKind = "mock"
	SelectFile   SelectorKind = "file"
	SelectRemote SelectorKind = "remote"
)

// MockInfo describes one mock issue file, for listings.
type MockInfo struct {
	Filename string `json:"filename"`
	Title    string `json:"title"`
	Priority string `json:"priority"`
	Path     string `json:"path"`
}

// Sources resolves selectors against the configured mock directory
// and the remote tracker.
type Sources struct {
	mockDir string
	remote  *GitHubClient
}

// New creates a source set. remote may be nil when no remote token or
// endpoint is configured; remote fetches then fail with not_found.
func New(mockDir string, remote *GitHubClient) *Sources {
	return &Sources{mockDir: mockDir, remote: remote}
}

// Fetch loads and validates the issue named by sel.
func (s *Sources) Fetch(ctx context.Context, sel Selector) (*models.Issue, error) {
	switch sel.Kind {
	case SelectMock:
		return s.fetchMock(sel.MockName)
	case SelectFile:
		return FetchFile(sel.Path)
	case SelectRemote:
		if s.remote == nil {
			return nil, fault.Newf(fault.KindInvalidInput,
				"remote source is not configured: REMOTE_API_TOKEN is missing")
		}
		return s.remote.FetchIssue(ctx, sel.Owner, sel.Repo, sel.Number)
	default:
		return nil, fault.Newf(fault.KindInvalidInput, "unknown selector kind %q", sel.Kind)
	}
}

// fetchMock reads an issue from the mock directory. The name is a
// bare filename; path separators are rejected so callers cannot
// escape the directory.
func (s *Sources) fetchMock(name string) (*models.Issue, error) {
	if name == "" {
		return nil, fault.Newf(fault.KindInvalidInput, "mock filename is required")
	}
	if name != filepath.Base(name) {
		return nil, fault.Newf(fault.KindInvalidInput, "mock filename %q must not contain path separators", name)
	}
	if !strings.HasSuffix(name, ".json") {
		name += ".json"
	}
	return FetchFile(filepath.Join(s.mockDir, name))
}

// FetchFile reads and validates an issue from an arbitrary JSON file.
func FetchFile(path string) (*models.Issue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fault.Newf(fault.KindNotFound, "issue file %s does not exist", path)
		}
		return nil, fault.New(fault.KindInvalidInput, fmt.Errorf("read issue file %s: %w", path, err))
	}

	issue, err := models.ParseIssue(data)
	if err != nil {
		return nil, fault.New(fault.KindInvalidInput, fmt.Errorf("issue file %s: %w", path, err))
	}
	return issue, nil
}

// ListMocks enumerates the *.json files in the mock directory, sorted
// by filename. Files that fail to parse are listed with an empty
// title rather than hidden — operators should see broken mocks.
func (s *Sources) ListMocks() ([]MockInfo, error) {
	entries, err := os.ReadDir(s.mockDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fault.Newf(fault.KindNotFound, "mock directory %s does not exist", s.mockDir)
		}
		return nil, fmt.Errorf("read mock directory %s: %w", s.mockDir, err)
	}

	var mocks []MockInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(s.mockDir, entry.Name())
		info := MockInfo{Filename: entry.Name(), Path: path}
		if issue, err := FetchFile(path); err == nil {
			info.Title = issue.Title
			info.Priority = priorityLabel(issue.Labels)
		}
		mocks = append(mocks, info)
	}
	sort.Slice(mocks, func(i, j int) bool { return mocks[i].Filename < mocks[j].Filename })
	return mocks, nil
}

// priorityLabel extracts a "priority:*" label value, if present.
func priorityLabel(labels []string) string {
	for _, l := range labels {
		if rest, ok := strings.CutPrefix(l, "priority:"); ok {
			return rest
		}
	}
	return ""
}
