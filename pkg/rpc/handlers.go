package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/triadworks/triad/pkg/artifacts"
	"github.com/triadworks/triad/pkg/fault"
	"github.com/triadworks/triad/pkg/issues"
	"github.com/triadworks/triad/pkg/models"
	"github.com/triadworks/triad/pkg/pipeline"
	"github.com/triadworks/triad/pkg/structured"
	"github.com/triadworks/triad/pkg/tokens"
)

type listMockIssuesResult struct {
	Status string            `json:"status"`
	Issues []issues.MockInfo `json:"issues"`
	Count  int               `json:"count"`
}

func (s *Server) handleListMockIssues() any {
	mocks, err := s.sources.ListMocks()
	if err != nil {
		return domainError(err)
	}
	if mocks == nil {
		mocks = []issues.MockInfo{}
	}
	return listMockIssuesResult{Status: "success", Issues: mocks, Count: len(mocks)}
}

type issueResult struct {
	Status  string        `json:"status"`
	Issue   *models.Issue `json:"issue"`
	SavedTo string        `json:"saved_to,omitempty"`
}

func (s *Server) handleLoadMockIssue(ctx context.Context, params json.RawMessage) any {
	var p struct {
		Filename string `json:"filename"`
	}
	if err := json.Unmarshal(params, &p); err != nil || p.Filename == "" {
		return domainError(fault.Newf(fault.KindInvalidInput, "load_mock_issue requires a filename parameter"))
	}
	issue, err := s.sources.Fetch(ctx, issues.Selector{Kind: issues.SelectMock, MockName: p.Filename})
	if err != nil {
		return domainError(err)
	}
	return issueResult{Status: "success", Issue: issue}
}

func (s *Server) handleFetchRemoteIssue(ctx context.Context, params json.RawMessage) any {
	var p struct {
		Owner         string `json:"owner"`
		Repo          string `json:"repo"`
		Number        int    `json:"number"`
		SaveToIngress bool   `json:"save_to_ingress"`
	}
	if err := json.Unmarshal(params, &p); err != nil || p.Owner == "" || p.Repo == "" || p.Number < 1 {
		return domainError(fault.Newf(fault.KindInvalidInput, "fetch_remote_issue requires owner, repo, and number >= 1"))
	}

	issue, err := s.sources.Fetch(ctx, issues.Selector{
		Kind: issues.SelectRemote, Owner: p.Owner, Repo: p.Repo, Number: p.Number,
	})
	if err != nil {
		return domainError(err)
	}

	result := issueResult{Status: "success", Issue: issue}
	if p.SaveToIngress {
		data, err := json.MarshalIndent(issue, "", "  ")
		if err != nil {
			return domainError(fault.New(fault.KindPersistenceFailed, fmt.Errorf("serialize issue: %w", err)))
		}
		name := fmt.Sprintf("%s_%s_%d.json", p.Owner, p.Repo, p.Number)
		path := filepath.Join(s.cfg.IngressDir, name)
		if err := artifacts.AtomicWrite(path, append(data, '\n')); err != nil {
			return domainError(fault.New(fault.KindPersistenceFailed, err))
		}
		result.SavedTo = path
		s.logger.Info("Fetched issue saved to ingress", "issue_id", issue.IssueID, "path", path)
	}
	return result
}

type stageOutputs struct {
	PM  *models.PMOutput  `json:"pm"`
	Dev *models.DevOutput `json:"dev"`
	QA  *models.QAOutput  `json:"qa"`
}

type runPipelineResult struct {
	Status     string           `json:"status"`
	RunID      string           `json:"run_id"`
	Stages     stageOutputs     `json:"stages"`
	OutputFile string           `json:"output_file"`
	TokenUsage models.RunTokens `json:"token_usage"`
	Report     string           `json:"report"`
}

func (s *Server) handleRunPipeline(ctx context.Context, req *request, out *lineWriter) any {
	var p struct {
		Issue json.RawMessage `json:"issue"`
	}
	if err := json.Unmarshal(req.Params, &p); err != nil || len(p.Issue) == 0 {
		return domainError(fault.Newf(fault.KindInvalidInput, "run_pipeline requires an issue parameter"))
	}
	issue, err := models.ParseIssue(p.Issue)
	if err != nil {
		return domainError(fault.New(fault.KindInvalidInput, err))
	}

	state, err := s.runner.Run(ctx, issue, pipeline.RunOptions{
		OnProgress: func(fraction float64, stage string) {
			s.notifyProgress(out, req.ID, fraction, stage)
		},
	})
	if err != nil {
		return domainError(err)
	}

	usage := state.Result.Metadata.TokenUsage
	return runPipelineResult{
		Status:     "success",
		RunID:      state.RunID,
		Stages:     stageOutputs{PM: state.PM, Dev: state.Dev, QA: state.QA},
		OutputFile: state.OutputFile,
		TokenUsage: usage,
		Report:     tokens.FormatReport(usage),
	}
}

type processFileResult struct {
	Status     string           `json:"status"`
	RunID      string           `json:"run_id"`
	Verdict    models.Verdict   `json:"verdict"`
	OutputFile string           `json:"output_file"`
	TokenUsage models.RunTokens `json:"token_usage"`
	Report     string           `json:"report"`
}

func (s *Server) handleProcessFile(ctx context.Context, req *request, out *lineWriter) any {
	var p struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(req.Params, &p); err != nil || p.Path == "" {
		return domainError(fault.Newf(fault.KindInvalidInput, "process_file requires a path parameter"))
	}

	issue, err := issues.FetchFile(p.Path)
	if err != nil {
		return domainError(err)
	}

	state, err := s.runner.Run(ctx, issue, pipeline.RunOptions{
		SourcePath: p.Path,
		OnProgress: func(fraction float64, stage string) {
			s.notifyProgress(out, req.ID, fraction, stage)
		},
	})
	if err != nil {
		return domainError(err)
	}

	usage := state.Result.Metadata.TokenUsage
	return processFileResult{
		Status:     "success",
		RunID:      state.RunID,
		Verdict:    state.QA.Verdict,
		OutputFile: state.OutputFile,
		TokenUsage: usage,
		Report:     tokens.FormatReport(usage),
	}
}

// Read-only resources: a sanitized configuration snapshot and the
// stage output schemas.

type resourceInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type listResourcesResult struct {
	Status    string         `json:"status"`
	Resources []resourceInfo `json:"resources"`
}

func (s *Server) handleListResources() any {
	resources := []resourceInfo{
		{Name: "config", Description: "sanitized configuration snapshot"},
	}
	for _, name := range structured.SchemaNames() {
		resources = append(resources, resourceInfo{
			Name:        "schema/" + name,
			Description: fmt.Sprintf("JSON Schema for the %s stage output", name),
		})
	}
	return listResourcesResult{Status: "success", Resources: resources}
}

type readResourceResult struct {
	Status  string `json:"status"`
	Name    string `json:"name"`
	Content any    `json:"content"`
}

func (s *Server) handleReadResource(params json.RawMessage) any {
	var p struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(params, &p); err != nil || p.Name == "" {
		return domainError(fault.Newf(fault.KindInvalidInput, "read_resource requires a name parameter"))
	}

	switch {
	case p.Name == "config":
		return readResourceResult{Status: "success", Name: p.Name, Content: s.configSnapshot()}
	case strings.HasPrefix(p.Name, "schema/"):
		src, ok := structured.SchemaSource(strings.TrimPrefix(p.Name, "schema/"))
		if !ok {
			return domainError(fault.Newf(fault.KindNotFound, "resource %q not found", p.Name))
		}
		return readResourceResult{Status: "success", Name: p.Name, Content: json.RawMessage(src)}
	default:
		return domainError(fault.Newf(fault.KindNotFound, "resource %q not found", p.Name))
	}
}

// configSnapshot exposes operational settings. Credentials never leave
// the process.
func (s *Server) configSnapshot() map[string]any {
	return map[string]any{
		"provider":               s.cfg.Provider,
		"model":                  s.cfg.Model,
		"temperature":            s.cfg.Temperature,
		"ingress_dir":            s.cfg.IngressDir,
		"processed_dir":          s.cfg.ProcessedDir,
		"poisoned_dir":           s.cfg.PoisonedDir,
		"output_dir":             s.cfg.OutputDir,
		"mock_dir":               s.cfg.MockDir,
		"nominal_context_window": s.cfg.NominalContextWindow,
		"watcher_workers":        s.cfg.WatcherWorkers,
		"rpc_concurrency":        s.cfg.RPCConcurrency,
		"stage_timeout_seconds":  s.cfg.StageTimeout.Seconds(),
	}
}

type listPromptsResult struct {
	Status  string   `json:"status"`
	Prompts []string `json:"prompts"`
}

func (s *Server) handleListPrompts() any {
	return listPromptsResult{Status: "success", Prompts: pipeline.PromptNames()}
}

type getPromptResult struct {
	Status string `json:"status"`
	Name   string `json:"name"`
	Prompt string `json:"prompt"`
}

func (s *Server) handleGetPrompt(params json.RawMessage) any {
	var p struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(params, &p); err != nil || p.Name == "" {
		return domainError(fault.Newf(fault.KindInvalidInput, "get_prompt requires a name parameter"))
	}
	prompt, ok := pipeline.SystemPrompt(p.Name)
	if !ok {
		return domainError(fault.Newf(fault.KindNotFound, "prompt %q not found", p.Name))
	}
	return getPromptResult{Status: "success", Name: p.Name, Prompt: prompt}
}
