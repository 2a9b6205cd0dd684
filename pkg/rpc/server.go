// Package rpc implements the line-delimited JSON-RPC 2.0 tool server
// on standard I/O. Each request is one JSON object per line; requests
// run concurrently up to a configured limit and responses are written
// in completion order, correlated by request id. Logging goes to
// stderr so stdout stays a clean transport.
package rpc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/triadworks/triad/pkg/config"
	"github.com/triadworks/triad/pkg/fault"
	"github.com/triadworks/triad/pkg/issues"
	"github.com/triadworks/triad/pkg/models"
	"github.com/triadworks/triad/pkg/pipeline"
)

// maxLineBytes bounds a single request line. Issues carry whole file
// bodies, so the ceiling is generous.
const maxLineBytes = 16 * 1024 * 1024

// PipelineRunner executes one run. *pipeline.Pipeline implements it.
type PipelineRunner interface {
	Run(ctx context.Context, issue *models.Issue, opts pipeline.RunOptions) (*pipeline.RunState, error)
}

// Server is the JSON-RPC tool server.
type Server struct {
	sources     *issues.Sources
	runner      PipelineRunner
	cfg         *config.Config
	concurrency int
	logger      *slog.Logger
}

// NewServer wires the tool server.
func NewServer(sources *issues.Sources, runner PipelineRunner, cfg *config.Config) *Server {
	concurrency := cfg.RPCConcurrency
	if concurrency < 1 {
		concurrency = 4
	}
	return &Server{
		sources:     sources,
		runner:      runner,
		cfg:         cfg,
		concurrency: concurrency,
		logger:      slog.Default().With("component", "rpc"),
	}
}

// lineWriter serializes whole-message writes so concurrent handlers
// never interleave bytes on the transport.
type lineWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (lw *lineWriter) writeMessage(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	lw.mu.Lock()
	defer lw.mu.Unlock()
	if _, err := lw.w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// Serve reads requests from r until EOF or ctx cancellation, then
// waits for in-flight handlers to finish. In-flight runs complete; no
// new requests are accepted after shutdown begins.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	out := &lineWriter{w: w}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup

	s.logger.Info("Tool server listening on stdio", "concurrency", s.concurrency)

read:
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		data := append([]byte(nil), line...)

		select {
		case <-ctx.Done():
			break read
		case sem <- struct{}{}:
		}

		// In-flight requests complete even after shutdown begins; only
		// acceptance of new work stops.
		handleCtx := context.WithoutCancel(ctx)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			s.handleLine(handleCtx, data, out)
		}()
	}

	wg.Wait()
	s.logger.Info("Tool server stopped")
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read requests: %w", err)
	}
	return nil
}

func (s *Server) handleLine(ctx context.Context, data []byte, out *lineWriter) {
	var req request
	if err := json.Unmarshal(data, &req); err != nil {
		s.reply(out, nil, nil, &rpcError{Code: codeParseError, Message: "parse error"})
		return
	}
	if req.JSONRPC != jsonrpcVersion || req.Method == "" {
		s.reply(out, req.ID, nil, &rpcError{Code: codeInvalidRequest, Message: "invalid request"})
		return
	}
	if req.ID == nil {
		// Client notifications carry no id and get no reply.
		s.logger.Debug("Ignoring client notification", "method", req.Method)
		return
	}

	s.logger.Info("Request received", "method", req.Method, "id", string(req.ID))
	result, rpcErr := s.dispatch(ctx, &req, out)
	s.reply(out, req.ID, result, rpcErr)
}

func (s *Server) reply(out *lineWriter, id json.RawMessage, result any, rpcErr *rpcError) {
	if id == nil {
		id = json.RawMessage("null")
	}
	resp := response{JSONRPC: jsonrpcVersion, ID: id, Result: result, Error: rpcErr}
	if err := out.writeMessage(resp); err != nil {
		s.logger.Error("Failed to write response", "id", string(id), "error", err)
	}
}

// dispatch routes one request. Domain failures become status:"error"
// results with a kind; only transport-level problems (unknown method,
// malformed envelope) use JSON-RPC error objects.
func (s *Server) dispatch(ctx context.Context, req *request, out *lineWriter) (any, *rpcError) {
	switch req.Method {
	case "list_mock_issues":
		return s.handleListMockIssues(), nil
	case "load_mock_issue":
		return s.handleLoadMockIssue(ctx, req.Params), nil
	case "fetch_remote_issue":
		return s.handleFetchRemoteIssue(ctx, req.Params), nil
	case "run_pipeline":
		return s.handleRunPipeline(ctx, req, out), nil
	case "process_file":
		return s.handleProcessFile(ctx, req, out), nil
	case "list_resources":
		return s.handleListResources(), nil
	case "read_resource":
		return s.handleReadResource(req.Params), nil
	case "list_prompts":
		return s.handleListPrompts(), nil
	case "get_prompt":
		return s.handleGetPrompt(req.Params), nil
	default:
		return nil, &rpcError{Code: codeMethodNotFound, Message: fmt.Sprintf("method %q not found", req.Method)}
	}
}

// domainError renders a failure as a status:"error" result body.
func domainError(err error) errorBody {
	return errorBody{
		Status: "error",
		Error:  err.Error(),
		Kind:   string(fault.KindOf(err)),
	}
}

// notifyProgress emits an advisory progress notification correlated
// to the request id.
func (s *Server) notifyProgress(out *lineWriter, id json.RawMessage, fraction float64, stage string) {
	n := notification{
		JSONRPC: jsonrpcVersion,
		Method:  "progress",
		Params:  progressParams{RequestID: id, Progress: fraction, Stage: stage},
	}
	if err := out.writeMessage(n); err != nil {
		s.logger.Warn("Failed to write progress notification", "error", err)
	}
}
