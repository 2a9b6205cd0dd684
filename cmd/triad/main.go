// Triad drives issues through the PM → Dev → QA agent pipeline. It
// runs as a one-shot CLI, a folder watcher, a JSON-RPC tool server on
// stdio, or an HTTP API server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/triadworks/triad/pkg/artifacts"
	"github.com/triadworks/triad/pkg/config"
	"github.com/triadworks/triad/pkg/database"
	"github.com/triadworks/triad/pkg/fault"
	"github.com/triadworks/triad/pkg/issues"
	"github.com/triadworks/triad/pkg/llm"
	"github.com/triadworks/triad/pkg/models"
	"github.com/triadworks/triad/pkg/pipeline"
	"github.com/triadworks/triad/pkg/rpc"
	"github.com/triadworks/triad/pkg/services"
	"github.com/triadworks/triad/pkg/structured"
	"github.com/triadworks/triad/pkg/tokens"
	"github.com/triadworks/triad/pkg/version"
	"github.com/triadworks/triad/pkg/watcher"

	apiserver "github.com/triadworks/triad/pkg/api"
)

func main() {
	root := &cobra.Command{
		Use:           "triad",
		Short:         "Multi-stage agent pipeline for software issues",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd(), newWatchCmd(), newMCPCmd(), newServeCmd(), newVersionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(fault.ExitCode(err))
	}
}

// app holds the wired components shared by every command.
type app struct {
	cfg      *config.Config
	db       *database.Client
	runs     *services.RunService
	sources  *issues.Sources
	pipeline *pipeline.Pipeline
}

func (a *app) close() {
	if err := a.db.Close(); err != nil {
		slog.Error("Error closing run index", "error", err)
	}
}

// bootstrap loads the environment, resolves configuration, and wires
// the component graph.
func bootstrap(ctx context.Context) (*app, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file, continuing with existing environment", "error", err)
	}

	cfg, err := config.FromEnv()
	if err != nil {
		return nil, fault.New(fault.KindInvalidInput, err)
	}
	cfg.SetupLogging()
	if err := cfg.EnsureDirs(); err != nil {
		return nil, fault.New(fault.KindPersistenceFailed, err)
	}

	chat, err := llm.NewClient(cfg)
	if err != nil {
		return nil, fault.New(fault.KindInvalidInput, err)
	}

	pricing, err := tokens.LoadPricing(cfg.PricingFile)
	if err != nil {
		return nil, fault.New(fault.KindInvalidInput, err)
	}
	accountant := tokens.NewAccountant(pricing, cfg.NominalContextWindow)

	parser, err := structured.NewParser()
	if err != nil {
		return nil, err
	}

	db, err := database.Open(ctx, cfg.RunIndexPath, cfg.RunIndexDSN)
	if err != nil {
		return nil, fault.New(fault.KindPersistenceFailed, err)
	}
	runs := services.NewRunService(db)

	var remote *issues.GitHubClient
	if cfg.RemoteAPIToken != "" {
		remote = issues.NewGitHubClient(cfg.RemoteAPIToken)
	}

	writer := artifacts.NewWriter(cfg.OutputDir)
	pipe := pipeline.New(chat, accountant, parser, writer, runs, cfg.StageTimeout)

	slog.Info("Components initialized",
		"version", version.Full(),
		"provider", cfg.Provider,
		"model", cfg.Model)

	return &app{
		cfg:      cfg,
		db:       db,
		runs:     runs,
		sources:  issues.New(cfg.MockDir, remote),
		pipeline: pipe,
	}, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func newRunCmd() *cobra.Command {
	var (
		mockName string
		filePath string
		owner    string
		repo     string
		number   int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline once for a single issue",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			a, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			sel, err := buildSelector(mockName, filePath, owner, repo, number)
			if err != nil {
				return err
			}
			issue, err := a.sources.Fetch(ctx, sel)
			if err != nil {
				return err
			}

			state, err := a.pipeline.Run(ctx, issue, pipeline.RunOptions{SourcePath: filePath})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Run %s completed: verdict=%s\n", state.RunID, state.QA.Verdict)
			fmt.Fprintf(cmd.OutOrStdout(), "Result: %s\n\n", state.OutputFile)
			fmt.Fprintln(cmd.OutOrStdout(), tokens.FormatReport(state.Result.Metadata.TokenUsage))
			return nil
		},
	}

	cmd.Flags().StringVar(&mockName, "mock", "", "mock issue filename from the mock directory")
	cmd.Flags().StringVar(&filePath, "file", "", "path to an issue JSON file")
	cmd.Flags().StringVar(&owner, "owner", "", "remote repository owner")
	cmd.Flags().StringVar(&repo, "repo", "", "remote repository name")
	cmd.Flags().IntVar(&number, "number", 0, "remote issue number")
	return cmd
}

// buildSelector validates that exactly one issue source was named.
func buildSelector(mockName, filePath, owner, repo string, number int) (issues.Selector, error) {
	remote := owner != "" || repo != "" || number != 0
	chosen := 0
	if mockName != "" {
		chosen++
	}
	if filePath != "" {
		chosen++
	}
	if remote {
		chosen++
	}
	if chosen != 1 {
		return issues.Selector{}, fault.Newf(fault.KindInvalidInput,
			"exactly one of --mock, --file, or --owner/--repo/--number is required")
	}

	switch {
	case mockName != "":
		return issues.Selector{Kind: issues.SelectMock, MockName: mockName}, nil
	case filePath != "":
		return issues.Selector{Kind: issues.SelectFile, Path: filePath}, nil
	default:
		if owner == "" || repo == "" || number < 1 {
			return issues.Selector{}, fault.Newf(fault.KindInvalidInput,
				"remote issues need --owner, --repo, and --number >= 1")
		}
		return issues.Selector{Kind: issues.SelectRemote, Owner: owner, Repo: repo, Number: number}, nil
	}
}

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Watch the ingress directory and run the pipeline for arriving issues",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			a, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			w := watcher.New(watcher.Config{
				IngressDir:    a.cfg.IngressDir,
				ProcessedDir:  a.cfg.ProcessedDir,
				PoisonedDir:   a.cfg.PoisonedDir,
				StagingDir:    a.cfg.StagingDir(),
				PollInterval:  a.cfg.WatcherPollInterval,
				QuietInterval: a.cfg.WatcherQuietInterval,
				Workers:       a.cfg.WatcherWorkers,
			}, func(ctx context.Context, issue *models.Issue, sourcePath string) error {
				_, err := a.pipeline.Run(ctx, issue, pipeline.RunOptions{SourcePath: sourcePath})
				return err
			})

			return w.Start(ctx)
		},
	}
}

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the JSON-RPC tool interface on standard I/O",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			a, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			server := rpc.NewServer(a.sources, a.pipeline, a.cfg)
			return server.Serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API over the run index",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			a, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			server := apiserver.NewServer(a.db, a.runs, a.pipeline)
			return server.Listen(ctx, ":"+a.cfg.HTTPPort)
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Full())
		},
	}
}
