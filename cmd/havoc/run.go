package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/AlecFritsch/inito/internal/engine/pipeline"
	"github.com/AlecFritsch/inito/internal/events"
	"github.com/AlecFritsch/inito/internal/git/issueref"
	"github.com/AlecFritsch/inito/internal/git/provider"
	"github.com/AlecFritsch/inito/internal/model"
)

var runCmd = &cobra.Command{
	Use:   "run [owner/repo#N | issue URL]",
	Short: "Run the pipeline once for a single issue",
	Long: `Run the full pipeline for one issue in the foreground and print a summary.

  havoc run acme/widgets#42
  havoc run https://github.com/acme/widgets/issues/42
  havoc run --repo acme/widgets --issue 42`,
	Args: cobra.MaximumNArgs(1),
	RunE: runOnce,
}

func init() {
	runCmd.Flags().String("repo", "", "repository as owner/name")
	runCmd.Flags().Int("issue", 0, "issue number")
	runCmd.Flags().Bool("quiet", false, "only print the summary")
}

// resolveRef builds the issue reference from the positional argument or the flags
func resolveRef(args []string, repo string, issue int) (*issueref.Ref, error) {
	if len(args) == 1 {
		if repo != "" || issue != 0 {
			return nil, fmt.Errorf("pass either an issue reference or --repo/--issue, not both")
		}
		return issueref.Parse(args[0])
	}
	owner, name, ok := provider.SplitFullName(repo)
	if !ok {
		return nil, fmt.Errorf("--repo must be owner/name")
	}
	if issue <= 0 {
		return nil, fmt.Errorf("--issue must be a positive issue number")
	}
	return &issueref.Ref{Owner: owner, Repo: name, Number: issue}, nil
}

func runOnce(cmd *cobra.Command, args []string) error {
	repo, _ := cmd.Flags().GetString("repo")
	issue, _ := cmd.Flags().GetInt("issue")
	quiet, _ := cmd.Flags().GetBool("quiet")

	ref, err := resolveRef(args, repo, issue)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := appOptions{}
	if !quiet {
		opts.extraSink = newConsoleSink(cmd.OutOrStdout())
	}
	a, err := newApp(ctx, cfg, opts)
	defer a.close()
	if err != nil {
		return err
	}

	gh, err := a.provider.GetIssue(ctx, ref.Owner, ref.Repo, ref.Number)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", ref, err)
	}
	if gh.IsPullRequest {
		return fmt.Errorf("%s is a pull request, not an issue", ref)
	}

	run := &model.Run{
		RepoOwner:     ref.Owner,
		RepoName:      ref.Repo,
		IssueNumber:   gh.Number,
		IssueTitle:    gh.Title,
		IssueBody:     gh.Body,
		TriggeredBy:   os.Getenv("USER"),
		TriggerSource: model.TriggerSourceCLI,
	}
	result, err := a.engine.Execute(ctx, run)
	if err != nil {
		return err
	}

	stored, err := a.store.Run().GetByID(run.ID)
	if err != nil {
		stored = run
	}
	printSummary(cmd.OutOrStdout(), stored, result)
	if !result.Success {
		return errRunFailed
	}
	return nil
}

// errRunFailed makes the process exit non-zero after the summary was printed
var errRunFailed = stderrors.New("run did not open a pull request")

// consoleSink prints run progress as it happens
type consoleSink struct {
	mu  sync.Mutex
	out io.Writer
}

func newConsoleSink(out io.Writer) *consoleSink {
	return &consoleSink{out: out}
}

// Emit implements events.Sink
func (s *consoleSink) Emit(_ string, ev events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Type {
	case events.TypeStatus:
		fmt.Fprintf(s.out, "%s %s\n", color.CyanString("==>"), color.New(color.Bold).Sprint(ev.Message))
	case events.TypeStage, events.TypeTask:
		fmt.Fprintf(s.out, "    %s\n", ev.Message)
	case events.TypeError:
		fmt.Fprintf(s.out, "%s %s\n", color.RedString("error:"), ev.Message)
	}
}

// printSummary writes the outcome of a run
func printSummary(out io.Writer, run *model.Run, result pipeline.Result) {
	bold := color.New(color.Bold)
	fmt.Fprintln(out)
	bold.Fprintf(out, "Run %s  %s#%d\n", run.ID, run.FullRepo(), run.IssueNumber)

	if run.Confidence != nil || result.ConfidenceScore > 0 {
		fmt.Fprintf(out, "  Confidence: %s\n", scoreColor(result.ConfidenceScore).Sprintf("%d/100", result.ConfidenceScore))
	}
	if run.PolicyResult != nil {
		for _, gate := range run.PolicyResult.Gates {
			mark := color.GreenString("pass")
			if !gate.Passed {
				mark = color.RedString("fail")
			}
			fmt.Fprintf(out, "  [%s] %s: %s\n", mark, gate.Name, gate.Message)
		}
	}
	if len(run.ChangedFiles) > 0 {
		fmt.Fprintf(out, "  Changed files: %d\n", len(run.ChangedFiles))
	}

	if result.Success {
		fmt.Fprintf(out, "  %s %s\n", color.GreenString("Pull request:"), result.PRURL)
		return
	}
	fmt.Fprintf(out, "  %s %s\n", color.RedString("Failed:"), result.Error)
}

func scoreColor(score int) *color.Color {
	switch {
	case score >= 80:
		return color.New(color.FgGreen)
	case score >= 50:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgRed)
	}
}

var _ events.Sink = (*consoleSink)(nil)
