// Package executor applies plan tasks to the sandbox workspace.
package executor

import (
	"context"
	stderrors "errors"
	"fmt"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/AlecFritsch/inito/internal/config"
	"github.com/AlecFritsch/inito/internal/model"
	"github.com/AlecFritsch/inito/internal/sandbox"
	"github.com/AlecFritsch/inito/pkg/errors"
	"github.com/AlecFritsch/inito/pkg/logger"
)

// testInstructionPrefix turns a test task into a code generation request for test code
const testInstructionPrefix = "Write test code for the following requirement. Output only the test file content.\n\n"

// Workspace is the file access the executor needs; *sandbox.Runner implements it
type Workspace interface {
	ReadFile(ctx context.Context, path string) (string, error)
	WriteFile(ctx context.Context, path, content string) error
	Mkdir(ctx context.Context, path string) error
	DeleteFile(ctx context.Context, path string) error
}

// GenContext is the project context passed along with every generation request
type GenContext struct {
	File       string
	Language   string
	Framework  string
	IssueTitle string
	Summary    string
}

// CodeGenerator produces file content
type CodeGenerator interface {
	GenerateCode(ctx context.Context, instruction string, gc GenContext) (string, error)
	EditCode(ctx context.Context, current, change string, gc GenContext) (string, error)
}

// Options tunes an Executor
type Options struct {
	// MaxTasks caps how many tasks are executed; the rest are skipped. Zero means no cap.
	MaxTasks int
	// Context is merged into every generation request
	Context GenContext
	// OnResult is called after each task
	OnResult func(task model.Task, result model.TaskResult)
}

// Executor runs tasks one after another against the workspace
type Executor struct {
	ws   Workspace
	gen  CodeGenerator
	repo *config.RepoConfig
	opts Options
	log  *zap.Logger
}

// New creates an Executor. repo supplies the protected file patterns.
func New(ws Workspace, gen CodeGenerator, repo *config.RepoConfig, opts Options, log *zap.Logger) *Executor {
	if repo == nil {
		repo = config.DefaultRepoConfig()
	}
	if log == nil {
		log = logger.Get()
	}
	return &Executor{ws: ws, gen: gen, repo: repo, opts: opts, log: log}
}

// Execute runs tasks sequentially in the given order and returns one result per task.
// A failing or panicking task becomes a skipped result; it never stops the loop.
func (e *Executor) Execute(ctx context.Context, tasks []model.Task) []model.TaskResult {
	results := make([]model.TaskResult, 0, len(tasks))

	for i, task := range tasks {
		var res model.TaskResult
		switch {
		case e.opts.MaxTasks > 0 && i >= e.opts.MaxTasks:
			res = skipped(task, "iteration limit reached")
		case ctx.Err() != nil:
			res = skipped(task, "run cancelled: "+ctx.Err().Error())
		default:
			res = e.safeExecute(ctx, task)
		}

		if res.Success {
			e.log.Info("Task completed",
				zap.Int("task_id", task.ID),
				zap.String("file", task.File),
				zap.String("action", string(res.Action)),
			)
		} else {
			e.log.Warn("Task skipped",
				zap.Int("task_id", task.ID),
				zap.String("file", task.File),
				zap.String("error", res.Error),
			)
		}

		results = append(results, res)
		if e.opts.OnResult != nil {
			e.opts.OnResult(task, res)
		}
	}
	return results
}

func (e *Executor) safeExecute(ctx context.Context, task model.Task) (res model.TaskResult) {
	defer func() {
		if r := recover(); r != nil {
			res = skipped(task, errors.New(errors.ErrCodeTaskExecution, fmt.Sprintf("panic: %v", r)).Error())
		}
	}()

	res, err := e.ExecuteTask(ctx, task)
	if err != nil {
		return skipped(task, errors.Wrap(errors.ErrCodeTaskExecution, "task failed", err).Error())
	}
	return res
}

// ExecuteTask applies a single task. Protected files are checked before anything else.
func (e *Executor) ExecuteTask(ctx context.Context, task model.Task) (model.TaskResult, error) {
	file, err := workspacePath(task.File)
	if err != nil {
		return skipped(task, err.Error()), nil
	}
	task.File = file

	if pattern, ok := e.repo.MatchProtected(file); ok {
		return skipped(task, fmt.Sprintf("file %s is protected (matches %q)", file, pattern)), nil
	}

	switch task.Kind {
	case model.TaskKindCreate:
		return e.create(ctx, task, instruction(task))
	case model.TaskKindTest:
		return e.create(ctx, task, testInstructionPrefix+instruction(task))
	case model.TaskKindModify:
		return e.modify(ctx, task)
	case model.TaskKindDelete:
		return e.delete(ctx, task)
	default:
		return skipped(task, fmt.Sprintf("unknown task type %q", task.Kind)), nil
	}
}

// workspacePath normalizes a task file to a path relative to the workspace root.
// Absolute paths are accepted only under sandbox.WorkDir.
func workspacePath(file string) (string, error) {
	file = strings.TrimSpace(file)
	if file == "" {
		return "", stderrors.New("task has no target file")
	}
	file = path.Clean(file)
	if path.IsAbs(file) {
		rel := strings.TrimPrefix(file, sandbox.WorkDir+"/")
		if rel == file {
			return "", fmt.Errorf("path %s is outside the workspace", file)
		}
		file = rel
	}
	if file == "." {
		return "", stderrors.New("task has no target file")
	}
	if file == ".." || strings.HasPrefix(file, "../") {
		return "", fmt.Errorf("path %s escapes the workspace", file)
	}
	return file, nil
}

func (e *Executor) create(ctx context.Context, task model.Task, instr string) (model.TaskResult, error) {
	if dir := path.Dir(task.File); dir != "." {
		if err := e.ws.Mkdir(ctx, dir); err != nil {
			return model.TaskResult{}, err
		}
	}

	content, err := e.gen.GenerateCode(ctx, instr, e.genContext(task))
	if err != nil {
		return model.TaskResult{}, fmt.Errorf("code generation failed: %w", err)
	}
	content = StripCodeFences(content)

	if err := e.ws.WriteFile(ctx, task.File, content); err != nil {
		return model.TaskResult{}, err
	}

	return model.TaskResult{
		TaskID:  task.ID,
		Success: true,
		File:    task.File,
		Action:  model.TaskActionCreated,
		Diff:    NewFileDiff(task.File, content),
	}, nil
}

func (e *Executor) modify(ctx context.Context, task model.Task) (model.TaskResult, error) {
	current, err := e.ws.ReadFile(ctx, task.File)
	if stderrors.Is(err, sandbox.ErrFileNotFound) {
		e.log.Debug("File to modify does not exist, creating it", zap.String("file", task.File))
		return e.create(ctx, task, instruction(task))
	}
	if err != nil {
		return model.TaskResult{}, err
	}

	updated, err := e.gen.EditCode(ctx, current, instruction(task), e.genContext(task))
	if err != nil {
		return model.TaskResult{}, fmt.Errorf("code edit failed: %w", err)
	}
	updated = StripCodeFences(updated)

	if err := e.ws.WriteFile(ctx, task.File, updated); err != nil {
		return model.TaskResult{}, err
	}

	return model.TaskResult{
		TaskID:  task.ID,
		Success: true,
		File:    task.File,
		Action:  model.TaskActionModified,
		Diff:    LineDiff(task.File, current, updated),
	}, nil
}

func (e *Executor) delete(ctx context.Context, task model.Task) (model.TaskResult, error) {
	// the old content only feeds the diff
	old, _ := e.ws.ReadFile(ctx, task.File)

	if err := e.ws.DeleteFile(ctx, task.File); err != nil {
		return skipped(task, err.Error()), nil
	}

	return model.TaskResult{
		TaskID:  task.ID,
		Success: true,
		File:    task.File,
		Action:  model.TaskActionDeleted,
		Diff:    DeletedFileDiff(task.File, old),
	}, nil
}

func (e *Executor) genContext(task model.Task) GenContext {
	gc := e.opts.Context
	gc.File = task.File
	return gc
}

func instruction(task model.Task) string {
	if task.Details == "" {
		return task.Description
	}
	return task.Description + "\n\n" + task.Details
}

func skipped(task model.Task, msg string) model.TaskResult {
	return model.TaskResult{
		TaskID:  task.ID,
		Success: false,
		File:    task.File,
		Action:  model.TaskActionSkipped,
		Error:   msg,
	}
}

// StripCodeFences removes a surrounding ``` fence (with optional language tag) from s
func StripCodeFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return s
	}
	nl := strings.IndexByte(trimmed, '\n')
	if nl < 0 {
		return s
	}
	body := trimmed[nl+1:]
	if idx := strings.LastIndex(body, "```"); idx >= 0 && strings.TrimSpace(body[idx+3:]) == "" {
		body = body[:idx]
	}
	body = strings.TrimRight(body, " \t")
	if !strings.HasSuffix(body, "\n") {
		body += "\n"
	}
	return body
}
