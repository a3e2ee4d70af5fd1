package terraform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/yourusername/cloudcity/internal/apperr"
	"github.com/yourusername/cloudcity/internal/logger"
)

// maxOutput bounds how much command output ends up in an error
const maxOutput = 2048

// Executor applies a rendered plan directory
type Executor interface {
	Apply(ctx context.Context, dir string) error
}

// CommandExecutor runs a command such as `terraform apply -auto-approve`
// inside the plan directory.
type CommandExecutor struct {
	command []string
	logger  *logger.Logger
}

// NewCommandExecutor creates an executor for command. It panics on an empty
// command.
func NewCommandExecutor(command []string, log *logger.Logger) *CommandExecutor {
	if len(command) == 0 {
		panic("terraform: empty apply command")
	}
	if log == nil {
		log = logger.DefaultLogger
	}
	return &CommandExecutor{
		command: append([]string(nil), command...),
		logger:  log.WithFields(map[string]interface{}{"component": "terraform-executor"}),
	}
}

// Apply runs the command and fails with ErrExecutor on a non-zero exit or
// when ctx ends first.
func (e *CommandExecutor) Apply(ctx context.Context, dir string) error {
	cmd := exec.CommandContext(ctx, e.command[0], e.command[1:]...)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	e.logger.Info("running %s in %s", strings.Join(e.command, " "), dir)
	err := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return fmt.Errorf("%w: apply timed out: %v", apperr.ErrExecutor, ctxErr)
		}
		return fmt.Errorf("%w: apply cancelled: %v", apperr.ErrExecutor, ctxErr)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %v: %s", apperr.ErrExecutor, e.command[0], err, tail(out.String()))
	}
	e.logger.Debug("apply output: %s", tail(out.String()))
	return nil
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxOutput {
		return "..." + s[len(s)-maxOutput:]
	}
	return s
}

// NoopExecutor accepts every plan without running anything
type NoopExecutor struct {
	Logger *logger.Logger
}

// Apply only honours ctx
func (e NoopExecutor) Apply(ctx context.Context, dir string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrExecutor, err)
	}
	if e.Logger != nil {
		e.Logger.Info("no apply command configured; marking %s applied", dir)
	}
	return nil
}

// ExecutorFunc adapts a function to Executor
type ExecutorFunc func(ctx context.Context, dir string) error

// Apply calls f
func (f ExecutorFunc) Apply(ctx context.Context, dir string) error { return f(ctx, dir) }
