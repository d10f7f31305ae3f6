package runtime

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/alessio/shellescape"
)

// defaultShell runs commands in shell mode. Shell mode requires a POSIX
// shell on the worker host.
const defaultShell = "sh"

// ExecConfig describes a single subprocess execution.
type ExecConfig struct {
	// Argv is the rendered argument vector, program first.
	Argv []string
	// Shell runs the argv as a single quoted command line through the system
	// shell, for specs that rely on redirection or pipelines.
	Shell bool
	// Dir is the working directory for the subprocess.
	Dir string
	// Env holds additional KEY=VALUE pairs appended to the worker's own
	// environment.
	Env    []string
	Stdout io.Writer
	Stderr io.Writer
}

// Runtime executes rendered step commands.
type Runtime interface {
	Exec(ctx context.Context, config ExecConfig) error
}

// ExecRuntime executes commands directly on the host machine.
type ExecRuntime struct{}

func NewExecRuntime() *ExecRuntime {
	return &ExecRuntime{}
}

// Exec executes a command, honoring the deadline and cancellation of ctx.
func (r *ExecRuntime) Exec(ctx context.Context, config ExecConfig) error {
	if len(config.Argv) == 0 {
		return fmt.Errorf("error argv must not be empty")
	}

	var cmd *exec.Cmd
	if config.Shell {
		// Quote each token individually so paths with spaces survive the
		// round trip through the shell.
		cmd = exec.CommandContext(ctx, defaultShell, "-c", shellescape.QuoteCommand(config.Argv))
	} else {
		cmd = exec.CommandContext(ctx, config.Argv[0], config.Argv[1:]...)
	}

	cmd.Dir = config.Dir
	cmd.Stdout = config.Stdout
	cmd.Stderr = config.Stderr

	// Keep the worker's environment so tools resolve from PATH, then apply
	// the spec's own variables on top.
	cmd.Env = append(os.Environ(), config.Env...)

	err := cmd.Run()
	if err != nil {
		return fmt.Errorf("error running command: %w", err)
	}
	return nil
}
