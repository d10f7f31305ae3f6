package worker

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/net/context"

	"github.com/listenup/listenup/common/gerror"
	"github.com/listenup/listenup/common/logger"
	"github.com/listenup/listenup/common/models"
	"github.com/listenup/listenup/common/queue"
	"github.com/listenup/listenup/common/storage"
	"github.com/listenup/listenup/worker/runtime"
)

const (
	dirMode = 0700
	// stderrTailBytes is the maximum amount of stderr included in a command
	// failure message.
	stderrTailBytes = 512
)

// ExecutorConfig configures step execution.
type ExecutorConfig struct {
	// ExecTimeout bounds the subprocess runtime for a single step.
	ExecTimeout time.Duration
	// ScratchRoot is the directory per-step scratch directories are created
	// under. Empty means the system temp directory.
	ScratchRoot string
}

// Executor runs a single dispatched step end to end: it materializes the
// step's input and output paths under the shared storage root, renders and
// executes the command, verifies the declared outputs exist and reports the
// result on the status channel.
type Executor struct {
	service models.ServiceName
	config  ExecutorConfig
	layout  *storage.Layout
	runtime runtime.Runtime
	queue   queue.Queue
	clock   clock.Clock
	logger.Log
}

func NewExecutor(
	service models.ServiceName,
	config ExecutorConfig,
	layout *storage.Layout,
	rt runtime.Runtime,
	queue queue.Queue,
	clk clock.Clock,
	logFactory logger.LogFactory,
) *Executor {
	if config.ExecTimeout == 0 {
		config.ExecTimeout = DefaultExecTimeout
	}
	return &Executor{
		service: service,
		config:  config,
		layout:  layout,
		runtime: rt,
		queue:   queue,
		clock:   clk,
		Log:     logFactory("Executor"),
	}
}

// ExecuteStep runs one step. The outcome is always reported to the status
// channel; execution errors are recorded against the step rather than
// returned.
func (e *Executor) ExecuteStep(ctx context.Context, event *models.StepExecuteEvent) {
	e.Infof("Executing step %q (%s) of job %s", event.StepName, event.StepID, event.JobID)
	e.publishStatus(models.NewStepStatusEvent(event.JobID, event.StepID, event.StepName, models.StatusProcessing, e.clock.Now()))

	outputs, metrics, err := e.runStep(ctx, event)
	if err != nil {
		e.Errorf("Step %q (%s) of job %s failed: %v", event.StepName, event.StepID, event.JobID, err)
		failed := models.NewStepStatusEvent(event.JobID, event.StepID, event.StepName, models.StatusFailed, e.clock.Now())
		failed.ErrorMessage = err.Error()
		e.publishStatus(failed)
		return
	}

	complete := models.NewStepStatusEvent(event.JobID, event.StepID, event.StepName, models.StatusComplete, e.clock.Now())
	complete.Outputs = outputs
	complete.Metrics = metrics
	e.publishStatus(complete)
	e.Infof("Step %q (%s) of job %s complete", event.StepName, event.StepID, event.JobID)
}

func (e *Executor) runStep(ctx context.Context, event *models.StepExecuteEvent) (map[string]string, map[string]interface{}, error) {
	scratchDir, cleanup, err := e.createScratchDir(event)
	if err != nil {
		return nil, nil, err
	}
	defer cleanup()

	inputs, err := e.materializeInputs(event.Inputs)
	if err != nil {
		return nil, nil, err
	}
	outputs, err := e.materializeOutputs(event.Outputs)
	if err != nil {
		return nil, nil, err
	}

	argv := renderCommand(event.CommandSpec, inputs, outputs)
	e.Tracef("Rendered command for step %s: %v", event.StepID, argv)

	duration, err := e.execute(ctx, event.CommandSpec, argv, scratchDir)
	if err != nil {
		return nil, nil, err
	}

	relative, checksums, err := e.validateOutputs(outputs)
	if err != nil {
		return nil, nil, err
	}

	metrics := map[string]interface{}{
		"duration_ms": duration.Milliseconds(),
	}
	if len(checksums) > 0 {
		metrics["checksums"] = checksums
	}
	return relative, metrics, nil
}

// createScratchDir makes the step's private working directory. Cleanup only
// ever removes the scratch directory, never anything under the shared
// storage root.
func (e *Executor) createScratchDir(event *models.StepExecuteEvent) (string, func(), error) {
	if e.config.ScratchRoot != "" {
		if err := os.MkdirAll(e.config.ScratchRoot, dirMode); err != nil {
			return "", nil, errors.Wrap(err, "error creating scratch root")
		}
	}
	dir, err := os.MkdirTemp(e.config.ScratchRoot, fmt.Sprintf("%s_%s_", e.service, event.StepID))
	if err != nil {
		return "", nil, errors.Wrap(err, "error creating scratch directory")
	}
	cleanup := func() {
		if err := os.RemoveAll(dir); err != nil {
			e.Warnf("Will ignore error removing scratch directory %q: %v", dir, err)
		}
	}
	return dir, cleanup, nil
}

// materializeInputs resolves every declared input to an absolute path under
// the storage root and verifies it exists.
func (e *Executor) materializeInputs(inputs map[string]string) (map[string]string, error) {
	materialized := make(map[string]string, len(inputs))
	for name, path := range inputs {
		absolute, err := e.layout.AbsolutePath(path)
		if err != nil {
			return nil, gerror.NewErrMissingInput(fmt.Sprintf("error input %q has an invalid path: %v", name, err))
		}
		if _, err := os.Stat(absolute); err != nil {
			if os.IsNotExist(err) {
				return nil, gerror.NewErrMissingInput(fmt.Sprintf("error input %q not found at %q", name, absolute))
			}
			return nil, errors.Wrapf(err, "error checking input %q", name)
		}
		materialized[name] = absolute
	}
	return materialized, nil
}

// materializeOutputs resolves every declared output to an absolute path under
// the storage root and pre-creates its parent directory so the command can
// write directly into shared storage.
func (e *Executor) materializeOutputs(outputs map[string]string) (map[string]string, error) {
	materialized := make(map[string]string, len(outputs))
	for name, path := range outputs {
		absolute, err := e.layout.AbsolutePath(path)
		if err != nil {
			return nil, gerror.NewErrValidationFailed(fmt.Sprintf("error output %q has an invalid path: %v", name, err))
		}
		if err := os.MkdirAll(filepath.Dir(absolute), dirMode); err != nil {
			return nil, errors.Wrapf(err, "error creating directory for output %q", name)
		}
		materialized[name] = absolute
	}
	return materialized, nil
}

// renderCommand resolves the spec's placeholders against the materialized
// paths and renders the final argument vector. Placeholders that surface as
// their own token after multi-token flag values are split resolve in a
// second pass.
func renderCommand(spec *models.CommandSpec, inputs map[string]string, outputs map[string]string) []string {
	argv := spec.ResolvePlaceholders(inputs, outputs).Argv()
	for i, token := range argv {
		argv[i] = models.ResolvePlaceholder(token, inputs, outputs)
	}
	return argv
}

// execute runs the rendered command with the configured timeout. The command
// runs in the scratch directory unless the spec names a working directory
// under the storage root.
func (e *Executor) execute(ctx context.Context, spec *models.CommandSpec, argv []string, scratchDir string) (time.Duration, error) {
	cwd := scratchDir
	if spec.Cwd != "" {
		absolute, err := e.layout.AbsolutePath(spec.Cwd)
		if err != nil {
			return 0, gerror.NewErrValidationFailed(fmt.Sprintf("error working directory %q is invalid: %v", spec.Cwd, err))
		}
		cwd = absolute
	}
	env := make([]string, 0, len(spec.Env))
	for name, value := range spec.Env {
		env = append(env, name+"="+value)
	}

	execCtx, cancel := context.WithTimeout(ctx, e.config.ExecTimeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	started := e.clock.Now()
	err := e.runtime.Exec(execCtx, runtime.ExecConfig{
		Argv:   argv,
		Shell:  spec.Shell,
		Dir:    cwd,
		Env:    env,
		Stdout: &stdout,
		Stderr: &stderr,
	})
	duration := e.clock.Now().Sub(started)
	if err != nil {
		if execCtx.Err() == context.DeadlineExceeded {
			return duration, gerror.NewErrTimeout(fmt.Sprintf("waiting for step command to finish after %s", e.config.ExecTimeout))
		}
		detail := tail(stderr.String(), stderrTailBytes)
		if detail == "" {
			detail = err.Error()
		}
		return duration, gerror.NewErrCommandFailed(fmt.Sprintf("error command failed: %s", detail), err)
	}
	if stdout.Len() > 0 {
		e.Tracef("Command stdout: %s", stdout.String())
	}
	return duration, nil
}

// validateOutputs checks that each declared output exists and is non-empty,
// returning storage-relative paths and checksums for those present. A step
// that declared outputs but produced none of them fails; partially produced
// outputs are logged and reported as-is.
func (e *Executor) validateOutputs(materialized map[string]string) (map[string]string, map[string]string, error) {
	if len(materialized) == 0 {
		return nil, nil, nil
	}
	var (
		present   = make(map[string]string, len(materialized))
		checksums = make(map[string]string, len(materialized))
		missing   *multierror.Error
	)
	for name, absolute := range materialized {
		info, err := os.Stat(absolute)
		if err != nil || info.Size() == 0 {
			missing = multierror.Append(missing, errors.Errorf("error output %q missing or empty at %q", name, absolute))
			continue
		}
		relative, err := e.layout.RelativePath(absolute)
		if err != nil {
			return nil, nil, err
		}
		sum, err := checksumFile(absolute)
		if err != nil {
			e.Warnf("Will ignore error checksumming output %q: %v", name, err)
		} else {
			checksums[name] = sum
		}
		present[name] = relative
	}
	if len(present) == 0 {
		return nil, nil, gerror.NewErrNoOutputs(fmt.Sprintf("error command succeeded but produced none of its %d declared outputs", len(materialized)))
	}
	if err := missing.ErrorOrNil(); err != nil {
		e.Warnf("Step produced %d of %d declared outputs: %v", len(present), len(materialized), err)
	}
	return present, checksums, nil
}

// publishStatus pushes a status envelope with a fresh context so results
// still reach the orchestrator when the step context has timed out or the
// worker is shutting down.
func (e *Executor) publishStatus(event *models.StepStatusEvent) {
	ctx, cancel := getStatusUpdateContext()
	defer cancel()
	if err := e.queue.Push(ctx, queue.StatusChannel, event); err != nil {
		e.Errorf("Error publishing %s status for step %s: %v", event.Status, event.StepID, err)
	}
}

// checksumFile returns the hex encoded BLAKE2b-256 digest of the file.
func checksumFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", errors.Wrapf(err, "error opening output file %q", path)
	}
	defer file.Close()
	hash, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	_, err = io.Copy(hash, file)
	if err != nil {
		return "", errors.Wrapf(err, "error reading output file %q", path)
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

// tail returns up to the last limit bytes of s, trimmed of surrounding
// whitespace.
func tail(s string, limit int) string {
	s = strings.TrimSpace(s)
	if len(s) <= limit {
		return s
	}
	return s[len(s)-limit:]
}
