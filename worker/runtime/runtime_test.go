package runtime

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExecRunsArgv(t *testing.T) {
	var stdout bytes.Buffer
	err := NewExecRuntime().Exec(context.Background(), ExecConfig{
		Argv:   []string{"echo", "hello"},
		Stdout: &stdout,
	})
	require.NoError(t, err)
	require.Equal(t, "hello\n", stdout.String())
}

func TestExecShellModeQuotesTokens(t *testing.T) {
	var stdout bytes.Buffer
	err := NewExecRuntime().Exec(context.Background(), ExecConfig{
		Argv:   []string{"echo", "hello world"},
		Shell:  true,
		Stdout: &stdout,
	})
	require.NoError(t, err)
	require.Equal(t, "hello world\n", stdout.String())
}

func TestExecAppliesEnv(t *testing.T) {
	var stdout bytes.Buffer
	err := NewExecRuntime().Exec(context.Background(), ExecConfig{
		Argv:   []string{"sh", "-c", "echo $LISTENUP_TEST_VALUE"},
		Env:    []string{"LISTENUP_TEST_VALUE=present"},
		Stdout: &stdout,
	})
	require.NoError(t, err)
	require.Equal(t, "present\n", stdout.String())
}

func TestExecRunsInDir(t *testing.T) {
	dir := t.TempDir()
	err := NewExecRuntime().Exec(context.Background(), ExecConfig{
		Argv: []string{"sh", "-c", "echo here > marker"},
		Dir:  dir,
	})
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "marker"))
	require.NoError(t, err)
}

func TestExecCapturesStderr(t *testing.T) {
	var stderr bytes.Buffer
	err := NewExecRuntime().Exec(context.Background(), ExecConfig{
		Argv:   []string{"sh", "-c", "echo broken >&2; exit 2"},
		Stderr: &stderr,
	})
	require.Error(t, err)
	require.Equal(t, "broken\n", stderr.String())
}

func TestExecRejectsEmptyArgv(t *testing.T) {
	err := NewExecRuntime().Exec(context.Background(), ExecConfig{})
	require.Error(t, err)
}
