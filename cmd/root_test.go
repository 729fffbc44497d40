package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kaerrors "keyagent/internal/errors"
	"keyagent/util"
)

// withIO redirects the package streams for the duration of the test.
func withIO(t *testing.T, input string) (out, errOut *bytes.Buffer) {
	t.Helper()
	out, errOut = &bytes.Buffer{}, &bytes.Buffer{}
	oldIn, oldOut, oldErr := stdin, stdout, stderr
	stdin, stdout, stderr = strings.NewReader(input), out, errOut
	t.Cleanup(func() { stdin, stdout, stderr = oldIn, oldOut, oldErr })
	t.Setenv("KEYAGENT_CONFIG", "")
	t.Setenv("KEYAGENT_SECRET", "")
	return out, errOut
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const sampleConfig = `
listen:
  port: 4100
security:
  password: aHVudGVyMg==
  timeoutInterval: 3
commands:
  - name: open
    commandText: launch
    children:
      - name: browser
        commandText: chrome.exe
`

func TestExecute_Version(t *testing.T) {
	out, _ := withIO(t, "")
	require.NoError(t, Execute(context.Background(), []string{"--version"}))
	assert.Equal(t, "keyagent "+version+"\n", out.String())
}

func TestExecute_Help(t *testing.T) {
	_, errOut := withIO(t, "")
	require.NoError(t, Execute(context.Background(), []string{"--help"}))
	assert.Contains(t, errOut.String(), "--encode-secret")
	assert.Contains(t, errOut.String(), "--connect")
}

func TestExecute_InvalidFlags(t *testing.T) {
	withIO(t, "")
	assert.Error(t, Execute(context.Background(), []string{"--nonexistent-flag"}))
}

func TestExecute_UnexpectedArgument(t *testing.T) {
	withIO(t, "")
	err := Execute(context.Background(), []string{"--check", "stray"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stray")
}

func TestExecute_EncodeSecret(t *testing.T) {
	out, _ := withIO(t, "hunter2\n")
	require.NoError(t, Execute(context.Background(), []string{"--encode-secret"}))
	assert.Equal(t, "aHVudGVyMg==\n", out.String())
}

func TestExecute_EncodeSecretEmpty(t *testing.T) {
	withIO(t, "\n")
	assert.Error(t, Execute(context.Background(), []string{"--encode-secret"}))
}

func TestExecute_CheckPrintsTree(t *testing.T) {
	out, _ := withIO(t, "")
	path := writeConfig(t, sampleConfig)

	require.NoError(t, Execute(context.Background(), []string{"--check", "-c", path}))
	assert.Contains(t, out.String(), "0.0.0.0:4100")
	assert.Contains(t, out.String(), "timeout 3m")
	assert.Contains(t, out.String(), "2 commands")
	assert.Contains(t, out.String(), "open -> \"launch\"\n  browser -> \"chrome.exe\"\n")
}

func TestExecute_FlagsOverrideFile(t *testing.T) {
	out, _ := withIO(t, "")
	path := writeConfig(t, sampleConfig)

	args := []string{"--check", "-c", path, "-p", "5001", "-t", "9", "--profile", "relay"}
	require.NoError(t, Execute(context.Background(), args))
	assert.Contains(t, out.String(), "0.0.0.0:5001")
	assert.Contains(t, out.String(), "profile relay")
	assert.Contains(t, out.String(), "timeout 9m")
}

func TestExecute_ShellRequiresSecret(t *testing.T) {
	withIO(t, "")
	err := Execute(context.Background(), []string{"--check"})
	require.Error(t, err)

	var cfgErr *kaerrors.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "secret", cfgErr.Field)
}

func TestExecute_UnknownFileKey(t *testing.T) {
	withIO(t, "")
	path := writeConfig(t, "listen:\n  prot: 4000\n")
	assert.Error(t, Execute(context.Background(), []string{"--check", "-c", path}))
}

func TestExecute_ServeUntilCancelled(t *testing.T) {
	withIO(t, "")
	port, err := util.FindFreePort()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	args := []string{"--profile", "relay", "-a", "127.0.0.1", "-p", strconv.Itoa(port)}
	assert.NoError(t, Execute(ctx, args))
}
