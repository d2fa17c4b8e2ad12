package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/chatflow/internal/store"
	"github.com/rendis/chatflow/pkg/schema"
)

const guessPath = "../../examples/guess.flow"

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := defaultConfig()
	cfg.DBPath = filepath.Join(t.TempDir(), "chatflow.db")
	return cfg
}

func execute(t *testing.T, cfg Config, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd(cfg)
	var out, errOut bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

// secretFor returns the number random_number draws first for a --seed value.
func secretFor(seed uint64) string {
	r := rand.New(rand.NewPCG(seed, seed))
	return strconv.FormatInt(r.Int64N(100)+1, 10)
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// --- check ---

func TestCheck_Valid(t *testing.T) {
	out, _, err := execute(t, testConfig(t), "", "check", guessPath)
	require.NoError(t, err)
	assert.Equal(t, guessPath+": ok (2 flows, 0 warnings)\n", out)
}

func TestCheck_Invalid(t *testing.T) {
	path := writeFile(t, "bad.flow", "flow origin {\n  speak\n}\n")
	out, _, err := execute(t, testConfig(t), "", "check", path)
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
	assert.Contains(t, out, "PARSE_ERROR")
	assert.Contains(t, out, path+":3:1: error:")
}

func TestCheck_Warnings(t *testing.T) {
	path := writeFile(t, "warn.flow", "flow origin {\n  handover nope\n}\n")
	out, _, err := execute(t, testConfig(t), "", "check", path)
	require.NoError(t, err)
	assert.Contains(t, out, "warning:")
	assert.Contains(t, out, "UNKNOWN_TRIBUTARY")
	assert.Contains(t, out, "ok (1 flows, 1 warnings)")
}

// --- simulate ---

func TestSimulate_Guess(t *testing.T) {
	inputs, err := json.Marshal([]any{"abc", "0", "101", secretFor(7)})
	require.NoError(t, err)

	out, _, err := execute(t, testConfig(t), "", "simulate", guessPath, "--seed", "7", "--inputs", string(inputs))
	require.NoError(t, err)
	assert.Equal(t, strings.Join([]string{
		"Guess a number between 1 and 100",
		"Not even wrong",
		"Too small",
		"Too large",
		"Correct! 3 tries",
	}, "\n")+"\n", out)
}

func TestSimulate_SilenceAndRecord(t *testing.T) {
	cfg := testConfig(t)
	out, errOut, err := execute(t, cfg, "", "simulate", guessPath, "--seed", "3", "--inputs", `[null]`, "--record")
	require.NoError(t, err)
	assert.Equal(t, "Guess a number between 1 and 100\nToo slow, it was "+secretFor(3)+"\n", out)
	require.Contains(t, errOut, "recorded")

	st, err := store.NewLibSQLStore("file:" + cfg.DBPath)
	require.NoError(t, err)
	defer st.Close()
	runs, err := st.ListRuns(context.Background(), store.RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, schema.RunStatusTerminated, runs[0].Status)
	assert.Equal(t, guessPath, runs[0].Script)
}

func TestSimulate_BadInputs(t *testing.T) {
	_, _, err := execute(t, testConfig(t), "", "simulate", guessPath, "--inputs", `{"a":1}`)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestSimulate_Manifest(t *testing.T) {
	manifest := writeFile(t, "tributaries.json",
		`{"tributaries": [{"name": "double", "engine": "expr", "expression": "parameter * 2"}]}`)
	script := writeFile(t, "double.flow", `flow origin {
	store 21
	handover double
	fetch x
	speak x
}`)
	cfg := testConfig(t)
	cfg.Tributaries = manifest

	out, _, err := execute(t, cfg, "", "simulate", script)
	require.NoError(t, err)
	assert.Equal(t, "42\n", out)
}

func TestSimulate_RuntimeFailure(t *testing.T) {
	script := writeFile(t, "fail.flow", `flow origin {
	speak "one"
	engage missing
}`)
	out, _, err := execute(t, testConfig(t), "", "simulate", script, "--mode", "cooperative")
	assert.True(t, schema.IsCode(err, schema.ErrCodeUnknownFlow))
	assert.Equal(t, "one\n", out)
}

// --- run ---

func TestRun_Console(t *testing.T) {
	stdin := fmt.Sprintf("hello\n%s\n", secretFor(11))
	out, _, err := execute(t, testConfig(t), stdin, "run", guessPath, "--seed", "11")
	require.NoError(t, err)
	assert.Equal(t, "Guess a number between 1 and 100\nNot even wrong\nCorrect! 1 tries\n", out)
}

func TestRun_MissingScript(t *testing.T) {
	_, _, err := execute(t, testConfig(t), "", "run", filepath.Join(t.TempDir(), "nope.flow"))
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}

func TestRun_InputClosed(t *testing.T) {
	_, _, err := execute(t, testConfig(t), "", "run", guessPath)
	assert.True(t, schema.IsCode(err, schema.ErrCodeIO))
}

// --- schedule ---

func TestSchedule_AddListRemove(t *testing.T) {
	cfg := testConfig(t)

	out, _, err := execute(t, cfg, "", "schedule", "add", guessPath, "--cron", "@hourly", "--name", "nightly-guess", "--inputs", `["50"]`)
	require.NoError(t, err)
	fields := strings.Fields(out)
	require.NotEmpty(t, fields)
	jobID := fields[0]

	out, _, err = execute(t, cfg, "", "schedule", "list")
	require.NoError(t, err)
	assert.Contains(t, out, jobID)
	assert.Contains(t, out, "nightly-guess")
	assert.Contains(t, out, "@hourly")

	_, _, err = execute(t, cfg, "", "schedule", "remove", jobID)
	require.NoError(t, err)

	out, _, err = execute(t, cfg, "", "schedule", "list")
	require.NoError(t, err)
	assert.NotContains(t, out, jobID)

	_, _, err = execute(t, cfg, "", "schedule", "remove", jobID)
	assert.Error(t, err)
}

func TestSchedule_AddInvalidCron(t *testing.T) {
	_, _, err := execute(t, testConfig(t), "", "schedule", "add", guessPath, "--cron", "whenever")
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

// --- graph ---

func TestGraph_ASCII(t *testing.T) {
	out, _, err := execute(t, testConfig(t), "", "graph", guessPath)
	require.NoError(t, err)
	assert.Contains(t, out, "=== Script ===")
	assert.Contains(t, out, "origin ─engage→ play")
	assert.Contains(t, out, "play ─handover→ random_number")
}

func TestGraph_MermaidToFile(t *testing.T) {
	target := filepath.Join(t.TempDir(), "guess.mmd")
	_, errOut, err := execute(t, testConfig(t), "", "graph", guessPath, "-f", "mermaid", "-o", target)
	require.NoError(t, err)
	assert.Contains(t, errOut, "wrote "+target)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(data), "flow_origin -->|engage| flow_play")
}

func TestGraph_RunOverlay(t *testing.T) {
	cfg := testConfig(t)
	_, _, err := execute(t, cfg, "", "simulate", guessPath, "--inputs", `[null]`, "--record")
	require.NoError(t, err)

	st, err := store.NewLibSQLStore("file:" + cfg.DBPath)
	require.NoError(t, err)
	runs, err := st.ListRuns(context.Background(), store.RunFilter{})
	require.NoError(t, err)
	require.NoError(t, st.Close())
	require.Len(t, runs, 1)

	out, _, err := execute(t, cfg, "", "graph", guessPath, "--run", runs[0].ID)
	require.NoError(t, err)
	assert.Contains(t, out, "=== Run "+runs[0].ID+" ===")
	assert.Contains(t, out, "[OK]")
}

func TestGraph_UnknownFormat(t *testing.T) {
	_, _, err := execute(t, testConfig(t), "", "graph", guessPath, "-f", "gif")
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

// --- runs ---

func TestRuns_ListDeletePrune(t *testing.T) {
	cfg := testConfig(t)
	for range 3 {
		_, _, err := execute(t, cfg, "", "simulate", guessPath, "--inputs", `[null]`, "--record")
		require.NoError(t, err)
	}

	st, err := store.NewLibSQLStore("file:" + cfg.DBPath)
	require.NoError(t, err)
	runs, err := st.ListRuns(context.Background(), store.RunFilter{})
	require.NoError(t, err)
	require.NoError(t, st.Close())
	require.Len(t, runs, 3)

	out, _, err := execute(t, cfg, "", "runs", "list")
	require.NoError(t, err)
	for _, r := range runs {
		assert.Contains(t, out, r.ID)
	}

	_, _, err = execute(t, cfg, "", "runs", "delete", runs[0].ID)
	require.NoError(t, err)
	out, _, err = execute(t, cfg, "", "runs", "list")
	require.NoError(t, err)
	assert.NotContains(t, out, runs[0].ID)
	assert.Contains(t, out, runs[1].ID)

	_, _, err = execute(t, cfg, "", "runs", "delete", runs[0].ID)
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))

	out, _, err = execute(t, cfg, "", "runs", "prune", "--older-than", "1h")
	require.NoError(t, err)
	assert.Contains(t, out, "pruned 0 runs")

	out, _, err = execute(t, cfg, "", "runs", "prune")
	require.NoError(t, err)
	assert.Contains(t, out, "pruned 2 runs")

	out, _, err = execute(t, cfg, "", "runs", "list")
	require.NoError(t, err)
	assert.NotContains(t, out, runs[1].ID)
	assert.NotContains(t, out, runs[2].ID)
}
