package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/bpf-verify/pkg/verifier"
)

// loopYAML is resolved before any test changes the working directory.
var loopYAML string

func TestMain(m *testing.M) {
	path, err := filepath.Abs(filepath.Join("..", "..", "..", "pkg", "program", "testdata", "loop.yaml"))
	if err != nil {
		panic(err)
	}
	loopYAML = path
	os.Exit(m.Run())
}

// execute runs the root command in an isolated home and working directory.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("BPFV_CACHE_PATH", filepath.Join(t.TempDir(), "reports.msgpack"))
	chdir(t, t.TempDir())

	for _, c := range []*cobra.Command{RootCmd, verifyCmd, cfgCmd, statsCmd} {
		resetFlags(c.Flags())
	}
	var out bytes.Buffer
	RootCmd.SetOut(&out)
	RootCmd.SetErr(&bytes.Buffer{})
	RootCmd.SetArgs(args)
	err := RootCmd.Execute()
	return out.String(), err
}

func resetFlags(fs *pflag.FlagSet) {
	fs.VisitAll(func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	})
}

func TestExecute_TestdataSurvivesChdir(t *testing.T) {
	_, err := execute(t, "stats", loopYAML)
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(loopYAML))
	assert.FileExists(t, loopYAML)
}

func TestVerify_Testdata(t *testing.T) {
	out, err := execute(t, "verify", loopYAML)
	require.NoError(t, err)
	assert.Contains(t, out, "PASS counting loop")
	assert.Contains(t, out, "exit: {r0=[10,10]}")
	assert.Contains(t, out, "partitions: 2")
	assert.Contains(t, out, "loop bound: unbounded")
	assert.Contains(t, out, "exit: unreachable")
}

func TestVerify_JSON(t *testing.T) {
	out, err := execute(t, "verify", "--json", loopYAML)
	require.NoError(t, err)

	var reports []verifier.Report
	require.NoError(t, json.Unmarshal([]byte(out), &reports))
	require.Len(t, reports, 3)
	assert.Equal(t, "counting loop", reports[0].Name)
	assert.Equal(t, []string{"r0=[10,10]"}, reports[0].ExitInvariant)
}

func TestVerify_Failure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`name: wrong
code: |
  r0 = 1
  exit
expect:
  exit:
    r0: "[2,2]"
`), 0644))

	out, err := execute(t, "verify", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1 programs failed")
	assert.Contains(t, out, "FAIL wrong")
	assert.Contains(t, out, "exit r0: expected [2,2], got [1,1]")
}

func TestVerify_PartitionKeyFlag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "split.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`name: split
code: |
  if r2 > 0 goto 3
  r1 = 1
  goto 4
  r1 = 5
  exit
`), 0644))

	out, err := execute(t, "verify", "--partition-key", "r1", path)
	require.NoError(t, err)
	assert.Contains(t, out, "partitions: 2")

	out, err = execute(t, "verify", path)
	require.NoError(t, err)
	assert.NotContains(t, out, "partitions:")
}

func TestVerify_Cache(t *testing.T) {
	cachePath := filepath.Join(t.TempDir(), "reports.msgpack")
	run := func() string {
		t.Helper()
		home := t.TempDir()
		t.Setenv("HOME", home)
		require.NoError(t, os.MkdirAll(filepath.Join(home, ".bpfv"), 0755))
		require.NoError(t, os.WriteFile(filepath.Join(home, ".bpfv", "config.yaml"),
			[]byte("cache_path: "+cachePath+"\n"), 0644))

		resetFlags(verifyCmd.Flags())
		var out bytes.Buffer
		RootCmd.SetOut(&out)
		RootCmd.SetErr(&bytes.Buffer{})
		RootCmd.SetArgs([]string{"verify", "--cache", loopYAML})
		require.NoError(t, RootCmd.Execute())
		return out.String()
	}
	chdir(t, t.TempDir())
	t.Setenv("BPFV_CACHE_PATH", "")

	first := run()
	assert.NotContains(t, first, "[cached]")
	_, err := os.Stat(cachePath)
	require.NoError(t, err)

	second := run()
	assert.Equal(t, 3, strings.Count(second, "[cached]"))
}

func TestCfg(t *testing.T) {
	out, err := execute(t, "cfg", "--json", loopYAML)
	require.NoError(t, err)

	var info struct {
		ProgramName string                     `json:"program_name"`
		Blocks      map[string]json.RawMessage `json:"blocks"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "counting loop", info.ProgramName)
	assert.Contains(t, info.Blocks, "entry")
	assert.Contains(t, info.Blocks, "exit")

	out, err = execute(t, "cfg", "--dot", "--name", "split on r1", loopYAML)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, `digraph "split on r1" {`))

	out, err = execute(t, "cfg", "--nondet=false", loopYAML)
	require.NoError(t, err)
	assert.Contains(t, out, "=== CFG for program: counting loop ===")
	assert.Contains(t, out, "loop head")
	assert.NotContains(t, out, "assume")

	_, err = execute(t, "cfg", "--name", "missing", loopYAML)
	assert.ErrorContains(t, err, `program "missing" not found`)
}

func TestStats(t *testing.T) {
	out, err := execute(t, "stats", loopYAML)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "name,basic_blocks,joins,jumps,"))
	assert.True(t, strings.HasPrefix(lines[1], "counting loop,"))
}

func TestInitHelpers(t *testing.T) {
	assert.Equal(t, []string{"r1", "packet_size"}, splitKeys(" r1, ,packet_size "))
	assert.Nil(t, splitKeys(""))

	assert.NoError(t, nonNegativeInt(" 3 "))
	assert.NoError(t, nonNegativeInt("0"))
	assert.Error(t, nonNegativeInt("-1"))
	assert.Error(t, nonNegativeInt("many"))
}
