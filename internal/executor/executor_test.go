package executor

import (
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	apperrors "flexbackup-manager/internal/errors"
	"flexbackup-manager/internal/logging"
	"flexbackup-manager/internal/schedule"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTemplate = `$set{'@@SET_NAME@@'} = '@@SET_CONTENT@@';
$storedir = '@@BACKUP_STORE_DIR@@';
@@BACKUP_EXCLUDE_PATTERN@@
$path{'gzip'} = '@@GZIP@@';
$path{'tar'} = '@@TAR@@';
`

func TestRenderConfig(t *testing.T) {
	out, err := RenderConfig(sampleTemplate, TemplateValues{
		SetName:         "A",
		SetContent:      []string{"/e/A/alice", "/e/A/bob"},
		StoreDir:        "/backup/A/current",
		ExcludePatterns: []string{`\.cache`, "tmp"},
		Gzip:            "/tmp/ws/gzip",
		Tar:             "/tmp/ws/tar",
	})
	require.NoError(t, err)

	assert.Contains(t, out, "$set{'A'} = '/e/A/alice /e/A/bob';")
	assert.Contains(t, out, "$storedir = '/backup/A/current';")
	assert.Contains(t, out, `$exclude_expr[0] = '\\.cache';`)
	assert.Contains(t, out, "$exclude_expr[1] = 'tmp';")
	assert.Contains(t, out, "$path{'gzip'} = '/tmp/ws/gzip';")
	assert.Contains(t, out, "$path{'tar'} = '/tmp/ws/tar';")
	assert.NotContains(t, out, "@@")
}

func TestRenderConfig_Errors(t *testing.T) {
	tests := []struct {
		name   string
		tmpl   string
		values TemplateValues
		want   string
	}{
		{
			name:   "unknown placeholder",
			tmpl:   "@@SET_NAME@@ @@COMPRESSION@@",
			values: TemplateValues{SetName: "A", SetContent: []string{"/e/A"}},
			want:   "@@COMPRESSION@@",
		},
		{
			name:   "missing set name",
			tmpl:   sampleTemplate,
			values: TemplateValues{SetContent: []string{"/e/A"}},
			want:   "set name",
		},
		{
			name:   "no content",
			tmpl:   sampleTemplate,
			values: TemplateValues{SetName: "A"},
			want:   "no directories",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := RenderConfig(tt.tmpl, tt.values)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestExcludePatternBlock(t *testing.T) {
	assert.Equal(t, "", ExcludePatternBlock(nil))
	assert.Equal(t, "$exclude_expr[0] = 'it\\'s';\n", ExcludePatternBlock([]string{"it's"}))
}

func TestLoadTemplate(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "good.tmpl")
	require.NoError(t, os.WriteFile(good, []byte(sampleTemplate), 0644))
	tmpl, err := LoadTemplate(good)
	require.NoError(t, err)
	assert.Equal(t, sampleTemplate, tmpl)

	bad := filepath.Join(dir, "bad.tmpl")
	require.NoError(t, os.WriteFile(bad, []byte("@@NOPE@@"), 0644))
	_, err = LoadTemplate(bad)
	assert.Error(t, err)

	_, err = LoadTemplate(filepath.Join(dir, "missing.tmpl"))
	assert.Error(t, err)
}

func TestDefaultWrappers(t *testing.T) {
	w := DefaultWrappers(10, true)
	require.Len(t, w, 2)
	assert.Equal(t, "gzip", w[0].Name)
	assert.Equal(t, `exec /usr/bin/env pigz -p 10 -f "$@"`, w[0].Content)
	assert.Equal(t, `exec /usr/bin/env nocache -n 2 /bin/tar --numeric-owner "$@"`, w[1].Content)

	w = DefaultWrappers(0, false)
	assert.Contains(t, w[0].Content, "-p 1 ")
	assert.Equal(t, `exec /bin/tar --numeric-owner "$@"`, w[1].Content)
}

func TestWorkspace_Lifecycle(t *testing.T) {
	ws, err := NewWorkspace("flexbackup-test-", DefaultWrappers(4, true))
	require.NoError(t, err)

	gz := ws.WrapperPath("gzip")
	require.NotEmpty(t, gz)
	info, err := os.Stat(gz)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0755), info.Mode().Perm()&0755)

	data, err := os.ReadFile(gz)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "#!/bin/sh\n"))

	path, err := ws.WriteConfig("content")
	require.NoError(t, err)
	assert.Equal(t, ws.ConfigPath(), path)
	assert.FileExists(t, path)

	require.NoError(t, ws.Close())
	assert.NoDirExists(t, ws.Dir())
	assert.NoError(t, ws.Close(), "second close is a no-op")

	_, err = ws.WriteConfig("again")
	assert.Error(t, err)
}

func TestWorkspace_UnknownWrapper(t *testing.T) {
	ws, err := NewWorkspace("flexbackup-test-", nil)
	require.NoError(t, err)
	defer ws.Close()

	assert.Empty(t, ws.WrapperPath("tar"))
}

// fakeExecutable writes a shell script standing in for the backup
// executable.
func fakeExecutable(t *testing.T, body string) string {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	path := filepath.Join(t.TempDir(), "flexbackup")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755))
	return path
}

func TestCommandRunner_BuildArgs(t *testing.T) {
	r := NewCommandRunner("", []string{"-d", "verbose=1"}, 0, nil)
	assert.Equal(t, DefaultCommand, r.Command)

	args := r.BuildArgs(Invocation{Set: "A", Level: schedule.LevelFull, ConfigPath: "/tmp/c.conf"})
	assert.Equal(t, []string{"-c", "/tmp/c.conf", "-level", "full", "-set", "A", "-d", "verbose=1"}, args)

	args = r.BuildArgs(Invocation{Set: "B", Level: schedule.LevelIncremental, ConfigPath: "/c", DryRun: true})
	assert.Equal(t, "-n", args[0])
	assert.Contains(t, args, "incremental")
}

func TestCommandRunner_Success(t *testing.T) {
	cmd := fakeExecutable(t, `echo "args: $*"; echo "to stderr" >&2; exit 0`)
	logPath := filepath.Join(t.TempDir(), "logs", "2024-01-01-A-full.log")

	r := NewCommandRunner(cmd, nil, 0, logging.NewDiscardLogger())
	result, err := r.Run(context.Background(), Invocation{
		Set: "A", Level: schedule.LevelFull, ConfigPath: "/tmp/c.conf", LogPath: logPath,
	})
	require.NoError(t, err)

	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "A", result.Set)
	assert.Contains(t, result.Tail, "args: -c /tmp/c.conf -level full -set A")
	assert.Contains(t, result.Tail, "to stderr")

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "INFO ==> Running command:")
	assert.Contains(t, string(data), "to stderr")
}

func TestCommandRunner_NonZeroExit(t *testing.T) {
	cmd := fakeExecutable(t, `echo failing; exit 7`)

	r := NewCommandRunner(cmd, nil, 0, logging.NewDiscardLogger())
	result, err := r.Run(context.Background(), Invocation{Set: "B", Level: schedule.LevelIncremental, ConfigPath: "/c"})
	require.Error(t, err)
	require.NotNil(t, result)

	assert.Equal(t, 7, result.ExitCode)
	assert.Equal(t, apperrors.ErrorTypeExecutor, apperrors.GetErrorType(err))
	assert.True(t, apperrors.IsRecoverableError(err))
	assert.NotEmpty(t, result.Error)
}

func TestCommandRunner_MissingExecutable(t *testing.T) {
	r := NewCommandRunner("flexbackup-does-not-exist-anywhere", nil, 0, logging.NewDiscardLogger())
	_, err := r.Run(context.Background(), Invocation{Set: "A", Level: schedule.LevelFull, ConfigPath: "/c"})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeConfiguration, apperrors.GetErrorType(err))
}

func TestCommandRunner_Timeout(t *testing.T) {
	cmd := fakeExecutable(t, `exec sleep 5`)

	r := NewCommandRunner(cmd, nil, 50*time.Millisecond, logging.NewDiscardLogger())
	_, err := r.Run(context.Background(), Invocation{Set: "A", Level: schedule.LevelFull, ConfigPath: "/c"})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeExecutor, apperrors.GetErrorType(err))
}

func TestCommandRunner_TailIsBounded(t *testing.T) {
	cmd := fakeExecutable(t, `i=0; while [ $i -lt 50 ]; do echo "line $i"; i=$((i+1)); done`)

	r := NewCommandRunner(cmd, nil, 0, logging.NewDiscardLogger())
	r.TailLines = 5
	result, err := r.Run(context.Background(), Invocation{Set: "A", Level: schedule.LevelFull, ConfigPath: "/c"})
	require.NoError(t, err)
	assert.Equal(t, []string{"line 45", "line 46", "line 47", "line 48", "line 49"}, result.Tail)
}

func TestLogArchiver_CompressRoundTrip(t *testing.T) {
	content := strings.Repeat("flexbackup output line\n", 200)

	for _, algo := range []CompressionType{CompressionGzip, CompressionLZ4, CompressionZstd} {
		t.Run(string(algo), func(t *testing.T) {
			dir := t.TempDir()
			a, err := NewLogArchiver(dir, algo, 0, nil)
			require.NoError(t, err)

			path := a.LogPath(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC), "A", "full")
			assert.Equal(t, filepath.Join(dir, "2024-01-01-A-full.log"), path)
			require.NoError(t, os.WriteFile(path, []byte(content), 0644))

			stats, err := a.Compress(path)
			require.NoError(t, err)
			assert.Equal(t, path+algo.Extension(), stats.Path)
			assert.Less(t, stats.CompressedSize, stats.OriginalSize)
			assert.NoFileExists(t, path)

			rc, err := Open(stats.Path)
			require.NoError(t, err)
			defer rc.Close()
			got, err := io.ReadAll(rc)
			require.NoError(t, err)
			assert.Equal(t, content, string(got))
		})
	}
}

func TestLogArchiver_CompressKeepsEarlierRuns(t *testing.T) {
	for _, algo := range []CompressionType{CompressionGzip, CompressionLZ4, CompressionZstd} {
		t.Run(string(algo), func(t *testing.T) {
			a, err := NewLogArchiver(t.TempDir(), algo, 0, nil)
			require.NoError(t, err)
			path := a.LogPath(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), "A", "incremental")

			require.NoError(t, os.WriteFile(path, []byte("first run\n"), 0644))
			_, err = a.Compress(path)
			require.NoError(t, err)

			require.NoError(t, os.WriteFile(path, []byte("second run\n"), 0644))
			stats, err := a.Compress(path)
			require.NoError(t, err)
			assert.Equal(t, int64(len("first run\nsecond run\n")), stats.OriginalSize)
			assert.NoFileExists(t, stats.Path+".tmp")

			rc, err := Open(stats.Path)
			require.NoError(t, err)
			defer rc.Close()
			got, err := io.ReadAll(rc)
			require.NoError(t, err)
			assert.Equal(t, "first run\nsecond run\n", string(got))
		})
	}
}

func TestLogArchiver_NoCompression(t *testing.T) {
	dir := t.TempDir()
	a, err := NewLogArchiver(dir, "", 0, nil)
	require.NoError(t, err)

	path := filepath.Join(dir, "x.log")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
	stats, err := a.Compress(path)
	require.NoError(t, err)
	assert.Nil(t, stats)
	assert.FileExists(t, path)
}

func TestLogArchiver_Unsupported(t *testing.T) {
	_, err := NewLogArchiver(t.TempDir(), "brotli", 0, nil)
	assert.Error(t, err)
}

func TestLogArchiver_Prune(t *testing.T) {
	dir := t.TempDir()
	a, err := NewLogArchiver(dir, CompressionZstd, 7, nil)
	require.NoError(t, err)

	now := time.Now()
	old := now.Add(-10 * 24 * time.Hour)
	files := map[string]time.Time{
		"old-A-full.log.zst": old,
		"old-B-full.log":     old,
		"new-A-full.log.zst": now,
		"last-run.json":      old,
		"unrelated.txt":      old,
	}
	for name, mtime := range files {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte("x"), 0644))
		require.NoError(t, os.Chtimes(p, mtime, mtime))
	}

	removed, err := a.Prune(now)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(dir, "old-A-full.log.zst"),
		filepath.Join(dir, "old-B-full.log"),
	}, removed)
	assert.FileExists(t, filepath.Join(dir, "new-A-full.log.zst"))
	assert.FileExists(t, filepath.Join(dir, "last-run.json"))
}

func TestLogArchiver_PruneDisabled(t *testing.T) {
	a, err := NewLogArchiver(filepath.Join(t.TempDir(), "missing"), CompressionNone, 0, nil)
	require.NoError(t, err)
	removed, err := a.Prune(time.Now())
	require.NoError(t, err)
	assert.Empty(t, removed)
}

func TestDefaultTemplate(t *testing.T) {
	tmpl, err := LoadTemplate("")
	require.NoError(t, err)
	assert.Empty(t, unknownPlaceholders(tmpl))

	out, err := RenderConfig(tmpl, TemplateValues{SetName: "C", SetContent: []string{"/e/C"}, StoreDir: "/b/C/current"})
	require.NoError(t, err)
	assert.Contains(t, out, "$set{'C'} = '/e/C';")
	assert.NotContains(t, out, "@@")
}
