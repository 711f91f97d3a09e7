package main

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"pdfdesk/internal/config"
	"pdfdesk/internal/history"
)

// testEnv points every file the CLI touches into a temp dir.
type testEnv struct {
	dir        string
	configPath string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("PDFDESK_HISTORY_DB_PATH", filepath.Join(dir, "pdfdesk.db"))
	t.Setenv("PDFDESK_LOG_DIR", filepath.Join(dir, "logs"))
	return &testEnv{dir: dir, configPath: filepath.Join(dir, "config.json")}
}

func (e *testEnv) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", e.configPath}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func (e *testEnv) writePNG(t *testing.T, name string, w, h int) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0x80
	}
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	path := filepath.Join(e.dir, name)
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
	return path
}

func TestConfigOverlayFromEnvAndFlags(t *testing.T) {
	env := newTestEnv(t)
	t.Setenv("PDFDESK_SERVER_PORT", "9123")
	t.Setenv("PDFDESK_LAYOUT_MARGIN", "36.5")

	out, err := env.run(t, "", "--font", "/tmp/custom.ttf", "config")
	require.NoError(t, err)

	var cfg config.Config
	require.NoError(t, json.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, 9123, cfg.Server.Port)
	assert.Equal(t, 36.5, cfg.Layout.Margin)
	assert.Equal(t, "/tmp/custom.ttf", cfg.Font.Path)
	assert.Equal(t, filepath.Join(env.dir, "pdfdesk.db"), cfg.History.DBPath)

	// The file keeps its defaults.
	cm := config.NewConfigManager(env.configPath)
	require.NoError(t, cm.Load())
	assert.Equal(t, 8080, cm.Get().Server.Port)
}

func TestConfigOverlayRejectsBadValues(t *testing.T) {
	env := newTestEnv(t)
	t.Setenv("PDFDESK_SERVER_PORT", "70000")
	_, err := env.run(t, "", "config")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port")
}

func TestConfigRedactsAccessKey(t *testing.T) {
	env := newTestEnv(t)
	t.Setenv("PDFDESK_SERVER_ACCESS_KEY", "topsecret")
	out, err := env.run(t, "", "config")
	require.NoError(t, err)
	assert.Contains(t, out, "<redacted>")
	assert.NotContains(t, out, "topsecret")
}

func TestConvertThenMerge(t *testing.T) {
	env := newTestEnv(t)
	a := env.writePNG(t, "a.png", 40, 30)
	b := env.writePNG(t, "b.png", 20, 20)
	first := filepath.Join(env.dir, "first.pdf")
	second := filepath.Join(env.dir, "second.pdf")
	merged := filepath.Join(env.dir, "merged.pdf")

	out, err := env.run(t, "", "convert", "-o", first, a, b)
	require.NoError(t, err)
	assert.Contains(t, out, "(2 pages)")

	out, err = env.run(t, "", "convert", "-o", second, a)
	require.NoError(t, err)
	assert.Contains(t, out, "(1 pages)")

	out, err = env.run(t, "", "merge", "-o", merged, first, second)
	require.NoError(t, err)
	assert.Contains(t, out, "(3 pages)")

	data, err := os.ReadFile(merged)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))

	out, err = env.run(t, "", "history", "--json")
	require.NoError(t, err)
	var jobs []history.Job
	require.NoError(t, json.Unmarshal([]byte(out), &jobs))
	require.Len(t, jobs, 3)
	assert.Equal(t, "merge", jobs[0].Operation)
	assert.Equal(t, 3, jobs[0].PageCount)
	assert.Equal(t, []string{"first.pdf", "second.pdf"}, jobs[0].FileNames)

	out, err = env.run(t, "", "history")
	require.NoError(t, err)
	assert.Contains(t, out, "OP")
	assert.Contains(t, out, "convert")
}

func TestMergeNeedsTwoFiles(t *testing.T) {
	env := newTestEnv(t)
	a := env.writePNG(t, "a.png", 10, 10)
	pdf := filepath.Join(env.dir, "a.pdf")
	_, err := env.run(t, "", "convert", "-o", pdf, a)
	require.NoError(t, err)

	_, err = env.run(t, "", "merge", "-o", filepath.Join(env.dir, "out.pdf"), pdf)
	require.Error(t, err)
	assert.Equal(t, "Please upload at least two PDFs to merge.", err.Error())

	// The failure is in the history and the error log.
	out, err := env.run(t, "", "history", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, "at least two PDFs")

	out, err = env.run(t, "", "logs")
	require.NoError(t, err)
	assert.Contains(t, out, "[ERROR]")
}

func TestConvertUnsupportedFile(t *testing.T) {
	env := newTestEnv(t)
	zip := filepath.Join(env.dir, "bundle.zip")
	require.NoError(t, os.WriteFile(zip, []byte("PK\x03\x04"), 0644))
	out := filepath.Join(env.dir, "out.pdf")

	_, err := env.run(t, "", "convert", "-o", out, zip)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"bundle.zip"`)
	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))
}

func TestHistoryDisabled(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.run(t, "", "--history=false", "history")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disabled")
}

func TestHashKeySave(t *testing.T) {
	env := newTestEnv(t)
	out, err := env.run(t, "s3cret\n", "hash-key", "--save")
	require.NoError(t, err)
	hash := strings.TrimSpace(out)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret")))

	cm := config.NewConfigManager(env.configPath)
	require.NoError(t, cm.Load())
	assert.Equal(t, hash, cm.Get().Server.AccessKeyHash)
}

func TestHashKeyRejectsEmpty(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.run(t, "\n", "hash-key")
	require.Error(t, err)
}

func TestVersion(t *testing.T) {
	env := newTestEnv(t)
	out, err := env.run(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "pdfdesk dev\n", out)
	_, statErr := os.Stat(env.configPath)
	assert.True(t, os.IsNotExist(statErr), "version should not create a config file")
}

func TestHistoryPrune(t *testing.T) {
	env := newTestEnv(t)
	a := env.writePNG(t, "a.png", 10, 10)
	_, err := env.run(t, "", "convert", "-o", filepath.Join(env.dir, "a.pdf"), a)
	require.NoError(t, err)

	out, err := env.run(t, "", "history", "--prune")
	require.NoError(t, err)
	assert.Equal(t, "Pruned 0 job(s) older than 90 days\n", out)

	t.Setenv("PDFDESK_HISTORY_RETENTION_DAYS", "0")
	out, err = env.run(t, "", "history", "--prune")
	require.NoError(t, err)
	assert.Contains(t, out, "unlimited")
}

func TestBackupAndRestore(t *testing.T) {
	env := newTestEnv(t)
	a := env.writePNG(t, "a.png", 10, 10)
	_, err := env.run(t, "", "convert", "-o", filepath.Join(env.dir, "a.pdf"), a)
	require.NoError(t, err)

	backups := filepath.Join(env.dir, "backups")
	require.NoError(t, os.MkdirAll(backups, 0755))
	out, err := env.run(t, "", "backup", "-o", backups)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "Wrote "), out)
	assert.Contains(t, out, "1 jobs")
	archive := strings.Fields(out)[1]

	target := filepath.Join(env.dir, "restored")
	out, err = env.run(t, "", "restore", "--target", target, archive)
	require.NoError(t, err)
	assert.Contains(t, out, "(1 jobs)")

	for _, name := range []string{"config.json", "pdfdesk.db"} {
		_, statErr := os.Stat(filepath.Join(target, name))
		assert.NoError(t, statErr, name)
	}
}
