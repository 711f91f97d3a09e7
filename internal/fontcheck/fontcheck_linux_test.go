//go:build linux

package fontcheck

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindFont_NestedMatch(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "truetype", "dejavu")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "readme.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(nested, "DejaVuSans.ttf"), []byte("x"), 0o644))

	assert.Equal(t, filepath.Join(nested, "DejaVuSans.ttf"), findFont([]string{root}))
}

func TestFindFont_MissingDirs(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent")
	assert.Empty(t, findFont([]string{missing}))
}

func TestFindFont_SearchesLaterDirs(t *testing.T) {
	empty := t.TempDir()
	other := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(other, "FreeSans.ttf"), []byte("x"), 0o644))

	assert.Equal(t, filepath.Join(other, "FreeSans.ttf"), findFont([]string{empty, other}))
}

func TestFontSearchVisit_Errors(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "broken.ttf")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	fileInfo, err := os.Stat(file)
	require.NoError(t, err)
	dirInfo, err := os.Stat(dir)
	require.NoError(t, err)

	walkErr := errors.New("permission denied")
	var s fontSearch

	assert.NoError(t, s.visit(file, fs.FileInfoToDirEntry(fileInfo), walkErr),
		"a file error must not skip its siblings")
	assert.Equal(t, filepath.SkipDir, s.visit(dir, fs.FileInfoToDirEntry(dirInfo), walkErr))
	assert.Equal(t, filepath.SkipDir, s.visit(dir, nil, walkErr))
	assert.Empty(t, s.found)
}

func TestFontSearchVisit_StopsAfterMatch(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "LiberationSans-Regular.ttf")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	info, err := os.Stat(file)
	require.NoError(t, err)

	var s fontSearch
	assert.Equal(t, filepath.SkipAll, s.visit(file, fs.FileInfoToDirEntry(info), nil))
	assert.Equal(t, file, s.found)
	assert.Equal(t, filepath.SkipAll, s.visit(dir, nil, nil))
}
