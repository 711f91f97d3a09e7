//go:build linux

package fontcheck

import (
	"io/fs"
	"os/exec"
	"path/filepath"
	"strings"
)

var fontDirs = []string{
	"/usr/share/fonts",
	"/usr/local/share/fonts",
	"/usr/share/fonts/truetype",
}

// preferredFonts are regular sans faces commonly shipped by distributions,
// matched against file names.
var preferredFonts = []string{
	"dejavusans.ttf",
	"liberationsans-regular.ttf",
	"notosans-regular.ttf",
	"freesans.ttf",
}

// systemFont looks up an installed regular sans TrueType font, first through
// fc-match and then by walking the usual font directories.
func systemFont() string {
	if fc, err := exec.LookPath("fc-match"); err == nil {
		out, err := exec.Command(fc, "-f", "%{file}", "sans-serif:style=Regular:fontformat=TrueType").Output()
		if err == nil {
			if p := strings.TrimSpace(string(out)); strings.HasSuffix(strings.ToLower(p), ".ttf") {
				return p
			}
		}
	}
	return systemFontByPath()
}

func systemFontByPath() string {
	return findFont(fontDirs)
}

// findFont walks dirs for the first file named like one of preferredFonts.
func findFont(dirs []string) string {
	var s fontSearch
	for _, dir := range dirs {
		filepath.WalkDir(dir, s.visit)
		if s.found != "" {
			break
		}
	}
	return s.found
}

type fontSearch struct {
	found string
}

// visit is the WalkDir callback. Unreadable directories are skipped;
// errors on single files leave the rest of the directory to be searched.
func (s *fontSearch) visit(p string, d fs.DirEntry, err error) error {
	if s.found != "" {
		return filepath.SkipAll
	}
	if err != nil {
		if d == nil || d.IsDir() {
			return filepath.SkipDir
		}
		return nil
	}
	if d.IsDir() {
		return nil
	}
	lower := strings.ToLower(d.Name())
	for _, name := range preferredFonts {
		if lower == name {
			s.found = p
			return filepath.SkipAll
		}
	}
	return nil
}
