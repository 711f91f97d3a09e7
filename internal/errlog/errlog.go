// Package errlog writes failed requests to error.log under the log directory.
//
// Once the file reaches the rotation size its contents move into a gzip
// archive named error-<timestamp>.log.gz; the newest few archives are kept.
package errlog

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultDir is used when Init is given an empty directory.
	DefaultDir = "./data/logs"

	logFileName       = "error.log"
	archivePrefix     = "error-"
	archiveSuffix     = ".log.gz"
	defaultRotationMB = 100
	keepArchives      = 5
	tailWindow        = 256 << 10
)

var (
	mu   sync.Mutex
	sink *rotatingFile
)

// Init opens error.log in dir. Later calls are no-ops while a log is open.
func Init(dir string, rotationMB int) error {
	mu.Lock()
	defer mu.Unlock()
	if sink != nil {
		return nil
	}
	if dir == "" {
		dir = DefaultDir
	}
	if rotationMB <= 0 {
		rotationMB = defaultRotationMB
	}
	r, err := openRotating(dir, int64(rotationMB)<<20)
	if err != nil {
		return err
	}
	sink = r
	return nil
}

// Close closes the log. Logging after Close is dropped.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if sink != nil {
		sink.close()
		sink = nil
	}
}

// Logf appends one [ERROR] line. It does nothing before Init.
func Logf(format string, args ...any) {
	write(fmt.Sprintf(format, args...))
}

// Failure describes one failed request.
type Failure struct {
	Op    string
	Kind  string
	File  string
	Files int
	Err   error
}

// String renders the failure as space separated key=value pairs. Empty
// fields are left out and free text is quoted.
func (f Failure) String() string {
	var b strings.Builder
	field := func(key, val string) {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(val)
	}
	if f.Op != "" {
		field("op", f.Op)
	}
	if f.Kind != "" {
		field("kind", f.Kind)
	}
	if f.File != "" {
		field("file", strconv.Quote(f.File))
	}
	if f.Files > 0 {
		field("files", strconv.Itoa(f.Files))
	}
	if f.Err != nil {
		field("err", strconv.Quote(f.Err.Error()))
	}
	return b.String()
}

// LogFailure appends f as a structured [ERROR] line.
func LogFailure(f Failure) {
	write(f.String())
}

func write(msg string) {
	mu.Lock()
	r := sink
	mu.Unlock()
	if r == nil {
		return
	}
	line := time.Now().Format("2006/01/02 15:04:05") + " [ERROR] " + strings.TrimRight(msg, "\n") + "\n"
	r.Write([]byte(line))
}

// Dir returns the directory of the open log, or DefaultDir.
func Dir() string {
	mu.Lock()
	defer mu.Unlock()
	if sink != nil {
		return sink.dir
	}
	return DefaultDir
}

// RotationSizeMB returns the rotation threshold of the open log.
func RotationSizeMB() int {
	mu.Lock()
	defer mu.Unlock()
	if sink != nil {
		return int(sink.limit >> 20)
	}
	return defaultRotationMB
}

// rotatingFile is an append-only writer that archives itself at limit bytes.
type rotatingFile struct {
	mu    sync.Mutex
	f     *os.File
	dir   string
	size  int64
	limit int64
}

func openRotating(dir string, limit int64) (*rotatingFile, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create error log directory %s: %w", dir, err)
	}
	r := &rotatingFile{dir: dir, limit: limit}
	if err := r.open(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *rotatingFile) path() string { return filepath.Join(r.dir, logFileName) }

func (r *rotatingFile) open() error {
	f, err := os.OpenFile(r.path(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open error log %s: %w", r.path(), err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat error log: %w", err)
	}
	r.f, r.size = f, info.Size()
	return nil
}

func (r *rotatingFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return 0, os.ErrClosed
	}
	n, err := r.f.Write(p)
	r.size += int64(n)
	if err == nil && r.size >= r.limit {
		err = r.rotate()
	}
	return n, err
}

// rotate archives the active file and starts an empty one. The active file
// is truncated even when archiving fails. Caller holds r.mu.
func (r *rotatingFile) rotate() error {
	r.f.Close()
	r.f = nil
	name := archivePrefix + time.Now().Format("20060102-150405") + archiveSuffix
	archiveErr := gzipFile(r.path(), filepath.Join(r.dir, name))
	os.Truncate(r.path(), 0)
	pruneArchives(r.dir, keepArchives)
	if err := r.open(); err != nil {
		return err
	}
	return archiveErr
}

func (r *rotatingFile) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f != nil {
		r.f.Sync()
		r.f.Close()
		r.f = nil
	}
}

// gzipFile compresses src into dst. A partial dst is removed on failure.
func gzipFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(dst)
		}
	}()
	gw, err := gzip.NewWriterLevel(out, gzip.BestSpeed)
	if err != nil {
		return err
	}
	if _, err = io.Copy(gw, in); err != nil {
		gw.Close()
		return err
	}
	return gw.Close()
}

// pruneArchives deletes all but the newest keep archives in dir.
func pruneArchives(dir string, keep int) {
	names, err := ListArchives(dir)
	if err != nil || len(names) <= keep {
		return
	}
	for _, name := range names[:len(names)-keep] {
		os.Remove(filepath.Join(dir, name))
	}
}

// ListArchives returns the archive names in dir, oldest first.
func ListArchives(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	names := []string{}
	for _, e := range entries {
		if n := e.Name(); strings.HasPrefix(n, archivePrefix) && strings.HasSuffix(n, archiveSuffix) {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names, nil
}

// RecentLines returns up to n non-empty lines from the end of error.log in
// dir, oldest first. Only the last 256 KiB of the file are read.
func RecentLines(dir string, n int) ([]string, error) {
	if n <= 0 {
		n = 50
	}
	f, err := os.Open(filepath.Join(dir, logFileName))
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	start := max(info.Size()-tailWindow, 0)
	buf := make([]byte, info.Size()-start)
	if _, err := f.ReadAt(buf, start); err != nil && err != io.EOF {
		return nil, err
	}
	if start > 0 {
		// The first line of the window may be cut.
		if i := bytes.IndexByte(buf, '\n'); i >= 0 {
			buf = buf[i+1:]
		}
	}

	lines := []string{}
	for _, l := range strings.Split(string(buf), "\n") {
		if l != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}
