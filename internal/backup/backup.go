// Package backup archives and restores pdfdesk's state: the JSON config and
// the job history database.
//
// Archive layout (tar.gz):
//
//	config.json    the configuration file
//	pdfdesk.db     a copy of the history database, taken after a WAL checkpoint
//	manifest.json  backup metadata
package backup

import (
	"archive/tar"
	"compress/gzip"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Archive member names.
const (
	ConfigName   = "config.json"
	DBName       = "pdfdesk.db"
	ManifestName = "manifest.json"
)

// Extraction limits.
const (
	maxMemberSize = 2 << 30
	maxFileCount  = 16
)

// Manifest records backup metadata and is saved alongside the archive.
type Manifest struct {
	Timestamp  string `json:"timestamp"` // RFC3339
	ConfigPath string `json:"config_path"`
	DBPath     string `json:"db_path,omitempty"`
	JobCount   int    `json:"job_count"`
}

// Options configures a backup operation.
type Options struct {
	ConfigPath string // config file to include
	DBPath     string // history database file; empty when history is disabled
	OutputDir  string // output directory for the archive (default ".")
}

// Result holds backup results.
type Result struct {
	ArchivePath  string
	ManifestPath string
	FilesWritten int
	JobCount     int
	BytesWritten int64
}

// Run writes a backup archive. db may be nil when history is disabled.
func Run(db *sql.DB, opts Options) (*Result, error) {
	if opts.OutputDir == "" {
		opts.OutputDir = "."
	}
	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	manifest := &Manifest{
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		ConfigPath: opts.ConfigPath,
	}
	if db != nil && opts.DBPath != "" {
		if _, err := db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			return nil, fmt.Errorf("checkpoint database: %w", err)
		}
		if err := db.QueryRow("SELECT COUNT(*) FROM jobs").Scan(&manifest.JobCount); err != nil {
			return nil, fmt.Errorf("count jobs: %w", err)
		}
		manifest.DBPath = opts.DBPath
	}

	// pdfdesk_<timestamp>.tar.gz
	stamp := time.Now().Format("20060102-150405")
	archivePath := filepath.Join(opts.OutputDir, fmt.Sprintf("pdfdesk_%s.tar.gz", stamp))
	manifestPath := filepath.Join(opts.OutputDir, fmt.Sprintf("pdfdesk_%s.manifest.json", stamp))
	result := &Result{ArchivePath: archivePath, ManifestPath: manifestPath, JobCount: manifest.JobCount}

	if err := writeArchive(archivePath, opts, manifest, result); err != nil {
		os.Remove(archivePath)
		return nil, err
	}

	manifestData, _ := json.MarshalIndent(manifest, "", "  ")
	if err := os.WriteFile(manifestPath, manifestData, 0644); err != nil {
		return nil, fmt.Errorf("save manifest: %w", err)
	}
	return result, nil
}

func writeArchive(path string, opts Options, manifest *Manifest, result *Result) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	defer out.Close()
	gw := gzip.NewWriter(out)
	tw := tar.NewWriter(gw)

	members := []struct{ path, name string }{{opts.ConfigPath, ConfigName}}
	if manifest.DBPath != "" {
		members = append(members, struct{ path, name string }{manifest.DBPath, DBName})
	}
	for _, m := range members {
		if _, err := os.Stat(m.path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("stat %s: %w", m.path, err)
		}
		n, err := addFileToTar(tw, m.path, m.name)
		if err != nil {
			return fmt.Errorf("add %s: %w", m.name, err)
		}
		result.BytesWritten += n
		result.FilesWritten++
	}

	manifestData, _ := json.MarshalIndent(manifest, "", "  ")
	if _, err := addBytesToTar(tw, manifestData, ManifestName); err != nil {
		return fmt.Errorf("embed manifest: %w", err)
	}

	if err := tw.Close(); err != nil {
		return err
	}
	if err := gw.Close(); err != nil {
		return err
	}
	return out.Close()
}

// Restore extracts a backup archive into targetDir and returns its manifest.
// Only the known members are accepted.
func Restore(archivePath, targetDir string) (*Manifest, error) {
	if targetDir == "" {
		targetDir = "./data"
	}
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("open backup: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("decompress backup: %w", err)
	}
	defer gz.Close()

	if err := os.MkdirAll(targetDir, 0755); err != nil {
		return nil, fmt.Errorf("create %s: %w", targetDir, err)
	}

	var manifest *Manifest
	tr := tar.NewReader(gz)
	for count := 0; ; count++ {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read archive: %w", err)
		}
		if count >= maxFileCount {
			return nil, fmt.Errorf("too many files in archive")
		}
		if header.Typeflag != tar.TypeReg {
			return nil, fmt.Errorf("unexpected archive member type: %s", header.Name)
		}
		if header.Size > maxMemberSize {
			return nil, fmt.Errorf("archive member too large: %s (%d bytes)", header.Name, header.Size)
		}

		switch header.Name {
		case ManifestName:
			var m Manifest
			if err := json.NewDecoder(io.LimitReader(tr, 1<<20)).Decode(&m); err != nil {
				return nil, fmt.Errorf("parse manifest: %w", err)
			}
			manifest = &m
		case ConfigName, DBName:
			if err := extract(tr, filepath.Join(targetDir, header.Name), header.Size); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("unexpected archive member: %s", truncateForLog(header.Name, 50))
		}
	}
	if manifest == nil {
		return nil, fmt.Errorf("archive has no %s", ManifestName)
	}
	return manifest, nil
}

func extract(r io.Reader, target string, size int64) error {
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}
	if _, err := io.Copy(out, io.LimitReader(r, size)); err != nil {
		out.Close()
		return fmt.Errorf("write %s: %w", target, err)
	}
	return out.Close()
}

// truncateForLog truncates a string for safe logging.
func truncateForLog(s string, maxLen int) string {
	s = strings.ToValidUTF8(s, "?")
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// --- tar helpers ---

func addFileToTar(tw *tar.Writer, absPath, archiveName string) (int64, error) {
	info, err := os.Stat(absPath)
	if err != nil {
		return 0, err
	}
	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return 0, err
	}
	header.Name = archiveName

	if err := tw.WriteHeader(header); err != nil {
		return 0, err
	}
	f, err := os.Open(absPath)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return io.Copy(tw, f)
}

func addBytesToTar(tw *tar.Writer, data []byte, archiveName string) (int64, error) {
	header := &tar.Header{
		Name:    archiveName,
		Size:    int64(len(data)),
		Mode:    0644,
		ModTime: time.Now(),
	}
	if err := tw.WriteHeader(header); err != nil {
		return 0, err
	}
	n, err := tw.Write(data)
	return int64(n), err
}
