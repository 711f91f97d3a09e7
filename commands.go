package main

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"pdfdesk/internal/backup"
	"pdfdesk/internal/converter"
	"pdfdesk/internal/db"
	"pdfdesk/internal/errlog"
	"pdfdesk/internal/fontcheck"
	"pdfdesk/internal/history"
)

func (c *cli) mergeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "merge -o out.pdf a.pdf b.pdf [more.pdf...]",
		Short: "Concatenate the pages of two or more PDFs",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, _ := cmd.Flags().GetString("output")
			return c.runFiles(cmd, converter.OpMerge, out, args)
		},
	}
	cmd.Flags().StringP("output", "o", "merged.pdf", "output PDF path")
	return cmd
}

func (c *cli) convertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert -o out.pdf files...",
		Short: "Convert images and Office documents into one PDF",
		Long: `convert turns JPEG, PNG, BMP and GIF images and .doc, .docx, .xls, .xlsx,
.ppt and .pptx documents into a single PDF, in argument order. Images become
one page per frame at their pixel size; documents become A4 text pages.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, _ := cmd.Flags().GetString("output")
			return c.runFiles(cmd, converter.OpConvert, out, args)
		},
	}
	cmd.Flags().StringP("output", "o", "converted.pdf", "output PDF path")
	return cmd
}

// runFiles reads the input paths and runs one merge or convert job.
// The media type of each file is inferred from its extension.
func (c *cli) runFiles(cmd *cobra.Command, op converter.Operation, output string, paths []string) error {
	files := make([]converter.InputFile, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("read %s: %w", p, err)
		}
		files = append(files, converter.InputFile{Name: filepath.Base(p), Data: data})
	}

	app, cleanup, err := c.newApp()
	if err != nil {
		return err
	}
	defer cleanup()

	out, err := app.Process(op, files)
	if err != nil {
		return err
	}
	if err := os.WriteFile(output, out.PDF, 0644); err != nil {
		return fmt.Errorf("write %s: %w", output, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d pages)\n", output, out.Pages)
	return nil
}

func (c *cli) fetchFontCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch-font",
		Short: "Download the configured text font if it is missing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			url, _ := cmd.Flags().GetString("url")
			cfg := c.cm.Get()
			if url == "" {
				url = cfg.Font.URL
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), fontFetchTimeout)
			defer cancel()
			if err := fontcheck.Ensure(ctx, cfg.Font.Path, url); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Font ready at %s\n", cfg.Font.Path)
			return nil
		},
	}
	cmd.Flags().String("url", "", "download URL (default: font.url from the config)")
	return cmd
}

func (c *cli) historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent merge and convert jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			asJSON, _ := cmd.Flags().GetBool("json")
			prune, _ := cmd.Flags().GetBool("prune")

			hs, closeDB, err := c.openHistory()
			if err != nil {
				return err
			}
			defer closeDB()

			if prune {
				days := c.cm.Get().History.RetentionDays
				if days <= 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Retention is unlimited, nothing pruned")
					return nil
				}
				n, err := hs.Prune(time.Now().UTC().AddDate(0, 0, -days))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d job(s) older than %d days\n", n, days)
				return nil
			}

			jobs, err := hs.Recent(limit)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(jobs)
			}
			return writeJobs(cmd.OutOrStdout(), jobs)
		},
	}
	cmd.Flags().IntP("limit", "n", history.DefaultLimit, "number of jobs to show")
	cmd.Flags().Bool("json", false, "print JSON")
	cmd.Flags().Bool("prune", false, "delete jobs older than history.retention_days instead of listing")
	return cmd
}

func writeJobs(w io.Writer, jobs []history.Job) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tWHEN\tOP\tFILES\tPAGES\tMS\tRESULT")
	for _, j := range jobs {
		result := "ok"
		if !j.Success {
			result = j.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			j.ID[:8], j.CreatedAt.Local().Format(time.DateTime), j.Operation, j.FileCount, j.PageCount, j.DurationMS, result)
	}
	return tw.Flush()
}

func (c *cli) hashKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hash-key [key]",
		Short: "Hash an API access key for server.access_key_hash",
		Long: `hash-key prints the bcrypt hash of an access key. The key is read from the
argument or, when omitted, from the first line of standard input. With --save
the hash is written to the config file.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := readKey(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
			if err != nil {
				return fmt.Errorf("hash access key: %w", err)
			}
			if save, _ := cmd.Flags().GetBool("save"); save {
				if err := c.cm.Update(map[string]interface{}{"server.access_key_hash": string(hash)}); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(hash))
			return nil
		},
	}
	cmd.Flags().Bool("save", false, "store the hash in the config file")
	return cmd
}

func readKey(in io.Reader, args []string) (string, error) {
	key := ""
	if len(args) == 1 {
		key = args[0]
	} else {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && err != io.EOF {
			return "", fmt.Errorf("read key: %w", err)
		}
		key = strings.TrimRight(line, "\r\n")
	}
	if key == "" {
		return "", fmt.Errorf("access key must not be empty")
	}
	if len(key) > 72 {
		return "", fmt.Errorf("access key must be at most 72 bytes")
	}
	return key, nil
}

func (c *cli) logsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the end of the error log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := c.cm.Get().Log.Dir
			if archives, _ := cmd.Flags().GetBool("archives"); archives {
				names, err := errlog.ListArchives(dir)
				if err != nil {
					return err
				}
				for _, n := range names {
					fmt.Fprintln(cmd.OutOrStdout(), filepath.Join(dir, n))
				}
				return nil
			}
			n, _ := cmd.Flags().GetInt("lines")
			lines, err := errlog.RecentLines(dir, n)
			if err != nil {
				return err
			}
			for _, l := range lines {
				fmt.Fprintln(cmd.OutOrStdout(), l)
			}
			return nil
		},
	}
	cmd.Flags().IntP("lines", "n", 50, "number of lines")
	cmd.Flags().Bool("archives", false, "list rotated archives instead")
	return cmd
}

func (c *cli) configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `config prints the configuration after flags and PDFDESK_* environment
variables are applied. The access key hash is redacted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := c.cm.Get()
			if cfg.Server.AccessKeyHash != "" {
				cfg.Server.AccessKeyHash = "<redacted>"
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(cfg)
		},
	}
}

func (c *cli) backupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Archive the config file and the job history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			outDir, _ := cmd.Flags().GetString("output-dir")
			cfg := c.cm.Get()
			opts := backup.Options{ConfigPath: c.v.GetString("config"), OutputDir: outDir}

			var conn *sql.DB
			if cfg.History.Enabled {
				var err error
				conn, err = db.InitDB(cfg.History.DBPath)
				if err != nil {
					return fmt.Errorf("open history database: %w", err)
				}
				defer conn.Close()
				opts.DBPath = cfg.History.DBPath
			}

			res, err := backup.Run(conn, opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d files, %d jobs, %d bytes)\n",
				res.ArchivePath, res.FilesWritten, res.JobCount, res.BytesWritten)
			return nil
		},
	}
	cmd.Flags().StringP("output-dir", "o", ".", "directory for the archive")
	return cmd
}

func (c *cli) restoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore archive.tar.gz",
		Short: "Extract a backup archive",
		Long: `restore extracts config.json and pdfdesk.db from a backup archive into the
target directory. Point --config and PDFDESK_HISTORY_DB_PATH at the restored
files, or move them into place, before starting the server.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, _ := cmd.Flags().GetString("target")
			m, err := backup.Restore(args[0], target)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored backup from %s (%d jobs) into %s\n", m.Timestamp, m.JobCount, target)
			return nil
		},
	}
	cmd.Flags().String("target", "./data/restore", "directory to extract into")
	return cmd
}
