package main

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"pdfdesk/internal/config"
	"pdfdesk/internal/converter"
	"pdfdesk/internal/db"
	"pdfdesk/internal/errlog"
	"pdfdesk/internal/fontcheck"
	"pdfdesk/internal/handler"
	"pdfdesk/internal/history"
)

const defaultConfigPath = "./data/config.json"

type valueKind int

const (
	stringValue valueKind = iota
	intValue
	floatValue
	boolValue
)

// overlayKeys are the config keys that flags and PDFDESK_* environment
// variables may override, e.g. PDFDESK_SERVER_PORT for server.port.
var overlayKeys = []struct {
	key  string
	kind valueKind
}{
	{"server.port", intValue},
	{"server.max_upload_mb", intValue},
	{"server.max_files", intValue},
	{"server.access_key", stringValue},
	{"font.path", stringValue},
	{"font.url", stringValue},
	{"layout.page_width", floatValue},
	{"layout.page_height", floatValue},
	{"layout.margin", floatValue},
	{"layout.font_size", floatValue},
	{"layout.line_height", floatValue},
	{"history.enabled", boolValue},
	{"history.db_path", stringValue},
	{"history.retention_days", intValue},
	{"log.dir", stringValue},
	{"log.rotation_mb", intValue},
}

// cli holds the state shared by all subcommands of one invocation.
type cli struct {
	v  *viper.Viper
	cm *config.ConfigManager
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}
	c.v.SetEnvPrefix("PDFDESK")
	c.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	c.v.AutomaticEnv()

	root := &cobra.Command{
		Use:   "pdfdesk",
		Short: "Merge PDFs and convert images and Office documents to PDF",
		Long: `pdfdesk merges PDF files, and converts JPEG, PNG, BMP and GIF images and
Word, Excel and PowerPoint documents into a single PDF.

Settings come from a JSON config file, created with defaults when missing.
Flags and PDFDESK_* environment variables (PDFDESK_SERVER_PORT,
PDFDESK_FONT_PATH, ...) override the file without modifying it.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.loadConfig()
		},
	}

	pf := root.PersistentFlags()
	pf.String("config", defaultConfigPath, "JSON config file")
	pf.String("font", "", "TrueType font used for text pages")
	pf.String("history-db", "", "SQLite database for the job history")
	pf.Bool("history", true, "record jobs in the history database")
	pf.String("log-dir", "", "directory of the error log")
	c.bind(pf, "config", "config")
	c.bind(pf, "font.path", "font")
	c.bind(pf, "history.db_path", "history-db")
	c.bind(pf, "history.enabled", "history")
	c.bind(pf, "log.dir", "log-dir")

	root.AddCommand(
		c.serveCmd(),
		c.mergeCmd(),
		c.convertCmd(),
		c.fetchFontCmd(),
		c.historyCmd(),
		c.hashKeyCmd(),
		c.logsCmd(),
		c.configCmd(),
		c.backupCmd(),
		c.restoreCmd(),
		versionCmd(),
	)
	return root
}

func (c *cli) bind(fs *pflag.FlagSet, key, flag string) {
	if err := c.v.BindPFlag(key, fs.Lookup(flag)); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", flag, err))
	}
}

// loadConfig reads the config file and overlays flags and environment.
func (c *cli) loadConfig() error {
	c.cm = config.NewConfigManager(c.v.GetString("config"))
	if err := c.cm.Load(); err != nil {
		return err
	}
	if err := c.cm.Override(c.overrides()); err != nil {
		return fmt.Errorf("apply flags and environment: %w", err)
	}
	return c.cm.Get().Validate()
}

// overrides collects the overlay keys set by a changed flag or an
// environment variable, typed for ConfigManager.Override.
func (c *cli) overrides() map[string]interface{} {
	m := make(map[string]interface{})
	for _, k := range overlayKeys {
		if !c.v.IsSet(k.key) {
			continue
		}
		switch k.kind {
		case intValue:
			m[k.key] = c.v.GetInt(k.key)
		case floatValue:
			m[k.key] = c.v.GetFloat64(k.key)
		case boolValue:
			m[k.key] = c.v.GetBool(k.key)
		default:
			m[k.key] = c.v.GetString(k.key)
		}
	}
	return m
}

// newApp wires the conversion pipeline, the error log and, when enabled, the
// job history. The returned cleanup closes what was opened.
func (c *cli) newApp() (*handler.App, func(), error) {
	cfg := c.cm.Get()

	if err := errlog.Init(cfg.Log.Dir, cfg.Log.RotationMB); err != nil {
		log.Printf("[Log] error log disabled: %v", err)
	}
	cleanup := errlog.Close

	font := fontcheck.NewResource(cfg.Font.Path)
	conv := converter.NewService(font, cfg.Layout.Geometry())

	var hs *history.Service
	if cfg.History.Enabled {
		database, err := db.InitDB(cfg.History.DBPath)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("open history database: %w", err)
		}
		hs = history.NewService(database)
		cleanup = func() {
			database.Close()
			errlog.Close()
		}
	}
	return handler.NewApp(conv, hs, c.cm), cleanup, nil
}

// openHistory opens the job history without the rest of the pipeline.
func (c *cli) openHistory() (*history.Service, func(), error) {
	cfg := c.cm.Get()
	if !cfg.History.Enabled {
		return nil, nil, fmt.Errorf("job history is disabled")
	}
	database, err := db.InitDB(cfg.History.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open history database: %w", err)
	}
	return history.NewService(database), func() { database.Close() }, nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of pdfdesk",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pdfdesk %s\n", version)
		},
	}
}
