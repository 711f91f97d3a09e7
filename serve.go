package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pdfdesk/internal/fontcheck"
	"pdfdesk/internal/router"
)

// fontFetchTimeout bounds the startup font download.
const fontFetchTimeout = 2 * time.Minute

const housekeepingInterval = time.Hour

func (c *cli) serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `serve starts the HTTP API:

  POST /api/merge        merge the uploaded PDFs ("files" fields)
  POST /api/convert      convert the uploaded images and documents
  GET  /api/history      recent jobs
  GET  /api/history/{id} one job
  GET  /api/health       liveness

When server.access_key_hash is set, every route except /api/health requires
the matching key in the X-Access-Key header.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.serve()
		},
	}
	fs := cmd.Flags()
	fs.Int("port", 0, "listen port")
	fs.Int("max-upload-mb", 0, "maximum request size in MB")
	fs.Int("max-files", 0, "maximum number of files per request")
	c.bind(fs, "server.port", "port")
	c.bind(fs, "server.max_upload_mb", "max-upload-mb")
	c.bind(fs, "server.max_files", "max-files")
	return cmd
}

func (c *cli) serve() error {
	cfg := c.cm.Get()

	if cfg.Font.URL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), fontFetchTimeout)
		if err := fontcheck.Ensure(ctx, cfg.Font.Path, cfg.Font.URL); err != nil {
			log.Printf("[Font] fetch failed, text pages use the fallback font: %v", err)
		}
		cancel()
	}

	app, cleanup, err := c.newApp()
	if err != nil {
		return err
	}
	defer cleanup()

	mux := http.NewServeMux()
	keyLimiter := router.Register(mux, app)

	// Hourly housekeeping: lockout table and expired jobs.
	stopHousekeeping := make(chan struct{})
	defer close(stopHousekeeping)
	go func() {
		ticker := time.NewTicker(housekeepingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				keyLimiter.CleanOld()
				n, err := app.PruneHistory(time.Now().UTC())
				if err != nil {
					log.Printf("[History] prune failed: %v", err)
				} else if n > 0 {
					log.Printf("[History] pruned %d expired job(s)", n)
				}
			case <-stopHousekeeping:
				return
			}
		}
	}()

	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 300 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Printf("Graceful shutdown error: %v", err)
		}
	}()

	log.Printf("[HTTP] pdfdesk %s listening on http://%s", version, addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	log.Println("Server stopped")
	return nil
}
