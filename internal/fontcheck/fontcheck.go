// Package fontcheck makes sure a TrueType font is available for text pages.
// The font file is fetched once at startup when it is missing, and loaded
// once per process through Resource.
package fontcheck

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/image/font/opentype"
)

// RetryBaseDelay is the first backoff between download attempts. It doubles
// on every retry. Tests override it to avoid real sleeps.
var RetryBaseDelay = 2 * time.Second

const (
	defaultMaxRetries = 4
	maxFontSize       = 32 << 20
)

// ErrNotTrueType is returned for font data that is not a TrueType
// (glyf-outline) font. CFF-flavoured OpenType and collections are rejected
// because the PDF writer embeds TrueType only.
var ErrNotTrueType = errors.New("not a TrueType font")

// Validate checks that data is a parseable TrueType font.
func Validate(data []byte) error {
	if len(data) < 4 {
		return ErrNotTrueType
	}
	switch string(data[:4]) {
	case "\x00\x01\x00\x00", "true":
	default:
		return ErrNotTrueType
	}
	if _, err := opentype.Parse(data); err != nil {
		return fmt.Errorf("parse font: %w", err)
	}
	return nil
}

// Ensure downloads url into path unless path already exists. The download is
// validated before it replaces anything on disk.
func Ensure(ctx context.Context, path, url string) error {
	if path == "" {
		return errors.New("font path is empty")
	}
	if _, err := os.Stat(path); err == nil {
		log.Printf("[Font] using existing %s", path)
		return nil
	}
	if url == "" {
		return fmt.Errorf("font %s is missing and no download URL is configured", path)
	}

	log.Printf("[Font] downloading %s", url)
	data, err := download(ctx, http.DefaultClient, url)
	if err != nil {
		return err
	}
	if err := Validate(data); err != nil {
		return fmt.Errorf("downloaded font: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create font dir: %w", err)
	}
	tmp := path + ".part"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write font: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("install font: %w", err)
	}
	log.Printf("[Font] saved %d bytes to %s", len(data), path)
	return nil
}

func download(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("font request: %w", err)
	}
	resp, err := doWithRetry(ctx, client, req, defaultMaxRetries)
	if err != nil {
		return nil, fmt.Errorf("font download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("font download: unexpected status %s", resp.Status)
	}
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(resp.Body, maxFontSize+1))
	if err != nil {
		return nil, fmt.Errorf("font download: %w", err)
	}
	if n > maxFontSize {
		return nil, fmt.Errorf("font download: larger than %d bytes", maxFontSize)
	}
	return buf.Bytes(), nil
}

func retryable(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// doWithRetry executes req and retries on 429 and 5xx responses with
// exponential backoff starting at RetryBaseDelay. After the last attempt the
// final response is returned as-is so the caller can report its status.
func doWithRetry(ctx context.Context, client *http.Client, req *http.Request, maxRetries int) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		resp, err := client.Do(req.Clone(ctx))
		if err != nil {
			return nil, err
		}
		if !retryable(resp.StatusCode) || attempt >= maxRetries {
			return resp, nil
		}

		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		backoff := time.Duration(math.Pow(2, float64(attempt))) * RetryBaseDelay
		log.Printf("[Font] %s, retrying in %v (attempt %d/%d)", resp.Status, backoff, attempt+1, maxRetries)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
}
