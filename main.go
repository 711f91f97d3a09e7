// Command pdfdesk merges PDFs and converts images and Office documents into
// one PDF, either from the command line or as an HTTP service.
package main

import (
	"os"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
