// Package handler provides the App struct that serves as the API facade
// for pdfdesk, delegating to the conversion service and the job history.
package handler

import (
	"errors"
	"fmt"
	"log"
	"time"

	"pdfdesk/internal/config"
	"pdfdesk/internal/converter"
	"pdfdesk/internal/errlog"
	"pdfdesk/internal/history"
)

// Converter is the conversion pipeline used by the handlers.
type Converter interface {
	Run(op converter.Operation, files []converter.InputFile) (converter.Output, error)
}

// App is the API facade that binds the backend services for the HTTP layer
// and the CLI.
type App struct {
	converter     Converter
	history       *history.Service // nil when history is disabled
	configManager *config.ConfigManager
}

// NewApp creates a new App with all service dependencies injected.
// hs may be nil.
func NewApp(conv Converter, hs *history.Service, cm *config.ConfigManager) *App {
	return &App{
		converter:     conv,
		history:       hs,
		configManager: cm,
	}
}

// Config returns a copy of the current configuration.
func (a *App) Config() *config.Config {
	if cfg := a.configManager.Get(); cfg != nil {
		return cfg
	}
	return config.DefaultConfig()
}

// Process runs one merge or convert request, records it in the job history
// and writes failures to the error log.
func (a *App) Process(op converter.Operation, files []converter.InputFile) (converter.Output, error) {
	start := time.Now()
	out, err := a.converter.Run(op, files)
	elapsed := time.Since(start)

	if err != nil {
		errlog.LogFailure(failure(op, files, err))
	}
	a.record(op, files, out, err, elapsed)
	return out, err
}

// failure describes a failed request for the error log. Conversion errors
// contribute their kind and the name of the failing file.
func failure(op converter.Operation, files []converter.InputFile, err error) errlog.Failure {
	f := errlog.Failure{Op: string(op), Files: len(files), Err: err}
	var ce *converter.Error
	if errors.As(err, &ce) {
		f.Kind = ce.Kind.String()
		f.File = ce.File
	}
	return f
}

// History returns the most recent jobs, newest first.
func (a *App) History(limit int) ([]history.Job, error) {
	if a.history == nil {
		return nil, fmt.Errorf("job history is disabled")
	}
	return a.history.Recent(limit)
}

// Job returns one recorded job.
func (a *App) Job(id string) (*history.Job, error) {
	if a.history == nil {
		return nil, fmt.Errorf("job history is disabled")
	}
	return a.history.Get(id)
}

// PruneHistory deletes jobs older than the configured retention. It returns
// zero when history is disabled or retention is unlimited.
func (a *App) PruneHistory(now time.Time) (int64, error) {
	days := a.Config().History.RetentionDays
	if a.history == nil || days <= 0 {
		return 0, nil
	}
	return a.history.Prune(now.AddDate(0, 0, -days))
}

// HistoryEnabled reports whether jobs are being recorded.
func (a *App) HistoryEnabled() bool {
	return a.history != nil
}

func (a *App) record(op converter.Operation, files []converter.InputFile, out converter.Output, runErr error, elapsed time.Duration) {
	if a.history == nil {
		return
	}
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Name
	}
	job := &history.Job{
		Operation:  string(op),
		FileNames:  names,
		PageCount:  out.Pages,
		Success:    runErr == nil,
		DurationMS: elapsed.Milliseconds(),
	}
	if runErr != nil {
		job.Error = runErr.Error()
	}
	if err := a.history.Record(job); err != nil {
		log.Printf("[History] failed to record %s job: %v", op, err)
	}
}
