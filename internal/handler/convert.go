package handler

import (
	"errors"
	"log"
	"net/http"

	"pdfdesk/internal/converter"
	"pdfdesk/internal/middleware"
)

// HandleMerge merges the uploaded PDFs into one document.
func HandleMerge(app *App) http.HandlerFunc {
	return handleOperation(app, converter.OpMerge)
}

// HandleConvert converts the uploaded images and Office documents into one PDF.
func HandleConvert(app *App) http.HandlerFunc {
	return handleOperation(app, converter.OpConvert)
}

func handleOperation(app *App, op converter.Operation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		cfg := app.Config()
		files, err := readUploads(r, cfg.Server.MaxFiles, int64(cfg.Server.MaxUploadMB)<<20)
		if err != nil {
			var ue *uploadError
			if errors.As(err, &ue) {
				WriteError(w, ue.status, ue.msg)
				return
			}
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}

		out, err := app.Process(op, files)
		if err != nil {
			log.Printf("[HTTP] %s request=%s rejected: %v", op, middleware.RequestIDFrom(r.Context()), err)
			WriteJSON(w, StatusFor(err), converter.NewResult(nil, err))
			return
		}
		WriteJSON(w, http.StatusOK, converter.NewResult(out.PDF, nil))
	}
}
