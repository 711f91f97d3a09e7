package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"pdfdesk/internal/converter"
)

// filesField is the repeated multipart field carrying uploads.
const filesField = "files"

// multipartMemory is held in memory while parsing; the rest spills to temp files.
const multipartMemory = 32 << 20

// WriteJSON encodes data as JSON and writes it to the response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// WriteError writes a failure result with the given status code and message.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, converter.Result{Success: false, Error: message})
}

// StatusFor maps a pipeline error to an HTTP status code.
func StatusFor(err error) int {
	var ce *converter.Error
	if !errors.As(err, &ce) {
		return http.StatusInternalServerError
	}
	switch ce.Kind {
	case converter.KindValidation:
		return http.StatusBadRequest
	case converter.KindUnsupported:
		return http.StatusUnsupportedMediaType
	case converter.KindFormat, converter.KindEmpty:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// uploadError is a request problem found while reading the multipart body.
type uploadError struct {
	status int
	msg    string
}

func (e *uploadError) Error() string { return e.msg }

// readUploads reads every part of the "files" field, in submission order.
// Missing parts yield an empty slice so the service can report the
// operation-specific validation message.
func readUploads(r *http.Request, maxFiles int, maxFileBytes int64) ([]converter.InputFile, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, &uploadError{http.StatusRequestEntityTooLarge, "request body too large"}
		}
		if errors.Is(err, http.ErrNotMultipart) {
			return nil, &uploadError{http.StatusBadRequest, "expected a multipart/form-data body"}
		}
		return nil, &uploadError{http.StatusBadRequest, "failed to parse multipart form"}
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File[filesField]
	if maxFiles > 0 && len(headers) > maxFiles {
		return nil, &uploadError{http.StatusBadRequest, fmt.Sprintf("Too many files: at most %d can be processed at once.", maxFiles)}
	}

	files := make([]converter.InputFile, 0, len(headers))
	for _, fh := range headers {
		data, err := readPart(fh, maxFileBytes)
		if err != nil {
			return nil, err
		}
		files = append(files, converter.InputFile{
			Name:      fh.Filename,
			MediaType: fh.Header.Get("Content-Type"),
			Data:      data,
		})
	}
	return files, nil
}

func readPart(fh *multipart.FileHeader, maxBytes int64) ([]byte, error) {
	if maxBytes > 0 && fh.Size > maxBytes {
		return nil, &uploadError{http.StatusRequestEntityTooLarge, fmt.Sprintf("File %q exceeds the %dMB size limit.", fh.Filename, maxBytes>>20)}
	}
	f, err := fh.Open()
	if err != nil {
		return nil, &uploadError{http.StatusBadRequest, fmt.Sprintf("failed to read upload %q", fh.Filename)}
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, &uploadError{http.StatusBadRequest, fmt.Sprintf("failed to read upload %q", fh.Filename)}
	}
	return data, nil
}
