package converter

import (
	"mime"
	"path/filepath"
	"strings"

	"pdfdesk/internal/parser"
)

// Media types handled by the service.
const (
	MediaPDF  = "application/pdf"
	MediaJPEG = "image/jpeg"
	MediaPNG  = "image/png"
	MediaBMP  = "image/bmp"
	MediaGIF  = "image/gif"
	MediaDOC  = "application/msword"
	MediaDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MediaXLS  = "application/vnd.ms-excel"
	MediaXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	MediaPPT  = "application/vnd.ms-powerpoint"
	MediaPPTX = "application/vnd.openxmlformats-officedocument.presentationml.presentation"

	mediaOctetStream = "application/octet-stream"
)

var extMediaTypes = map[string]string{
	".pdf":  MediaPDF,
	".jpg":  MediaJPEG,
	".jpeg": MediaJPEG,
	".png":  MediaPNG,
	".bmp":  MediaBMP,
	".gif":  MediaGIF,
	".doc":  MediaDOC,
	".docx": MediaDOCX,
	".xls":  MediaXLS,
	".xlsx": MediaXLSX,
	".ppt":  MediaPPT,
	".pptx": MediaPPTX,
}

var mediaAliases = map[string]string{
	"image/jpg":      MediaJPEG,
	"image/pjpeg":    MediaJPEG,
	"image/x-ms-bmp": MediaBMP,
	"image/x-bmp":    MediaBMP,
}

// officeTypes maps document media types to parser file types.
var officeTypes = map[string]string{
	MediaDOC:  parser.TypeWordLegacy,
	MediaDOCX: parser.TypeWord,
	MediaXLS:  parser.TypeExcelLegacy,
	MediaXLSX: parser.TypeExcel,
	MediaPPT:  parser.TypePPTLegacy,
	MediaPPTX: parser.TypePPT,
}

// DetectMediaType normalizes the declared media type of a file. When nothing
// useful was declared (empty or application/octet-stream) the type is taken
// from the file name extension.
func DetectMediaType(name, declared string) string {
	mt := strings.ToLower(strings.TrimSpace(declared))
	if parsed, _, err := mime.ParseMediaType(mt); err == nil {
		mt = parsed
	}
	if alias, ok := mediaAliases[mt]; ok {
		mt = alias
	}
	if mt != "" && mt != mediaOctetStream {
		return mt
	}
	if byExt, ok := extMediaTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return byExt
	}
	if mt == "" {
		return mediaOctetStream
	}
	return mt
}

func isImage(mt string) bool {
	switch mt {
	case MediaJPEG, MediaPNG, MediaBMP, MediaGIF:
		return true
	}
	return false
}

// Supported reports whether Convert has a handler for the media type.
func Supported(mediaType string) bool {
	if isImage(mediaType) {
		return true
	}
	_, ok := officeTypes[mediaType]
	return ok
}
