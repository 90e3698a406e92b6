// Package ingestion turns raw document payloads into context-linked chunks and
// persists them through a vector store.
package ingestion

import (
	"path/filepath"
	"strings"
)

// DocumentFormat enumerates supported document payload formats.
type DocumentFormat string

const (
	// FormatUnknown represents an unsupported or undetected format.
	FormatUnknown DocumentFormat = ""
	// FormatPDF represents PDF documents.
	FormatPDF DocumentFormat = "pdf"
	// FormatDOCX represents Office Open XML word processing documents.
	FormatDOCX DocumentFormat = "docx"
	// FormatText represents plain UTF-8 text documents.
	FormatText DocumentFormat = "txt"
	// FormatJSON represents JSON documents.
	FormatJSON DocumentFormat = "json"
)

// Formats lists every supported format in upload-error order.
func Formats() []DocumentFormat {
	return []DocumentFormat{FormatPDF, FormatDOCX, FormatText, FormatJSON}
}

// DetectFormat infers a document format from the provided path's extension.
func DetectFormat(path string) DocumentFormat {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".pdf":
		return FormatPDF
	case ".docx":
		return FormatDOCX
	case ".txt":
		return FormatText
	case ".json":
		return FormatJSON
	default:
		return FormatUnknown
	}
}

// ParseFormat maps a format name such as "pdf" to its DocumentFormat. Unknown
// names yield FormatUnknown.
func ParseFormat(name string) DocumentFormat {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "pdf":
		return FormatPDF
	case "docx":
		return FormatDOCX
	case "txt", "text":
		return FormatText
	case "json":
		return FormatJSON
	default:
		return FormatUnknown
	}
}
