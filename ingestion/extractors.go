package ingestion

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

var (
	// ErrUnsupportedFormat reports a document format outside the supported
	// set.
	ErrUnsupportedFormat = errors.New("unsupported document format")
	// ErrExtraction reports a payload whose text could not be extracted.
	ErrExtraction = errors.New("text extraction failed")
)

// Extractor pulls plain text out of a raw document payload.
type Extractor interface {
	Extract(ctx context.Context, data []byte) (string, error)
}

// ExtractorFor returns the extractor for the given format.
func ExtractorFor(format DocumentFormat) (Extractor, error) {
	switch format {
	case FormatPDF:
		return pdfExtractor{}, nil
	case FormatDOCX:
		return docxExtractor{}, nil
	case FormatText:
		return textExtractor{}, nil
	case FormatJSON:
		return jsonExtractor{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, string(format))
	}
}

type pdfExtractor struct{}

func (pdfExtractor) Extract(_ context.Context, data []byte) (string, error) {
	doc, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: open pdf: %v", ErrExtraction, err)
	}

	plain, err := doc.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("%w: extract pdf text: %v", ErrExtraction, err)
	}

	buf := &bytes.Buffer{}
	if _, err := io.Copy(buf, plain); err != nil {
		return "", fmt.Errorf("%w: read pdf text: %v", ErrExtraction, err)
	}

	return normalizePlainText(buf.String()), nil
}

type docxExtractor struct{}

// documentXML mirrors the paragraph/run/text nesting of word/document.xml.
type documentXML struct {
	Body struct {
		Paragraphs []struct {
			Runs []struct {
				Text []struct {
					Content string `xml:",chardata"`
				} `xml:"t"`
			} `xml:"r"`
		} `xml:"p"`
	} `xml:"body"`
}

func (docxExtractor) Extract(_ context.Context, data []byte) (string, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: open docx archive: %v", ErrExtraction, err)
	}

	for _, file := range reader.File {
		if file.Name != "word/document.xml" {
			continue
		}

		rc, err := file.Open()
		if err != nil {
			return "", fmt.Errorf("%w: open document.xml: %v", ErrExtraction, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("%w: read document.xml: %v", ErrExtraction, err)
		}

		var doc documentXML
		if err := xml.Unmarshal(content, &doc); err != nil {
			return "", fmt.Errorf("%w: parse document.xml: %v", ErrExtraction, err)
		}

		var sb strings.Builder
		for i, paragraph := range doc.Body.Paragraphs {
			if i > 0 {
				sb.WriteString("\n")
			}
			for _, run := range paragraph.Runs {
				for _, text := range run.Text {
					sb.WriteString(text.Content)
				}
			}
		}
		return sb.String(), nil
	}

	return "", fmt.Errorf("%w: docx archive has no word/document.xml", ErrExtraction)
}

type textExtractor struct{}

func (textExtractor) Extract(_ context.Context, data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: text payload is not valid UTF-8", ErrExtraction)
	}
	return string(data), nil
}

type jsonExtractor struct{}

// Extract validates the payload and re-encodes it compactly, so equivalent
// JSON documents always chunk the same way.
func (jsonExtractor) Extract(_ context.Context, data []byte) (string, error) {
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return "", fmt.Errorf("%w: parse json: %v", ErrExtraction, err)
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("%w: encode json: %v", ErrExtraction, err)
	}
	return string(encoded), nil
}

func normalizePlainText(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.Join(lines, "\n")
}

var (
	_ Extractor = pdfExtractor{}
	_ Extractor = docxExtractor{}
	_ Extractor = textExtractor{}
	_ Extractor = jsonExtractor{}
)
