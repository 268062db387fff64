// Package pdftext extracts plain text from PDF documents.
package pdftext

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// Document is the extracted text plus basic metadata.
type Document struct {
	Text  string
	Pages int
}

// Extract parses a PDF from memory and returns its plain text.
func Extract(data []byte) (Document, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Document{}, fmt.Errorf("parse pdf: %w", err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return Document{}, fmt.Errorf("extract pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return Document{}, fmt.Errorf("read pdf text: %w", err)
	}
	return Document{Text: buf.String(), Pages: reader.NumPage()}, nil
}
