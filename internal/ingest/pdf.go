package ingest

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrNoText is returned when no extractable text is found in a PDF.
var ErrNoText = errors.New("no extractable text in pdf")

// ExtractPDF returns the plain text of each page of a PDF file. Pages
// that fail to decode yield an empty string rather than aborting the
// whole document; extraction fails only when every page is empty.
func ExtractPDF(path string) ([]string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}
	defer f.Close()

	numPages := reader.NumPage()
	pages := make([]string, 0, numPages)
	nonEmpty := 0
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			pages = append(pages, "")
			continue
		}
		text = strings.TrimSpace(text)
		if text != "" {
			nonEmpty++
		}
		pages = append(pages, text)
	}

	if nonEmpty == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoText, path)
	}
	return pages, nil
}
