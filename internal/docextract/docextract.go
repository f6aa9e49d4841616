// Package docextract implements spec.md §4.1's document ingestion: it
// turns an uploaded TXT/MD/PDF file into plain text plus a detected
// language code. Language detection reuses whatlanggo exactly as
// _examples/MimeLyc-contextual-sub-translator/internal/subtitle/reader.go's
// detectLanguage does (DetectLang(...).Iso6391()), generalized from
// per-subtitle-line voting to whole-document detection.
package docextract

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/abadojack/whatlanggo"
	"github.com/ledongthuc/pdf"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"eduvid/internal/apperr"
)

// Result is the outcome of extracting one uploaded document.
type Result struct {
	Text         string
	DetectedType string // txt | md | pdf
	Language     string // ISO 639-1 code
}

// Config carries upload validation knobs.
type Config struct {
	MaxSizeMB    int64
	AllowedExts  []string
}

// Validate checks size and extension before any extraction work begins,
// per spec.md §4.1's pre-validation step.
func Validate(path string, cfg Config) error {
	info, err := os.Stat(path)
	if err != nil {
		return apperr.Wrap(apperr.ErrValidation, err)
	}
	if info.Size() > cfg.MaxSizeMB*1024*1024 {
		return apperr.Wrap(apperr.ErrValidation, fmt.Errorf("upload exceeds max size of %dMB", cfg.MaxSizeMB))
	}

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, allowed := range cfg.AllowedExts {
		if ext == allowed {
			return nil
		}
	}
	return apperr.Wrap(apperr.ErrValidation, fmt.Errorf("unsupported upload extension %q", ext))
}

// Extract reads path and produces a Result. Extraction method is chosen
// by file extension: .txt (with UTF-8 validation and Latin-1 fallback),
// .md (raw passthrough, markup is left in place), .pdf (page-by-page
// text extraction).
func Extract(path string) (*Result, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")

	var text string
	var err error

	switch ext {
	case "txt":
		text, err = extractTXT(path)
	case "md":
		text, err = extractMD(path)
	case "pdf":
		text, err = extractPDF(path)
	default:
		return nil, apperr.Wrap(apperr.ErrValidation, fmt.Errorf("unsupported extension %q", ext))
	}
	if err != nil {
		return nil, err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperr.Wrap(apperr.ErrValidation, fmt.Errorf("no text could be extracted from %s", filepath.Base(path)))
	}

	return &Result{
		Text:         text,
		DetectedType: ext,
		Language:     detectLanguage(text),
	}, nil
}

// extractTXT reads a text file as UTF-8; if the content is not valid
// UTF-8 it is decoded from Latin-1 (ISO-8859-1) instead, the common
// fallback for legacy plain-text uploads.
func extractTXT(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", apperr.Wrap(apperr.ErrValidation, err)
	}
	if utf8.Valid(raw) {
		return string(raw), nil
	}

	decoded, _, err := transform.Bytes(charmap.ISO8859_1.NewDecoder(), raw)
	if err != nil {
		return "", apperr.Wrap(apperr.ErrValidation, fmt.Errorf("could not decode %s as UTF-8 or Latin-1: %w", filepath.Base(path), err))
	}
	return string(decoded), nil
}

// extractMD passes the markdown source through unmodified; the pipeline
// narrates from the raw text, markup and all, rather than rendering it.
func extractMD(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", apperr.Wrap(apperr.ErrValidation, err)
	}
	return string(raw), nil
}

// extractPDF concatenates the text content of every page in order.
func extractPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", apperr.Wrap(apperr.ErrValidation, fmt.Errorf("could not open PDF %s: %w", filepath.Base(path), err))
	}
	defer f.Close()

	var buf bytes.Buffer
	totalPages := r.NumPage()
	for i := 1; i <= totalPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			continue // skip unreadable pages rather than failing the whole document
		}
		buf.WriteString(content)
		buf.WriteString("\n\n")
	}
	return buf.String(), nil
}

// detectLanguage runs whatlanggo over the whole document text and
// returns the ISO 639-1 code of DetectLang's single best guess, same as
// the teacher; its confidence is not checked.
func detectLanguage(text string) string {
	info := whatlanggo.DetectLang(text)
	return info.Iso6391()
}
